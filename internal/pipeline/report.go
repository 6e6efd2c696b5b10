package pipeline

import (
	"time"

	"github.com/Rorqualx/clipharvest/internal/types"
)

// RoundStats summarizes one round.
type RoundStats struct {
	Round        int
	Attempted    int
	Succeeded    int
	Failed       int
	ExtractTime  time.Duration
	DownloadTime time.Duration
}

// Report is the result of one or more runs. Outcomes has one entry per
// target in input order.
type Report struct {
	Outcomes     []*types.DownloadOutcome
	Rounds       []RoundStats
	ExtractTime  time.Duration
	DownloadTime time.Duration
}

// Succeeded returns the number of successful outcomes.
func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// TotalBytes returns the bytes written across all successful outcomes.
func (r *Report) TotalBytes() int64 {
	var n int64
	for _, o := range r.Outcomes {
		if o.Success {
			n += o.Size
		}
	}
	return n
}

// FailuresByReason counts failed outcomes per reason.
func (r *Report) FailuresByReason() map[types.FailureReason]int {
	m := make(map[types.FailureReason]int)
	for _, o := range r.Outcomes {
		if !o.Success {
			m[o.Reason]++
		}
	}
	return m
}

// Merge appends other's outcomes and timings to r. Batches are merged in
// input order so ordinals stay aligned.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Outcomes = append(r.Outcomes, other.Outcomes...)
	r.Rounds = append(r.Rounds, other.Rounds...)
	r.ExtractTime += other.ExtractTime
	r.DownloadTime += other.DownloadTime
}
