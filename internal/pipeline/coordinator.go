// Package pipeline runs targets through extraction and download in rounds,
// retrying only what failed, and assembles outcomes by ordinal.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rorqualx/clipharvest/internal/browser"
	"github.com/Rorqualx/clipharvest/internal/metrics"
	"github.com/Rorqualx/clipharvest/internal/types"
)

// Extractor produces one ExtractionResult per target on a given session.
type Extractor interface {
	Extract(ctx context.Context, s browser.Session, t types.Target) *types.ExtractionResult
}

// Downloader persists URL locators, returning one outcome per result in
// input order.
type Downloader interface {
	DownloadAll(ctx context.Context, results []*types.ExtractionResult) []*types.DownloadOutcome
}

// CaptureWriter persists recorded playback bytes without any network
// fetch.
type CaptureWriter interface {
	SaveCapture(res *types.ExtractionResult) *types.DownloadOutcome
}

// Pacer spaces out navigations and rounds.
type Pacer interface {
	Pace(ctx context.Context) error
	RoundDelay(ctx context.Context) error
	Backoff(ctx context.Context, suggested time.Duration) error
}

// Options wires a Coordinator.
type Options struct {
	Sessions   []browser.Session
	Extractor  Extractor
	Downloader Downloader
	Captures   CaptureWriter
	// Pacer may be nil, in which case targets run back to back.
	Pacer Pacer
	// MaxRounds counts every round including the first.
	MaxRounds int
}

// Coordinator owns the retry loop. Rounds never overlap, so no target is
// processed by two rounds at once.
type Coordinator struct {
	opts Options
}

// New validates opts and creates a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if len(opts.Sessions) == 0 {
		return nil, fmt.Errorf("%w: no sessions", types.ErrPoolInit)
	}
	if opts.Extractor == nil || opts.Downloader == nil || opts.Captures == nil {
		return nil, fmt.Errorf("coordinator needs an extractor, a downloader and a capture writer")
	}
	if opts.MaxRounds < 1 {
		opts.MaxRounds = 1
	}
	if opts.Pacer == nil {
		opts.Pacer = noPacer{}
	}
	return &Coordinator{opts: opts}, nil
}

// Run processes targets and returns a report holding exactly one outcome
// per target, in input order. Per-target failures never abort the run;
// cancellation stops scheduling and marks the rest NotProcessed.
func (c *Coordinator) Run(ctx context.Context, targets []types.Target) *Report {
	report := &Report{Outcomes: make([]*types.DownloadOutcome, len(targets))}
	pos := make(map[int]int, len(targets))
	for i, t := range targets {
		pos[t.Ordinal] = i
	}

	pending := targets
	for round := 0; round < c.opts.MaxRounds && len(pending) > 0; round++ {
		if round > 0 {
			log.Info().
				Int("round", round).
				Int("targets", len(pending)).
				Msg("Retrying failed targets")
			if err := c.opts.Pacer.RoundDelay(ctx); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		stats := RoundStats{Round: round, Attempted: len(pending)}

		start := time.Now()
		results := c.extractRound(ctx, round, pending)
		stats.ExtractTime = time.Since(start)

		start = time.Now()
		outcomes := c.downloadRound(ctx, results)
		stats.DownloadTime = time.Since(start)

		for i, o := range outcomes {
			o.Round = round
			p := pos[pending[i].Ordinal]
			// A success is final; a later failure replaces an earlier one.
			if prev := report.Outcomes[p]; prev != nil && prev.Success {
				continue
			}
			report.Outcomes[p] = o
		}

		failed := make([]types.Target, 0, len(pending))
		for _, t := range pending {
			if o := report.Outcomes[pos[t.Ordinal]]; o == nil || !o.Success {
				failed = append(failed, t)
			}
		}
		stats.Succeeded = len(pending) - len(failed)
		stats.Failed = len(failed)
		report.Rounds = append(report.Rounds, stats)
		report.ExtractTime += stats.ExtractTime
		report.DownloadTime += stats.DownloadTime

		metrics.RecordRound(strconv.Itoa(round), len(failed))
		log.Info().
			Int("round", round).
			Int("attempted", stats.Attempted).
			Int("succeeded", stats.Succeeded).
			Int("failed", stats.Failed).
			Dur("extract", stats.ExtractTime).
			Dur("download", stats.DownloadTime).
			Msg("Round complete")

		pending = failed
	}

	for i, o := range report.Outcomes {
		if o == nil {
			report.Outcomes[i] = types.FailedOutcome(targets[i], types.ReasonNotProcessed, nil)
		}
	}
	return report
}

// extractRound runs one worker per session over a shared queue. A session
// only ever works on one target at a time.
func (c *Coordinator) extractRound(ctx context.Context, round int, pending []types.Target) []*types.ExtractionResult {
	results := make([]*types.ExtractionResult, len(pending))
	queue := make(chan int, len(pending))
	for i := range pending {
		queue <- i
	}
	close(queue)

	var g errgroup.Group
	for _, s := range c.opts.Sessions {
		s := s
		g.Go(func() error {
			for i := range queue {
				if err := c.opts.Pacer.Pace(ctx); err != nil {
					return nil
				}
				res := c.extract(ctx, s, pending[i])
				results[i] = res
				log.Debug().
					Int("round", round).
					Int("session", s.ID()).
					Int("ordinal", pending[i].Ordinal).
					Str("reason", string(res.Reason)).
					Msg("Target extracted")
				if res.BlockDelay > 0 {
					if err := c.opts.Pacer.Backoff(ctx, res.BlockDelay); err != nil {
						return nil
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range results {
		if r == nil {
			results[i] = &types.ExtractionResult{
				Target: pending[i],
				Method: types.MethodNone,
				Reason: types.ReasonNotProcessed,
				Err:    types.NewTargetError(types.ReasonNotProcessed, pending[i].URL, ctx.Err()),
			}
		}
	}
	return results
}

// extract shields the worker from a panicking extraction.
func (c *Coordinator) extract(ctx context.Context, s browser.Session, t types.Target) (res *types.ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("ordinal", t.Ordinal).Int("session", s.ID()).Msg("Panic during extraction")
			res = &types.ExtractionResult{
				Target:    t,
				SessionID: s.ID(),
				Method:    types.MethodNone,
				Reason:    types.ReasonCaptureError,
				Err:       types.NewTargetError(types.ReasonCaptureError, t.URL, fmt.Errorf("panic: %v", r)),
			}
		}
	}()
	res = c.opts.Extractor.Extract(ctx, s, t)
	if res == nil {
		res = &types.ExtractionResult{
			Target:    t,
			SessionID: s.ID(),
			Method:    types.MethodNone,
			Reason:    types.ReasonNoFetchableLocator,
			Err:       types.NewTargetError(types.ReasonNoFetchableLocator, t.URL, nil),
		}
	}
	return res
}

// downloadRound sends URL locators and failures through one bounded
// download phase and writes captures directly.
func (c *Coordinator) downloadRound(ctx context.Context, results []*types.ExtractionResult) []*types.DownloadOutcome {
	outcomes := make([]*types.DownloadOutcome, len(results))

	var fetch []*types.ExtractionResult
	var fetchIdx []int
	for i, r := range results {
		if r.OK() && r.Locator.IsCaptured() {
			outcomes[i] = c.opts.Captures.SaveCapture(r)
			continue
		}
		fetch = append(fetch, r)
		fetchIdx = append(fetchIdx, i)
	}

	if len(fetch) > 0 {
		got := c.opts.Downloader.DownloadAll(ctx, fetch)
		for j, o := range got {
			outcomes[fetchIdx[j]] = o
		}
	}

	for i, o := range outcomes {
		if o == nil {
			outcomes[i] = types.FailedOutcome(results[i].Target, types.ReasonNotProcessed, nil)
		}
	}
	return outcomes
}

type noPacer struct{}

func (noPacer) Pace(ctx context.Context) error                     { return ctx.Err() }
func (noPacer) RoundDelay(ctx context.Context) error               { return ctx.Err() }
func (noPacer) Backoff(ctx context.Context, _ time.Duration) error { return ctx.Err() }
