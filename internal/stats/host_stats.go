// Package stats tracks download outcomes per media host.
package stats

import (
	"math"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// maxHosts bounds the tracker. CDN edges rotate hostnames, so a long run
// can see many of them.
const maxHosts = 1000

// HostStats holds counters for one media host.
type HostStats struct {
	Requests     int64
	Successes    int64
	Errors       int64
	Blocked      int64
	Bytes        int64
	totalLatency time.Duration

	LastBlocked time.Time
	lastAccess  time.Time
}

// HostSnapshot is a read-only copy of HostStats for reporting.
type HostSnapshot struct {
	Host           string        `json:"host"`
	Requests       int64         `json:"requests"`
	Successes      int64         `json:"successes"`
	Errors         int64         `json:"errors"`
	Blocked        int64         `json:"blocked"`
	Bytes          int64         `json:"bytes"`
	AvgLatency     time.Duration `json:"avgLatency"`
	ErrorRate      float64       `json:"errorRate"`
	SuggestedDelay time.Duration `json:"suggestedDelay"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	hosts map[string]*HostStats

	MinDelay time.Duration
	MaxDelay time.Duration
}

// NewTracker creates an empty tracker with delay suggestions clamped to
// [minDelay, maxDelay].
func NewTracker(minDelay, maxDelay time.Duration) *Tracker {
	return &Tracker{
		hosts:    make(map[string]*HostStats),
		MinDelay: minDelay,
		MaxDelay: maxDelay,
	}
}

// HostOf returns the lowercase hostname of rawURL, or "" when it has none.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Record adds one download attempt against host.
func (t *Tracker) Record(host string, latency time.Duration, bytes int64, success, blocked bool) {
	if t == nil || host == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.hosts[host]
	if !ok {
		if len(t.hosts) >= maxHosts {
			t.evictOldestLocked()
		}
		s = &HostStats{}
		t.hosts[host] = s
	}
	now := time.Now()
	s.lastAccess = now
	s.Requests++
	s.totalLatency += latency
	if success {
		s.Successes++
		s.Bytes += bytes
	} else {
		s.Errors++
	}
	if blocked {
		s.Blocked++
		s.LastBlocked = now
	}
}

func (t *Tracker) evictOldestLocked() {
	var oldest string
	var oldestAt time.Time
	for host, s := range t.hosts {
		if oldest == "" || s.lastAccess.Before(oldestAt) {
			oldest, oldestAt = host, s.lastAccess
		}
	}
	delete(t.hosts, oldest)
}

// ErrorRate returns the failed share of attempts against host, 0 when
// nothing was recorded.
func (t *Tracker) ErrorRate(host string) float64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.hosts[host]
	if !ok || s.Requests == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Requests)
}

// Requests returns the number of attempts recorded against host.
func (t *Tracker) Requests(host string) int64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.hosts[host]; ok {
		return s.Requests
	}
	return 0
}

// SuggestedDelay returns how long to wait before the next request to host.
func (t *Tracker) SuggestedDelay(host string) time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.hosts[host]
	if !ok {
		return t.MinDelay
	}
	return t.suggestedDelayLocked(s)
}

// suggestedDelayLocked scales the average latency by the error rate and
// holds a decaying penalty after a block page.
func (t *Tracker) suggestedDelayLocked(s *HostStats) time.Duration {
	if s.Requests <= 0 {
		return t.MinDelay
	}
	avg := float64(s.totalLatency) / float64(s.Requests)
	errRate := float64(s.Errors) / float64(s.Requests)
	blockRate := float64(s.Blocked) / float64(s.Requests)

	// Two requests in flight per host.
	delay := avg / 2
	delay *= 1 + errRate*5
	if blockRate > 0.05 {
		delay *= 2
	}

	// Full penalty right after a block, halving every 2.5 minutes.
	if !s.LastBlocked.IsZero() {
		since := time.Since(s.LastBlocked)
		if since < 5*time.Minute {
			penalty := float64(10*time.Second) * math.Pow(0.5, since.Minutes()/2.5)
			delay = math.Max(delay, penalty)
		}
	}

	d := time.Duration(delay)
	if d < t.MinDelay {
		return t.MinDelay
	}
	if t.MaxDelay > 0 && d > t.MaxDelay {
		return t.MaxDelay
	}
	return d
}

// Snapshot returns every tracked host, busiest first.
func (t *Tracker) Snapshot() []HostSnapshot {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]HostSnapshot, 0, len(t.hosts))
	for host, s := range t.hosts {
		snap := HostSnapshot{
			Host:           host,
			Requests:       s.Requests,
			Successes:      s.Successes,
			Errors:         s.Errors,
			Blocked:        s.Blocked,
			Bytes:          s.Bytes,
			SuggestedDelay: t.suggestedDelayLocked(s),
		}
		if s.Requests > 0 {
			snap.AvgLatency = s.totalLatency / time.Duration(s.Requests)
			snap.ErrorRate = float64(s.Errors) / float64(s.Requests)
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Requests != out[j].Requests {
			return out[i].Requests > out[j].Requests
		}
		return out[i].Host < out[j].Host
	})
	return out
}

// Len returns the number of tracked hosts.
func (t *Tracker) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hosts)
}
