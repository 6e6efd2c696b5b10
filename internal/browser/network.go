package browser

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"
)

// maxRecordedEvents caps the per-navigation buffer. Feed pages keep loading
// neighbouring clips, so an idle page can emit thousands of responses.
const maxRecordedEvents = 2000

// networkRecorder is a thread-safe buffer of responses observed on a page.
// The listener goroutine appends; the session reads and resets it.
type networkRecorder struct {
	mu      sync.Mutex
	events  []NetworkEvent
	dropped int
}

func newNetworkRecorder() *networkRecorder {
	return &networkRecorder{events: make([]NetworkEvent, 0, 64)}
}

// Add records one event. Thread-safe: called from the listener goroutine.
func (r *networkRecorder) Add(ev NetworkEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) >= maxRecordedEvents {
		r.dropped++
		return
	}
	r.events = append(r.events, ev)
}

// Reset clears the buffer before a new navigation.
func (r *networkRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = r.events[:0]
	r.dropped = 0
}

// Events returns a copy of the recorded events.
func (r *networkRecorder) Events() []NetworkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NetworkEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Dropped returns how many events were discarded since the last Reset.
func (r *networkRecorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// startNetworkRecorder enables the Network domain and records every
// Network.responseReceived on page until the returned cleanup is called.
//
// The cleanup function MUST be called when the session closes to prevent
// goroutine leaks. It is safe to call more than once.
func startNetworkRecorder(ctx context.Context, page *rod.Page, rec *networkRecorder) (func(), error) {
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return func() {}, err
	}

	listenerCtx, cancel := context.WithCancel(ctx)
	pageWithCtx := page.Context(listenerCtx)

	var wg sync.WaitGroup
	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			cancel()
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
				log.Debug().Msg("Network recorder stopped")
			case <-time.After(5 * time.Second):
				log.Warn().Msg("Timeout waiting for network recorder to stop")
			}
		})
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Recovered from panic in network recorder")
			}
		}()

		wait := pageWithCtx.EachEvent(func(e *proto.NetworkResponseReceived) bool {
			select {
			case <-listenerCtx.Done():
				return true
			default:
			}
			if e.Response == nil {
				return false
			}
			rec.Add(eventFromResponse(e))
			return false
		})
		wait()
	}()

	// Let the subscription settle before the first navigation.
	initTimer := time.NewTimer(100 * time.Millisecond)
	defer initTimer.Stop()
	select {
	case <-initTimer.C:
	case <-ctx.Done():
		cleanup()
		return func() {}, ctx.Err()
	}

	return cleanup, nil
}

func eventFromResponse(e *proto.NetworkResponseReceived) NetworkEvent {
	headers := lowerHeaders(e.Response.Headers)

	contentType := headers["content-type"]
	if contentType == "" {
		contentType = e.Response.MIMEType
	}

	return NetworkEvent{
		URL:           e.Response.URL,
		Status:        e.Response.Status,
		ContentType:   contentType,
		ResourceType:  string(e.Type),
		ContentLength: declaredSize(headers),
	}
}

func lowerHeaders(h proto.NetworkHeaders) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = headerValue(v)
	}
	return out
}

func headerValue(v gson.JSON) string {
	if v.Nil() {
		return ""
	}
	return v.Str()
}

// declaredSize returns the full asset size. Media players fetch in ranges,
// so a 206 response's Content-Length is only the slice; the total after the
// slash in Content-Range is the real size.
func declaredSize(headers map[string]string) int64 {
	if cr := headers["content-range"]; cr != "" {
		if i := strings.LastIndexByte(cr, '/'); i >= 0 {
			if n, err := strconv.ParseInt(strings.TrimSpace(cr[i+1:]), 10, 64); err == nil {
				return n
			}
		}
	}
	if cl := headers["content-length"]; cl != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64); err == nil {
			return n
		}
	}
	return -1
}
