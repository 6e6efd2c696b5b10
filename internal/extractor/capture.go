package extractor

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Rorqualx/clipharvest/internal/browser"
	"github.com/Rorqualx/clipharvest/internal/humanize"
	"github.com/Rorqualx/clipharvest/internal/types"
)

const (
	// captureTail is recorded past the reported duration so the last frames
	// are not cut off.
	captureTail = 3 * time.Second
	// defaultCaptureGrace is how long the host keeps polling past the
	// recording ceiling while the page encodes the result.
	defaultCaptureGrace = 30 * time.Second
	// captureExtension is the container MediaRecorder produces.
	captureExtension = ".webm"
)

// captureCeiling returns how long the in-page recorder may run. An unknown
// or non-finite duration records up to the global maximum.
func captureCeiling(duration, max time.Duration) time.Duration {
	if duration <= 0 {
		return max
	}
	if c := duration + captureTail; c < max {
		return c
	}
	return max
}

// capture records the media element's live output and returns the bytes.
// The failure reason is CaptureTimeout when the recorder never finished and
// CaptureError for every other recorder or transfer failure.
func (e *Extractor) capture(ctx context.Context, s browser.Session, lg zerolog.Logger) ([]byte, types.FailureReason, error) {
	info, err := s.Evaluate(ctx, browser.Request{Kind: browser.ScriptMediaInfo, MediaSelector: e.mediaSelector()})
	if err != nil {
		return nil, types.ReasonCaptureError, fmt.Errorf("read media info: %w", err)
	}
	if !info.Media.Found {
		return nil, types.ReasonNoMediaElement, types.ErrNoMediaElement
	}

	ceiling := captureCeiling(info.Media.Duration, e.opts.MaxCaptureDuration)
	lg.Info().
		Dur("duration", info.Media.Duration).
		Dur("ceiling", ceiling).
		Msg("Starting playback capture")

	start, err := s.Evaluate(ctx, browser.Request{
		Kind:           browser.ScriptStartCapture,
		MediaSelector:  e.mediaSelector(),
		CaptureCeiling: ceiling,
	})
	if err != nil {
		return nil, types.ReasonCaptureError, fmt.Errorf("%w: start: %w", types.ErrCaptureFailed, err)
	}
	if !start.Capture.Started {
		return nil, types.ReasonCaptureError, fmt.Errorf("%w: %s", types.ErrCaptureFailed, start.Capture.Error)
	}

	wait := ceiling + e.captureGrace()
	var last browser.CaptureStatus
	done, err := humanize.PollUntil(ctx, wait, e.opts.CapturePollInterval, func(ctx context.Context) (bool, error) {
		st, err := s.Evaluate(ctx, browser.Request{Kind: browser.ScriptCaptureStatus})
		if err != nil {
			return false, err
		}
		last = st.Capture
		return st.Capture.Complete, nil
	})
	if ctx.Err() != nil {
		return nil, types.ReasonNotProcessed, fmt.Errorf("%w: %w", types.ErrContextCanceled, ctx.Err())
	}
	if err != nil {
		return nil, types.ReasonCaptureError, fmt.Errorf("%w: status: %w", types.ErrCaptureFailed, err)
	}
	if !done {
		return nil, types.ReasonCaptureTimeout, fmt.Errorf("%w after %s (%d bytes recorded)", types.ErrCaptureTimeout, wait, last.Size)
	}
	if last.Error != "" && last.Size == 0 {
		return nil, types.ReasonCaptureError, fmt.Errorf("%w: %s", types.ErrCaptureFailed, last.Error)
	}

	data, err := s.Evaluate(ctx, browser.Request{Kind: browser.ScriptCaptureData})
	if err != nil {
		return nil, types.ReasonCaptureError, fmt.Errorf("%w: transfer: %w", types.ErrCaptureFailed, err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data.CapturedBase64))
	if err != nil {
		return nil, types.ReasonCaptureError, fmt.Errorf("%w: %w", types.ErrCaptureUndecodable, err)
	}
	if int64(len(raw)) < e.opts.MinCaptureBytes {
		return nil, types.ReasonCaptureError, fmt.Errorf("%w: %d bytes", types.ErrCaptureTooSmall, len(raw))
	}
	if last.Error != "" {
		lg.Warn().Str("error", last.Error).Msg("Recorder reported an error, keeping partial capture")
	}
	return raw, types.ReasonNone, nil
}

func (e *Extractor) captureGrace() time.Duration {
	if e.opts.CaptureGrace > 0 {
		return e.opts.CaptureGrace
	}
	return defaultCaptureGrace
}
