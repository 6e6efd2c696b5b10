// Package extractor drives one browser session through a target page and
// recovers a media locator, page metadata and the session's cookies.
//
// Strategies run strictly in order and stop at the first that yields a
// locator: network sniffing, embedded markup scan, live-playback capture.
// Metadata and cookies are collected regardless of which strategy won.
package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/clipharvest/internal/browser"
	"github.com/Rorqualx/clipharvest/internal/config"
	"github.com/Rorqualx/clipharvest/internal/humanize"
	"github.com/Rorqualx/clipharvest/internal/metrics"
	"github.com/Rorqualx/clipharvest/internal/ratelimit"
	"github.com/Rorqualx/clipharvest/internal/security"
	"github.com/Rorqualx/clipharvest/internal/selectors"
	"github.com/Rorqualx/clipharvest/internal/types"
)

// sniffedExtension is assumed for network and markup locators; the CDN
// serves MP4 for both.
const sniffedExtension = ".mp4"

// Options bounds every step of an extraction.
type Options struct {
	NavigationTimeout       time.Duration
	MediaPollAttempts       int
	MediaPollInterval       time.Duration
	SniffSettle             time.Duration
	MinCandidateBytes       int64
	RequireVideoContentType bool

	CaptureEnabled      bool
	MaxCaptureDuration  time.Duration
	CapturePollInterval time.Duration
	MinCaptureBytes     int64
	// CaptureGrace extends the host-side wait past the recording ceiling.
	// Zero means 30s.
	CaptureGrace time.Duration
}

// OptionsFromConfig copies the extraction settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		NavigationTimeout:       cfg.NavigationTimeout,
		MediaPollAttempts:       cfg.MediaPollAttempts,
		MediaPollInterval:       cfg.MediaPollInterval,
		SniffSettle:             cfg.SniffSettle,
		MinCandidateBytes:       cfg.MinCandidateBytes,
		RequireVideoContentType: cfg.RequireVideoContentType,
		CaptureEnabled:          cfg.CaptureEnabled,
		MaxCaptureDuration:      cfg.MaxCaptureDuration,
		CapturePollInterval:     cfg.CapturePollInterval,
		MinCaptureBytes:         cfg.MinCaptureBytes,
	}
}

// Extractor is safe for concurrent use across sessions. It holds no
// per-target state.
type Extractor struct {
	opts      Options
	selectors *selectors.Manager
}

// New creates an Extractor. A nil manager uses the embedded patterns.
func New(opts Options, sel *selectors.Manager) *Extractor {
	if sel == nil {
		sel = selectors.Static(selectors.Get())
	}
	return &Extractor{opts: opts, selectors: sel}
}

func (e *Extractor) mediaSelector() string {
	return e.selectors.Get().MediaElement
}

// Extract runs every step for t on s. It never returns nil; failures are
// reported through Reason and Err on the result.
func (e *Extractor) Extract(ctx context.Context, s browser.Session, t types.Target) *types.ExtractionResult {
	start := time.Now()
	res := &types.ExtractionResult{
		Target:    t,
		SessionID: s.ID(),
		Method:    types.MethodNone,
	}
	lg := log.With().
		Int("ordinal", t.Ordinal).
		Int("session", s.ID()).
		Str("video_id", t.VideoID()).
		Str("url", security.RedactURL(t.URL)).
		Logger()

	candidates := 0
	defer func() {
		res.Duration = time.Since(start)
		metrics.RecordExtraction(string(res.Method), string(res.Reason), res.Duration, candidates)
	}()

	if !t.Valid() {
		return failed(res, types.ReasonInvalidTarget, types.ErrInvalidTarget)
	}
	// Snapshot so a hot reload cannot change patterns mid-target.
	sel := e.selectors.Get()
	target := t.CleanURL()

	// 1. Navigate.
	if err := s.Navigate(ctx, target, e.opts.NavigationTimeout); err != nil {
		if ctx.Err() != nil {
			return failed(res, types.ReasonNotProcessed, err)
		}
		lg.Warn().Err(err).Msg("Navigation failed")
		return failed(res, types.ReasonNavigationTimeout, err)
	}

	// 2. Wait for the media element, then start muted playback.
	present, err := e.waitForMedia(ctx, s, sel)
	if err != nil && ctx.Err() != nil {
		return failed(res, types.ReasonNotProcessed, err)
	}
	if err != nil {
		lg.Debug().Err(err).Msg("Media element poll failed")
	}
	if !present {
		lg.Debug().Msg("No media element appeared, continuing with sniffed traffic")
	}

	// 3. Let the player fetch, then read what the page loaded.
	if !humanize.SleepWithContext(ctx, e.opts.SniffSettle) {
		return failed(res, types.ReasonNotProcessed, ctx.Err())
	}
	cands := sniff(s.NetworkEvents(), sel)
	candidates = len(cands)

	// 4. Largest sized candidate.
	if c, ok := selectCandidate(cands, e.opts.MinCandidateBytes, e.opts.RequireVideoContentType); ok {
		res.Locator = types.Locator{URL: c.URL, Extension: sniffedExtension}
		res.Method = types.MethodNetwork
		lg.Debug().
			Str("locator", security.ShortURL(c.URL)).
			Int64("size", c.Size).
			Int("candidates", len(cands)).
			Msg("Selected network candidate")
	}

	markup := e.pageHTML(ctx, s, lg)

	// 5. Embedded JSON in the rendered markup.
	if res.Locator.Empty() {
		if u, ok := scanEmbeddedURL(markup, sel); ok {
			res.Locator = types.Locator{URL: u, Extension: sniffedExtension}
			res.Method = types.MethodMarkup
			lg.Debug().Str("locator", security.ShortURL(u)).Msg("Found embedded media URL")
		}
	}

	// 6. Live-playback capture, always last.
	reason := types.ReasonNone
	var cause error
	if res.Locator.Empty() {
		switch {
		case !present:
			reason, cause = types.ReasonNoMediaElement, types.ErrNoMediaElement
		case !e.opts.CaptureEnabled:
			reason, cause = types.ReasonNoFetchableLocator, nil
		default:
			data, r, err := e.capture(ctx, s, lg)
			if r == types.ReasonNone {
				res.Locator = types.Locator{Captured: data, Extension: captureExtension}
				res.Method = types.MethodCapture
				lg.Info().Int("bytes", len(data)).Msg("Playback captured")
			} else {
				reason, cause = r, err
			}
		}
	}

	// 7. Metadata, structured data first.
	md := scrapeMetadata(markup, sel)
	res.Metadata = types.Metadata{
		VideoID:         t.VideoID(),
		VideoURL:        t.URL,
		Creator:         t.Creator(),
		CreatorNickname: md.Nickname,
		Caption:         md.Caption,
	}

	// 8. Cookies, before the session moves on to another target.
	if cookies, err := s.Cookies(ctx); err != nil {
		lg.Warn().Err(err).Msg("Failed to read session cookies")
	} else {
		res.Cookies = cookies
		lg.Debug().Strs("cookies", security.CookieNames(cookies)).Msg("Session cookies captured")
	}

	if reason != types.ReasonNone {
		if reason == types.ReasonNotProcessed {
			return failed(res, reason, cause)
		}
		e.classifyBlockPage(res, markup, lg)
		lg.Warn().
			Str("reason", string(reason)).
			Err(cause).
			Int("candidates", len(cands)).
			Msg("No fetchable media locator")
		return failed(res, reason, fmt.Errorf("%w: %w", types.ErrNoFetchableLocator, causeOr(cause, reason)))
	}

	ev := lg.Info().
		Str("method", string(res.Method)).
		Dur("elapsed", time.Since(start))
	if !res.Locator.IsCaptured() {
		ev = ev.Str("locator", security.RedactURL(res.Locator.URL))
	}
	ev.Msg("Extraction complete")
	return res
}

// waitForMedia polls for the media element and starts muted playback once
// it appears. Muting avoids autoplay restrictions.
func (e *Extractor) waitForMedia(ctx context.Context, s browser.Session, sel *selectors.Selectors) (bool, error) {
	req := browser.Request{Kind: browser.ScriptHasMedia, MediaSelector: sel.MediaElement}
	_, present, err := humanize.Poll(ctx, e.opts.MediaPollAttempts, e.opts.MediaPollInterval, func(ctx context.Context) (bool, error) {
		resp, err := s.Evaluate(ctx, req)
		if err != nil {
			return false, err
		}
		return resp.Present, nil
	})
	if err != nil || !present {
		return false, err
	}

	if _, err := s.Evaluate(ctx, browser.Request{Kind: browser.ScriptPlayMuted, MediaSelector: sel.MediaElement}); err != nil {
		log.Debug().Err(err).Int("session", s.ID()).Msg("Muted playback did not start")
	}
	return true, nil
}

func (e *Extractor) pageHTML(ctx context.Context, s browser.Session, lg zerolog.Logger) string {
	resp, err := s.Evaluate(ctx, browser.Request{Kind: browser.ScriptPageHTML})
	if err != nil {
		lg.Debug().Err(err).Msg("Failed to read page markup")
		return ""
	}
	return resp.HTML
}

// classifyBlockPage flags results whose page was a verification or block
// page so the caller can back off.
func (e *Extractor) classifyBlockPage(res *types.ExtractionResult, markup string, lg zerolog.Logger) {
	if markup == "" {
		return
	}
	info := ratelimit.Detect(0, markup)
	if !info.Detected {
		return
	}
	res.BlockCategory = string(info.Category)
	res.BlockDelay = info.SuggestedDelay
	metrics.RecordBlockPage(string(info.Category))
	lg.Warn().
		Str("code", info.ErrorCode).
		Str("category", string(info.Category)).
		Dur("suggested_delay", info.SuggestedDelay).
		Msg("Block page detected")
}

func failed(res *types.ExtractionResult, reason types.FailureReason, cause error) *types.ExtractionResult {
	res.Reason = reason
	res.Locator = types.Locator{}
	res.Method = types.MethodNone
	res.Err = types.NewTargetError(reason, res.Target.URL, cause)
	return res
}

func causeOr(cause error, reason types.FailureReason) error {
	if cause != nil {
		return cause
	}
	return fmt.Errorf("no candidate, no embedded URL, capture disabled (%s)", reason)
}
