// Package downloader fetches extracted media locators with the extracting
// session's cookies and persists them as artifact directories.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/Rorqualx/clipharvest/internal/config"
	"github.com/Rorqualx/clipharvest/internal/metrics"
	"github.com/Rorqualx/clipharvest/internal/ratelimit"
	"github.com/Rorqualx/clipharvest/internal/security"
	"github.com/Rorqualx/clipharvest/internal/stats"
	"github.com/Rorqualx/clipharvest/internal/types"
	"github.com/Rorqualx/clipharvest/pkg/version"
)

// sniffLen is how much of a rejected body is kept for classification.
const sniffLen = 4096

// A host failing at least half of hostWarnMinRequests or more downloads is
// logged as degraded.
const hostWarnMinRequests = 4

// Options bounds every download.
type Options struct {
	Concurrency int
	Timeout     time.Duration
	// Bodies at or below MinBytes are error pages, not media.
	MinBytes  int64
	MaxBytes  int64
	UserAgent string
	ProxyURL  string

	// AllowPrivateHosts skips the loopback/private address guard on
	// locators. Only for local test servers.
	AllowPrivateHosts bool
}

// OptionsFromConfig copies the download settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Concurrency: cfg.DownloadConcurrency,
		Timeout:     cfg.DownloadTimeout,
		MinBytes:    cfg.MinDownloadBytes,
		MaxBytes:    cfg.MaxDownloadBytes,
		UserAgent:   cfg.UserAgent,
		ProxyURL:    cfg.ProxyURL,

		AllowPrivateHosts: cfg.AllowPrivateLocators,
	}
}

// Downloader runs at most Concurrency fetches at once, independent of the
// session pool size.
type Downloader struct {
	opts   Options
	client *http.Client
	store  *ArtifactStore
	sem    *semaphore.Weighted
	hosts  *stats.Tracker
}

// New creates a Downloader writing into store.
func New(opts Options, store *ArtifactStore) (*Downloader, error) {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = version.UserAgent
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %s: %w", security.RedactProxyURL(opts.ProxyURL), err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	} else if !opts.AllowPrivateHosts {
		// Re-check resolved addresses. Behind a proxy the only address
		// dialed is the proxy itself.
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control:   security.DialControl,
		}).DialContext
	}
	transport.MaxIdleConnsPerHost = opts.Concurrency

	return &Downloader{
		opts: opts,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		store: store,
		sem:   semaphore.NewWeighted(int64(opts.Concurrency)),
		hosts: stats.NewTracker(0, 2*time.Minute),
	}, nil
}

// Store returns the artifact store downloads are committed to.
func (d *Downloader) Store() *ArtifactStore {
	return d.store
}

// Hosts returns per-host download statistics for this run.
func (d *Downloader) Hosts() *stats.Tracker {
	return d.hosts
}

// DownloadAll downloads every result concurrently and returns one outcome
// per result, in input order.
func (d *Downloader) DownloadAll(ctx context.Context, results []*types.ExtractionResult) []*types.DownloadOutcome {
	outcomes := make([]*types.DownloadOutcome, len(results))
	var wg sync.WaitGroup
	for i, res := range results {
		wg.Add(1)
		go func(i int, res *types.ExtractionResult) {
			defer wg.Done()
			outcomes[i] = d.Download(ctx, res)
		}(i, res)
	}
	wg.Wait()
	return outcomes
}

// Download persists one extraction result. It never panics and never
// returns nil; every failure is reported on the outcome.
func (d *Downloader) Download(ctx context.Context, res *types.ExtractionResult) (out *types.DownloadOutcome) {
	if res == nil {
		return types.FailedOutcome(types.Target{}, types.ReasonNotProcessed, types.ErrEmptyLocator)
	}
	start := time.Now()
	lg := log.With().
		Int("ordinal", res.Target.Ordinal).
		Str("video_id", res.Target.VideoID()).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			lg.Error().Interface("panic", r).Msg("Panic during download")
			out = types.FailedOutcome(res.Target, types.ReasonWriteError, fmt.Errorf("%w: panic: %v", types.ErrArtifactWrite, r))
		}
		metrics.RecordDownload(string(out.Reason), out.Size, time.Since(start))
	}()

	if !res.OK() {
		reason := res.Reason
		if reason == types.ReasonNone {
			reason = types.ReasonNoFetchableLocator
		}
		err := res.Err
		if err == nil {
			err = types.NewTargetError(reason, res.Target.URL, types.ErrEmptyLocator)
		}
		return types.FailedOutcome(res.Target, reason, err)
	}

	id, err := ArtifactID(res.Target)
	if err != nil {
		lg.Warn().Err(err).Msg("Refusing target without video id")
		return types.FailedOutcome(res.Target, types.ReasonInvalidTarget, err)
	}
	if d.store.Exists(id) {
		lg.Debug().Str("id", id).Msg("Replacing existing artifact")
	}
	ext := res.Locator.Extension
	if ext == "" {
		ext = ".mp4"
	}

	// Captured bytes never touch the network.
	if res.Locator.IsCaptured() {
		return d.store.SaveCapture(res)
	}

	if err := security.ValidateLocatorURL(res.Locator.URL, d.opts.AllowPrivateHosts); err != nil {
		lg.Warn().Err(err).Str("locator", security.ShortURL(res.Locator.URL)).Msg("Refusing locator")
		return types.FailedOutcome(res.Target, types.ReasonNoFetchableLocator,
			types.NewTargetError(types.ReasonNoFetchableLocator, res.Target.URL, fmt.Errorf("%w: %w", types.ErrEmptyLocator, err)))
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return types.FailedOutcome(res.Target, types.ReasonNotProcessed, types.NewTargetError(types.ReasonNotProcessed, res.Target.URL, err))
	}
	metrics.DownloadsInFlight.Inc()
	defer func() {
		metrics.DownloadsInFlight.Dec()
		d.sem.Release(1)
	}()

	fetchStart := time.Now()
	staged, size, reason, blocked, err := d.fetch(ctx, res, id, lg)
	if ctx.Err() == nil {
		d.recordHost(res.Locator.URL, time.Since(fetchStart), size, reason == types.ReasonNone, blocked, lg)
	}
	if reason != types.ReasonNone {
		if ctx.Err() != nil {
			reason = types.ReasonNotProcessed
		}
		lg.Warn().
			Str("reason", string(reason)).
			Err(err).
			Str("locator", security.ShortURL(res.Locator.URL)).
			Msg("Download failed")
		return types.FailedOutcome(res.Target, reason, types.NewTargetError(reason, res.Target.URL, err))
	}

	path, err := d.store.Commit(id, staged, ext, res.Metadata)
	if err != nil {
		lg.Error().Err(err).Msg("Failed to commit artifact")
		return types.FailedOutcome(res.Target, types.ReasonWriteError, types.NewTargetError(types.ReasonWriteError, res.Target.URL, err))
	}
	lg.Info().
		Str("path", path).
		Int64("bytes", size).
		Dur("elapsed", time.Since(start)).
		Msg("Download complete")
	return &types.DownloadOutcome{Target: res.Target, Success: true, Path: path, Size: size}
}

// fetch streams the locator into a staging file and returns its path.
// On any failure the staging file is already removed.
func (d *Downloader) fetch(ctx context.Context, res *types.ExtractionResult, id string, lg zerolog.Logger) (string, int64, types.FailureReason, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.Locator.URL, nil)
	if err != nil {
		return "", 0, types.ReasonDownloadHTTPError, false, fmt.Errorf("%w: build request: %w", types.ErrDownloadHTTP, err)
	}
	d.setHeaders(req, res)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", 0, types.ReasonDownloadHTTPError, false, fmt.Errorf("%w: %w", types.ErrDownloadHTTP, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		sample, _ := io.ReadAll(io.LimitReader(resp.Body, sniffLen))
		blocked := classify(resp.StatusCode, sample, lg)
		return "", 0, types.ReasonDownloadHTTPError, blocked, fmt.Errorf("%w: status %d", types.ErrDownloadHTTP, resp.StatusCode)
	}

	f, err := d.store.Stage(id)
	if err != nil {
		return "", 0, types.ReasonWriteError, false, err
	}
	staged := f.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(staged)
		}
	}()

	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, d.opts.MaxBytes+1))
	syncErr := f.Sync()
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		var pe *os.PathError
		if errors.As(copyErr, &pe) {
			return "", 0, types.ReasonWriteError, false, fmt.Errorf("%w: %w", types.ErrArtifactWrite, copyErr)
		}
		return "", 0, types.ReasonDownloadHTTPError, false, fmt.Errorf("%w: read body: %w", types.ErrDownloadHTTP, copyErr)
	case syncErr != nil || closeErr != nil:
		return "", 0, types.ReasonWriteError, false, fmt.Errorf("%w: %w", types.ErrArtifactWrite, errors.Join(syncErr, closeErr))
	case n > d.opts.MaxBytes:
		return "", 0, types.ReasonDownloadHTTPError, false, fmt.Errorf("%w: over %d bytes", types.ErrOversizedResponse, d.opts.MaxBytes)
	case resp.ContentLength > 0 && n < resp.ContentLength:
		return "", 0, types.ReasonDownloadHTTPError, false, fmt.Errorf("%w: got %d of %d bytes", types.ErrTruncatedResponse, n, resp.ContentLength)
	case n <= d.opts.MinBytes:
		blocked := classify(resp.StatusCode, readSample(staged), lg)
		return "", 0, types.ReasonUndersizedResponse, blocked, fmt.Errorf("%w: %d bytes", types.ErrUndersizedResponse, n)
	}

	keep = true
	return staged, n, types.ReasonNone, false, nil
}

// setHeaders makes the request look like the page's own media fetch and
// carries the extracting session's cookies. Signed CDN URLs reject
// requests without them.
func (d *Downloader) setHeaders(req *http.Request, res *types.ExtractionResult) {
	req.Header.Set("User-Agent", d.opts.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if origin := res.Target.Origin(); origin != "" {
		req.Header.Set("Referer", origin+"/")
		req.Header.Set("Origin", origin)
	}
	req.Header.Set("Sec-Fetch-Dest", "video")
	req.Header.Set("Sec-Fetch-Mode", "no-cors")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	for _, c := range res.Cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

func readSample(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	sample, _ := io.ReadAll(io.LimitReader(f, sniffLen))
	return sample
}

// classify logs what an error body looked like and reports whether it was
// a block page. Throttled clients get a small HTML or JSON page instead of
// media.
func classify(status int, sample []byte, lg zerolog.Logger) bool {
	info := ratelimit.Detect(status, string(sample))
	if info.Detected {
		metrics.RecordBlockPage(string(info.Category))
		lg.Warn().
			Str("code", info.ErrorCode).
			Str("category", string(info.Category)).
			Dur("suggested_delay", info.SuggestedDelay).
			Msg("Download answered with a block page")
		return true
	}
	if ratelimit.LooksLikeText(sample) {
		lg.Debug().Int("status", status).Int("sample_bytes", len(sample)).Msg("Download answered with a text body")
	}
	return false
}

func (d *Downloader) recordHost(locator string, elapsed time.Duration, size int64, success, blocked bool, lg zerolog.Logger) {
	host := stats.HostOf(locator)
	d.hosts.Record(host, elapsed, size, success, blocked)
	if success || d.hosts.Requests(host) < hostWarnMinRequests {
		return
	}
	if rate := d.hosts.ErrorRate(host); rate >= 0.5 {
		lg.Warn().
			Str("host", host).
			Float64("error_rate", rate).
			Dur("suggested_delay", d.hosts.SuggestedDelay(host)).
			Msg("Media host degraded")
	}
}
