package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/clipharvest/internal/config"
	"github.com/Rorqualx/clipharvest/internal/security"
	"github.com/Rorqualx/clipharvest/internal/types"
	"github.com/Rorqualx/clipharvest/pkg/version"
)

// defaultEvalTimeout bounds a script when the caller's context has no deadline.
const defaultEvalTimeout = 30 * time.Second

// rodSession is a Session backed by one Chromium process driven over CDP.
type rodSession struct {
	id       int
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	recorder *networkRecorder

	// mu serializes every operation that touches the page.
	mu       sync.Mutex
	closed   atomic.Bool
	cleanups []func()
}

// NewRodSession launches a browser with its own profile directory and opens
// the single page the session works on.
func NewRodSession(ctx context.Context, id int, cfg *config.Config) (Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	dir := sessionProfileDir(cfg.ProfileDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	if n := clearProfileLocks(dir); n > 0 {
		log.Info().Int("session", id).Int("removed", n).Msg("Removed stale profile locks")
	}

	profile := cfg.ExecutionProfile()
	proxyServer, proxyUser, proxyPass := proxyCredentials(cfg.ProxyURL)
	l := newLauncher(launchOptions{
		Profile:     profile,
		UserDataDir: dir,
		Headless:    cfg.Headless,
		ProxyURL:    proxyServer,
	})

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = version.UserAgent
	}
	page, err := newStealthPage(b, ua)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, err
	}

	s := &rodSession{
		id:       id,
		launcher: l,
		browser:  b,
		page:     page,
		recorder: newNetworkRecorder(),
	}

	stop, err := startNetworkRecorder(context.Background(), page, s.recorder)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("enable network recording: %w", err)
	}
	s.cleanups = append(s.cleanups, stop)

	stopIntercept, err := startInterception(context.Background(), page, interceptOptions{
		Username:    proxyUser,
		Password:    proxyPass,
		BlockImages: cfg.BlockImages,
	})
	if err != nil {
		if proxyUser != "" {
			_ = s.Close()
			return nil, fmt.Errorf("enable proxy authentication: %w", err)
		}
		log.Warn().Err(err).Int("session", id).Msg("Failed to enable image blocking")
	} else {
		s.cleanups = append(s.cleanups, stopIntercept)
	}

	log.Debug().
		Int("session", id).
		Str("profile", string(profile.Name)).
		Str("user_data_dir", dir).
		Msg("Browser session started")
	return s, nil
}

func (s *rodSession) ID() int { return s.id }

func (s *rodSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if s.closed.Load() {
		return types.ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recorder.Reset()

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	page := s.page.Context(navCtx)

	if err := page.Navigate(url); err != nil {
		return s.navigationError(ctx, navCtx, url, err)
	}
	if err := page.WaitLoad(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", types.ErrContextCanceled, ctx.Err())
		}
		// Feed pages often never fire load; whatever rendered is enough.
		log.Warn().
			Err(err).
			Int("session", s.id).
			Str("url", security.ShortURL(url)).
			Msg("Page load not confirmed, continuing")
	}
	return nil
}

func (s *rodSession) navigationError(parent, navCtx context.Context, url string, err error) error {
	switch {
	case parent.Err() != nil:
		return fmt.Errorf("%w: %w", types.ErrContextCanceled, parent.Err())
	case errors.Is(navCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", types.ErrNavigationTimeout, security.ShortURL(url))
	default:
		return fmt.Errorf("navigate %s: %w", security.ShortURL(url), err)
	}
}

func (s *rodSession) Evaluate(ctx context.Context, req Request) (*Response, error) {
	if s.closed.Load() {
		return nil, types.ErrSessionClosed
	}
	expr, err := req.expression()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultEvalTimeout)
		defer cancel()
	}

	result, err := proto.RuntimeEvaluate{
		Expression:    expr,
		ReturnByValue: true,
		AwaitPromise:  true,
	}.Call(s.page.Context(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", types.ErrContextCanceled, req.Kind, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %w", types.ErrScriptFailed, req.Kind, err)
	}
	if result.ExceptionDetails != nil {
		msg := result.ExceptionDetails.Text
		if ex := result.ExceptionDetails.Exception; ex != nil && ex.Description != "" {
			msg = ex.Description
		}
		return nil, fmt.Errorf("%w: %s: %s", types.ErrScriptFailed, req.Kind, msg)
	}
	if result.Result == nil {
		return nil, fmt.Errorf("%w: %s: empty result", types.ErrScriptFailed, req.Kind)
	}
	return decodeResponse(req.Kind, result.Result.Value)
}

func (s *rodSession) NetworkEvents() []NetworkEvent {
	if n := s.recorder.Dropped(); n > 0 {
		log.Debug().Int("session", s.id).Int("dropped", n).Msg("Network buffer full, events dropped")
	}
	return s.recorder.Events()
}

func (s *rodSession) Cookies(ctx context.Context) ([]types.Cookie, error) {
	if s.closed.Load() {
		return nil, types.ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	cookies := make([]types.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, types.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return cookies, nil
}

// Close is safe to call more than once.
func (s *rodSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	for _, stop := range s.cleanups {
		stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	// Kill the process group even after a clean close; helpers can linger.
	s.launcher.Kill()

	log.Debug().Int("session", s.id).Msg("Browser session closed")
	return errors.Join(errs...)
}
