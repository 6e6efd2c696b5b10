package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rorqualx/clipharvest/internal/config"
	"github.com/Rorqualx/clipharvest/internal/metrics"
	"github.com/Rorqualx/clipharvest/internal/types"
)

// closeTimeout bounds how long Close waits for a single session.
const closeTimeout = 15 * time.Second

// Factory creates the session with the given id.
type Factory func(ctx context.Context, id int) (Session, error)

// RodFactory returns a Factory that launches real browsers for cfg.
func RodFactory(cfg *config.Config) Factory {
	return func(ctx context.Context, id int) (Session, error) {
		return NewRodSession(ctx, id, cfg)
	}
}

// Pool is a fixed set of sessions created once at the start of a run and
// reused across every round. Sessions are not recycled: a session that
// misbehaves fails its targets and the retry rounds pick them up.
type Pool struct {
	mu       sync.Mutex
	sessions []Session
	closed   atomic.Bool
}

// NewPool starts cfg.PoolSize sessions concurrently. If any session fails to
// start, the ones that did start are closed and no pool is returned.
func NewPool(ctx context.Context, cfg *config.Config, factory Factory) (*Pool, error) {
	size := cfg.PoolSize
	if size < 1 {
		return nil, fmt.Errorf("%w: pool size %d", types.ErrPoolInit, size)
	}
	if factory == nil {
		factory = RodFactory(cfg)
	}

	log.Info().
		Int("pool_size", size).
		Bool("headless", cfg.Headless).
		Str("profile", string(cfg.Profile)).
		Msg("Initializing session pool")

	started := make([]Session, size)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < size; i++ {
		id := i
		g.Go(func() error {
			s, err := factory(gctx, id)
			if err != nil {
				log.Error().Err(err).Int("session", id).Msg("Failed to start session")
				return types.NewPoolStartError(id, err)
			}
			started[id] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, s := range started {
			if s == nil {
				continue
			}
			if closeErr := s.Close(); closeErr != nil {
				log.Warn().Err(closeErr).Int("session", s.ID()).Msg("Failed to close session during pool cleanup")
			}
		}
		return nil, err
	}

	metrics.SessionPoolSize.Set(float64(size))
	log.Info().Int("pool_size", size).Msg("Session pool initialized successfully")
	return &Pool{sessions: started}, nil
}

// Sessions returns the pool's sessions. The slice is a copy; the sessions
// are shared.
func (p *Pool) Sessions() []Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Size returns the number of live sessions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Close closes every session with bounded parallelism. Individual failures
// are logged and never returned: shutdown always completes.
// Close is safe to call multiple times.
func (p *Pool) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	sessions := p.sessions
	p.sessions = nil
	p.mu.Unlock()

	log.Info().Int("sessions", len(sessions)).Msg("Closing session pool")

	eg := new(errgroup.Group)
	eg.SetLimit(4)
	var failed atomic.Int32
	for _, s := range sessions {
		s := s
		eg.Go(func() error {
			if !closeWithTimeout(s, closeTimeout) {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = eg.Wait()

	metrics.SessionPoolSize.Set(0)
	log.Info().Int32("failed", failed.Load()).Msg("Session pool closed")
	return nil
}

// closeWithTimeout reports whether s closed cleanly within timeout.
func closeWithTimeout(s Session, timeout time.Duration) bool {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic during close: %v", r)
			}
		}()
		done <- s.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Warn().Err(err).Int("session", s.ID()).Msg("Error closing session")
			return false
		}
		return true
	case <-time.After(timeout):
		log.Warn().Int("session", s.ID()).Dur("timeout", timeout).Msg("Session close timed out")
		return false
	}
}
