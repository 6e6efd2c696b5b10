// Package governor keeps long runs healthy: it gates on free disk space,
// reaps orphaned browser helper processes, prunes profile caches and paces
// navigations so timing does not look mechanical.
//
// The caller invokes it between batches; the retry loop only uses the
// pacing methods.
package governor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Rorqualx/clipharvest/internal/config"
	"github.com/Rorqualx/clipharvest/internal/humanize"
	"github.com/Rorqualx/clipharvest/internal/metrics"
	"github.com/Rorqualx/clipharvest/internal/ratelimit"
	"github.com/Rorqualx/clipharvest/internal/types"
)

// maxBackoff caps the pause after a block page.
const maxBackoff = 2 * time.Minute

// Options configures a Governor.
type Options struct {
	OutputDir  string
	ProfileDir string

	MinFreeBytes      uint64
	ProfileCacheLimit int64

	PaceMin              time.Duration
	PaceMax              time.Duration
	RoundDelayMin        time.Duration
	RoundDelayMax        time.Duration
	NavigationsPerMinute int
}

// OptionsFromConfig copies the governor settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		OutputDir:            cfg.OutputDir,
		ProfileDir:           cfg.ProfileDir,
		MinFreeBytes:         uint64(cfg.MinFreeDiskMB) << 20,
		ProfileCacheLimit:    int64(cfg.ProfileCacheLimitMB) << 20,
		PaceMin:              cfg.PaceMin,
		PaceMax:              cfg.PaceMax,
		RoundDelayMin:        cfg.RoundDelayMin,
		RoundDelayMax:        cfg.RoundDelayMax,
		NavigationsPerMinute: cfg.NavigationsPerMinute,
	}
}

// Governor is safe for concurrent use.
type Governor struct {
	opts     Options
	limiter  *rate.Limiter
	procRoot string
}

// New creates a Governor. NavigationsPerMinute of zero disables the
// navigation rate limit; the random pace still applies.
func New(opts Options) *Governor {
	limit := rate.Inf
	if opts.NavigationsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.NavigationsPerMinute))
	}
	return &Governor{
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
		procRoot: "/proc",
	}
}

// CheckDisk fails with ErrInsufficientDisk when the filesystem holding the
// output directory has less than the configured free space. Platforms
// without a free-space query pass.
func (g *Governor) CheckDisk() error {
	if g.opts.MinFreeBytes == 0 {
		return nil
	}
	path := existingAncestor(g.opts.OutputDir)
	free, err := freeBytes(path)
	if errors.Is(err, errUnsupported) {
		log.Debug().Msg("Free disk space query unsupported on this platform")
		return nil
	}
	if err != nil {
		return fmt.Errorf("query free space of %s: %w", path, err)
	}
	if free < g.opts.MinFreeBytes {
		return fmt.Errorf("%w: %d MB free at %s, need %d MB",
			types.ErrInsufficientDisk, free>>20, path, g.opts.MinFreeBytes>>20)
	}
	log.Debug().Uint64("free_mb", free>>20).Str("path", path).Msg("Disk space check passed")
	return nil
}

// Pace waits for a navigation slot and then a random delay in
// [PaceMin, PaceMax].
func (g *Governor) Pace(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if !humanize.RandomWait(ctx, g.opts.PaceMin, g.opts.PaceMax) {
		return ctx.Err()
	}
	return nil
}

// RoundDelay waits a random delay in [RoundDelayMin, RoundDelayMax] before
// a retry round.
func (g *Governor) RoundDelay(ctx context.Context) error {
	if !humanize.RandomWait(ctx, g.opts.RoundDelayMin, g.opts.RoundDelayMax) {
		return ctx.Err()
	}
	return nil
}

// Backoff pauses after a block page. The suggested delay is clamped to
// [PaceMax, 2m] and jittered.
func (g *Governor) Backoff(ctx context.Context, suggested time.Duration) error {
	d := ratelimit.AdjustDelay(suggested, g.opts.PaceMax, maxBackoff)
	log.Info().Dur("delay", d).Msg("Backing off after block page")
	if !humanize.SleepWithJitter(ctx, d, 0.2) {
		return ctx.Err()
	}
	return nil
}

// CleanupStats reports what one Cleanup pass removed.
type CleanupStats struct {
	Killed      int
	PrunedBytes int64
}

// Cleanup reaps orphaned browser helpers and prunes session profiles.
// It is best effort: individual failures are logged, never returned.
func (g *Governor) Cleanup(ctx context.Context) CleanupStats {
	var stats CleanupStats
	stats.Killed = g.killOrphans(ctx)
	if ctx.Err() == nil {
		stats.PrunedBytes = pruneProfiles(g.opts.ProfileDir, g.opts.ProfileCacheLimit)
	}
	metrics.RecordCleanup(stats.Killed, stats.PrunedBytes)
	log.Info().
		Int("killed", stats.Killed).
		Int64("pruned_mb", stats.PrunedBytes>>20).
		Msg("Resource cleanup complete")
	return stats
}

// existingAncestor walks up from path until it finds something that
// exists. The output directory may not have been created yet.
func existingAncestor(path string) string {
	p, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	for {
		if _, err := os.Stat(p); err == nil || !errors.Is(err, fs.ErrNotExist) {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
