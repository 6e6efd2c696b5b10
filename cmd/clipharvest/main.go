// Package main provides the clipharvest command: it turns lists of video
// page URLs into local media files plus metadata.
//
// Usage:
//
//	clipharvest [input-file ...]
//
// Input files hold a JSON list, a JSON object with a "urls" key, or one URL
// per line. Without arguments INPUT_FILE is read. Everything else is
// configured through the environment or a .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/clipharvest/internal/browser"
	"github.com/Rorqualx/clipharvest/internal/config"
	"github.com/Rorqualx/clipharvest/internal/downloader"
	"github.com/Rorqualx/clipharvest/internal/extractor"
	"github.com/Rorqualx/clipharvest/internal/governor"
	"github.com/Rorqualx/clipharvest/internal/metrics"
	"github.com/Rorqualx/clipharvest/internal/pipeline"
	"github.com/Rorqualx/clipharvest/internal/report"
	"github.com/Rorqualx/clipharvest/internal/security"
	"github.com/Rorqualx/clipharvest/internal/selectors"
	"github.com/Rorqualx/clipharvest/internal/types"
	"github.com/Rorqualx/clipharvest/pkg/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	envErr := godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup logging first so validation warnings are visible
	setupLogging(cfg.LogLevel)
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		log.Warn().Err(envErr).Msg("Failed to read .env file")
	}

	cfg.Validate()

	runID := uuid.New().String()
	log.Logger = log.With().Str("run", runID[:8]).Logger()
	printBanner(runID)

	inputs := os.Args[1:]
	if len(inputs) == 0 && cfg.InputFile != "" {
		inputs = []string{cfg.InputFile}
	}
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: clipharvest <input-file> [input-file ...]")
		return 2
	}

	targets, err := pipeline.LoadTargets(inputs...)
	if err != nil {
		log.Error().Err(err).Strs("inputs", inputs).Msg("Failed to load targets")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopCh := make(chan struct{})
	defer close(stopCh)
	metricsServer := startMetrics(cfg, stopCh)
	if metricsServer != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Metrics server shutdown error")
			}
		}()
	}

	gov := governor.New(governor.OptionsFromConfig(cfg))
	if err := gov.CheckDisk(); err != nil {
		log.Error().Err(err).Msg("Refusing to start")
		return 1
	}

	sel, err := selectors.NewManager(cfg.SelectorsPath, cfg.SelectorsHotReload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load selectors")
		return 1
	}
	defer func() {
		if err := sel.Close(); err != nil {
			log.Warn().Err(err).Msg("Selectors manager close error")
		}
	}()

	store, err := downloader.NewArtifactStore(cfg.OutputDir)
	if err != nil {
		log.Error().Err(err).Str("dir", cfg.OutputDir).Msg("Failed to prepare output directory")
		return 1
	}
	dl, err := downloader.New(downloader.OptionsFromConfig(cfg), store)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create downloader")
		return 1
	}

	log.Info().
		Int("pool_size", cfg.PoolSize).
		Str("profile", string(cfg.Profile)).
		Bool("headless", cfg.Headless).
		Str("proxy", security.RedactProxyURL(cfg.ProxyURL)).
		Msg("Starting browser sessions")
	pool, err := browser.NewPool(ctx, cfg, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize session pool")
		return 1
	}
	defer func() {
		if err := pool.Close(); err != nil {
			log.Error().Err(err).Msg("Session pool close error")
		}
	}()

	coord, err := pipeline.New(pipeline.Options{
		Sessions:   pool.Sessions(),
		Extractor:  extractor.New(extractor.OptionsFromConfig(cfg), sel),
		Downloader: dl,
		Captures:   store,
		Pacer:      gov,
		MaxRounds:  cfg.MaxRounds,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create coordinator")
		return 1
	}

	log.Info().
		Int("targets", len(targets)).
		Int("batch_size", cfg.BatchSize).
		Int("max_rounds", cfg.MaxRounds).
		Str("output", cfg.OutputDir).
		Msg("Run started")

	total, fatal := runBatches(ctx, cfg.BatchSize, targets, coord, gov)

	printer := report.NewPrinter(os.Stdout)
	if err := printer.Print(total); err != nil {
		log.Error().Err(err).Msg("Failed to print report")
	}
	if err := printer.PrintHosts(dl.Hosts().Snapshot()); err != nil {
		log.Error().Err(err).Msg("Failed to print host statistics")
	}
	if rs := sel.Stats(); rs.ReloadCount > 0 || rs.LastError != nil {
		log.Info().
			Int64("reloads", rs.ReloadCount).
			Time("last_reload", rs.LastReloadTime).
			AnErr("last_error", rs.LastError).
			Msg("Selector overrides")
	}
	if fatal != nil {
		log.Error().Err(fatal).Msg("Run halted")
		return 1
	}
	log.Info().
		Int("succeeded", total.Succeeded()).
		Int("targets", len(total.Outcomes)).
		Int("media_hosts", dl.Hosts().Len()).
		Msg("Run complete")
	return 0
}

// runBatches processes targets in batches, running the governor between
// them. Insufficient disk halts the run; remaining targets are reported as
// not processed.
func runBatches(ctx context.Context, size int, targets []types.Target, coord *pipeline.Coordinator, gov *governor.Governor) (*pipeline.Report, error) {
	total := &pipeline.Report{}
	for start := 0; start < len(targets); start += size {
		end := min(start+size, len(targets))
		batch := targets[start:end]

		if start > 0 {
			gov.Cleanup(ctx)
			if err := gov.CheckDisk(); err != nil {
				total.Merge(notProcessed(targets[start:], err))
				return total, err
			}
		}

		log.Info().
			Int("from", start).
			Int("to", end-1).
			Msg("Processing batch")
		total.Merge(coord.Run(ctx, batch))
	}
	return total, nil
}

func notProcessed(targets []types.Target, cause error) *pipeline.Report {
	r := &pipeline.Report{Outcomes: make([]*types.DownloadOutcome, len(targets))}
	for i, t := range targets {
		r.Outcomes[i] = types.FailedOutcome(t, types.ReasonNotProcessed,
			types.NewTargetError(types.ReasonNotProcessed, t.URL, cause))
	}
	return r
}

func startMetrics(cfg *config.Config, stopCh <-chan struct{}) *http.Server {
	if !cfg.MetricsEnabled {
		return nil
	}
	metrics.SetBuildInfo(version.Full(), version.GoVersion())
	go metrics.StartMemoryCollector(10*time.Second, stopCh)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	addr := fmt.Sprintf("%s:%d", cfg.MetricsBindAddr, cfg.MetricsPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("Prometheus metrics server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}

// setupLogging configures zerolog based on the log level.
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})

	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func printBanner(runID string) {
	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Str("run_id", runID).
		Msg("Starting clipharvest")
}
