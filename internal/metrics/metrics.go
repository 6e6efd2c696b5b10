// Package metrics provides Prometheus metrics for monitoring harvest runs.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ExtractionsTotal counts extraction attempts by method and result reason.
	ExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipharvest_extractions_total",
			Help: "Total extraction attempts by method and failure reason",
		},
		[]string{"method", "reason"},
	)

	// ExtractionDuration tracks per-target extraction time.
	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipharvest_extraction_duration_seconds",
			Help:    "Extraction duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~256s
		},
		[]string{"method"},
	)

	// NetworkCandidates observes how many media candidates a page produced.
	NetworkCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clipharvest_network_candidates",
			Help:    "Media candidates sniffed per page",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	// DownloadsTotal counts downloads by outcome reason ("ok" on success).
	DownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipharvest_downloads_total",
			Help: "Total downloads by outcome",
		},
		[]string{"outcome"},
	)

	// DownloadBytes counts bytes written to artifact directories.
	DownloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clipharvest_download_bytes_total",
			Help: "Total media bytes persisted",
		},
	)

	// DownloadDuration tracks download duration.
	DownloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clipharvest_download_duration_seconds",
			Help:    "Download duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// DownloadsInFlight shows downloads currently holding a semaphore slot.
	DownloadsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipharvest_downloads_in_flight",
			Help: "Downloads currently in progress",
		},
	)

	// BlockPagesDetected counts detected block or error pages by category.
	BlockPagesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipharvest_block_pages_total",
			Help: "Detected block or error pages by category",
		},
		[]string{"category"},
	)

	// SessionPoolSize shows the number of live sessions.
	SessionPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipharvest_session_pool_size",
			Help: "Live browser sessions",
		},
	)

	// RoundFailedTargets shows the failed-set size at the end of each round.
	RoundFailedTargets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipharvest_round_failed_targets",
			Help: "Targets still failed after each round",
		},
		[]string{"round"},
	)

	// OrphansKilled counts orphaned renderer processes terminated by cleanup.
	OrphansKilled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clipharvest_orphan_processes_killed_total",
			Help: "Orphaned browser helper processes terminated",
		},
	)

	// ProfileBytesPruned counts cache bytes removed from session profiles.
	ProfileBytesPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clipharvest_profile_bytes_pruned_total",
			Help: "Profile cache and crash dump bytes removed",
		},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipharvest_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipharvest_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipharvest_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		ExtractionsTotal,
		ExtractionDuration,
		NetworkCandidates,
		DownloadsTotal,
		DownloadBytes,
		DownloadDuration,
		DownloadsInFlight,
		BlockPagesDetected,
		SessionPoolSize,
		RoundFailedTargets,
		OrphansKilled,
		ProfileBytesPruned,
		MemoryUsageBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector periodically updates memory metrics until stopCh closes.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordExtraction records one finished extraction.
func RecordExtraction(method, reason string, duration time.Duration, candidates int) {
	if reason == "" {
		reason = "ok"
	}
	ExtractionsTotal.WithLabelValues(method, reason).Inc()
	ExtractionDuration.WithLabelValues(method).Observe(duration.Seconds())
	NetworkCandidates.Observe(float64(candidates))
}

// RecordDownload records one finished download.
func RecordDownload(reason string, size int64, duration time.Duration) {
	if reason == "" {
		reason = "ok"
		DownloadBytes.Add(float64(size))
	}
	DownloadsTotal.WithLabelValues(reason).Inc()
	DownloadDuration.Observe(duration.Seconds())
}

// RecordBlockPage records a detected block or error page.
func RecordBlockPage(category string) {
	BlockPagesDetected.WithLabelValues(category).Inc()
}

// RecordRound records the failed-set size at the end of a round.
func RecordRound(round string, failed int) {
	RoundFailedTargets.WithLabelValues(round).Set(float64(failed))
}

// RecordCleanup records governor cleanup results.
func RecordCleanup(killed int, prunedBytes int64) {
	OrphansKilled.Add(float64(killed))
	ProfileBytesPruned.Add(float64(prunedBytes))
}
