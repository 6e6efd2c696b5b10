package config

import (
	"os"
	"testing"
	"time"
)

var allEnvVars = []string{
	"INPUT_FILE", "OUTPUT_DIR", "MAX_ROUNDS", "BATCH_SIZE",
	"EXECUTION_PROFILE", "BROWSER_PATH", "PROFILE_DIR", "HEADLESS", "PROXY_URL", "USER_AGENT",
	"POOL_SIZE",
	"NAVIGATION_TIMEOUT", "MEDIA_POLL_ATTEMPTS", "MEDIA_POLL_INTERVAL", "SNIFF_SETTLE",
	"MIN_CANDIDATE_BYTES", "REQUIRE_VIDEO_CONTENT_TYPE",
	"CAPTURE_ENABLED", "MAX_CAPTURE_DURATION", "CAPTURE_POLL_INTERVAL", "MIN_CAPTURE_BYTES",
	"DOWNLOAD_CONCURRENCY", "DOWNLOAD_TIMEOUT", "MIN_DOWNLOAD_BYTES", "MAX_DOWNLOAD_BYTES",
	"PACE_MIN", "PACE_MAX", "ROUND_DELAY_MIN", "ROUND_DELAY_MAX", "NAVIGATIONS_PER_MINUTE",
	"MIN_FREE_DISK_MB", "PROFILE_CACHE_LIMIT_MB",
	"LOG_LEVEL", "METRICS_ENABLED", "METRICS_PORT", "METRICS_BIND_ADDR",
	"SELECTORS_PATH", "SELECTORS_HOT_RELOAD",
}

func clearEnv() {
	for _, env := range allEnvVars {
		os.Unsetenv(env)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv()

	cfg := Load()

	if cfg.OutputDir != "downloads" {
		t.Errorf("Expected default output dir 'downloads', got %q", cfg.OutputDir)
	}
	if cfg.MaxRounds != 3 {
		t.Errorf("Expected default max rounds 3, got %d", cfg.MaxRounds)
	}
	if cfg.PoolSize != 3 {
		t.Errorf("Expected default pool size 3, got %d", cfg.PoolSize)
	}
	if cfg.Profile != ProfileDev {
		t.Errorf("Expected default profile dev, got %q", cfg.Profile)
	}
	if cfg.Headless {
		t.Error("Expected Headless to be false by default")
	}

	if cfg.NavigationTimeout != 30*time.Second {
		t.Errorf("Expected navigation timeout 30s, got %v", cfg.NavigationTimeout)
	}
	if cfg.MediaPollAttempts != 8 {
		t.Errorf("Expected 8 media poll attempts, got %d", cfg.MediaPollAttempts)
	}
	if cfg.MediaPollInterval != 500*time.Millisecond {
		t.Errorf("Expected media poll interval 500ms, got %v", cfg.MediaPollInterval)
	}
	if cfg.MinCandidateBytes != 100_000 {
		t.Errorf("Expected min candidate bytes 100000, got %d", cfg.MinCandidateBytes)
	}
	if cfg.RequireVideoContentType {
		t.Error("Expected RequireVideoContentType to be false by default")
	}

	if !cfg.CaptureEnabled {
		t.Error("Expected CaptureEnabled to be true by default")
	}
	if cfg.MaxCaptureDuration != 300*time.Second {
		t.Errorf("Expected capture ceiling 300s, got %v", cfg.MaxCaptureDuration)
	}
	if cfg.MinCaptureBytes != 10_000 {
		t.Errorf("Expected min capture bytes 10000, got %d", cfg.MinCaptureBytes)
	}

	if cfg.DownloadConcurrency != 10 {
		t.Errorf("Expected download concurrency 10, got %d", cfg.DownloadConcurrency)
	}
	if cfg.DownloadTimeout != 120*time.Second {
		t.Errorf("Expected download timeout 120s, got %v", cfg.DownloadTimeout)
	}
	if cfg.MinDownloadBytes != 50_000 {
		t.Errorf("Expected min download bytes 50000, got %d", cfg.MinDownloadBytes)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.LogLevel)
	}
	if cfg.MetricsEnabled {
		t.Error("Expected MetricsEnabled to be false by default")
	}
	if cfg.SelectorsHotReload {
		t.Error("Expected SelectorsHotReload to be false by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv()
	t.Setenv("OUTPUT_DIR", "/data/videos")
	t.Setenv("MAX_ROUNDS", "2")
	t.Setenv("POOL_SIZE", "5")
	t.Setenv("EXECUTION_PROFILE", "PROD")
	t.Setenv("HEADLESS", "true")
	t.Setenv("NAVIGATION_TIMEOUT", "45s")
	t.Setenv("MIN_DOWNLOAD_BYTES", "75000")
	t.Setenv("DOWNLOAD_CONCURRENCY", "4")
	t.Setenv("REQUIRE_VIDEO_CONTENT_TYPE", "true")
	t.Setenv("PROXY_URL", "http://proxy:8080")

	cfg := Load()

	if cfg.OutputDir != "/data/videos" {
		t.Errorf("Expected output dir '/data/videos', got %q", cfg.OutputDir)
	}
	if cfg.MaxRounds != 2 {
		t.Errorf("Expected max rounds 2, got %d", cfg.MaxRounds)
	}
	if cfg.PoolSize != 5 {
		t.Errorf("Expected pool size 5, got %d", cfg.PoolSize)
	}
	if cfg.Profile != ProfileProd {
		t.Errorf("Expected profile prod, got %q", cfg.Profile)
	}
	if !cfg.Headless {
		t.Error("Expected Headless to be true")
	}
	if cfg.NavigationTimeout != 45*time.Second {
		t.Errorf("Expected navigation timeout 45s, got %v", cfg.NavigationTimeout)
	}
	if cfg.MinDownloadBytes != 75000 {
		t.Errorf("Expected min download bytes 75000, got %d", cfg.MinDownloadBytes)
	}
	if cfg.DownloadConcurrency != 4 {
		t.Errorf("Expected download concurrency 4, got %d", cfg.DownloadConcurrency)
	}
	if !cfg.RequireVideoContentType {
		t.Error("Expected RequireVideoContentType to be true")
	}
	if !cfg.HasProxy() {
		t.Error("Expected HasProxy to return true when PROXY_URL is set")
	}
}

func TestInvalidEnvValues(t *testing.T) {
	clearEnv()
	t.Setenv("POOL_SIZE", "not_a_number")
	t.Setenv("HEADLESS", "not_a_bool")
	t.Setenv("DOWNLOAD_TIMEOUT", "not_a_duration")
	t.Setenv("SNIFF_SETTLE", "-1s")

	cfg := Load()

	if cfg.PoolSize != 3 {
		t.Errorf("Expected default pool size for invalid value, got %d", cfg.PoolSize)
	}
	if cfg.Headless {
		t.Error("Expected default Headless (false) for invalid value")
	}
	if cfg.DownloadTimeout != 120*time.Second {
		t.Errorf("Expected default download timeout for invalid value, got %v", cfg.DownloadTimeout)
	}
	if cfg.SniffSettle != 3*time.Second {
		t.Errorf("Expected default sniff settle for negative value, got %v", cfg.SniffSettle)
	}
}

func TestExecutionProfile(t *testing.T) {
	dev := (&Config{Profile: ProfileDev, BrowserPath: "/opt/chrome"}).ExecutionProfile()
	if dev.BrowserPath != "/opt/chrome" {
		t.Errorf("Expected dev browser path '/opt/chrome', got %q", dev.BrowserPath)
	}
	if dev.NoSandbox {
		t.Error("Expected dev profile to keep the sandbox")
	}

	prod := (&Config{Profile: ProfileProd}).ExecutionProfile()
	if prod.BrowserPath != prodBrowserPath {
		t.Errorf("Expected prod browser path %q, got %q", prodBrowserPath, prod.BrowserPath)
	}
	if !prod.NoSandbox {
		t.Error("Expected prod profile to disable the sandbox")
	}
	if len(prod.ExtraFlags) == 0 {
		t.Error("Expected prod profile to carry extra flags")
	}

	override := (&Config{Profile: ProfileProd, BrowserPath: "/usr/bin/chromium"}).ExecutionProfile()
	if override.BrowserPath != "/usr/bin/chromium" {
		t.Errorf("Expected explicit browser path to win, got %q", override.BrowserPath)
	}
}

func TestValidateClamps(t *testing.T) {
	cfg := &Config{
		Profile:             "staging",
		OutputDir:           "",
		ProfileDir:          "",
		PoolSize:            100,
		MaxRounds:           0,
		BatchSize:           0,
		MediaPollAttempts:   0,
		MaxCaptureDuration:  time.Hour,
		CapturePollInterval: 2 * time.Second,
		DownloadConcurrency: 0,
		MinDownloadBytes:    50_000,
		MaxDownloadBytes:    10,
		PaceMin:             3 * time.Second,
		PaceMax:             time.Second,
		MetricsPort:         0,
		ProfileCacheLimitMB: 0,
		LogLevel:            "verbose",
		BrowserPath:         "/opt/../etc/chrome",
		ProxyURL:            "ftp://proxy.example:21",
	}
	cfg.Validate()

	if cfg.ProxyURL != "" {
		t.Errorf("Expected unsupported proxy scheme to be dropped, got %q", cfg.ProxyURL)
	}

	if cfg.Profile != ProfileDev {
		t.Errorf("Expected unknown profile to fall back to dev, got %q", cfg.Profile)
	}
	if cfg.OutputDir != "downloads" {
		t.Errorf("Expected output dir 'downloads', got %q", cfg.OutputDir)
	}
	if cfg.PoolSize != maxPoolSize {
		t.Errorf("Expected pool size capped at %d, got %d", maxPoolSize, cfg.PoolSize)
	}
	if cfg.MaxRounds != 1 {
		t.Errorf("Expected max rounds 1, got %d", cfg.MaxRounds)
	}
	if cfg.MediaPollAttempts != 1 {
		t.Errorf("Expected poll attempts 1, got %d", cfg.MediaPollAttempts)
	}
	if cfg.MaxCaptureDuration != maxCaptureCeiling {
		t.Errorf("Expected capture ceiling capped at %v, got %v", maxCaptureCeiling, cfg.MaxCaptureDuration)
	}
	if cfg.DownloadConcurrency != 10 {
		t.Errorf("Expected download concurrency 10, got %d", cfg.DownloadConcurrency)
	}
	if cfg.MaxDownloadBytes != 2<<30 {
		t.Errorf("Expected max download bytes reset, got %d", cfg.MaxDownloadBytes)
	}
	if cfg.PaceMin != time.Second || cfg.PaceMax != 3*time.Second {
		t.Errorf("Expected pace bounds swapped, got %v..%v", cfg.PaceMin, cfg.PaceMax)
	}
	if cfg.MetricsPort != 9090 {
		t.Errorf("Expected metrics port 9090, got %d", cfg.MetricsPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected log level 'info', got %q", cfg.LogLevel)
	}
	if cfg.BrowserPath != "" {
		t.Errorf("Expected traversal path to be cleared, got %q", cfg.BrowserPath)
	}
}
