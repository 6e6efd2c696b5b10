// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/clipharvest/internal/security"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxPoolSize            = 20
	maxRounds              = 10
	maxDownloadConcurrency = 64
	maxNavigationTimeout   = 5 * time.Minute
	maxCaptureCeiling      = 30 * time.Minute
	maxPollAttempts        = 100
)

// Profile selects the deployment environment. Profiles differ only in the
// browser binary and the sandbox flags passed to it.
type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileProd Profile = "prod"
)

// ExecutionProfile is the browser-level part of a deployment profile.
// It is passed by value into the session pool; nothing reads it globally.
type ExecutionProfile struct {
	Name        Profile
	BrowserPath string
	NoSandbox   bool
	ExtraFlags  []string
}

// prodBrowserPath is the snap-installed Chromium used on servers.
const prodBrowserPath = "/snap/bin/chromium"

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Run settings
	InputFile string
	OutputDir string
	MaxRounds int
	BatchSize int

	// Browser settings
	Profile     Profile
	BrowserPath string
	ProfileDir  string
	Headless    bool
	ProxyURL    string
	UserAgent   string
	BlockImages bool

	// Pool settings
	PoolSize int

	// Extraction
	NavigationTimeout       time.Duration
	MediaPollAttempts       int
	MediaPollInterval       time.Duration
	SniffSettle             time.Duration
	MinCandidateBytes       int64
	RequireVideoContentType bool

	// Playback capture
	CaptureEnabled      bool
	MaxCaptureDuration  time.Duration
	CapturePollInterval time.Duration
	MinCaptureBytes     int64

	// Download
	DownloadConcurrency int
	DownloadTimeout     time.Duration
	MinDownloadBytes    int64
	MaxDownloadBytes    int64

	// Allow locators on loopback or private addresses. Off outside tests.
	AllowPrivateLocators bool

	// Pacing
	PaceMin              time.Duration
	PaceMax              time.Duration
	RoundDelayMin        time.Duration
	RoundDelayMax        time.Duration
	NavigationsPerMinute int

	// Resource governor
	MinFreeDiskMB       int
	ProfileCacheLimitMB int

	// Logging
	LogLevel string

	// Metrics
	MetricsEnabled  bool
	MetricsPort     int
	MetricsBindAddr string

	// Selectors settings
	SelectorsPath      string // Path to external selectors.yaml override file
	SelectorsHotReload bool   // Enable file watching for hot-reload of selectors
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		InputFile: getEnvString("INPUT_FILE", ""),
		OutputDir: getEnvString("OUTPUT_DIR", "downloads"),
		MaxRounds: getEnvInt("MAX_ROUNDS", 3),
		BatchSize: getEnvInt("BATCH_SIZE", 50),

		Profile:     Profile(strings.ToLower(getEnvString("EXECUTION_PROFILE", string(ProfileDev)))),
		BrowserPath: getEnvString("BROWSER_PATH", ""),
		ProfileDir:  getEnvString("PROFILE_DIR", "browser_profiles"),
		// Headed by default. Playback capture needs a real compositor,
		// so servers run under Xvfb rather than headless.
		Headless:  getEnvBool("HEADLESS", false),
		ProxyURL:  getEnvString("PROXY_URL", ""),
		UserAgent: getEnvString("USER_AGENT", ""),
		// Thumbnails and fonts are irrelevant to extraction.
		BlockImages: getEnvBool("BLOCK_IMAGES", false),

		PoolSize: getEnvInt("POOL_SIZE", 3),

		NavigationTimeout:       getEnvDuration("NAVIGATION_TIMEOUT", 30*time.Second),
		MediaPollAttempts:       getEnvInt("MEDIA_POLL_ATTEMPTS", 8),
		MediaPollInterval:       getEnvDuration("MEDIA_POLL_INTERVAL", 500*time.Millisecond),
		SniffSettle:             getEnvDuration("SNIFF_SETTLE", 3*time.Second),
		MinCandidateBytes:       getEnvInt64("MIN_CANDIDATE_BYTES", 100_000),
		RequireVideoContentType: getEnvBool("REQUIRE_VIDEO_CONTENT_TYPE", false),

		CaptureEnabled:      getEnvBool("CAPTURE_ENABLED", true),
		MaxCaptureDuration:  getEnvDuration("MAX_CAPTURE_DURATION", 300*time.Second),
		CapturePollInterval: getEnvDuration("CAPTURE_POLL_INTERVAL", 2*time.Second),
		MinCaptureBytes:     getEnvInt64("MIN_CAPTURE_BYTES", 10_000),

		DownloadConcurrency: getEnvInt("DOWNLOAD_CONCURRENCY", 10),
		DownloadTimeout:     getEnvDuration("DOWNLOAD_TIMEOUT", 120*time.Second),
		MinDownloadBytes:    getEnvInt64("MIN_DOWNLOAD_BYTES", 50_000),
		MaxDownloadBytes:    getEnvInt64("MAX_DOWNLOAD_BYTES", 2<<30),

		AllowPrivateLocators: getEnvBool("ALLOW_PRIVATE_LOCATORS", false),

		PaceMin:              getEnvDuration("PACE_MIN", 1*time.Second),
		PaceMax:              getEnvDuration("PACE_MAX", 3*time.Second),
		RoundDelayMin:        getEnvDuration("ROUND_DELAY_MIN", 2*time.Second),
		RoundDelayMax:        getEnvDuration("ROUND_DELAY_MAX", 5*time.Second),
		NavigationsPerMinute: getEnvInt("NAVIGATIONS_PER_MINUTE", 30),

		MinFreeDiskMB:       getEnvInt("MIN_FREE_DISK_MB", 1024),
		ProfileCacheLimitMB: getEnvInt("PROFILE_CACHE_LIMIT_MB", 200),

		LogLevel: getEnvString("LOG_LEVEL", "info"),

		MetricsEnabled:  getEnvBool("METRICS_ENABLED", false),
		MetricsPort:     getEnvInt("METRICS_PORT", 9090),
		MetricsBindAddr: getEnvString("METRICS_BIND_ADDR", "127.0.0.1"),

		SelectorsPath:      getEnvString("SELECTORS_PATH", ""),
		SelectorsHotReload: getEnvBool("SELECTORS_HOT_RELOAD", false),
	}
}

// ExecutionProfile resolves the browser binary and sandbox flags for the
// configured profile. An explicit BROWSER_PATH wins over the profile default.
func (c *Config) ExecutionProfile() ExecutionProfile {
	switch c.Profile {
	case ProfileProd:
		p := ExecutionProfile{
			Name:        ProfileProd,
			BrowserPath: prodBrowserPath,
			NoSandbox:   true,
			ExtraFlags: []string{
				"disable-gpu",
				"disable-dev-shm-usage",
				"disable-software-rasterizer",
				"disable-setuid-sandbox",
			},
		}
		if c.BrowserPath != "" {
			p.BrowserPath = c.BrowserPath
		}
		return p
	default:
		return ExecutionProfile{
			Name:        ProfileDev,
			BrowserPath: c.BrowserPath,
		}
	}
}

// HasProxy returns true if an outbound proxy is configured.
func (c *Config) HasProxy() bool {
	return c.ProxyURL != ""
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	if c.Profile != ProfileDev && c.Profile != ProfileProd {
		log.Warn().Str("profile", string(c.Profile)).Msg("Unknown EXECUTION_PROFILE, using dev")
		c.Profile = ProfileDev
	}

	// BrowserPath validation - prevent path traversal
	if c.BrowserPath != "" {
		if strings.Contains(c.BrowserPath, "..") {
			log.Error().
				Str("path", c.BrowserPath).
				Msg("BrowserPath contains path traversal sequence (..), ignoring")
			c.BrowserPath = ""
		} else if !strings.HasPrefix(c.BrowserPath, "/") {
			log.Warn().
				Str("path", c.BrowserPath).
				Msg("BrowserPath should be an absolute path")
		}
	}

	if err := security.ValidateProxyURL(c.ProxyURL); err != nil {
		log.Error().
			Err(err).
			Str("proxy", security.RedactProxyURL(c.ProxyURL)).
			Msg("Invalid PROXY_URL, running without a proxy")
		c.ProxyURL = ""
	}

	if c.OutputDir == "" {
		log.Warn().Msg("Empty OUTPUT_DIR, using 'downloads'")
		c.OutputDir = "downloads"
	}
	if c.ProfileDir == "" {
		log.Warn().Msg("Empty PROFILE_DIR, using 'browser_profiles'")
		c.ProfileDir = "browser_profiles"
	}

	if c.PoolSize < 1 {
		log.Warn().Int("size", c.PoolSize).Msg("Invalid pool size, using default 3")
		c.PoolSize = 3
	} else if c.PoolSize > maxPoolSize {
		log.Warn().
			Int("size", c.PoolSize).
			Int("max", maxPoolSize).
			Msg("Pool size too large, capping to maximum")
		c.PoolSize = maxPoolSize
	}

	if c.MaxRounds < 1 {
		log.Warn().Int("rounds", c.MaxRounds).Msg("MAX_ROUNDS must be at least 1, using 1")
		c.MaxRounds = 1
	} else if c.MaxRounds > maxRounds {
		log.Warn().
			Int("rounds", c.MaxRounds).
			Int("max", maxRounds).
			Msg("MAX_ROUNDS too high, capping to maximum")
		c.MaxRounds = maxRounds
	}

	if c.BatchSize < 1 {
		log.Warn().Int("size", c.BatchSize).Msg("Invalid batch size, using 50")
		c.BatchSize = 50
	}

	if c.NavigationTimeout > maxNavigationTimeout {
		log.Warn().
			Dur("timeout", c.NavigationTimeout).
			Dur("max", maxNavigationTimeout).
			Msg("NAVIGATION_TIMEOUT too long, capping to maximum")
		c.NavigationTimeout = maxNavigationTimeout
	}

	if c.MediaPollAttempts < 1 {
		log.Warn().Int("attempts", c.MediaPollAttempts).Msg("MEDIA_POLL_ATTEMPTS too low, using 1")
		c.MediaPollAttempts = 1
	} else if c.MediaPollAttempts > maxPollAttempts {
		log.Warn().Int("attempts", c.MediaPollAttempts).Msg("MEDIA_POLL_ATTEMPTS too high, capping")
		c.MediaPollAttempts = maxPollAttempts
	}

	if c.MaxCaptureDuration > maxCaptureCeiling {
		log.Warn().
			Dur("duration", c.MaxCaptureDuration).
			Dur("max", maxCaptureCeiling).
			Msg("MAX_CAPTURE_DURATION too long, capping to maximum")
		c.MaxCaptureDuration = maxCaptureCeiling
	}
	if c.CapturePollInterval > c.MaxCaptureDuration {
		log.Warn().Msg("CAPTURE_POLL_INTERVAL exceeds MAX_CAPTURE_DURATION, using 2s")
		c.CapturePollInterval = 2 * time.Second
	}

	if c.DownloadConcurrency < 1 {
		log.Warn().Int("concurrency", c.DownloadConcurrency).Msg("Invalid download concurrency, using 10")
		c.DownloadConcurrency = 10
	} else if c.DownloadConcurrency > maxDownloadConcurrency {
		log.Warn().
			Int("concurrency", c.DownloadConcurrency).
			Int("max", maxDownloadConcurrency).
			Msg("Download concurrency too high, capping to maximum")
		c.DownloadConcurrency = maxDownloadConcurrency
	}

	if c.MinCandidateBytes < 0 {
		log.Warn().Int64("bytes", c.MinCandidateBytes).Msg("Negative MIN_CANDIDATE_BYTES, using 0")
		c.MinCandidateBytes = 0
	}
	if c.MinCaptureBytes < 0 {
		log.Warn().Int64("bytes", c.MinCaptureBytes).Msg("Negative MIN_CAPTURE_BYTES, using 0")
		c.MinCaptureBytes = 0
	}
	if c.MinDownloadBytes < 0 {
		log.Warn().Int64("bytes", c.MinDownloadBytes).Msg("Negative MIN_DOWNLOAD_BYTES, using 0")
		c.MinDownloadBytes = 0
	}
	if c.MaxDownloadBytes <= c.MinDownloadBytes {
		log.Warn().
			Int64("max", c.MaxDownloadBytes).
			Int64("min", c.MinDownloadBytes).
			Msg("MAX_DOWNLOAD_BYTES not above MIN_DOWNLOAD_BYTES, using 2GiB")
		c.MaxDownloadBytes = 2 << 30
	}

	if c.PaceMax < c.PaceMin {
		log.Warn().
			Dur("min", c.PaceMin).
			Dur("max", c.PaceMax).
			Msg("PACE_MAX below PACE_MIN, swapping")
		c.PaceMin, c.PaceMax = c.PaceMax, c.PaceMin
	}
	if c.RoundDelayMax < c.RoundDelayMin {
		log.Warn().
			Dur("min", c.RoundDelayMin).
			Dur("max", c.RoundDelayMax).
			Msg("ROUND_DELAY_MAX below ROUND_DELAY_MIN, swapping")
		c.RoundDelayMin, c.RoundDelayMax = c.RoundDelayMax, c.RoundDelayMin
	}
	if c.NavigationsPerMinute < 0 {
		log.Warn().Int("rpm", c.NavigationsPerMinute).Msg("Negative NAVIGATIONS_PER_MINUTE, disabling limit")
		c.NavigationsPerMinute = 0
	}

	if c.MinFreeDiskMB < 0 {
		log.Warn().Int("mb", c.MinFreeDiskMB).Msg("Negative MIN_FREE_DISK_MB, using 0")
		c.MinFreeDiskMB = 0
	}
	if c.ProfileCacheLimitMB < 1 {
		log.Warn().Int("mb", c.ProfileCacheLimitMB).Msg("Invalid PROFILE_CACHE_LIMIT_MB, using 200")
		c.ProfileCacheLimitMB = 200
	}

	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		log.Warn().Int("port", c.MetricsPort).Msg("Invalid metrics port, using 9090")
		c.MetricsPort = 9090
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid LOG_LEVEL, using info")
		c.LogLevel = "info"
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int64("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			// Reject negative or zero durations
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}
