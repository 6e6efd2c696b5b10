package browser

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/clipharvest/internal/config"
	"github.com/Rorqualx/clipharvest/internal/security"
)

// launchOptions is everything a session launcher needs. The execution
// profile travels by value so sessions never read global configuration.
type launchOptions struct {
	Profile     config.ExecutionProfile
	UserDataDir string
	Headless    bool
	ProxyURL    string
}

// newLauncher builds the Chromium command line for one session.
//
// Key anti-detection strategies:
// 1. Headed browser by default (Xvfb on servers)
// 2. Disable automation-controlled blink features
// 3. Proper WebGL rendering with SwiftShader
// 4. No flags that reveal automation
func newLauncher(opts launchOptions) *launcher.Launcher {
	l := launcher.New()

	if opts.Profile.BrowserPath != "" {
		l = l.Bin(opts.Profile.BrowserPath)
	}
	if opts.UserDataDir != "" {
		l = l.UserDataDir(opts.UserDataDir)
	}

	if opts.Headless {
		l = l.Set("headless", "new")
	} else {
		// Rod enables headless by default.
		l = l.Headless(false)
	}

	// launcher.New adds no-sandbox on its own inside containers; only the
	// execution profile decides.
	if opts.Profile.NoSandbox {
		l = l.Set(flags.NoSandbox)
	} else {
		l = l.Delete(flags.NoSandbox)
	}
	for _, f := range opts.Profile.ExtraFlags {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(f, "--"), "=")
		if hasValue {
			l = l.Set(flags.Flag(name), value)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}

	if opts.ProxyURL != "" {
		l = l.Set("proxy-server", opts.ProxyURL)
		log.Debug().Str("proxy", security.RedactProxyURL(opts.ProxyURL)).Msg("Browser proxy configured")
	}

	// WebRTC must not reveal the host address behind the proxy.
	l = l.Set("force-webrtc-ip-handling-policy", "disable_non_proxied_udp")

	l = l.Set("disable-blink-features", "AutomationControlled")
	l = l.Delete("enable-automation")
	l = l.Set("disable-features", "Translate,TranslateUI,BlinkGenPropertyTrees,WebRtcHideLocalIpsWithMdns")

	// Media must start without a user gesture for the muted play step.
	l = l.Set("autoplay-policy", "no-user-gesture-required")

	// Software WebGL gives a realistic GPU fingerprint unless the profile
	// turned the GPU off entirely.
	if !hasFlag(opts.Profile.ExtraFlags, "disable-gpu") {
		l = l.Set("use-gl", "swiftshader").
			Set("use-angle", "swiftshader").
			Set("enable-unsafe-swiftshader")
	}

	l = l.Set("accept-lang", "en-US,en;q=0.9")
	l = l.Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("disable-search-engine-choice-screen")
	l = l.Set("window-size", "1920,1080")

	l = l.Set("disable-background-networking").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-sync").
		Set("safebrowsing-disable-auto-update")

	// Background tabs throttle media timers, which stalls capture.
	l = l.Set("disable-renderer-backgrounding").
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows")

	if isARM() {
		l = l.Set("disable-gpu-compositing")
		log.Debug().Msg("ARM detected: using software compositing")
	}

	return l
}

// clearProfileLocks removes Singleton* lock files left behind by a browser
// that did not exit cleanly. Chromium refuses to start on a locked profile.
func clearProfileLocks(dir string) int {
	matches, err := filepath.Glob(filepath.Join(dir, "Singleton*"))
	if err != nil {
		return 0
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			log.Debug().Err(err).Str("path", m).Msg("Failed to remove profile lock")
			continue
		}
		removed++
	}
	return removed
}

// sessionProfileDir returns the user data directory of session id.
func sessionProfileDir(root string, id int) string {
	return filepath.Join(root, "session_"+strconv.Itoa(id))
}

func hasFlag(list []string, name string) bool {
	for _, f := range list {
		f = strings.TrimPrefix(f, "--")
		if f == name || strings.HasPrefix(f, name+"=") {
			return true
		}
	}
	return false
}

// isARM returns true if running on ARM architecture.
func isARM() bool {
	arch := runtime.GOARCH
	return arch == "arm" || arch == "arm64"
}
