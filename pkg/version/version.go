// Package version provides build version information.
// Version is set at build time via ldflags:
// go build -ldflags "-X github.com/Rorqualx/clipharvest/pkg/version.Version=1.0.0"
package version

import "runtime"

// Version is the application version, set at build time.
var Version = "dev"

// UserAgent is sent on media downloads when no override is configured.
// It should match the Chromium build driven by the session pool.
var UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"

// Full returns the full version string.
func Full() string {
	return "clipharvest " + Version
}

// GoVersion returns the Go runtime version.
func GoVersion() string {
	return runtime.Version()
}
