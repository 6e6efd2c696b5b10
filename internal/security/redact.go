// Package security keeps credentials and signed media URLs out of logs.
package security

import (
	"net/url"
	"strings"

	"github.com/Rorqualx/clipharvest/internal/types"
)

// maxLoggedPathLen bounds how much of a CDN path is logged. Media paths are
// long opaque tokens that add nothing to a log line.
const maxLoggedPathLen = 48

// RedactURL returns rawURL with userinfo and signing parameters replaced,
// so a locator can be logged without making it replayable. Expiry and
// bitrate parameters are kept; they help when reading failures.
func RedactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid-url]"
	}
	if parsed.User != nil {
		parsed.User = url.User(redacted)
	}
	if parsed.RawQuery != "" {
		q := parsed.Query()
		for key := range q {
			if isSigningParam(key) {
				q[key] = []string{redacted}
			}
		}
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}

const redacted = "[REDACTED]"

// signingParams are CDN query parameters that authorize a request.
var signingParams = map[string]bool{
	"x-signature": true,
	"signature":   true,
	"sig":         true,
	"policy":      true,
	"tk":          true,
	"l":           true,
	"btag":        true,
}

// secretFragments catch credentials under any other name.
var secretFragments = []string{"token", "secret", "password", "auth", "key", "session"}

func isSigningParam(key string) bool {
	key = strings.ToLower(key)
	if signingParams[key] {
		return true
	}
	for _, f := range secretFragments {
		if strings.Contains(key, f) {
			return true
		}
	}
	return false
}

// ShortURL returns host plus a truncated path with the query dropped.
// Used for per-candidate debug lines where the full URL is noise.
func ShortURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "blob:") {
		return "blob:[opaque]"
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "[invalid-url]"
	}
	path := parsed.EscapedPath()
	if len(path) > maxLoggedPathLen {
		path = path[:maxLoggedPathLen] + "..."
	}
	return parsed.Host + path
}

// RedactProxyURL redacts credentials from a proxy URL.
func RedactProxyURL(proxyURL string) string {
	if proxyURL == "" {
		return ""
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return "[invalid-proxy-url]"
	}

	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), redacted)
		}
	}

	return parsed.String()
}

// CookieNames lists cookie names without values, for logging which session
// state a download carried.
func CookieNames(cookies []types.Cookie) []string {
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	return names
}
