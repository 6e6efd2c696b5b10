// Package ratelimit classifies error and block pages served in place of media.
// The platform answers throttled or flagged clients with small HTML or JSON
// bodies and a 200 status, so the body is the only reliable signal.
package ratelimit

import (
	"regexp"
	"strings"
	"time"
)

// maxBodyLenForRegex limits the body size for regex matching to prevent ReDoS attacks.
const maxBodyLenForRegex = 100 * 1024

// ErrorCategory represents the broad category of a detected error.
type ErrorCategory string

// Error categories.
const (
	CategoryRateLimit    ErrorCategory = "rate_limit"
	CategoryAccessDenied ErrorCategory = "access_denied"
	CategoryCaptcha      ErrorCategory = "captcha"
	CategoryGeoBlocked   ErrorCategory = "geo_blocked"
	CategoryUnavailable  ErrorCategory = "unavailable"
)

// ErrorPattern defines a detection pattern and its metadata.
type ErrorPattern struct {
	Pattern     *regexp.Regexp
	ErrorCode   string
	Category    ErrorCategory
	BaseDelay   time.Duration
	Description string
}

// Info contains detected block information.
type Info struct {
	Detected       bool
	ErrorCode      string
	Category       ErrorCategory
	SuggestedDelay time.Duration
	Description    string
}

// patterns are ordered by specificity; the first match wins.
// [^<]{0,N} is used instead of .{0,N} to keep matching linear on markup.
var patterns = []ErrorPattern{
	{
		Pattern:     regexp.MustCompile(`(?i)(captcha-verify|secsdk-captcha|verify\s{1,3}to\s{1,3}continue|drag\s{1,3}the\s{1,3}slider)`),
		ErrorCode:   "VERIFY_CAPTCHA",
		Category:    CategoryCaptcha,
		BaseDelay:   60 * time.Second,
		Description: "Slider or puzzle verification page",
	},
	{
		Pattern:     regexp.MustCompile(`(?i)too\s{1,5}many\s{1,5}requests`),
		ErrorCode:   "TOO_MANY_REQUESTS",
		Category:    CategoryRateLimit,
		BaseDelay:   30 * time.Second,
		Description: "Too many requests",
	},
	{
		Pattern:     regexp.MustCompile(`(?i)rate\s{0,3}limit`),
		ErrorCode:   "RATE_LIMITED",
		Category:    CategoryRateLimit,
		BaseDelay:   30 * time.Second,
		Description: "Generic rate limit",
	},
	{
		Pattern:     regexp.MustCompile(`(?i)not\s{1,3}available\s{1,3}in\s{1,3}your\s{1,3}(region|country)`),
		ErrorCode:   "GEO_BLOCKED",
		Category:    CategoryGeoBlocked,
		BaseDelay:   0,
		Description: "Content is region restricted",
	},
	{
		Pattern:     regexp.MustCompile(`(?i)(video[^<]{0,20}(currently\s{1,3})?unavailable|video\s{1,3}has\s{1,3}been\s{1,3}removed|this\s{1,3}(video|account)\s{1,3}is\s{1,3}private|couldn't\s{1,3}find\s{1,3}this\s{1,3}(video|account))`),
		ErrorCode:   "VIDEO_UNAVAILABLE",
		Category:    CategoryUnavailable,
		BaseDelay:   0,
		Description: "Video removed, private or unavailable",
	},
	{
		Pattern:     regexp.MustCompile(`(?i)(access\s{1,5}denied|403\s{1,3}forbidden)`),
		ErrorCode:   "ACCESS_DENIED",
		Category:    CategoryAccessDenied,
		BaseDelay:   15 * time.Second,
		Description: "Generic access denied",
	},
	{
		Pattern:     regexp.MustCompile(`(?i)you\s{1,5}(have\s{1,5}been\s{1,5})?blocked`),
		ErrorCode:   "BLOCKED",
		Category:    CategoryAccessDenied,
		BaseDelay:   15 * time.Second,
		Description: "Request blocked",
	},
}

// Detect analyzes a status code and response body for block indicators.
// Body is truncated to maxBodyLenForRegex before matching.
func Detect(statusCode int, body string) Info {
	info := Info{}

	if len(body) > maxBodyLenForRegex {
		body = body[:maxBodyLenForRegex]
	}

	switch statusCode {
	case 429:
		info = Info{
			Detected:       true,
			ErrorCode:      "HTTP_429",
			Category:       CategoryRateLimit,
			SuggestedDelay: 60 * time.Second,
			Description:    "HTTP 429 Too Many Requests",
		}
	case 403:
		info = Info{
			Detected:       true,
			ErrorCode:      "HTTP_403",
			Category:       CategoryAccessDenied,
			SuggestedDelay: 15 * time.Second,
			Description:    "HTTP 403 Forbidden",
		}
	case 503:
		info = Info{
			Detected:       true,
			ErrorCode:      "HTTP_503",
			Category:       CategoryRateLimit,
			SuggestedDelay: 30 * time.Second,
			Description:    "HTTP 503 Service Unavailable",
		}
	}

	// Body patterns override status detection with more specific info
	for _, pattern := range patterns {
		if pattern.Pattern.MatchString(body) {
			return Info{
				Detected:       true,
				ErrorCode:      pattern.ErrorCode,
				Category:       pattern.Category,
				SuggestedDelay: pattern.BaseDelay,
				Description:    pattern.Description,
			}
		}
	}

	return info
}

// LooksLikeText reports whether a body sample is markup or JSON rather than
// binary media. Undersized media bodies are logged differently from error pages.
func LooksLikeText(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}
	trimmed := strings.TrimSpace(string(sample))
	if trimmed == "" {
		return false
	}
	switch trimmed[0] {
	case '<', '{', '[':
		return true
	}
	return false
}

// AdjustDelay clamps a suggested delay into [minDelay, maxDelay].
func AdjustDelay(delay, minDelay, maxDelay time.Duration) time.Duration {
	if delay < minDelay {
		return minDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
