package types

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	videoIDPattern = regexp.MustCompile(`/video/(\d+)`)
	creatorPattern = regexp.MustCompile(`@([^/?#]+)`)
)

// Target is one input URL and its position in the input list.
// Ordinal is the index every outcome array is keyed by.
type Target struct {
	Ordinal int
	URL     string
}

// NewTargets assigns ordinals 0..n-1 in input order.
func NewTargets(urls []string) []Target {
	targets := make([]Target, len(urls))
	for i, u := range urls {
		targets[i] = Target{Ordinal: i, URL: u}
	}
	return targets
}

// CleanURL drops stray backslashes and everything after the query marker.
// Share links often carry tracking parameters the platform does not need.
func (t Target) CleanURL() string {
	u := strings.ReplaceAll(t.URL, `\`, "")
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return strings.TrimSpace(u)
}

// VideoID returns the numeric identifier from a /video/<id> path, or "".
func (t Target) VideoID() string {
	if m := videoIDPattern.FindStringSubmatch(t.CleanURL()); m != nil {
		return m[1]
	}
	return ""
}

// Creator returns the "@handle" segment of the URL, or "".
func (t Target) Creator() string {
	if m := creatorPattern.FindStringSubmatch(t.CleanURL()); m != nil {
		return "@" + m[1]
	}
	return ""
}

// Origin returns scheme://host of the target, used as Referer and Origin
// on authenticated downloads.
func (t Target) Origin() string {
	u, err := url.Parse(t.CleanURL())
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Valid reports whether the target is an absolute http(s) URL.
func (t Target) Valid() bool {
	u, err := url.Parse(t.CleanURL())
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
