// Package browser owns the browser sessions used for extraction.
// Each Session wraps one browser process with its own profile directory and
// a single page; the Pool creates them once per run and closes them at exit.
package browser

import (
	"context"
	"time"

	"github.com/Rorqualx/clipharvest/internal/types"
)

// Session is one isolated browser context. Implementations serialize calls:
// no two operations run on the same Session at the same time.
type Session interface {
	ID() int
	// Navigate loads url and clears the network event buffer. The timeout
	// bounds navigation and initial load together.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Evaluate runs a typed in-page script and decodes its result.
	Evaluate(ctx context.Context, req Request) (*Response, error)
	// NetworkEvents returns responses observed since the last Navigate.
	NetworkEvents() []NetworkEvent
	// Cookies returns a snapshot of the session's cookie jar.
	Cookies(ctx context.Context) ([]types.Cookie, error)
	Close() error
}

// ScriptKind selects one of the in-page scripts a Session can run.
type ScriptKind int

const (
	// ScriptHasMedia reports whether a media element is present.
	ScriptHasMedia ScriptKind = iota
	// ScriptPlayMuted mutes the media element and starts playback.
	ScriptPlayMuted
	// ScriptPageHTML returns the rendered document markup.
	ScriptPageHTML
	// ScriptMediaInfo reports duration and dimensions of the media element.
	ScriptMediaInfo
	// ScriptStartCapture attaches a recorder to the media element's stream
	// and plays it from the start. Recording stops on natural end or after
	// Request.CaptureCeiling.
	ScriptStartCapture
	// ScriptCaptureStatus reports recorder progress.
	ScriptCaptureStatus
	// ScriptCaptureData returns the recording as a base64 string.
	ScriptCaptureData
)

func (k ScriptKind) String() string {
	switch k {
	case ScriptHasMedia:
		return "has_media"
	case ScriptPlayMuted:
		return "play_muted"
	case ScriptPageHTML:
		return "page_html"
	case ScriptMediaInfo:
		return "media_info"
	case ScriptStartCapture:
		return "start_capture"
	case ScriptCaptureStatus:
		return "capture_status"
	case ScriptCaptureData:
		return "capture_data"
	default:
		return "unknown"
	}
}

// Request is a typed script invocation.
type Request struct {
	Kind ScriptKind
	// MediaSelector is the CSS selector of the media element. Empty means "video".
	MediaSelector string
	// CaptureCeiling bounds a recording started by ScriptStartCapture.
	CaptureCeiling time.Duration
}

// Response is the decoded result of a script. Only the fields relevant to
// the request kind are set.
type Response struct {
	Present bool
	HTML    string
	Media   MediaInfo
	Capture CaptureStatus
	// CapturedBase64 carries recorded bytes across the automation boundary.
	// The browser can only hand back text, so the bytes travel base64 encoded
	// and are decoded by the caller.
	CapturedBase64 string
}

// MediaInfo describes the media element.
type MediaInfo struct {
	Found    bool
	Duration time.Duration
	Width    int
	Height   int
}

// CaptureStatus is the recorder state inside the page.
type CaptureStatus struct {
	Started  bool
	Complete bool
	Error    string
	Size     int64
}

// NetworkEvent is one observed response.
type NetworkEvent struct {
	URL          string
	Status       int
	ContentType  string
	ResourceType string
	// ContentLength is the full asset size in bytes, taken from
	// Content-Range when present, else Content-Length. -1 when unknown.
	ContentLength int64
}
