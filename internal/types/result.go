package types

import "time"

// FailureReason tags why a target did not produce an artifact.
type FailureReason string

// Failure taxonomy. ReasonNone marks a successful result.
const (
	ReasonNone               FailureReason = ""
	ReasonNavigationTimeout  FailureReason = "NavigationTimeout"
	ReasonNoMediaElement     FailureReason = "NoMediaElementFound"
	ReasonNoFetchableLocator FailureReason = "NoFetchableLocator"
	ReasonCaptureTimeout     FailureReason = "CaptureTimeout"
	ReasonCaptureError       FailureReason = "CaptureError"
	ReasonDownloadHTTPError  FailureReason = "DownloadHTTPError"
	ReasonUndersizedResponse FailureReason = "UndersizedResponse"
	ReasonWriteError         FailureReason = "WriteError"
	ReasonInvalidTarget      FailureReason = "InvalidTarget"
	ReasonNotProcessed       FailureReason = "NotProcessed"
)

// Sentinel returns the sentinel error matching the reason.
func (r FailureReason) Sentinel() error {
	switch r {
	case ReasonNavigationTimeout:
		return ErrNavigationTimeout
	case ReasonNoMediaElement:
		return ErrNoMediaElement
	case ReasonNoFetchableLocator:
		return ErrNoFetchableLocator
	case ReasonCaptureTimeout:
		return ErrCaptureTimeout
	case ReasonCaptureError:
		return ErrCaptureFailed
	case ReasonDownloadHTTPError:
		return ErrDownloadHTTP
	case ReasonUndersizedResponse:
		return ErrUndersizedResponse
	case ReasonWriteError:
		return ErrArtifactWrite
	case ReasonInvalidTarget:
		return ErrInvalidTarget
	default:
		return ErrTargetNotProcessed
	}
}

// ExtractionMethod records which strategy produced the locator.
type ExtractionMethod string

const (
	MethodNone    ExtractionMethod = "none"
	MethodNetwork ExtractionMethod = "network"
	MethodMarkup  ExtractionMethod = "markup"
	MethodCapture ExtractionMethod = "capture"
)

// Locator is either a fetchable URL or bytes recorded from playback.
type Locator struct {
	URL       string
	Captured  []byte
	Extension string // file extension for the media file, e.g. ".mp4"
}

// Empty reports whether neither a URL nor captured bytes are present.
func (l Locator) Empty() bool {
	return l.URL == "" && len(l.Captured) == 0
}

// IsCaptured reports whether the locator holds recorded bytes.
func (l Locator) IsCaptured() bool {
	return l.URL == "" && len(l.Captured) > 0
}

// Cookie is one browser cookie captured from a session.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Metadata is the record written next to each media file.
type Metadata struct {
	VideoID         string `json:"video_id"`
	VideoURL        string `json:"video_url"`
	Creator         string `json:"creator"`
	CreatorNickname string `json:"creator_nickname"`
	Caption         string `json:"caption"`
}

// ExtractionResult is what one session produced for one target.
// Cookies belong to the session that extracted the target and are never
// shared with results from other sessions.
type ExtractionResult struct {
	Target    Target
	SessionID int
	Locator   Locator
	Method    ExtractionMethod
	Cookies   []Cookie
	Metadata  Metadata
	Reason    FailureReason
	Err       error
	Duration  time.Duration

	// Set when the rendered page was a block or verification page.
	BlockCategory string
	BlockDelay    time.Duration
}

// OK reports whether extraction yielded a usable locator.
func (r *ExtractionResult) OK() bool {
	return r != nil && r.Reason == ReasonNone && !r.Locator.Empty()
}

// DownloadOutcome is the final per-target result of a round.
type DownloadOutcome struct {
	Target  Target
	Success bool
	Path    string
	Size    int64
	Reason  FailureReason
	Err     error
	Round   int
}

// FailedOutcome builds a failure outcome for target.
func FailedOutcome(t Target, reason FailureReason, err error) *DownloadOutcome {
	if err == nil {
		err = NewTargetError(reason, t.URL, nil)
	}
	return &DownloadOutcome{
		Target: t,
		Reason: reason,
		Err:    err,
	}
}
