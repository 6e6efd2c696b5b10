package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewTargetsOrdinals(t *testing.T) {
	targets := NewTargets([]string{"https://a/@x/video/1", "https://a/@y/video/2", "https://a/@z/video/3"})
	if len(targets) != 3 {
		t.Fatalf("Expected 3 targets, got %d", len(targets))
	}
	for i, target := range targets {
		if target.Ordinal != i {
			t.Errorf("Expected ordinal %d, got %d", i, target.Ordinal)
		}
	}
}

func TestTargetParsing(t *testing.T) {
	tests := []struct {
		url     string
		clean   string
		id      string
		creator string
		origin  string
	}{
		{
			url:     "https://www.tiktok.com/@someone/video/7301234567890?is_from_webapp=1",
			clean:   "https://www.tiktok.com/@someone/video/7301234567890",
			id:      "7301234567890",
			creator: "@someone",
			origin:  "https://www.tiktok.com",
		},
		{
			url:     `https:\/\/platform\/@a\/video\/111`,
			clean:   "https://platform/@a/video/111",
			id:      "111",
			creator: "@a",
			origin:  "https://platform",
		},
		{
			url:    "https://example.com/watch",
			clean:  "https://example.com/watch",
			origin: "https://example.com",
		},
	}

	for _, tt := range tests {
		target := Target{URL: tt.url}
		if got := target.CleanURL(); got != tt.clean {
			t.Errorf("CleanURL(%q): expected %q, got %q", tt.url, tt.clean, got)
		}
		if got := target.VideoID(); got != tt.id {
			t.Errorf("VideoID(%q): expected %q, got %q", tt.url, tt.id, got)
		}
		if got := target.Creator(); got != tt.creator {
			t.Errorf("Creator(%q): expected %q, got %q", tt.url, tt.creator, got)
		}
		if got := target.Origin(); got != tt.origin {
			t.Errorf("Origin(%q): expected %q, got %q", tt.url, tt.origin, got)
		}
	}
}

func TestTargetValid(t *testing.T) {
	if !(Target{URL: "https://platform/@a/video/1"}).Valid() {
		t.Error("Expected https URL to be valid")
	}
	if (Target{URL: "not a url"}).Valid() {
		t.Error("Expected bare text to be invalid")
	}
	if (Target{URL: "ftp://host/file"}).Valid() {
		t.Error("Expected ftp URL to be invalid")
	}
}

func TestNewTargetErrorKeepsWrappedChain(t *testing.T) {
	capture := fmt.Errorf("%w: recorder never finished", ErrCaptureTimeout)
	cause := fmt.Errorf("%w: %w", ErrNoFetchableLocator, capture)

	err := NewTargetError(ReasonCaptureTimeout, "https://platform/@a/video/1", cause)

	if !errors.Is(err, ErrCaptureTimeout) {
		t.Error("Expected error to match ErrCaptureTimeout")
	}
	if !errors.Is(err, ErrNoFetchableLocator) {
		t.Error("Expected error to still match ErrNoFetchableLocator")
	}
}

func TestNewTargetErrorUnwrap(t *testing.T) {
	cause := errors.New("recorder stalled")
	err := NewTargetError(ReasonCaptureTimeout, "https://platform/@a/video/1", cause)

	if !errors.Is(err, ErrCaptureTimeout) {
		t.Error("Expected error to match ErrCaptureTimeout")
	}
	if !errors.Is(err, cause) {
		t.Error("Expected error to match the cause")
	}

	var te *TargetError
	if !errors.As(err, &te) {
		t.Fatal("Expected errors.As to find TargetError")
	}
	if te.Reason != ReasonCaptureTimeout {
		t.Errorf("Expected reason %s, got %s", ReasonCaptureTimeout, te.Reason)
	}
}

func TestFailureReasonSentinel(t *testing.T) {
	reasons := map[FailureReason]error{
		ReasonNavigationTimeout:  ErrNavigationTimeout,
		ReasonNoMediaElement:     ErrNoMediaElement,
		ReasonNoFetchableLocator: ErrNoFetchableLocator,
		ReasonCaptureTimeout:     ErrCaptureTimeout,
		ReasonCaptureError:       ErrCaptureFailed,
		ReasonDownloadHTTPError:  ErrDownloadHTTP,
		ReasonUndersizedResponse: ErrUndersizedResponse,
		ReasonWriteError:         ErrArtifactWrite,
	}
	for reason, want := range reasons {
		if got := reason.Sentinel(); got != want {
			t.Errorf("Sentinel(%s): expected %v, got %v", reason, want, got)
		}
	}
}

func TestLocatorState(t *testing.T) {
	if !(Locator{}).Empty() {
		t.Error("Expected zero locator to be empty")
	}
	captured := Locator{Captured: []byte{1, 2, 3}}
	if captured.Empty() || !captured.IsCaptured() {
		t.Error("Expected captured locator to be non-empty and captured")
	}
	remote := Locator{URL: "https://cdn/video"}
	if remote.Empty() || remote.IsCaptured() {
		t.Error("Expected URL locator to be non-empty and not captured")
	}
}

func TestExtractionResultOK(t *testing.T) {
	var nilResult *ExtractionResult
	if nilResult.OK() {
		t.Error("Expected nil result to not be OK")
	}
	res := &ExtractionResult{Locator: Locator{URL: "https://cdn/v"}}
	if !res.OK() {
		t.Error("Expected result with locator to be OK")
	}
	res.Reason = ReasonCaptureError
	if res.OK() {
		t.Error("Expected result with reason to not be OK")
	}
}
