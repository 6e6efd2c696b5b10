package selectors

import (
	"testing"
)

func TestGetSelectors(t *testing.T) {
	sel := Get()

	if sel == nil {
		t.Fatal("Get() returned nil")
	}
	if sel.MediaElement != "video" {
		t.Errorf("Expected media element 'video', got %q", sel.MediaElement)
	}
	if len(sel.CDNHosts) == 0 {
		t.Error("Expected CDN host patterns")
	}
	if len(sel.EmbeddedURLFields) == 0 {
		t.Error("Expected embedded URL fields")
	}
	if len(sel.CaptionSelectors) == 0 {
		t.Error("Expected caption selectors")
	}
	if err := sel.Validate(); err != nil {
		t.Errorf("Embedded selectors failed validation: %v", err)
	}
}

func TestGetSelectorsSingleton(t *testing.T) {
	if Get() != Get() {
		t.Error("Expected Get() to return the same instance")
	}
}

func TestDefaultSelectorsValid(t *testing.T) {
	if err := defaultSelectors().Validate(); err != nil {
		t.Errorf("Default selectors failed validation: %v", err)
	}
}

func TestValidateRejectsEmpty(t *testing.T) {
	if err := (&Selectors{}).Validate(); err == nil {
		t.Error("Expected empty selectors to fail validation")
	}
}

func TestURLMatchers(t *testing.T) {
	sel := defaultSelectors()

	tests := []struct {
		url      string
		cdn      bool
		hint     bool
		excluded bool
	}{
		{"https://v16-webapp.tiktokcdn.com/abc/video/tos/play.mp4?sig=1", true, true, false},
		{"https://p16-sign.ibytedtos.com/obj/cover.jpg", true, false, true},
		{"https://sf16.byteicdn.com/static/main.js", true, false, true},
		{"https://example.com/video/1", false, true, false},
		{"https://V19.TIKTOKCDN.COM/PLAY/x", true, true, false},
	}

	for _, tt := range tests {
		if got := sel.IsCDNHost(tt.url); got != tt.cdn {
			t.Errorf("IsCDNHost(%q) = %v, want %v", tt.url, got, tt.cdn)
		}
		if got := sel.HasPathHint(tt.url); got != tt.hint {
			t.Errorf("HasPathHint(%q) = %v, want %v", tt.url, got, tt.hint)
		}
		if got := sel.IsExcludedAsset(tt.url); got != tt.excluded {
			t.Errorf("IsExcludedAsset(%q) = %v, want %v", tt.url, got, tt.excluded)
		}
	}
}
