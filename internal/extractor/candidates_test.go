package extractor

import (
	"testing"

	"github.com/Rorqualx/clipharvest/internal/browser"
	"github.com/Rorqualx/clipharvest/internal/selectors"
)

func TestSniff(t *testing.T) {
	sel := selectors.Get()
	events := []browser.NetworkEvent{
		{URL: "https://v16.tiktokcdn.com/video/tos/a", ContentType: "application/octet-stream", ContentLength: 500_000},
		{URL: "https://v16.tiktokcdn.com/video/tos/a", ContentType: "video/mp4", ContentLength: 1_500_000},
		{URL: "https://v16.tiktokcdn.com/static/player.js", ContentType: "application/javascript", ContentLength: 900_000},
		{URL: "https://v16.tiktokcdn.com/api/play/list.json", ContentType: "application/json", ContentLength: 200_000},
		{URL: "https://example.org/clip", ContentType: "video/webm", ContentLength: 300_000},
		{URL: "https://www.tiktok.com/", ContentType: "text/html", ContentLength: 80_000},
		{URL: "blob:https://www.tiktok.com/1", ContentType: "video/mp4", ContentLength: 9_000_000},
		{URL: "https://v16.tiktokcdn.com/video/tos/gone", Status: 403, ContentType: "video/mp4", ContentLength: 9_000_000},
	}

	got := sniff(events, sel)

	if len(got) != 2 {
		t.Fatalf("Expected 2 candidates, got %d: %+v", len(got), got)
	}
	if got[0].Size != 1_500_000 || !got[0].VideoType {
		t.Errorf("Expected merged range candidate with largest size and video type, got %+v", got[0])
	}
	if got[1].URL != "https://example.org/clip" {
		t.Errorf("Expected content-type candidate from any host, got %s", got[1].URL)
	}
}

func TestSelectCandidate(t *testing.T) {
	tests := []struct {
		name        string
		cands       []Candidate
		requireType bool
		wantURL     string
		wantOK      bool
	}{
		{
			name: "largest wins",
			cands: []Candidate{
				{URL: "preview", Size: 300_000, VideoType: true},
				{URL: "full", Size: 3_000_000},
				{URL: "mid", Size: 1_000_000, VideoType: true},
			},
			wantURL: "full",
			wantOK:  true,
		},
		{
			name:   "threshold is exclusive",
			cands:  []Candidate{{URL: "edge", Size: 100_000, VideoType: true}},
			wantOK: false,
		},
		{
			name: "unknown size ranks below sized",
			cands: []Candidate{
				{URL: "unknown", Size: -1, VideoType: true},
				{URL: "sized", Size: 200_000},
			},
			wantURL: "sized",
			wantOK:  true,
		},
		{
			name:    "unknown size used when nothing sized qualifies",
			cands:   []Candidate{{URL: "small", Size: 10}, {URL: "unknown", Size: -1, VideoType: true}},
			wantURL: "unknown",
			wantOK:  true,
		},
		{
			name:   "unknown size needs video type",
			cands:  []Candidate{{URL: "unknown", Size: -1}},
			wantOK: false,
		},
		{
			name: "content type required",
			cands: []Candidate{
				{URL: "big-untyped", Size: 9_000_000},
				{URL: "typed", Size: 400_000, VideoType: true},
			},
			requireType: true,
			wantURL:     "typed",
			wantOK:      true,
		},
		{
			name: "tie keeps first seen",
			cands: []Candidate{
				{URL: "first", Size: 500_000},
				{URL: "second", Size: 500_000},
			},
			wantURL: "first",
			wantOK:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := selectCandidate(tt.cands, 100_000, tt.requireType)
			if ok != tt.wantOK {
				t.Fatalf("Expected ok=%v, got %v", tt.wantOK, ok)
			}
			if ok && got.URL != tt.wantURL {
				t.Errorf("Expected %s, got %s", tt.wantURL, got.URL)
			}
		})
	}
}
