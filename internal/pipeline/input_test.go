package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Rorqualx/clipharvest/internal/types"
)

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadURLs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "json list",
			content: `["https://a.example/1", " https://a.example/2 ", ""]`,
			want:    []string{"https://a.example/1", "https://a.example/2"},
		},
		{
			name:    "json object",
			content: `{"query": "cats", "urls": ["https://a.example/1"]}`,
			want:    []string{"https://a.example/1"},
		},
		{
			name:    "text lines",
			content: "# header\nhttps://a.example/1\n\n  https://a.example/2\nnot a url\n",
			want:    []string{"https://a.example/1", "https://a.example/2"},
		},
		{
			name:    "malformed json falls back to text",
			content: "[\nhttps://a.example/1\n",
			want:    []string{"https://a.example/1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadURLs(writeInput(t, "in.txt", tt.content))
			if err != nil {
				t.Fatalf("LoadURLs() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Expected %s at %d, got %s", tt.want[i], i, got[i])
				}
			}
		})
	}
}

func TestLoadTargetsAssignsOrdinalsAcrossFiles(t *testing.T) {
	a := writeInput(t, "a.json", `["https://a.example/1", "https://a.example/2"]`)
	b := writeInput(t, "b.txt", "https://b.example/3\n")

	targets, err := LoadTargets(a, b)
	if err != nil {
		t.Fatalf("LoadTargets() error = %v", err)
	}
	if len(targets) != 3 {
		t.Fatalf("Expected 3 targets, got %d", len(targets))
	}
	for i, tg := range targets {
		if tg.Ordinal != i {
			t.Errorf("Expected ordinal %d, got %d", i, tg.Ordinal)
		}
	}
	if targets[2].URL != "https://b.example/3" {
		t.Errorf("Expected second file last, got %s", targets[2].URL)
	}
}

func TestLoadTargetsEmpty(t *testing.T) {
	_, err := LoadTargets(writeInput(t, "empty.txt", "nothing here\n"))
	if !errors.Is(err, types.ErrNoTargets) {
		t.Errorf("Expected ErrNoTargets, got %v", err)
	}
}

func TestLoadTargetsMissingFile(t *testing.T) {
	if _, err := LoadTargets(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestReportMerge(t *testing.T) {
	a := &Report{Outcomes: []*types.DownloadOutcome{{Success: true, Size: 10}}}
	b := &Report{Outcomes: []*types.DownloadOutcome{
		{Success: false, Reason: types.ReasonUndersizedResponse},
		{Success: true, Size: 5},
	}}

	a.Merge(b)

	if len(a.Outcomes) != 3 || a.Succeeded() != 2 || a.TotalBytes() != 15 {
		t.Errorf("Unexpected merged report: %d outcomes, %d ok, %d bytes", len(a.Outcomes), a.Succeeded(), a.TotalBytes())
	}
	if a.FailuresByReason()[types.ReasonUndersizedResponse] != 1 {
		t.Errorf("Expected one UndersizedResponse, got %v", a.FailuresByReason())
	}
}
