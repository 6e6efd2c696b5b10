package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Rorqualx/clipharvest/internal/pipeline"
	"github.com/Rorqualx/clipharvest/internal/stats"
	"github.com/Rorqualx/clipharvest/internal/types"
)

func sampleReport() *pipeline.Report {
	t0 := types.Target{Ordinal: 0, URL: "https://platform.example/@a/video/111"}
	t1 := types.Target{Ordinal: 1, URL: "https://platform.example/@b/video/222"}
	return &pipeline.Report{
		Outcomes: []*types.DownloadOutcome{
			{Target: t0, Success: true, Path: "downloads/111/video.mp4", Size: 3 << 20},
			types.FailedOutcome(t1, types.ReasonUndersizedResponse,
				types.NewTargetError(types.ReasonUndersizedResponse, t1.URL, errors.New("40000 bytes"))),
		},
		Rounds:       []pipeline.RoundStats{{Round: 0}, {Round: 1}},
		ExtractTime:  6 * time.Second,
		DownloadTime: 2 * time.Second,
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleReport())

	if s.Total != 2 || s.Succeeded != 1 || s.Failed != 1 {
		t.Errorf("Unexpected counts: %+v", s)
	}
	if s.TotalBytes != 3<<20 {
		t.Errorf("Expected %d bytes, got %d", 3<<20, s.TotalBytes)
	}
	if s.AvgPerTarget() != 4*time.Second {
		t.Errorf("Expected 4s per target, got %v", s.AvgPerTarget())
	}
	if (Summary{}).AvgPerTarget() != 0 {
		t.Error("Expected zero average for empty summary")
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	if err := NewPrinter(&buf).Print(sampleReport()); err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"OK", "#0", "111", "3.0 MiB", "downloads/111/video.mp4",
		"FAIL", "#1", "222", "UndersizedResponse",
		"Run summary", "Succeeded:  1", "Failed:     1", "Rounds:     2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("Expected no ANSI escapes when writing to a buffer")
	}
}

func TestPrintHosts(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	if err := p.PrintHosts(nil); err != nil || buf.Len() != 0 {
		t.Fatalf("Expected nothing written for no hosts, got %q (err=%v)", buf.String(), err)
	}

	hosts := make([]stats.HostSnapshot, 0, maxHostRows+2)
	hosts = append(hosts, stats.HostSnapshot{
		Host: "v16-webapp.tiktok.com", Requests: 12, ErrorRate: 0.25, Bytes: 4 << 20, AvgLatency: 850 * time.Millisecond,
	})
	for i := 0; i < maxHostRows+1; i++ {
		hosts = append(hosts, stats.HostSnapshot{Host: "edge.example", Requests: 1})
	}
	if err := p.PrintHosts(hosts); err != nil {
		t.Fatalf("PrintHosts() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Media hosts", "v16-webapp.tiktok.com", "12 req", "25% err", "4.0 MiB", "avg 850ms", "... 2 more"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %s, expected %s", tt.n, got, tt.want)
		}
	}
}
