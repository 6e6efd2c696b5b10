// Package report renders run outcomes for the terminal.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Rorqualx/clipharvest/internal/pipeline"
	"github.com/Rorqualx/clipharvest/internal/stats"
	"github.com/Rorqualx/clipharvest/internal/types"
)

// Summary aggregates a report.
type Summary struct {
	Total        int
	Succeeded    int
	Failed       int
	TotalBytes   int64
	ExtractTime  time.Duration
	DownloadTime time.Duration
	Rounds       int
}

// AvgPerTarget is the mean wall time spent per target across both phases.
func (s Summary) AvgPerTarget() time.Duration {
	if s.Total == 0 {
		return 0
	}
	return (s.ExtractTime + s.DownloadTime) / time.Duration(s.Total)
}

// Summarize computes the aggregate figures of r.
func Summarize(r *pipeline.Report) Summary {
	s := Summary{
		Total:        len(r.Outcomes),
		Succeeded:    r.Succeeded(),
		TotalBytes:   r.TotalBytes(),
		ExtractTime:  r.ExtractTime,
		DownloadTime: r.DownloadTime,
		Rounds:       len(r.Rounds),
	}
	s.Failed = s.Total - s.Succeeded
	return s
}

// Printer writes reports through a lipgloss renderer bound to one writer.
// Colors are dropped when the writer is not a terminal.
type Printer struct {
	w io.Writer

	ok    lipgloss.Style
	fail  lipgloss.Style
	dim   lipgloss.Style
	title lipgloss.Style
	box   lipgloss.Style
}

// NewPrinter creates a Printer for w.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:     w,
		ok:    r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		fail:  r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		dim:   r.NewStyle().Foreground(lipgloss.Color("8")),
		title: r.NewStyle().Bold(true),
		box:   r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

// Print writes one line per target followed by the summary box.
func (p *Printer) Print(r *pipeline.Report) error {
	lines := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		lines = append(lines, p.line(o))
	}
	if _, err := fmt.Fprintln(p.w, strings.Join(lines, "\n")); err != nil {
		return err
	}
	_, err := fmt.Fprintln(p.w, p.summary(r))
	return err
}

// maxHostRows bounds the hosts section; the busiest hosts come first.
const maxHostRows = 10

// PrintHosts writes per-host download figures. Nothing is written when no
// host was contacted.
func (p *Printer) PrintHosts(hosts []stats.HostSnapshot) error {
	if len(hosts) == 0 {
		return nil
	}
	rows := []string{p.title.Render("Media hosts")}
	for i, h := range hosts {
		if i == maxHostRows {
			rows = append(rows, p.dim.Render(fmt.Sprintf("  ... %d more", len(hosts)-maxHostRows)))
			break
		}
		rate := fmt.Sprintf("%3.0f%% err", h.ErrorRate*100)
		if h.ErrorRate >= 0.5 {
			rate = p.fail.Render(rate)
		}
		rows = append(rows, fmt.Sprintf("  %-36s %4d req  %s  %9s  avg %s",
			h.Host, h.Requests, rate, FormatBytes(h.Bytes), h.AvgLatency.Round(time.Millisecond)))
	}
	_, err := fmt.Fprintln(p.w, p.box.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	return err
}

func (p *Printer) line(o *types.DownloadOutcome) string {
	id := o.Target.VideoID()
	if id == "" {
		id = o.Target.URL
	}
	if o.Success {
		return fmt.Sprintf("%s #%-4d %-20s %9s  %s",
			p.ok.Render("OK  "), o.Target.Ordinal, id, FormatBytes(o.Size), p.dim.Render(o.Path))
	}
	msg := string(o.Reason)
	if o.Err != nil {
		msg = o.Err.Error()
	}
	return fmt.Sprintf("%s #%-4d %-20s %s",
		p.fail.Render("FAIL"), o.Target.Ordinal, id, p.dim.Render(msg))
}

func (p *Printer) summary(r *pipeline.Report) string {
	s := Summarize(r)
	rows := []string{
		p.title.Render("Run summary"),
		fmt.Sprintf("Targets:    %d", s.Total),
		fmt.Sprintf("Succeeded:  %s", p.ok.Render(fmt.Sprint(s.Succeeded))),
		fmt.Sprintf("Failed:     %s", p.failCount(s.Failed)),
		fmt.Sprintf("Downloaded: %s", FormatBytes(s.TotalBytes)),
		fmt.Sprintf("Rounds:     %d", s.Rounds),
		fmt.Sprintf("Extract:    %s", s.ExtractTime.Round(time.Millisecond)),
		fmt.Sprintf("Download:   %s", s.DownloadTime.Round(time.Millisecond)),
		fmt.Sprintf("Per target: %s", s.AvgPerTarget().Round(time.Millisecond)),
	}
	if byReason := r.FailuresByReason(); len(byReason) > 0 {
		reasons := make([]string, 0, len(byReason))
		for reason := range byReason {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)
		rows = append(rows, "", p.title.Render("Failures"))
		for _, reason := range reasons {
			rows = append(rows, fmt.Sprintf("  %-22s %d", reason, byReason[types.FailureReason(reason)]))
		}
	}
	return p.box.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (p *Printer) failCount(n int) string {
	if n == 0 {
		return fmt.Sprint(n)
	}
	return p.fail.Render(fmt.Sprint(n))
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
