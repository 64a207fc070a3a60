// Package output renders stackspy runs for the terminal.
package output

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/danpilch/stackspy/pkg/config"
	"github.com/danpilch/stackspy/pkg/sampler"
	"github.com/danpilch/stackspy/pkg/stack"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boldStyle   = lipgloss.NewStyle().Bold(true)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true) // Green
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true) // Yellow
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)  // Red

	statusStyles = map[string]lipgloss.Style{
		"active+gil": okStyle,
		"active":     okStyle,
		"gil":        warnStyle,
		"idle":       dimStyle,
	}
)

// Printer writes styled run output.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Banner announces a recording run.
func (p *Printer) Banner(rate uint64, d config.Duration) {
	if d.IsUnlimited() {
		fmt.Fprintf(p.w, "Sampling process %d times a second. Press Control-C to exit.\n\n", rate)
		return
	}
	fmt.Fprintf(p.w, "Sampling process %d times a second for %d seconds. Press Control-C to exit.\n\n", rate, d.Secs())
}

// Reason prints why sampling stopped.
func (p *Printer) Reason(r sampler.StopReason) {
	if msg := r.Message(); msg != "" {
		fmt.Fprintln(p.w, dimStyle.Render(msg))
	}
}

// Line prints an unstyled line.
func (p *Printer) Line(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Warn prints a highlighted warning line.
func (p *Printer) Warn(msg string) {
	fmt.Fprintln(p.w, warnStyle.Render(msg))
}

// Traces prints the current stack of every thread, innermost frame first.
func (p *Printer) Traces(exe string, traces []stack.StackTrace) {
	fmt.Fprintf(p.w, "%s %s\n\n", titleStyle.Render("Process"), exe)
	for i := range traces {
		t := &traces[i]
		status := t.Status()
		header := fmt.Sprintf("Thread 0x%X", t.ThreadID)
		if t.OSThreadID != nil {
			header = fmt.Sprintf("Thread 0x%X/%d", t.ThreadID, *t.OSThreadID)
		}
		fmt.Fprintf(p.w, "%s (%s)", boldStyle.Render(header), statusStyles[status].Render(status))
		if t.ThreadName != "" {
			fmt.Fprintf(p.w, " %q", t.ThreadName)
		}
		fmt.Fprintln(p.w)
		for _, f := range t.Frames {
			fmt.Fprintf(p.w, "\t %s\n", f.Label(true))
		}
		fmt.Fprintln(p.w)
	}
}

// Kind describes what a format writes, for the summary line.
func Kind(f config.Format) string {
	switch f {
	case config.FormatSpeedscope:
		return "speedscope file"
	case config.FormatRaw:
		return "raw flamegraph data"
	default:
		return "flamegraph data"
	}
}

// Summary reports a written output file together with run statistics.
func (p *Printer) Summary(cfg config.Config, path string, size int64, res sampler.Result) {
	fmt.Fprintf(p.w, "Wrote %s to '%s'. Samples: %d Errors: %d\n", Kind(cfg.Format), path, res.Samples, res.Errors)

	rows := [][]string{
		{"Output", fmt.Sprintf("%s (%s)", path, humanize.Bytes(uint64(size)))},
		{"Samples", humanize.Comma(int64(res.Samples))},
		{"Errors", renderErrors(res)},
		{"Ticks", humanize.Comma(int64(res.Ticks))},
		{"Seconds", humanize.Comma(int64(len(res.PerBucket)))},
		{"Late ticks", renderLate(res)},
	}
	if line := Sparkline(res.PerBucket, 60); line != "" {
		rows = append(rows, []string{"Samples/s", line})
	}
	score := QualityScore(res)
	rows = append(rows, []string{"Quality", scoreStyle(score).Render(fmt.Sprintf("%d/100 (%s)", score, ScoreLabel(score)))})

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("RUN", "").
		Rows(rows...)
	fmt.Fprintln(p.w, t)

	if steps := NextSteps(cfg, path, res); len(steps) > 0 {
		fmt.Fprintln(p.w)
		for _, s := range steps {
			fmt.Fprintf(p.w, "%s %s\n", boldStyle.Render(s.Reason+":"), s.Command)
		}
	}
}

func renderErrors(res sampler.Result) string {
	s := humanize.Comma(int64(res.Errors))
	if res.Errors == 0 {
		return okStyle.Render(s)
	}
	if res.Ticks > 0 {
		s = fmt.Sprintf("%s (%.1f%%)", s, float64(res.Errors)*100/float64(res.Ticks))
	}
	return warnStyle.Render(s)
}

func renderLate(res sampler.Result) string {
	if res.Overruns == 0 {
		return okStyle.Render("0")
	}
	s := fmt.Sprintf("%s (max %s behind)", humanize.Comma(int64(res.Overruns)), res.MaxOverrun.Round(time.Millisecond))
	if res.MaxOverrun > sampler.LateWarning {
		return errStyle.Render(s)
	}
	return warnStyle.Render(s)
}
