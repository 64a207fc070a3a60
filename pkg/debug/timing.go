package debug

import (
	"fmt"
	"io"
	"math"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/danpilch/stackspy/pkg/sampler"
	"github.com/danpilch/stackspy/pkg/stack"
)

var (
	debugTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	debugHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	debugDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// CaptureTiming summarizes the latency of capture calls.
type CaptureTiming struct {
	Captures int
	Failures int
	P50      time.Duration
	P95      time.Duration
	P99      time.Duration
	Max      time.Duration
	Total    time.Duration
}

// TimedTarget wraps a sampler.Target to record how long each capture takes.
// Like the sampler itself it is not safe for concurrent use.
type TimedTarget struct {
	sampler.Target
	latencies []time.Duration
	failures  int
	now       func() time.Time
}

// NewTimedTarget wraps a target with timing instrumentation.
func NewTimedTarget(t sampler.Target) *TimedTarget {
	return &TimedTarget{Target: t, now: time.Now}
}

// Capture runs the wrapped capture and records its duration.
func (t *TimedTarget) Capture() ([]stack.StackTrace, error) {
	start := t.now()
	traces, err := t.Target.Capture()
	t.latencies = append(t.latencies, t.now().Sub(start))
	if err != nil {
		t.failures++
	}
	return traces, err
}

// Timing returns the latency summary of all captures so far.
func (t *TimedTarget) Timing() CaptureTiming {
	sorted := make([]time.Duration, len(t.latencies))
	copy(sorted, t.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	timing := CaptureTiming{
		Captures: len(sorted),
		Failures: t.failures,
		P50:      percentile(sorted, 0.50),
		P95:      percentile(sorted, 0.95),
		P99:      percentile(sorted, 0.99),
	}
	if len(sorted) > 0 {
		timing.Max = sorted[len(sorted)-1]
	}
	for _, d := range sorted {
		timing.Total += d
	}
	return timing
}

// Overhead holds the profiler's own resource usage.
type Overhead struct {
	AllocBytes uint64
	AllocCount uint64
	GCPauses   uint32
}

// MeasureOverhead returns the profiler's memory overhead.
func MeasureOverhead() Overhead {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Overhead{
		AllocBytes: m.TotalAlloc,
		AllocCount: m.Mallocs,
		GCPauses:   m.NumGC,
	}
}

// TimingReport prints a styled capture timing summary.
func TimingReport(w io.Writer, timing CaptureTiming, interval time.Duration, overhead Overhead) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, debugTitle.Render("Capture Timing Report"))
	fmt.Fprintln(w, debugDim.Render(strings.Repeat("═", 70)))
	fmt.Fprintf(w, "  %s %s %s %s %s\n",
		debugHeader.Render("CAPTURES  "),
		debugHeader.Render("P50        "),
		debugHeader.Render("P95        "),
		debugHeader.Render("P99        "),
		debugHeader.Render("MAX        "))
	fmt.Fprintln(w, "  "+debugDim.Render(strings.Repeat("─", 70)))
	fmt.Fprintf(w, "  %-12d %-12v %-12v %-12v %v\n",
		timing.Captures, timing.P50, timing.P95, timing.P99, timing.Max)
	fmt.Fprintln(w, "  "+debugDim.Render(strings.Repeat("─", 70)))

	bold := lipgloss.NewStyle().Bold(true)
	fmt.Fprintf(w, "  Failed captures:  %s\n", bold.Render(humanize.Comma(int64(timing.Failures))))
	fmt.Fprintf(w, "  Time capturing:   %s\n", bold.Render(timing.Total.String()))
	if interval > 0 && timing.P95 > interval {
		fmt.Fprintf(w, "  %s\n", lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true).Render(
			fmt.Sprintf("p95 capture time exceeds the %v sampling interval", interval)))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, debugTitle.Render("Profiler Overhead"))
	fmt.Fprintln(w, debugDim.Render(strings.Repeat("─", 40)))
	fmt.Fprintf(w, "  Memory allocated: %s\n", bold.Render(humanize.Bytes(overhead.AllocBytes)))
	fmt.Fprintf(w, "  Allocations:      %s\n", bold.Render(humanize.Comma(int64(overhead.AllocCount))))
	fmt.Fprintf(w, "  GC pauses:        %s\n", bold.Render(fmt.Sprintf("%d", overhead.GCPauses)))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
