package debug

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/danpilch/stackspy/pkg/flamegraph"
)

// DumpBuckets prints the per-second counts of the limit busiest paths of a
// raw snapshot, before any time window is applied. limit <= 0 prints all.
func DumpBuckets(w io.Writer, counts flamegraph.Counts, limit int) {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	type row struct {
		path    string
		total   uint64
		buckets []uint64
	}
	rows := make([]row, 0, len(counts))
	for path, byBucket := range counts {
		r := row{path: path}
		for b, n := range byBucket {
			r.total += n
			r.buckets = append(r.buckets, b)
		}
		sort.Slice(r.buckets, func(i, j int) bool { return r.buckets[i] < r.buckets[j] })
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].total != rows[j].total {
			return rows[i].total > rows[j].total
		}
		return rows[i].path < rows[j].path
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, title.Render("Raw Bucket Dump"))
	fmt.Fprintln(w, dim.Render(strings.Repeat("═", 85)))
	fmt.Fprintf(w, "  %s %s %s\n",
		header.Render("TOTAL     "),
		header.Render("SECONDS             "),
		header.Render("LEAF FRAME                               "))
	fmt.Fprintln(w, "  "+dim.Render(strings.Repeat("─", 85)))

	for _, r := range rows {
		leaf := r.path
		if i := strings.LastIndexByte(leaf, ';'); i >= 0 {
			leaf = leaf[i+1:]
		}
		var secs []string
		for _, b := range r.buckets {
			secs = append(secs, fmt.Sprintf("%d:%d", b, counts[r.path][b]))
		}
		fmt.Fprintf(w, "  %-11d %-21s %s\n", r.total, strings.Join(secs, " "), leaf)
		fmt.Fprintln(w, "  "+dim.Render(r.path))
	}
}
