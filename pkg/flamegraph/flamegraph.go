// Package flamegraph aggregates sampled stack traces into time-bucketed
// folded-stack counts and renders them as SVG flame graphs.
package flamegraph

import (
	"io"
	"sort"

	spyerrors "github.com/danpilch/stackspy/pkg/errors"
	"github.com/danpilch/stackspy/pkg/stack"
)

// Counts maps a folded stack path to its per-bucket sample counts.
// Every stored count is positive; an absent bucket means zero.
type Counts map[string]map[uint64]uint64

// Flamegraph folds stack traces into Counts keyed by the bucket they were sampled in.
// It is not safe for concurrent use.
type Flamegraph struct {
	ShowLineNumbers bool   `json:"show_line_numbers"`
	Counts          Counts `json:"counts"`
}

// New creates an empty flame graph aggregator.
func New(showLineNumbers bool) *Flamegraph {
	return &Flamegraph{
		ShowLineNumbers: showLineNumbers,
		Counts:          make(Counts),
	}
}

// Increment counts trace once in the bucket of at.
func (f *Flamegraph) Increment(at stack.Instant, trace *stack.StackTrace) error {
	path := trace.Folded(f.ShowLineNumbers)
	buckets, ok := f.Counts[path]
	if !ok {
		buckets = make(map[uint64]uint64)
		f.Counts[path] = buckets
	}
	buckets[at.Bucket]++
	return nil
}

// Paths returns the number of distinct folded paths.
func (f *Flamegraph) Paths() int {
	return len(f.Counts)
}

// Totals sums every path's counts across all buckets.
func (f *Flamegraph) Totals() map[string]uint64 {
	totals := make(map[string]uint64, len(f.Counts))
	for path, buckets := range f.Counts {
		var sum uint64
		for _, n := range buckets {
			sum += n
		}
		if sum > 0 {
			totals[path] = sum
		}
	}
	return totals
}

// Filter sums each path's counts over buckets in the half-open window [start, end).
// Paths with no samples in the window are omitted. An empty window yields an
// empty map; a window with start after end also returns an invalid-interval error.
func (f *Flamegraph) Filter(start, end uint64) (map[string]uint64, error) {
	ret := make(map[string]uint64)
	if start > end {
		return ret, spyerrors.NewInvalidInterval(start, end)
	}
	if start == end {
		return ret, nil
	}
	for path, buckets := range f.Counts {
		var sum uint64
		for ts, n := range buckets {
			if ts >= start && ts < end {
				sum += n
			}
		}
		if sum > 0 {
			ret[path] = sum
		}
	}
	return ret, nil
}

// Buckets returns the sorted set of buckets holding at least one sample.
func (f *Flamegraph) Buckets() []uint64 {
	seen := make(map[uint64]struct{})
	for _, buckets := range f.Counts {
		for ts := range buckets {
			seen[ts] = struct{}{}
		}
	}
	out := make([]uint64, 0, len(seen))
	for ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Write renders an SVG flame graph of the totals across all buckets.
func (f *Flamegraph) Write(w io.Writer) error {
	return Render(f.Totals(), w, DefaultSVGOptions())
}

// WriteFolded writes "{path} {total}" lines sorted by path.
func (f *Flamegraph) WriteFolded(w io.Writer) error {
	return writeCollapsed(w, f.Totals())
}

// Raw writes the lossless per-bucket snapshot instead of an SVG, so that
// the recording can later be replayed over any time window.
type Raw struct {
	*Flamegraph
}

// NewRaw creates an empty raw aggregator.
func NewRaw(showLineNumbers bool) *Raw {
	return &Raw{Flamegraph: New(showLineNumbers)}
}

// Write emits the raw snapshot.
func (r *Raw) Write(w io.Writer) error {
	return r.WriteSnapshot(w)
}
