package debug

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/stackspy/pkg/flamegraph"
	"github.com/danpilch/stackspy/pkg/stack"
)

type stubTarget struct {
	calls int
}

func (s *stubTarget) Capture() ([]stack.StackTrace, error) {
	s.calls++
	if s.calls%4 == 0 {
		return nil, errors.New("transient")
	}
	return []stack.StackTrace{{ThreadID: 1, Active: true}}, nil
}

func (s *stubTarget) HasExited() bool          { return false }
func (s *stubTarget) ExePath() (string, error) { return "/bin/stub", nil }

// steppingClock advances by one millisecond more on each reading pair.
func steppingClock() func() time.Time {
	now := time.Unix(0, 0)
	n := 0
	return func() time.Time {
		n++
		if n%2 == 0 {
			now = now.Add(time.Duration(n/2) * time.Millisecond)
		}
		return now
	}
}

func TestTimedTarget(t *testing.T) {
	inner := &stubTarget{}
	tt := NewTimedTarget(inner)
	tt.now = steppingClock()

	for i := 0; i < 100; i++ {
		_, _ = tt.Capture()
	}
	exe, err := tt.ExePath()
	require.NoError(t, err)
	assert.Equal(t, "/bin/stub", exe)

	timing := tt.Timing()
	assert.Equal(t, 100, timing.Captures)
	assert.Equal(t, 25, timing.Failures)
	assert.Equal(t, 50*time.Millisecond, timing.P50)
	assert.Equal(t, 95*time.Millisecond, timing.P95)
	assert.Equal(t, 99*time.Millisecond, timing.P99)
	assert.Equal(t, 100*time.Millisecond, timing.Max)
	assert.Equal(t, 5050*time.Millisecond, timing.Total)
}

func TestTimingEmpty(t *testing.T) {
	timing := NewTimedTarget(&stubTarget{}).Timing()
	assert.Equal(t, CaptureTiming{}, timing)
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, time.Duration(0), percentile(nil, 0.5))
	one := []time.Duration{time.Second}
	assert.Equal(t, time.Second, percentile(one, 0.99))
	assert.Equal(t, time.Second, percentile(one, 0))
}

func TestTimingReport(t *testing.T) {
	var buf bytes.Buffer
	timing := CaptureTiming{Captures: 10, Failures: 1, P50: time.Millisecond, P95: 20 * time.Millisecond, P99: 30 * time.Millisecond, Max: 30 * time.Millisecond}
	TimingReport(&buf, timing, 10*time.Millisecond, Overhead{AllocBytes: 1 << 20, AllocCount: 1500, GCPauses: 3})

	out := buf.String()
	assert.Contains(t, out, "Capture Timing Report")
	assert.Contains(t, out, "20ms")
	assert.Contains(t, out, "exceeds the 10ms sampling interval")
	assert.Contains(t, out, "1.0 MB")
	assert.Contains(t, out, "1,500")
}

func TestMeasureOverhead(t *testing.T) {
	o := MeasureOverhead()
	assert.NotZero(t, o.AllocBytes)
}

func TestDumpBuckets(t *testing.T) {
	counts := flamegraph.Counts{
		"main (a.py);work (a.py)": {0: 3, 2: 1},
		"main (a.py);idle (a.py)": {1: 1},
		"main (a.py)":             {0: 2},
	}

	var buf bytes.Buffer
	DumpBuckets(&buf, counts, 2)
	out := buf.String()
	assert.Contains(t, out, "Raw Bucket Dump")
	assert.Contains(t, out, "0:3 2:1")
	assert.Contains(t, out, "work (a.py)")
	assert.NotContains(t, out, "idle (a.py)", "limited to the two busiest paths")
	assert.Less(t, strings.Index(out, "work (a.py)"), strings.Index(out, "0:2"))
}
