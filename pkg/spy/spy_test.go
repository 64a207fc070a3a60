package spy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/stackspy/pkg/config"
	spyerrors "github.com/danpilch/stackspy/pkg/errors"
	"github.com/danpilch/stackspy/pkg/flamegraph"
	"github.com/danpilch/stackspy/pkg/sampler"
	"github.com/danpilch/stackspy/pkg/stack"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

type fakeTarget struct {
	exe       string
	traces    []stack.StackTrace
	err       error
	exitAfter int // captures before the process disappears, 0 = never
	captures  int
	exited    bool
}

func (f *fakeTarget) Capture() ([]stack.StackTrace, error) {
	f.captures++
	if f.exitAfter > 0 && f.captures > f.exitAfter {
		f.exited = true
		return nil, errors.New("no such process")
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]stack.StackTrace, len(f.traces))
	copy(out, f.traces)
	return out, nil
}

func (f *fakeTarget) HasExited() bool          { return f.exited }
func (f *fakeTarget) ExePath() (string, error) { return f.exe, nil }

func newTarget() *fakeTarget {
	return &fakeTarget{
		exe: "/usr/bin/python3",
		traces: []stack.StackTrace{
			{
				ThreadID: 1,
				Active:   true,
				Frames: []stack.Frame{
					{Name: "work", Filename: "app.py", Line: 3},
					{Name: "main", Filename: "app.py", Line: 1},
				},
			},
			{
				ThreadID: 2,
				Frames:   []stack.Frame{{Name: "wait", Filename: "threading.py", Line: 300}},
			},
		},
	}
}

type harness struct {
	opts   Options
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newHarness() *harness {
	h := &harness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	logger := logrus.New()
	logger.SetOutput(h.stderr)
	h.opts = Options{
		Logger: logger,
		Stdout: h.stdout,
		Stderr: h.stderr,
		Clock:  &fakeClock{now: time.Unix(1000, 0)},
	}
	return h
}

func recordConfig(t *testing.T, format config.Format, name string) config.Config {
	cfg := config.Default()
	cfg.Pid = 42
	cfg.Rate = 10
	cfg.Format = format
	cfg.Output = filepath.Join(t.TempDir(), name)
	return cfg
}

func TestRecordFlamegraph(t *testing.T) {
	h := newHarness()
	cfg := recordConfig(t, config.FormatFlamegraph, "out.svg")

	res, err := Record(context.Background(), newTarget(), cfg, h.opts)
	require.NoError(t, err)
	assert.Equal(t, sampler.StopDurationElapsed, res.Reason)
	assert.Equal(t, uint64(20), res.Samples)
	assert.Equal(t, uint64(20), res.Ticks)
	assert.Equal(t, cfg.Output, res.Output)

	svg, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), "work (app.py:3)")
	assert.NotContains(t, string(svg), "wait (threading.py:300)", "idle thread excluded")

	out := h.stdout.String()
	assert.Contains(t, out, "Sampling process 10 times a second for 2 seconds. Press Control-C to exit.")
	assert.Contains(t, out, "Stopped sampling because the duration elapsed")
	assert.Contains(t, out, "Wrote flamegraph data to '"+cfg.Output+"'. Samples: 20 Errors: 0")
}

func TestRecordRawThenGenerate(t *testing.T) {
	h := newHarness()
	cfg := recordConfig(t, config.FormatRaw, "out.raw.json")
	cfg.IncludeIdle = true

	_, err := Record(context.Background(), newTarget(), cfg, h.opts)
	require.NoError(t, err)
	assert.Contains(t, h.stdout.String(), "stackspy generate --file "+cfg.Output+" --start 0 --end 2")

	fg, err := flamegraph.ReadRaw(cfg.Output)
	require.NoError(t, err)
	assert.Equal(t, 2, fg.Paths())
	assert.Equal(t, map[uint64]uint64{0: 10, 1: 10}, fg.Counts["main (app.py:1);work (app.py:3)"])

	h.stdout.Reset()
	gen := cfg
	gen.Input = cfg.Output
	gen.Start, gen.End = 1, 2
	replay, err := Generate(gen, h.opts)
	require.NoError(t, err)
	assert.Equal(t, cfg.Output+".svg", replay.Output)
	assert.Equal(t, uint64(20), replay.Samples)
	assert.FileExists(t, replay.Output)

	out := h.stdout.String()
	assert.Contains(t, out, "The raw data contains 2 different stack traces.")
	assert.Contains(t, out, "Wrote flame graph to '"+replay.Output+"'")
}

func TestRecordCompressedRaw(t *testing.T) {
	h := newHarness()
	cfg := recordConfig(t, config.FormatRaw, "out.raw.json.zst")

	_, err := Record(context.Background(), newTarget(), cfg, h.opts)
	require.NoError(t, err)

	fg, err := flamegraph.ReadRaw(cfg.Output)
	require.NoError(t, err)
	assert.Equal(t, 1, fg.Paths())
}

func TestRecordSpeedscope(t *testing.T) {
	h := newHarness()
	cfg := recordConfig(t, config.FormatSpeedscope, "out.json")
	cfg.IncludeThreadIDs = true

	_, err := Record(context.Background(), newTarget(), cfg, h.opts)
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "https://www.speedscope.app/file-format-schema.json", doc["$schema"])
	assert.Len(t, doc["profiles"], 1)
	assert.Contains(t, string(data), "thread 1")

	out := h.stdout.String()
	assert.Contains(t, out, "Wrote speedscope file to")
	assert.Contains(t, out, "https://www.speedscope.app/")
}

func TestRecordIdleRules(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "idle.txt")
	require.NoError(t, os.WriteFile(rules, []byte("# busy-wait loop\nwork python3 X\n"), 0644))

	h := newHarness()
	cfg := recordConfig(t, config.FormatRaw, "out.raw.json")
	cfg.IdleList = rules

	_, err := Record(context.Background(), newTarget(), cfg, h.opts)
	require.NoError(t, err)

	fg, err := flamegraph.ReadRaw(cfg.Output)
	require.NoError(t, err)
	assert.Equal(t, 0, fg.Paths(), "active trace classified idle by rule")
}

func TestRecordProcessEnded(t *testing.T) {
	h := newHarness()
	cfg := recordConfig(t, config.FormatRaw, "out.raw.json")
	cfg.Duration = config.Unlimited
	target := newTarget()
	target.exitAfter = 15

	res, err := Record(context.Background(), target, cfg, h.opts)
	require.NoError(t, err)
	assert.Equal(t, sampler.StopProcessEnded, res.Reason)
	assert.Equal(t, uint64(15), res.Samples)
	assert.Equal(t, []uint64{10, 5}, res.PerBucket)
	assert.Contains(t, h.stdout.String(), "Stopped sampling because the process ended")
	assert.FileExists(t, cfg.Output)
}

func TestRecordCancelled(t *testing.T) {
	h := newHarness()
	cfg := recordConfig(t, config.FormatFlamegraph, "out.svg")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Record(ctx, newTarget(), cfg, h.opts)
	require.NoError(t, err)
	assert.Equal(t, sampler.StopCancelled, res.Reason)
	assert.Zero(t, res.Samples)

	svg, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "No samples")
}

func TestRecordPermissionDenied(t *testing.T) {
	h := newHarness()
	cfg := recordConfig(t, config.FormatFlamegraph, "out.svg")
	target := newTarget()
	target.err = os.ErrPermission

	_, err := Record(context.Background(), target, cfg, h.opts)
	require.Error(t, err)
	assert.True(t, spyerrors.Is(err, spyerrors.ErrPermission))
	assert.NoFileExists(t, cfg.Output)
}

func TestRecordInvalidConfig(t *testing.T) {
	h := newHarness()
	cfg := recordConfig(t, config.FormatFlamegraph, "out.svg")
	cfg.Rate = 0

	_, err := Record(context.Background(), newTarget(), cfg, h.opts)
	assert.True(t, spyerrors.Is(err, spyerrors.ErrConfig))
}

func TestRecordUnwritableOutput(t *testing.T) {
	h := newHarness()
	cfg := recordConfig(t, config.FormatFlamegraph, "out.svg")
	cfg.Output = filepath.Join(t.TempDir(), "missing", "out.svg")

	_, err := Record(context.Background(), newTarget(), cfg, h.opts)
	assert.True(t, spyerrors.Is(err, spyerrors.ErrRender))
}

func TestRecordTiming(t *testing.T) {
	h := newHarness()
	h.opts.Timing = true
	cfg := recordConfig(t, config.FormatFlamegraph, "out.svg")

	_, err := Record(context.Background(), newTarget(), cfg, h.opts)
	require.NoError(t, err)
	assert.Contains(t, h.stderr.String(), "Capture Timing Report")
}

func TestDump(t *testing.T) {
	h := newHarness()
	require.NoError(t, Dump(newTarget(), h.opts))

	out := h.stdout.String()
	assert.Contains(t, out, "/usr/bin/python3")
	assert.Contains(t, out, "Thread 0x1 (active)")
	assert.Contains(t, out, "\t work (app.py:3)\n")
	assert.Contains(t, out, "Thread 0x2 (idle)")
	assert.Contains(t, out, "\t wait (threading.py:300)\n")
}

func TestDumpErrors(t *testing.T) {
	h := newHarness()
	target := newTarget()
	target.err = errors.New("short read")
	assert.True(t, spyerrors.Is(Dump(target, h.opts), spyerrors.ErrCapture))

	target.err = os.ErrPermission
	assert.True(t, spyerrors.Is(Dump(target, h.opts), spyerrors.ErrPermission))
}

func TestGenerateErrors(t *testing.T) {
	h := newHarness()
	cfg := config.Default()
	_, err := Generate(cfg, h.opts)
	assert.True(t, spyerrors.Is(err, spyerrors.ErrConfig))

	raw := filepath.Join(t.TempDir(), "profile.raw.json")
	fg := flamegraph.New(true)
	fg.Counts["main (app.py:1)"] = map[uint64]uint64{0: 4}
	require.NoError(t, flamegraph.WriteRaw(fg, raw))

	cfg.Input = raw
	cfg.Start, cfg.End = 3, 1
	_, err = Generate(cfg, h.opts)
	assert.True(t, spyerrors.Is(err, spyerrors.ErrSerialization))
	assert.Contains(t, h.stdout.String(), "The raw data contains 1 different stack traces.")
	assert.NoFileExists(t, raw+".svg")

	cfg.Input = filepath.Join(t.TempDir(), "missing.raw.json")
	cfg.Start, cfg.End = 0, 1
	_, err = Generate(cfg, h.opts)
	assert.True(t, spyerrors.Is(err, spyerrors.ErrSerialization))
}

func TestGenerateFoldedAndDump(t *testing.T) {
	raw := filepath.Join(t.TempDir(), "profile.raw.json")
	fg := flamegraph.New(true)
	fg.Counts["main (app.py:1);work (app.py:3)"] = map[uint64]uint64{0: 4, 1: 6}
	fg.Counts["main (app.py:1)"] = map[uint64]uint64{5: 1}
	require.NoError(t, flamegraph.WriteRaw(fg, raw))

	h := newHarness()
	h.opts.DumpBuckets = -1
	cfg := config.Default()
	cfg.Input = raw
	cfg.Folded = true

	res, err := Generate(cfg, h.opts)
	require.NoError(t, err)
	assert.Equal(t, raw+".folded", res.Output)

	folded, err := os.ReadFile(res.Output)
	require.NoError(t, err)
	assert.Equal(t, "main (app.py:1);work (app.py:3) 10\n", string(folded))

	out := h.stdout.String()
	assert.Contains(t, out, "Raw Bucket Dump")
	assert.Contains(t, out, "5:1")
	assert.True(t, strings.Index(out, "Raw Bucket Dump") < strings.Index(out, "The raw data contains"))
}
