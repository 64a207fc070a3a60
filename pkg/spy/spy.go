// Package spy implements the stackspy run modes: dump, record and generate.
package spy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/danpilch/stackspy/pkg/config"
	"github.com/danpilch/stackspy/pkg/debug"
	spyerrors "github.com/danpilch/stackspy/pkg/errors"
	"github.com/danpilch/stackspy/pkg/filter"
	"github.com/danpilch/stackspy/pkg/flamegraph"
	"github.com/danpilch/stackspy/pkg/idle"
	"github.com/danpilch/stackspy/pkg/output"
	"github.com/danpilch/stackspy/pkg/sampler"
	"github.com/danpilch/stackspy/pkg/speedscope"
)

// Options carries the collaborators shared by the run modes.
type Options struct {
	Logger *logrus.Logger
	Stdout io.Writer
	Stderr io.Writer

	// Clock drives the sampling timer; nil uses the wall clock.
	Clock sampler.Clock
	// Idle loads the idle rule table once per process; nil creates a loader.
	Idle *idle.Loader
	// HandleSignals stops recording on SIGINT or SIGTERM.
	HandleSignals bool
	// Timing prints a capture latency report after recording.
	Timing bool
	// DumpBuckets prints the per-second counts of that many busiest paths
	// before replaying. Zero disables the dump, a negative value prints every path.
	DumpBuckets int
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logrus.New()
		o.Logger.SetLevel(logrus.WarnLevel)
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Idle == nil {
		o.Idle = idle.NewLoader(o.Logger)
	}
	return o
}

// Dump prints the current stack of every thread of target, idle threads included.
func Dump(target sampler.Target, opts Options) error {
	opts = opts.withDefaults()

	exe, err := target.ExePath()
	if err != nil {
		opts.Logger.WithError(err).Warn("Cannot resolve executable")
		exe = "<unknown>"
	}
	traces, err := target.Capture()
	if err != nil {
		if spyerrors.PermissionDenied(err) {
			return spyerrors.NewPermission("cannot capture stack traces", err)
		}
		return spyerrors.NewCapture(err)
	}
	output.NewPrinter(opts.Stdout).Traces(exe, traces)
	return nil
}

// RecordResult describes a finished recording.
type RecordResult struct {
	sampler.Result
	Output string
}

// NewRecorder returns the aggregator for the configured output format.
func NewRecorder(cfg config.Config) (sampler.Recorder, error) {
	switch cfg.Format {
	case config.FormatFlamegraph:
		return flamegraph.New(cfg.ShowLineNumbers), nil
	case config.FormatSpeedscope:
		return speedscope.New(cfg.Rate, cfg.ShowLineNumbers), nil
	case config.FormatRaw:
		return flamegraph.NewRaw(cfg.ShowLineNumbers), nil
	}
	return nil, spyerrors.NewConfig(fmt.Sprintf("unknown output format %q", cfg.Format))
}

// Record samples target according to cfg and writes the configured output file.
func Record(ctx context.Context, target sampler.Target, cfg config.Config, opts Options) (*RecordResult, error) {
	opts = opts.withDefaults()
	logger := opts.Logger
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	recorder, err := NewRecorder(cfg)
	if err != nil {
		return nil, err
	}

	program := ""
	if exe, err := target.ExePath(); err != nil {
		logger.WithError(err).Warn("Cannot resolve executable, idle rules will not match")
	} else {
		program = filepath.Base(exe)
	}
	policy := filter.Policy{
		IncludeIdle:      cfg.IncludeIdle,
		GILOnly:          cfg.GILOnly,
		IncludeThreadIDs: cfg.IncludeThreadIDs,
		IdleRules:        opts.Idle.Load(cfg.IdleList),
		Program:          program,
	}

	var timed *debug.TimedTarget
	if opts.Timing {
		timed = debug.NewTimedTarget(target)
		target = timed
	}

	printer := output.NewPrinter(opts.Stdout)
	printer.Banner(cfg.Rate, cfg.Duration)

	maxTicks := cfg.Duration.Ticks(cfg.Rate)
	s, err := sampler.New(target, recorder, sampler.Options{
		Rate:     cfg.Rate,
		MaxTicks: maxTicks,
		Policy:   policy,
		Progress: output.NewProgress(opts.Stderr, maxTicks, cfg.Rate),
		Logger:   logger,
		Clock:    opts.Clock,
	})
	if err != nil {
		return nil, err
	}
	if opts.HandleSignals {
		release := sampler.NotifyOnSignal(s, os.Interrupt, syscall.SIGTERM)
		defer release()
	}

	res, err := s.Run(ctx)
	if err != nil {
		return &RecordResult{Result: res}, err
	}
	printer.Reason(res.Reason)

	path := cfg.OutputPath()
	size, err := writeOutput(recorder, cfg.Format, path)
	if err != nil {
		return &RecordResult{Result: res}, err
	}
	logger.WithFields(logrus.Fields{
		"output": path,
		"format": cfg.Format,
		"bytes":  size,
	}).Debug("Wrote profile")

	printer.Summary(cfg, path, size, res)
	if timed != nil {
		debug.TimingReport(opts.Stderr, timed.Timing(), sampler.Interval(cfg.Rate), debug.MeasureOverhead())
	}
	return &RecordResult{Result: res, Output: path}, nil
}

// writeOutput serializes recorder to path and returns the file size.
func writeOutput(recorder sampler.Recorder, format config.Format, path string) (int64, error) {
	wrap := func(err error) error {
		if format == config.FormatFlamegraph {
			return spyerrors.NewRender(path, err)
		}
		return spyerrors.NewSerialization(fmt.Sprintf("cannot write %q", path), err)
	}

	w, err := flamegraph.Create(path)
	if err != nil {
		return 0, wrap(err)
	}
	if err := recorder.Write(w); err != nil {
		w.Close()
		return 0, wrap(err)
	}
	if err := w.Close(); err != nil {
		return 0, wrap(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, wrap(err)
	}
	return info.Size(), nil
}

// Generate replays the raw snapshot cfg.Input over the window [cfg.Start, cfg.End).
func Generate(cfg config.Config, opts Options) (*flamegraph.ReplayResult, error) {
	opts = opts.withDefaults()
	if err := cfg.ValidateGenerate(); err != nil {
		return nil, err
	}

	if opts.DumpBuckets != 0 {
		fg, err := flamegraph.ReadRaw(cfg.Input)
		if err != nil {
			return nil, err
		}
		debug.DumpBuckets(opts.Stdout, fg.Counts, opts.DumpBuckets)
		fmt.Fprintln(opts.Stdout)
	}

	printer := output.NewPrinter(opts.Stdout)
	res, err := flamegraph.Replay(cfg.Input, flamegraph.ReplayOptions{
		Start:  cfg.Start,
		End:    cfg.End,
		Folded: cfg.Folded,
		Logger: opts.Logger,
	})
	if res != nil {
		printer.Line("The raw data contains %d different stack traces.", res.Paths)
	}
	if err != nil {
		return res, err
	}

	if res.Selected == 0 {
		printer.Warn(fmt.Sprintf("No samples between second %d and second %d.", cfg.Start, cfg.End))
	}
	kind := "flame graph"
	if cfg.Folded {
		kind = "folded stacks"
	}
	printer.Line("Wrote %s to '%s'. Stack traces: %d Samples: %d", kind, res.Output, res.Selected, res.Samples)
	return res, nil
}
