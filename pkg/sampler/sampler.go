// Package sampler drives periodic stack captures of a target process and
// feeds the retained traces to a recorder.
package sampler

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	spyerrors "github.com/danpilch/stackspy/pkg/errors"
	"github.com/danpilch/stackspy/pkg/filter"
	"github.com/danpilch/stackspy/pkg/stack"
)

// LateWarning is the overrun past which sampling falls visibly behind.
const LateWarning = time.Second

// Target is an attached process that stack traces can be captured from.
type Target interface {
	// Capture returns the current stack trace of every thread.
	Capture() ([]stack.StackTrace, error)
	// HasExited reports whether the process is gone.
	HasExited() bool
	// ExePath returns the path of the process executable.
	ExePath() (string, error)
}

// Recorder aggregates retained traces and serializes the result.
type Recorder interface {
	Increment(at stack.Instant, trace *stack.StackTrace) error
	Write(w io.Writer) error
}

// Progress displays sampling progress. All methods are called from the sampling goroutine.
type Progress interface {
	Inc()
	SetMessage(msg string)
	Warn(msg string)
	Finish()
}

// StopReason explains why a run ended.
type StopReason string

const (
	StopCancelled       StopReason = "cancelled"
	StopProcessEnded    StopReason = "process ended"
	StopDurationElapsed StopReason = "duration elapsed"
)

// Message returns the user-facing description of the stop reason.
func (r StopReason) Message() string {
	switch r {
	case StopCancelled:
		return "Stopped sampling because Control-C pressed"
	case StopProcessEnded:
		return "Stopped sampling because the process ended"
	case StopDurationElapsed:
		return "Stopped sampling because the duration elapsed"
	}
	return ""
}

// Result summarizes a finished run.
type Result struct {
	Samples    uint64 // successful captures
	Errors     uint64 // recoverable capture failures
	Ticks      uint64 // processed ticks
	Buckets    uint64 // whole seconds of sampling progress
	Overruns   uint64 // ticks that started after their deadline
	MaxOverrun time.Duration
	Reason     StopReason
	// PerBucket counts successful captures in each time bucket.
	PerBucket []uint64
}

// Sampler runs the capture loop. Construct it with New; it must not be copied.
type Sampler struct {
	target   Target
	recorder Recorder
	policy   filter.Policy
	rate     uint64
	maxTicks uint64 // 0 = unlimited
	progress Progress
	logger   *logrus.Logger
	clock    Clock

	stop atomic.Bool
}

// Options configures a Sampler.
type Options struct {
	Rate     uint64 // samples per second
	MaxTicks uint64 // tick budget, 0 for no limit
	Policy   filter.Policy
	Progress Progress
	Logger   *logrus.Logger
	Clock    Clock
}

// New creates a sampler capturing from target into recorder.
func New(target Target, recorder Recorder, opts Options) (*Sampler, error) {
	if opts.Rate == 0 {
		return nil, spyerrors.NewConfig("sampling rate must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	progress := opts.Progress
	if progress == nil {
		progress = nopProgress{}
	}
	return &Sampler{
		target:   target,
		recorder: recorder,
		policy:   opts.Policy,
		rate:     opts.Rate,
		maxTicks: opts.MaxTicks,
		progress: progress,
		logger:   logger,
		clock:    clock,
	}, nil
}

// Stop asks the running loop to end at the next tick boundary.
// It is safe to call from any goroutine.
func (s *Sampler) Stop() {
	s.stop.Store(true)
}

func (s *Sampler) stopped(ctx context.Context) bool {
	if s.stop.Load() {
		return true
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Run samples the target until it exits, the tick budget is spent, or the
// run is cancelled. Recoverable capture errors are counted and sampling
// continues; permission failures and recorder errors end the run with an error.
// Whatever was recorded before a failure stays in the recorder.
func (s *Sampler) Run(ctx context.Context) (Result, error) {
	var res Result
	timer := NewTimer(s.clock, s.rate)
	defer s.progress.Finish()

	var bucketSamples, sinceBucket uint64
	for {
		if late := timer.Wait(); late > 0 {
			res.Overruns++
			if late > res.MaxOverrun {
				res.MaxOverrun = late
			}
			if late > LateWarning {
				s.progress.Warn(fmt.Sprintf("%.2fs behind in sampling, results may be inaccurate. Try reducing the sampling rate.", late.Seconds()))
				s.logger.WithField("behind", late).Warn("Sampling fell behind")
			}
		}

		if s.stopped(ctx) {
			res.Reason = StopCancelled
			break
		}

		at := stack.Instant{Tick: res.Ticks, Bucket: res.Buckets}
		traces, err := s.target.Capture()
		if err != nil {
			if s.target.HasExited() {
				res.Reason = StopProcessEnded
				break
			}
			if spyerrors.PermissionDenied(err) {
				return s.finish(res, bucketSamples), spyerrors.NewPermission("cannot capture stack traces", err)
			}
			res.Errors++
			s.logger.WithFields(logrus.Fields{
				"tick":  res.Ticks,
				"error": err,
			}).Warn("Failed to capture stack traces")
		} else {
			for i := range traces {
				kept, ok := s.policy.Apply(&traces[i])
				if !ok {
					continue
				}
				if err := s.recorder.Increment(at, &kept); err != nil {
					return s.finish(res, bucketSamples), fmt.Errorf("cannot record stack trace: %w", err)
				}
			}
			res.Samples++
			bucketSamples++
		}

		if s.maxTicks == 0 {
			if res.Errors > 0 {
				s.progress.SetMessage(fmt.Sprintf("Collected %d samples (%d errors)", res.Samples, res.Errors))
			} else {
				s.progress.SetMessage(fmt.Sprintf("Collected %d samples", res.Samples))
			}
		}
		s.progress.Inc()

		res.Ticks++
		sinceBucket++
		if sinceBucket == s.rate {
			sinceBucket = 0
			res.Buckets++
			res.PerBucket = append(res.PerBucket, bucketSamples)
			bucketSamples = 0
		}

		if s.maxTicks > 0 && res.Ticks >= s.maxTicks {
			res.Reason = StopDurationElapsed
			break
		}
	}

	s.logger.WithFields(logrus.Fields{
		"reason":  res.Reason,
		"samples": res.Samples,
		"errors":  res.Errors,
		"ticks":   res.Ticks,
	}).Debug("Sampling finished")
	return s.finish(res, bucketSamples), nil
}

// finish records the trailing partial bucket.
func (s *Sampler) finish(res Result, bucketSamples uint64) Result {
	if res.Ticks%s.rate != 0 {
		res.PerBucket = append(res.PerBucket, bucketSamples)
	}
	return res
}

type nopProgress struct{}

func (nopProgress) Inc()              {}
func (nopProgress) SetMessage(string) {}
func (nopProgress) Warn(string)       {}
func (nopProgress) Finish()           {}
