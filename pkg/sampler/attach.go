package sampler

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"

	spyerrors "github.com/danpilch/stackspy/pkg/errors"
)

// AttachFunc attaches to the process with the given pid.
type AttachFunc func(pid int) (Target, error)

// Attach calls attach up to attempts times, waiting delay between tries.
// A permission failure is returned immediately since retrying cannot fix it.
func Attach(ctx context.Context, attach AttachFunc, pid, attempts int, delay time.Duration, logger *logrus.Logger) (Target, error) {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		target, err := attach(pid)
		if err == nil {
			return target, nil
		}
		if spyerrors.PermissionDenied(err) {
			return nil, spyerrors.NewPermission("cannot attach to process", err)
		}
		lastErr = err
		logger.WithFields(logrus.Fields{
			"pid":     pid,
			"attempt": i,
			"error":   err,
		}).Debug("Attach failed")

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, spyerrors.NewAttach(pid, i, ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, spyerrors.NewAttach(pid, attempts, lastErr)
}

// NotifyOnSignal stops s when one of sigs arrives. The returned function
// releases the signal handler.
func NotifyOnSignal(s *Sampler, sigs ...os.Signal) func() {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt}
	}
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, sigs...)
	go func() {
		select {
		case <-ch:
			s.Stop()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
