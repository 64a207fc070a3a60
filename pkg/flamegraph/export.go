package flamegraph

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	spyerrors "github.com/danpilch/stackspy/pkg/errors"
)

// WriteFlamegraph renders path totals to an SVG file.
func WriteFlamegraph(totals map[string]uint64, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return spyerrors.NewRender(path, err)
	}
	if err := Render(totals, f, DefaultSVGOptions()); err != nil {
		f.Close()
		return spyerrors.NewRender(path, err)
	}
	if err := f.Close(); err != nil {
		return spyerrors.NewRender(path, err)
	}
	return nil
}

// WriteFoldedFile writes path totals as sorted "{path} {count}" lines.
func WriteFoldedFile(totals map[string]uint64, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return spyerrors.NewSerialization(fmt.Sprintf("cannot create %q", path), err)
	}
	if err := writeCollapsed(f, totals); err != nil {
		f.Close()
		return spyerrors.NewSerialization(fmt.Sprintf("cannot write %q", path), err)
	}
	if err := f.Close(); err != nil {
		return spyerrors.NewSerialization(fmt.Sprintf("cannot write %q", path), err)
	}
	return nil
}

// ReplayOptions selects the time window and output kind of a replay.
type ReplayOptions struct {
	Start  uint64
	End    uint64
	Folded bool // write folded text instead of SVG
	Logger *logrus.Logger
}

// ReplayResult describes a finished replay.
type ReplayResult struct {
	Paths    int    // distinct paths in the snapshot
	Selected int    // paths with samples in the window
	Samples  uint64 // samples in the window
	Output   string
}

// Replay reads a raw snapshot and renders the window [Start, End) to
// "{path}.svg", or "{path}.folded" when Folded is set. When the snapshot was
// read but the window is invalid, the partial result is returned with the error.
func Replay(path string, opts ReplayOptions) (*ReplayResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	fg, err := ReadRaw(path)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"file":  path,
		"paths": fg.Paths(),
	}).Debug("Loaded raw snapshot")

	res := &ReplayResult{Paths: fg.Paths()}
	totals, err := fg.Filter(opts.Start, opts.End)
	if err != nil {
		return res, err
	}
	res.Selected = len(totals)
	for _, n := range totals {
		res.Samples += n
	}

	if opts.Folded {
		res.Output = path + ".folded"
		err = WriteFoldedFile(totals, res.Output)
	} else {
		res.Output = path + ".svg"
		err = WriteFlamegraph(totals, res.Output)
	}
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"output":  res.Output,
		"start":   opts.Start,
		"end":     opts.End,
		"samples": res.Samples,
	}).Debug("Replayed raw snapshot")
	return res, nil
}
