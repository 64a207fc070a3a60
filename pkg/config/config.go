// Package config holds the settings of a profiling run.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	spyerrors "github.com/danpilch/stackspy/pkg/errors"
)

// Format selects the recorder and the output file kind.
type Format string

const (
	FormatFlamegraph Format = "flamegraph"
	FormatSpeedscope Format = "speedscope"
	FormatRaw        Format = "raw"
)

// Formats lists the supported output formats.
var Formats = []Format{FormatFlamegraph, FormatSpeedscope, FormatRaw}

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", spyerrors.NewConfig(fmt.Sprintf("unknown output format %q (want flamegraph, speedscope or raw)", s))
}

// Ext returns the default file extension for the format.
func (f Format) Ext() string {
	switch f {
	case FormatSpeedscope:
		return "json"
	case FormatRaw:
		return "raw.json"
	default:
		return "svg"
	}
}

// Duration is how long to sample. The zero value is unlimited.
type Duration struct {
	seconds uint64
}

// Unlimited samples until the process exits or the run is cancelled.
var Unlimited = Duration{}

// Seconds returns a bounded duration.
func Seconds(n uint64) Duration {
	return Duration{seconds: n}
}

// ParseDuration accepts "unlimited" or a positive number of seconds.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "unlimited") {
		return Unlimited, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return Duration{}, spyerrors.NewConfig(fmt.Sprintf("invalid duration %q: want a positive number of seconds or 'unlimited'", s))
	}
	return Seconds(n), nil
}

// IsUnlimited reports whether the duration has no bound.
func (d Duration) IsUnlimited() bool {
	return d.seconds == 0
}

// Secs returns the bound in seconds, 0 when unlimited.
func (d Duration) Secs() uint64 {
	return d.seconds
}

// Ticks returns the tick budget at rate samples per second, 0 when unlimited.
// The budget saturates instead of overflowing.
func (d Duration) Ticks(rate uint64) uint64 {
	if d.IsUnlimited() {
		return 0
	}
	if rate != 0 && d.seconds > math.MaxUint64/rate {
		return math.MaxUint64
	}
	return d.seconds * rate
}

func (d Duration) String() string {
	if d.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatUint(d.seconds, 10)
}

// Set implements pflag.Value.
func (d *Duration) Set(s string) error {
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Type implements pflag.Value.
func (d *Duration) Type() string {
	return "duration"
}

// String implements pflag.Value.
func (f *Format) String() string {
	return string(*f)
}

// Set implements pflag.Value.
func (f *Format) Set(s string) error {
	v, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Type implements pflag.Value.
func (f *Format) Type() string {
	return "format"
}

// Config is a complete run configuration.
type Config struct {
	Pid      int      `yaml:"pid"`
	Rate     uint64   `yaml:"rate"`
	Duration Duration `yaml:"duration"`
	Format   Format   `yaml:"format"`
	Output   string   `yaml:"output"` // empty picks a name from the pid and format

	IdleList         string `yaml:"idle-list"` // idle rule file, empty for none
	IncludeIdle      bool   `yaml:"include-idle"`
	GILOnly          bool   `yaml:"gil-only"`
	IncludeThreadIDs bool   `yaml:"include-thread-ids"`
	ShowLineNumbers  bool   `yaml:"show-line-numbers"`

	// Input is the raw snapshot to replay.
	Input string `yaml:"input"`
	// Replay window [Start, End) in seconds.
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
	// Folded writes folded text instead of SVG on replay.
	Folded bool `yaml:"folded"`
}

// Default returns the settings used when nothing is overridden.
func Default() Config {
	return Config{
		Rate:            100,
		Duration:        Seconds(2),
		Format:          FormatFlamegraph,
		ShowLineNumbers: true,
		Start:           0,
		End:             2,
	}
}

// Validate checks the settings shared by every run mode.
func (c Config) Validate() error {
	if c.Rate == 0 {
		return spyerrors.NewConfig("sampling rate must be positive")
	}
	if _, err := ParseFormat(string(c.Format)); err != nil {
		return err
	}
	return nil
}

// ValidateRecord checks the settings needed to attach and sample.
func (c Config) ValidateRecord() error {
	if c.Pid <= 0 {
		return spyerrors.NewConfig(fmt.Sprintf("invalid pid %d", c.Pid))
	}
	return c.Validate()
}

// ValidateGenerate checks the settings needed to replay a raw snapshot.
// The time window is checked against the snapshot by the replay itself.
func (c Config) ValidateGenerate() error {
	if c.Input == "" {
		return spyerrors.NewConfig("a raw snapshot file is required")
	}
	return nil
}

// OutputPath returns the configured output path or a default derived from
// the pid and format.
func (c Config) OutputPath() string {
	if c.Output != "" {
		return c.Output
	}
	return fmt.Sprintf("stackspy-%d.%s", c.Pid, c.Format.Ext())
}
