package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spyerrors "github.com/danpilch/stackspy/pkg/errors"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, uint64(100), c.Rate)
	assert.Equal(t, Seconds(2), c.Duration)
	assert.Equal(t, FormatFlamegraph, c.Format)
	assert.True(t, c.ShowLineNumbers)
	assert.False(t, c.IncludeIdle)
	assert.Equal(t, uint64(0), c.Start)
	assert.Equal(t, uint64(2), c.End)
	assert.NoError(t, c.Validate())
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("unlimited")
	require.NoError(t, err)
	assert.True(t, d.IsUnlimited())
	assert.Equal(t, "unlimited", d.String())

	d, err = ParseDuration(" 30 ")
	require.NoError(t, err)
	assert.Equal(t, uint64(30), d.Secs())
	assert.Equal(t, "30", d.String())

	for _, bad := range []string{"", "0", "-1", "1.5", "forever"} {
		_, err := ParseDuration(bad)
		assert.True(t, spyerrors.Is(err, spyerrors.ErrConfig), "input %q", bad)
	}
}

func TestDurationTicks(t *testing.T) {
	assert.Equal(t, uint64(200), Seconds(2).Ticks(100))
	assert.Equal(t, uint64(0), Unlimited.Ticks(100))
	assert.Equal(t, uint64(math.MaxUint64), Seconds(math.MaxUint64/2).Ticks(100))
}

func TestDurationFlagValue(t *testing.T) {
	var d Duration
	require.NoError(t, d.Set("5"))
	assert.Equal(t, Seconds(5), d)
	assert.Error(t, d.Set("nope"))
	assert.Equal(t, Seconds(5), d, "failed Set keeps the old value")
	assert.Equal(t, "duration", d.Type())
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	got, err := ParseFormat("SpeedScope")
	require.NoError(t, err)
	assert.Equal(t, FormatSpeedscope, got)

	_, err = ParseFormat("pprof")
	assert.True(t, spyerrors.Is(err, spyerrors.ErrConfig))

	var f Format
	require.NoError(t, f.Set("raw"))
	assert.Equal(t, FormatRaw, f)
	assert.Equal(t, "raw", f.String())
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Rate = 0
	assert.True(t, spyerrors.Is(c.Validate(), spyerrors.ErrConfig))

	c = Default()
	c.Format = "svg"
	assert.Error(t, c.Validate())

	c = Default()
	assert.Error(t, c.ValidateRecord(), "pid required")
	c.Pid = 42
	assert.NoError(t, c.ValidateRecord())
}

func TestValidateGenerate(t *testing.T) {
	c := Default()
	assert.True(t, spyerrors.Is(c.ValidateGenerate(), spyerrors.ErrConfig))

	c.Input = "profile.raw.json"
	assert.NoError(t, c.ValidateGenerate())

	c.Start, c.End = 5, 4
	assert.NoError(t, c.ValidateGenerate(), "window is checked on replay")
}

func TestOutputPath(t *testing.T) {
	c := Default()
	c.Pid = 99
	assert.Equal(t, "stackspy-99.svg", c.OutputPath())
	c.Format = FormatSpeedscope
	assert.Equal(t, "stackspy-99.json", c.OutputPath())
	c.Format = FormatRaw
	assert.Equal(t, "stackspy-99.raw.json", c.OutputPath())
	c.Output = "out.svg"
	assert.Equal(t, "out.svg", c.OutputPath())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stackspy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rate: 250
duration: unlimited
format: speedscope
idle-list: /etc/stackspy/idle.txt
include-thread-ids: true
`), 0644))

	cfg, err := Load(Default(), path)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), cfg.Rate)
	assert.True(t, cfg.Duration.IsUnlimited())
	assert.Equal(t, FormatSpeedscope, cfg.Format)
	assert.Equal(t, "/etc/stackspy/idle.txt", cfg.IdleList)
	assert.True(t, cfg.IncludeThreadIDs)
	assert.True(t, cfg.ShowLineNumbers, "unset keys keep the base value")
	assert.Equal(t, uint64(2), cfg.End)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(Default(), filepath.Join(dir, "missing.yaml"))
	assert.True(t, spyerrors.Is(err, spyerrors.ErrConfig))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("duration: forever\n"), 0644))
	cfg, err := Load(Default(), bad)
	assert.True(t, spyerrors.Is(err, spyerrors.ErrConfig))
	assert.Equal(t, Default(), cfg, "base returned on error")

	bad = filepath.Join(dir, "format.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("format: pprof\n"), 0644))
	_, err = Load(Default(), bad)
	assert.Error(t, err)
}

func TestDurationMarshalYAML(t *testing.T) {
	v, err := Unlimited.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "unlimited", v)
	v, err = Seconds(5).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), v)
}
