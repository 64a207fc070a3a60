package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	spyerrors "github.com/danpilch/stackspy/pkg/errors"
)

// Load reads a YAML config file over base. Keys missing from the file keep
// their value from base.
//
//	rate: 250
//	duration: unlimited
//	format: speedscope
//	idle-list: /etc/stackspy/idle.txt
func Load(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, spyerrors.NewConfig(fmt.Sprintf("cannot read config file %q: %v", path, err))
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, spyerrors.NewConfig(fmt.Sprintf("cannot parse config file %q: %v", path, err))
	}
	return cfg, nil
}

// UnmarshalYAML accepts the same values as ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalYAML writes the duration as it is parsed.
func (d Duration) MarshalYAML() (interface{}, error) {
	if d.IsUnlimited() {
		return "unlimited", nil
	}
	return d.seconds, nil
}

// UnmarshalYAML accepts the same values as ParseFormat.
func (f *Format) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseFormat(value.Value)
	if err != nil {
		return err
	}
	*f = v
	return nil
}
