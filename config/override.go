package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Override is the optional TOML settings file. Anything left zero keeps the
// built-in default.
type Override struct {
	HalCmd      string             `toml:"halcmd"`
	Mock        bool               `toml:"mock"`
	ProfilesDir string             `toml:"profiles_dir"`
	IniPath     string             `toml:"ini_path"`
	Pins        map[string]string  `toml:"pins"`
	Baseline    map[string]float64 `toml:"baseline"`
}

// LoadOverride reads a TOML override file and merges pin and baseline
// overrides into the package tables. A missing file is not an error.
func LoadOverride(path string) (Override, error) {
	var o Override
	if path == "" {
		return o, nil
	}

	_, err := toml.DecodeFile(path, &o)
	if os.IsNotExist(err) {
		return Override{}, nil
	}
	if err != nil {
		return Override{}, fmt.Errorf("error reading config %q: %w", path, err)
	}

	for name, pin := range o.Pins {
		if _, ok := MonitorPins[name]; ok {
			MonitorPins[name] = pin
		}
	}
	for name, value := range o.Baseline {
		if _, ok := BaselineParams[name]; ok {
			BaselineParams[name] = value
		}
	}
	return o, nil
}
