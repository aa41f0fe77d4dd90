package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/cncworks/spindletune/config"
)

// spindleSection is the LinuxCNC INI section holding the spindle PID values
const spindleSection = "SPINDLE_0"

// ReadSection reads one INI section as raw strings. Values are taken
// unexpanded so LinuxCNC's % placeholders survive untouched.
func ReadSection(path, section string) (map[string]string, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		SkipUnrecognizableLines: true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("error reading %q: %w", path, err)
	}

	sec, err := cfg.GetSection(section)
	if err != nil {
		return nil, fmt.Errorf("section %q not found in %q: %w", section, path, err)
	}

	out := make(map[string]string, len(sec.Keys()))
	for _, key := range sec.Keys() {
		out[key.Name()] = key.Value()
	}
	return out, nil
}

// ReadSpindleParams maps the SPINDLE_0 section's keys to tuning parameter
// names. Keys that are absent or not numeric are skipped.
func ReadSpindleParams(path string) (map[string]float64, error) {
	raw, err := ReadSection(path, spindleSection)
	if err != nil {
		return nil, err
	}

	params := make(map[string]float64)
	for name, spec := range config.TuningParams {
		text, ok := raw[spec.IniKey]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			continue
		}
		params[name] = v
	}
	return params, nil
}

// GenerateSection renders a SPINDLE_0 INI section from a parameter set,
// ready to paste into the machine configuration
func GenerateSection(params map[string]float64) string {
	var b strings.Builder
	b.WriteString("[" + spindleSection + "]\n")
	b.WriteString("# Spindle PID values written by spindle-tune on " +
		time.Now().Format("2006-01-02 15:04") + "\n")

	names := make([]string, 0, len(params))
	for name := range params {
		if _, ok := config.TuningParams[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		spec := config.TuningParams[name]
		fmt.Fprintf(&b, "%s = %g\n", spec.IniKey, params[name])
	}
	return b.String()
}

// CompareWithBaseline reports each parameter as "same", "higher", or
// "lower" than the guide baseline, with a small tolerance for float noise
func CompareWithBaseline(params map[string]float64) map[string]string {
	const tolerance = 0.001

	out := make(map[string]string, len(params))
	for name, v := range params {
		baseline, ok := config.BaselineParams[name]
		if !ok {
			continue
		}
		switch {
		case v > baseline+tolerance:
			out[name] = "higher"
		case v < baseline-tolerance:
			out[name] = "lower"
		default:
			out[name] = "same"
		}
	}
	return out
}

// Backup copies the INI file into ~/.spindle_tuner_backups with a
// timestamped name and returns the backup path
func Backup(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("error reading %q: %w", path, err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error finding home dir: %w", err)
	}
	dir := filepath.Join(home, ".spindle_tuner_backups")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating backup dir: %w", err)
	}

	name := fmt.Sprintf("%s.%s.bak", filepath.Base(path), time.Now().Format("20060102-150405"))
	backup := filepath.Join(dir, name)
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return "", fmt.Errorf("error writing backup: %w", err)
	}
	return backup, nil
}
