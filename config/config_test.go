package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTuningParamsCoverBaseline(t *testing.T) {
	for name := range BaselineParams {
		spec, ok := TuningParams[name]
		require.True(t, ok, "baseline parameter %s has no spec", name)

		v := BaselineParams[name]
		assert.GreaterOrEqual(t, v, spec.Min, "%s baseline below min", name)
		assert.LessOrEqual(t, v, spec.Max, "%s baseline above max", name)
	}
}

func TestPresetsUseKnownParams(t *testing.T) {
	for preset, params := range Presets {
		for name := range params {
			_, ok := TuningParams[name]
			assert.True(t, ok, "preset %s has unknown parameter %s", preset, name)
		}
	}
}

func TestMaxRPM(t *testing.T) {
	// 65 Hz on a 4-pole motor
	assert.Equal(t, 1950.0, MaxRPM())
}

func TestRPMHzConversion(t *testing.T) {
	assert.InDelta(t, 60.0, RPMToHz(1800), 1e-9)
	assert.InDelta(t, 1800.0, HzToRPM(60), 1e-9)
	assert.InDelta(t, 900.0, HzToRPM(RPMToHz(900)), 1e-9)
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
halcmd = "sudo halcmd"
mock = true

[pins]
feedback = "pid.1.feedback"
bogus = "ignored"

[baseline]
P = 0.2
Bogus = 9
`), 0o644))

	origPin := MonitorPins["feedback"]
	origP := BaselineParams["P"]
	defer func() {
		MonitorPins["feedback"] = origPin
		BaselineParams["P"] = origP
	}()

	o, err := LoadOverride(path)
	require.NoError(t, err)

	assert.Equal(t, "sudo halcmd", o.HalCmd)
	assert.True(t, o.Mock)
	assert.Equal(t, "pid.1.feedback", MonitorPins["feedback"])
	assert.Equal(t, 0.2, BaselineParams["P"])
	assert.NotContains(t, MonitorPins, "bogus", "unknown pin names are ignored")
	assert.NotContains(t, BaselineParams, "Bogus")
}

func TestLoadOverrideMissingFile(t *testing.T) {
	o, err := LoadOverride(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Override{}, o)

	o, err = LoadOverride("")
	require.NoError(t, err)
	assert.Equal(t, Override{}, o)
}
