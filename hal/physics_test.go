package hal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cncworks/spindletune/config"
)

func TestStepZeroDTReturnsPreviousOutput(t *testing.T) {
	m, c := newMockWithClock()
	require.NoError(t, m.SendMDI("M3 S1000"))

	c.now = c.now.Add(100 * time.Millisecond)
	first := m.step(c.now)
	second := m.step(c.now)

	assert.Equal(t, first["cmd_limited"], second["cmd_limited"], "zero dt must not advance the model")

	third := m.step(c.now.Add(-time.Second))
	assert.Equal(t, first["feedback"], third["feedback"], "negative dt must not advance the model")
}

func TestStepCapsLargeDT(t *testing.T) {
	m, c := newMockWithClock()
	require.True(t, m.SetParam("RateLimit", 1200))
	require.NoError(t, m.SendMDI("M3 S1500"))

	// After a 10s stall the model advances by at most the 0.5s cap
	c.now = c.now.Add(10 * time.Second)
	values := m.AllValues()

	assert.InDelta(t, 600.0, values["cmd_limited"], 1e-6)
}

func TestStepAccelHonorsRateLimit(t *testing.T) {
	m, c := newMockWithClock()
	require.True(t, m.SetParam("RateLimit", 1200))
	require.NoError(t, m.SendMDI("M3 S1500"))

	prev := 0.0
	for i := 0; i < 20; i++ {
		c.now = c.now.Add(100 * time.Millisecond)
		values := m.AllValues()
		climb := values["cmd_limited"] - prev
		assert.LessOrEqual(t, climb, 120.0+1e-6, "tick %d exceeded the ramp limit", i)
		prev = values["cmd_limited"]
	}
	assert.InDelta(t, 1500.0, prev, 1e-6, "the ramp tops out at the command")
}

func TestStepDecelAllowsFasterRamp(t *testing.T) {
	m, c := newMockWithClock()
	require.True(t, m.SetParam("RateLimit", 1200))
	require.NoError(t, m.SendMDI("M3 S1500"))
	run(m, c, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, m.SendMDI("M5"))
	c.now = c.now.Add(100 * time.Millisecond)
	values := m.AllValues()

	// Decel runs at 1.5x the accel limit: 180 RPM in one 100ms tick
	assert.InDelta(t, 1500.0-180.0, values["cmd_limited"], 1e-6)
}

func TestStepThermalDriftRaisesSlip(t *testing.T) {
	m, c := newMockWithClock()
	require.NoError(t, m.SendMDI("M3 S1000"))

	// Minutes of running warm the motor toward the nameplate hot slip.
	// Ten minutes is half the thermal time constant, so the factor sits
	// partway between cold and fully warm.
	run(m, c, 10*time.Minute, 500*time.Millisecond)
	warm := m.sim.thermal

	hotFactor := 1 + (config.Motor.HotSlipPct-config.Motor.ColdSlipPct)/100
	assert.Greater(t, warm, 1.003)
	assert.Less(t, warm, hotFactor)

	// Cooling runs at twice the heating rate: ten stopped minutes shed
	// more than half the accumulated warmth
	require.NoError(t, m.SendMDI("M5"))
	run(m, c, 10*time.Minute, 500*time.Millisecond)
	assert.Less(t, m.sim.thermal-1, (warm-1)*0.5)
}

func TestStepRevolutionsAccumulate(t *testing.T) {
	m, c := newMockWithClock()
	require.NoError(t, m.SendMDI("M3 S600"))
	run(m, c, 10*time.Second, 50*time.Millisecond)

	// 600 RPM is 10 rev/s; the spin-up ramp eats some of the first second
	assert.Greater(t, m.sim.revolutions, 80.0)
	assert.Less(t, m.sim.revolutions, 105.0)

	require.NoError(t, m.SendMDI("M4 S600"))
	run(m, c, 30*time.Second, 50*time.Millisecond)
	assert.Less(t, m.sim.revolutions, 0.0, "reverse rotation counts revolutions down")
}

func TestStepDPLLFaultAddsLowSpeedNoise(t *testing.T) {
	m, c := newMockWithClock()
	require.NoError(t, m.SendMDI("M3 S150"))
	run(m, c, 8*time.Second, 50*time.Millisecond)

	clean := sampleNoise(m, c, 100)

	require.NoError(t, m.SetFault("dpll", true))
	noisy := sampleNoise(m, c, 100)

	assert.Greater(t, noisy, clean*2, "losing DPLL should clearly raise low-speed noise")

	values := m.AllValues()
	assert.Equal(t, 0.0, values["dpll_timer"])
}

// sampleNoise runs the sim and returns the peak-to-peak spread of raw
// feedback over n ticks
func sampleNoise(m *Mock, c *fakeClock, n int) float64 {
	min, max := 0.0, 0.0
	for i := 0; i < n; i++ {
		c.now = c.now.Add(50 * time.Millisecond)
		v := m.AllValues()["feedback_raw"]
		if i == 0 || v < min {
			min = v
		}
		if i == 0 || v > max {
			max = v
		}
	}
	return max - min
}
