package hal

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cncworks/spindletune/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock lets tests step simulated time deterministically
type fakeClock struct {
	now time.Time
}

func newMockWithClock() (*Mock, *fakeClock) {
	m := NewMock(testLogger())
	c := &fakeClock{now: time.Now()}
	m.clock = c.read
	m.sim.lastUpdate = c.now
	return m, c
}

func (c *fakeClock) read() time.Time {
	return c.now
}

// run advances the simulation in fixed ticks
func run(m *Mock, c *fakeClock, total, tick time.Duration) map[string]float64 {
	var values map[string]float64
	for elapsed := time.Duration(0); elapsed < total; elapsed += tick {
		c.now = c.now.Add(tick)
		values = m.AllValues()
	}
	return values
}

func TestMockSetParamUnknown(t *testing.T) {
	m := NewMock(testLogger())
	before := m.AllParams()

	assert.False(t, m.SetParam("Bogus", 1.0))
	assert.False(t, m.SetParam("P", math.NaN()))
	assert.False(t, m.SetParam("I", math.Inf(1)))

	assert.Equal(t, before, m.AllParams(), "rejected writes must not change anything")
}

func TestMockSetParamClampsAndSnaps(t *testing.T) {
	m := NewMock(testLogger())

	require.True(t, m.SetParam("P", 5.0))
	v, err := m.Param("P")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v, "P clamps to its max")

	require.True(t, m.SetParam("I", 1.23))
	v, err = m.Param("I")
	require.NoError(t, err)
	assert.InDelta(t, 1.2, v, 1e-9, "I snaps to 0.1 steps")
}

func TestMockSetParamsBulkSkipsInvalid(t *testing.T) {
	m := NewMock(testLogger())

	ok := m.SetParamsBulk(map[string]float64{
		"P":     0.2,
		"Bogus": 1.0,
	})
	assert.False(t, ok, "an unknown entry forces a false result")

	v, err := m.Param("P")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, v, 1e-9, "valid entries still apply")

	ok = m.SetParamsBulk(map[string]float64{"I": math.NaN()})
	assert.False(t, ok)
}

func TestMockMDI(t *testing.T) {
	m := NewMock(testLogger())

	require.NoError(t, m.SendMDI("M3 S1000"))
	assert.Equal(t, 1000.0, m.sim.targetRPM)

	require.NoError(t, m.SendMDI("M4 S500"))
	assert.Equal(t, 500.0, m.sim.targetRPM)

	require.NoError(t, m.SendMDI("M3"))
	assert.Equal(t, 1000.0, m.sim.targetRPM, "missing S word defaults to 1000")

	require.NoError(t, m.SendMDI("M5"))
	assert.Equal(t, 0.0, m.sim.targetRPM)

	assert.Error(t, m.SendMDI("G0 X1"))
}

func TestMockPinValueUnknown(t *testing.T) {
	m := NewMock(testLogger())
	_, err := m.PinValue("no-such-pin")
	assert.ErrorIs(t, err, ErrPinNotFound)
}

func TestMockParamPinsReadable(t *testing.T) {
	m := NewMock(testLogger())
	v, err := m.PinValue("pid.s.Pgain")
	require.NoError(t, err)
	assert.Equal(t, config.BaselineParams["P"], v)
}

func TestMockRateLimitBoundsFirstStep(t *testing.T) {
	m, c := newMockWithClock()
	require.True(t, m.SetParam("RateLimit", 1200))
	require.NoError(t, m.SendMDI("M3 S1500"))

	c.now = c.now.Add(100 * time.Millisecond)
	values := m.AllValues()

	assert.InDelta(t, 120.0, values["cmd_limited"], 1e-6,
		"one 100ms tick at 1200 RPM/s moves the limited command exactly 120 RPM")
}

func TestMockForwardConverges(t *testing.T) {
	m, c := newMockWithClock()
	require.NoError(t, m.SendMDI("M3 S1000"))

	values := run(m, c, 10*time.Second, 50*time.Millisecond)

	assert.InDelta(t, 1000.0, values["feedback"], 25)
	assert.Equal(t, 1.0, values["at_speed"], "loop settles into the at-speed band")
	assert.Equal(t, 1.0, values["watchdog"], "watchdog arms above 50 RPM")
	assert.Equal(t, 1.0, values["spindle_on"])
	assert.Greater(t, values["errorI"], 5.0, "integrator holds the slip correction")
}

func TestMockReverseSignConvention(t *testing.T) {
	m, c := newMockWithClock()
	require.NoError(t, m.SendMDI("M4 S500"))

	// Sample mid-ramp, while the limited command still leads the
	// feedback: the signed error must be negative in reverse
	early := run(m, c, time.Second, 50*time.Millisecond)
	assert.Less(t, early["feedback"], 0.0, "feedback carries the rotation sign")
	assert.Less(t, early["error"], 0.0, "error is signed like the command")

	values := run(m, c, 9*time.Second, 50*time.Millisecond)

	assert.InDelta(t, -500.0, values["feedback"], 25, "feedback settles negative in reverse")
	assert.InDelta(t, -500.0, values["feedback_raw"], 25, "raw feedback is negative in reverse")
	assert.InDelta(t, 500.0, values["feedback_abs"], 25, "abs feedback stays positive")
	assert.Less(t, values["cmd_raw"], 0.0)
	assert.Less(t, values["cmd_limited"], 0.0)
}

func TestMockEncoderFault(t *testing.T) {
	m, c := newMockWithClock()
	require.NoError(t, m.SendMDI("M3 S1000"))
	run(m, c, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, m.SetFault("encoder", true))
	values := run(m, c, 2*time.Second, 50*time.Millisecond)

	assert.Less(t, values["feedback"], 50.0, "a dead encoder reads near zero")
	assert.Equal(t, 1.0, values["encoder_fault"])
	assert.Equal(t, 0.0, values["safety_chain"], "the safety chain opens on a fault")
}

func TestMockEStopFault(t *testing.T) {
	m, c := newMockWithClock()
	require.NoError(t, m.SendMDI("M3 S1000"))
	run(m, c, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, m.SetFault("estop", true))
	values := run(m, c, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, 0.0, values["cmd_raw"], "e-stop drops the command instantly")
	assert.Less(t, values["feedback"], 100.0, "the spindle coasts down")
}

func TestMockPolarityFault(t *testing.T) {
	m, c := newMockWithClock()
	require.NoError(t, m.SetFault("polarity", true))
	require.NoError(t, m.SendMDI("M3 S500"))

	values := run(m, c, 8*time.Second, 50*time.Millisecond)

	assert.Less(t, values["feedback_raw"], -100.0, "reversed polarity flips the raw feedback")
	assert.Equal(t, -float64(config.Encoder.CountsPerRev), values["encoder_scale"])
}

func TestMockResetState(t *testing.T) {
	m, c := newMockWithClock()
	require.NoError(t, m.SendMDI("M3 S1000"))
	run(m, c, 3*time.Second, 50*time.Millisecond)
	m.SetParam("P", 0.5)

	m.ResetState()

	v, err := m.Param("P")
	require.NoError(t, err)
	assert.Equal(t, config.BaselineParams["P"], v)
	assert.Equal(t, 0.0, m.sim.targetRPM)
	assert.Equal(t, 0.0, m.sim.filteredRPM)
}

func TestMockCacheReusesOutputWithinTTL(t *testing.T) {
	m, c := newMockWithClock()
	require.NoError(t, m.SendMDI("M3 S1000"))

	c.now = c.now.Add(100 * time.Millisecond)
	first := m.AllValues()

	// 10ms later: inside the TTL, so the physics must not advance
	c.now = c.now.Add(10 * time.Millisecond)
	second := m.AllValues()

	assert.Equal(t, first["cmd_limited"], second["cmd_limited"])
	assert.Equal(t, first["feedback"], second["feedback"])
}
