package hal

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/cncworks/spindletune"
	"github.com/cncworks/spindletune/config"
)

// Physics constants for the simulated drivetrain. Slip and lag numbers come
// from the motor and VFD specs; the rest were tuned against scope captures
// of the real machine.
const (
	maxDT = 0.5 // cap after a stall in the caller (seconds)

	decelFactor = 1.5 // limit2 allows faster decel than accel

	loadSlipPerPct    = 0.024 / 100 // extra slip per percent load
	thermalSlipFactor = 0.03       // extra slip per unit of thermal factor above cold

	encoderNoiseRPM  = 1.0  // gaussian sigma at speed
	lowSpeedNoiseRPM = 15.0 // extra sigma below the DPLL floor when DPLL is off
	lowSpeedFloorRPM = 200.0

	watchdogArmRPM = 50.0 // limited command above this arms the encoder watchdog

	vfdFaultAlphaScale = 0.1
	vfdFaultDecay      = 0.95
)

// step advances the simulation to now and rebuilds the output pin map.
// dt <= 0 returns the previous output unchanged. Caller holds the lock.
func (m *Mock) step(now time.Time) map[string]float64 {
	s := m.sim
	dt := now.Sub(s.lastUpdate).Seconds()
	if dt <= 0 && s.lastOutput != nil {
		return s.lastOutput
	}
	if dt > maxDT {
		dt = maxDT
	}
	if dt <= 0 {
		dt = 0.001
	}
	s.lastUpdate = now

	if s.faults.EStop {
		s.targetRPM = 0
		s.direction = spindletune.DirectionStopped
	}

	// Thermal model: slip grows as the motor warms, exponential approach
	// with the nameplate time constant. Cooling runs at twice the rate.
	hotFactor := 1 + (config.Motor.HotSlipPct-config.Motor.ColdSlipPct)/100
	tau := config.Motor.ThermalTimeConst * 60
	if s.limitedCmd > watchdogArmRPM {
		s.thermal += (hotFactor - s.thermal) * dt / tau
	} else {
		s.thermal += (1.0 - s.thermal) * dt / (tau / 2)
	}

	// Rate limiter (limit2 component)
	rate := m.params["RateLimit"]
	delta := s.targetRPM - s.limitedCmd
	if delta > rate*dt {
		delta = rate * dt
	}
	if delta < -rate*dt*decelFactor {
		delta = -rate * dt * decelFactor
	}
	s.limitedCmd += delta

	// Induction motor slip
	slip := config.Motor.ColdSlipPct/100 + s.loadPct*loadSlipPerPct + (s.thermal-1.0)*thermalSlipFactor

	// PID running against the filtered feedback. The integrator is what
	// cancels slip in closed loop.
	pidErr := s.limitedCmd - s.filteredRPM
	s.errorI += pidErr * dt * m.params["I"]
	maxI := m.params["MaxErrorI"]
	if s.errorI > maxI {
		s.errorI = maxI
	}
	if s.errorI < -maxI {
		s.errorI = -maxI
	}
	dTerm := m.params["D"] * (pidErr - s.prevError) / dt
	ff1 := m.params["FF1"] * (s.limitedCmd - s.prevLimited) / dt
	output := s.limitedCmd*m.params["FF0"] + ff1 + m.params["P"]*pidErr + s.errorI + dTerm
	s.prevError = pidErr
	s.prevLimited = s.limitedCmd
	if output < 0 {
		output = 0
	}

	// VFD first-order lag with transport delay approximation, driven by
	// the PID output
	alpha := dt / (config.VFD.TransportDelay / 3)
	if alpha > 0.3 {
		alpha = 0.3
	}
	if s.faults.VFD {
		alpha *= vfdFaultAlphaScale
	}
	s.actualRPM += (output*(1-slip) - s.actualRPM) * alpha
	if s.faults.VFD {
		s.actualRPM *= vfdFaultDecay
	}

	// Encoder measurement with noise; losing DPLL sampling makes low-speed
	// readings much noisier
	noise := rand.NormFloat64() * encoderNoiseRPM
	if s.faults.DPLL && s.actualRPM < lowSpeedFloorRPM {
		noise += rand.NormFloat64() * lowSpeedNoiseRPM
	}
	measured := s.actualRPM + noise
	if s.faults.Encoder {
		measured = 0
	}
	if measured < 0 {
		measured = 0
	}
	if max := config.MaxRPM(); measured > max {
		measured = max
	}

	gain := m.params["FilterGain"]
	if gain < 0.1 {
		gain = 0.1
	}
	if gain > 1.0 {
		gain = 1.0
	}
	s.filteredRPM += (measured - s.filteredRPM) * gain

	// Revolutions keep integrating with the last direction while coasting
	dir := s.direction
	if dir == spindletune.DirectionStopped {
		dir = s.lastDirection
	} else {
		s.lastDirection = s.direction
	}
	s.revolutions += s.filteredRPM / 60 * dt * float64(dir)

	sign := float64(dir)
	if s.filteredRPM < 1 && s.direction == spindletune.DirectionStopped {
		sign = 0
	}
	polarity := 1.0
	encoderScale := float64(config.Encoder.CountsPerRev)
	if s.faults.Polarity {
		polarity = -1.0
		encoderScale = -encoderScale
	}

	// The PID runs on magnitudes internally, but the pins carry signed
	// values: feedback follows the measured rotation (encoder polarity
	// included), the command side follows the commanded direction only
	fbRaw := s.filteredRPM * sign * polarity
	cmdLimitedSigned := s.limitedCmd * sign
	atSpeed := 0.0
	if math.Abs(s.limitedCmd-s.filteredRPM) < m.params["Deadband"]*2 {
		atSpeed = 1.0
	}
	watchdog := 0.0
	if s.limitedCmd > watchdogArmRPM {
		watchdog = 1.0
	}
	dpllTimer := config.Encoder.DPLLTimerUS
	if s.faults.DPLL {
		dpllTimer = 0
	}
	boolPin := func(b bool) float64 {
		if b {
			return 1.0
		}
		return 0.0
	}

	s.lastOutput = map[string]float64{
		"cmd_raw":       s.targetRPM * sign,
		"cmd_limited":   cmdLimitedSigned,
		"feedback":      fbRaw,
		"feedback_raw":  fbRaw,
		"feedback_abs":  math.Abs(fbRaw),
		"output":        output,
		"error":         cmdLimitedSigned - fbRaw,
		"errorI":        s.errorI,
		"at_speed":      atSpeed,
		"watchdog":      watchdog,
		"encoder_fault": boolPin(s.faults.Encoder),
		"spindle_on":    boolPin(s.direction != spindletune.DirectionStopped),
		"spindle_revs":  s.revolutions,
		"dpll_timer":    dpllTimer,
		"safety_chain":  boolPin(!s.faults.Encoder && !s.faults.VFD && !s.faults.EStop),
		"encoder_scale": encoderScale,
	}
	return s.lastOutput
}
