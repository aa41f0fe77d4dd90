package hal

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cncworks/spindletune"
	"github.com/cncworks/spindletune/config"
)

// Faults are the failure modes the mock backend can inject
type Faults struct {
	Encoder  bool
	Polarity bool
	DPLL     bool
	VFD      bool
	EStop    bool
}

// simState is the mock drivetrain's internal state. It is created once per
// Mock and only mutated in place by the physics step.
type simState struct {
	targetRPM     float64
	direction     spindletune.Direction
	lastDirection spindletune.Direction

	limitedCmd  float64
	actualRPM   float64
	filteredRPM float64
	thermal     float64
	errorI      float64
	prevError   float64
	prevLimited float64
	revolutions float64
	loadPct     float64

	faults Faults

	lastUpdate time.Time
	lastOutput map[string]float64
}

// Mock simulates the spindle drivetrain so every procedure can run without
// hardware. Pin reads go through the same short-TTL cache as the live
// backend; a cache miss advances the physics by the elapsed wall time.
type Mock struct {
	mu sync.Mutex

	logger *slog.Logger
	params map[string]float64
	sim    *simState

	// pinName maps full HAL pin names back to short signal names
	pinName  map[string]string
	paramPin map[string]string

	clock func() time.Time
}

// NewMock builds a Mock backend seeded with the baseline parameters
func NewMock(logger *slog.Logger) *Mock {
	params := make(map[string]float64, len(config.BaselineParams))
	for name, v := range config.BaselineParams {
		params[name] = v
	}

	pinName := make(map[string]string, len(config.MonitorPins))
	for name, pin := range config.MonitorPins {
		pinName[pin] = name
	}
	paramPin := make(map[string]string, len(config.TuningParams))
	for name, spec := range config.TuningParams {
		paramPin[spec.Pin] = name
	}

	m := &Mock{
		logger:   logger,
		params:   params,
		pinName:  pinName,
		paramPin: paramPin,
		clock:    time.Now,
	}
	m.sim = &simState{
		direction:     spindletune.DirectionStopped,
		lastDirection: spindletune.DirectionForward,
		thermal:       1.0,
		lastUpdate:    m.clock(),
	}
	return m
}

// values returns the current simulated pin map, stepping the physics if the
// last output is older than the cache TTL. Caller holds the lock.
func (m *Mock) values() map[string]float64 {
	now := m.clock()
	if m.sim.lastOutput != nil && now.Sub(m.sim.lastUpdate) < cacheTTL {
		return m.sim.lastOutput
	}
	return m.step(now)
}

func (m *Mock) PinValue(name string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if param, ok := m.paramPin[name]; ok {
		return m.params[param], nil
	}
	short, ok := m.pinName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return m.values()[short], nil
}

func (m *Mock) AllValues() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	values := m.values()
	out := make(map[string]float64, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func (m *Mock) Param(name string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.params[name]
	if !ok {
		return 0, fmt.Errorf("%w: parameter %s", ErrPinNotFound, name)
	}
	return v, nil
}

func (m *Mock) AllParams() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]float64, len(m.params))
	for k, v := range m.params {
		out[k] = v
	}
	return out
}

func (m *Mock) SetParam(name string, value float64) bool {
	if ValidateParam(name, value) != nil {
		return false
	}
	spec := config.TuningParams[name]

	m.mu.Lock()
	defer m.mu.Unlock()
	m.params[name] = ClampAndSnap(value, spec.Min, spec.Max, spec.Step)
	return true
}

func (m *Mock) SetParamsBulk(params map[string]float64) bool {
	ok := true
	for name, value := range params {
		if !m.SetParam(name, value) {
			m.logger.Warn("skipping invalid parameter", "param", name, "value", value)
			ok = false
		}
	}
	return ok
}

// SendMDI understands M3 (forward), M4 (reverse) with an optional S speed
// word, and M5 (stop)
func (m *Mock) SendMDI(cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	word := ""
	if fields := strings.Fields(strings.ToUpper(cmd)); len(fields) > 0 {
		word = fields[0]
	}

	switch word {
	case "M3":
		m.sim.targetRPM = parseSpeed(cmd)
		m.sim.direction = spindletune.DirectionForward
	case "M4":
		m.sim.targetRPM = parseSpeed(cmd)
		m.sim.direction = spindletune.DirectionReverse
	case "M5":
		m.sim.targetRPM = 0
		m.sim.direction = spindletune.DirectionStopped
	default:
		return fmt.Errorf("unsupported MDI command %q", cmd)
	}
	m.logger.Debug("mdi", "cmd", cmd, "target", m.sim.targetRPM, "direction", m.sim.direction)
	return nil
}

// SetLoad applies a simulated cutting load in percent (0-100)
func (m *Mock) SetLoad(pct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	m.sim.loadPct = pct
}

// SetFault injects or clears a failure mode. Raising the e-stop fault also
// drops the commanded speed to zero.
func (m *Mock) SetFault(kind string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch strings.ToLower(kind) {
	case "encoder":
		m.sim.faults.Encoder = on
	case "polarity":
		m.sim.faults.Polarity = on
	case "dpll":
		m.sim.faults.DPLL = on
	case "vfd":
		m.sim.faults.VFD = on
	case "estop":
		m.sim.faults.EStop = on
		if on {
			m.sim.targetRPM = 0
			m.sim.direction = spindletune.DirectionStopped
		}
	default:
		return fmt.Errorf("unknown fault %q", kind)
	}
	m.logger.Info("fault changed", "kind", kind, "on", on)
	return nil
}

func (m *Mock) Faults() Faults {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sim.faults
}

func (m *Mock) ResetFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sim.faults = Faults{}
}

// ResetState returns the simulation to a cold, stopped spindle with
// baseline parameters
func (m *Mock) ResetState() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, v := range config.BaselineParams {
		m.params[name] = v
	}
	m.sim = &simState{
		direction:     spindletune.DirectionStopped,
		lastDirection: spindletune.DirectionForward,
		thermal:       1.0,
		lastUpdate:    m.clock(),
	}
}

func (m *Mock) State() spindletune.ConnectionState {
	return spindletune.StateMock
}

func (m *Mock) Reconnect() bool {
	return true
}

func (m *Mock) Diagnostics() Diagnostics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Diagnostics{
		State:     spindletune.StateMock,
		CacheSize: len(m.sim.lastOutput),
	}
}

func (m *Mock) Close() error {
	return nil
}
