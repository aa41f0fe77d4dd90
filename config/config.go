// Package config holds the declarative tables that describe the spindle
// signal chain: monitored HAL pins, writable tuning parameters with their
// valid ranges, baseline values from the tuning guide, presets, and the
// hardware specs the mock physics is modeled on.
package config

// ParamSpec describes one writable tuning parameter
type ParamSpec struct {
	Pin         string
	Description string
	Min         float64
	Max         float64
	Step        float64
	IniSection  string
	IniKey      string
}

// MonitorPins maps short signal names to the HAL pins polled by the monitor
var MonitorPins = map[string]string{
	"cmd_raw":       "spindle-vel-cmd-rpm-raw",
	"cmd_limited":   "spindle-vel-cmd-rpm-limited",
	"feedback":      "pid.s.feedback",
	"feedback_raw":  "spindle-vel-fb-rpm",
	"feedback_abs":  "spindle-vel-fb-rpm-abs",
	"output":        "pid.s.output",
	"error":         "pid.s.error",
	"errorI":        "pid.s.errorI",
	"at_speed":      "spindle-is-at-speed",
	"watchdog":      "encoder-watchdog-is-armed",
	"encoder_fault": "encoder-fault",
	"spindle_on":    "spindle-enable",
	"spindle_revs":  "spindle.0.revs",
	"dpll_timer":    "hm2_7i76e.0.dpll.01.timer-us",
	"safety_chain":  "external-ok",
	"encoder_scale": "hm2_7i76e.0.encoder.00.scale",
}

// TuningParams describes every writable parameter with its clamp range and
// snap step
var TuningParams = map[string]ParamSpec{
	"P":          {"pid.s.Pgain", "Proportional gain", 0.0, 1.0, 0.01, "SPINDLE_0", "P"},
	"I":          {"pid.s.Igain", "Integral gain", 0.0, 5.0, 0.1, "SPINDLE_0", "I"},
	"D":          {"pid.s.Dgain", "Derivative gain", 0.0, 1.0, 0.1, "SPINDLE_0", "D"},
	"FF0":        {"pid.s.FF0", "Feedforward (velocity)", 0.0, 2.0, 0.01, "SPINDLE_0", "FF0"},
	"FF1":        {"pid.s.FF1", "Feedforward (accel)", 0.0, 1.0, 0.01, "SPINDLE_0", "FF1"},
	"Deadband":   {"pid.s.deadband", "Error deadband (RPM)", 0.0, 50.0, 1.0, "SPINDLE_0", "DEADBAND"},
	"MaxErrorI":  {"pid.s.maxerrorI", "Integrator limit", 0.0, 200.0, 5.0, "SPINDLE_0", "MAX_ERROR_I"},
	"MaxCmdD":    {"pid.s.maxcmdD", "Command derivative limit", 0.0, 5000.0, 100.0, "SPINDLE_0", "MAX_CMD_D"},
	"RateLimit":  {"spindle-cmd-limit.maxv", "Rate limit (RPM/s)", 100.0, 3000.0, 50.0, "SPINDLE_0", "RATE_LIMIT"},
	"FilterGain": {"spindle-vel-filter.gain", "Filter gain", 0.1, 1.0, 0.05, "SPINDLE_0", "FILTER_GAIN"},
}

// BaselineParams are the starting values recommended by the tuning guide
var BaselineParams = map[string]float64{
	"P":          0.1,
	"I":          1.0,
	"D":          0.0,
	"FF0":        1.0,
	"FF1":        0.35,
	"Deadband":   10.0,
	"MaxErrorI":  60.0,
	"MaxCmdD":    1200.0,
	"RateLimit":  1200.0,
	"FilterGain": 0.5,
}

// Presets are partial parameter sets applied on top of the current values
var Presets = map[string]map[string]float64{
	"conservative": {
		"P": 0.05, "I": 0.8, "FF1": 0.30,
		"Deadband": 15.0, "MaxErrorI": 50.0, "RateLimit": 1000.0,
	},
	"baseline": BaselineParams,
	"aggressive": {
		"P": 0.15, "I": 1.2, "FF1": 0.40,
		"Deadband": 8.0, "MaxErrorI": 80.0, "RateLimit": 1200.0,
	},
}

// MotorSpec has the induction motor's nameplate and slip characteristics
type MotorSpec struct {
	Name             string
	PowerHP          float64
	BaseSpeedRPM     float64
	SyncSpeedRPM     float64
	ColdSlipPct      float64
	HotSlipPct       float64
	ThermalTimeConst float64 // minutes
}

// VFDSpec has the drive's ramp and frequency limits
type VFDSpec struct {
	Name           string
	AccelTime      float64 // seconds
	DecelTime      float64 // seconds
	MaxFreqHz      float64
	TransportDelay float64 // seconds
}

// EncoderSpec describes the spindle encoder
type EncoderSpec struct {
	Name         string
	CountsPerRev int
	Differential bool
	DPLLTimerUS  float64
}

var Motor = MotorSpec{
	Name:             "Baldor M3558T",
	PowerHP:          2.0,
	BaseSpeedRPM:     1750,
	SyncSpeedRPM:     1800,
	ColdSlipPct:      2.7,
	HotSlipPct:       3.6,
	ThermalTimeConst: 20,
}

var VFD = VFDSpec{
	Name:           "XSY-AT1",
	AccelTime:      1.5,
	DecelTime:      1.5,
	MaxFreqHz:      65,
	TransportDelay: 1.5,
}

var Encoder = EncoderSpec{
	Name:         "ABILKEEN 1024 PPR",
	CountsPerRev: 4096,
	Differential: true,
	DPLLTimerUS:  -100,
}

// MaxRPM is the spindle's top speed with the drive at its frequency limit
// for a 4-pole motor: (120 * maxHz) / poles.
func MaxRPM() float64 {
	return 120 * VFD.MaxFreqHz / 4
}

// RPMToHz converts a commanded spindle speed to drive output frequency
func RPMToHz(rpm float64) float64 {
	return rpm / Motor.SyncSpeedRPM * 60.0
}

// HzToRPM converts a drive output frequency to synchronous spindle speed
func HzToRPM(hz float64) float64 {
	return hz / 60.0 * Motor.SyncSpeedRPM
}
