package procedure

import (
	"fmt"
	"math"
	"time"

	"github.com/cncworks/spindletune/config"
)

// decelFactor mirrors the limit2 configuration: deceleration is allowed at
// 1.5x the acceleration rate limit
const decelFactor = 1.5

// Deceleration spins up, commands a stop, and checks the spin-down follows
// the configured deceleration ramp
type Deceleration struct {
	Speed      float64
	SettleTime time.Duration
	Capture    time.Duration
	Interval   time.Duration
}

func NewDeceleration() *Deceleration {
	return &Deceleration{
		Speed:      1200,
		SettleTime: 3500 * time.Millisecond,
		Capture:    4 * time.Second,
		Interval:   50 * time.Millisecond,
	}
}

func (*Deceleration) Name() string { return "deceleration" }

func (*Deceleration) Describe() Description {
	return Description{
		Name:     "Deceleration Test",
		GuideRef: "Section 5.4",
		Purpose:  "Verify the spindle stops along the configured deceleration ramp",
		Steps: []string{
			"Run M3 S1200 and wait for settling",
			"Command M5 and capture the spin-down",
			"Compare the observed deceleration against the rate limit",
		},
	}
}

func (p *Deceleration) Run(t *Run) error {
	configured, err := t.HAL().Param("RateLimit")
	if err != nil || configured <= 0 {
		t.Verdict(VerdictNotEvaluated, "RateLimit is not configured, cannot evaluate")
		return nil
	}

	if err := t.HAL().SendMDI(fmt.Sprintf("M3 S%.0f", p.Speed)); err != nil {
		t.Check("spin", false, err.Error())
		return nil
	}
	t.Progress(20, "settling")
	if !t.Sleep(p.SettleTime) {
		return nil
	}

	if err := t.HAL().SendMDI("M5"); err != nil {
		t.Check("stop", false, err.Error())
		return nil
	}
	times, values := t.SampleSignal(config.MonitorPins["feedback"], p.Capture, p.Interval)
	if t.Aborted() || len(values) < 2 {
		return nil
	}
	t.Progress(70, "analyzing spin-down")

	// Time from the stop command to dropping below 100 RPM
	stopTime := -1.0
	for i, v := range values {
		if v < 100 {
			stopTime = times[i]
			break
		}
	}
	if stopTime < 0 {
		t.Verdict(VerdictFail, "spindle did not stop within the capture window")
		return nil
	}
	t.Metric("stop_time_s", stopTime)

	startRPM := values[0]
	observed := (startRPM - 100) / stopTime
	expected := configured * decelFactor
	diffPct := math.Abs(observed-expected) / expected * 100
	t.Metric("decel_observed", observed)
	t.Logf("stopped in %.2fs, decel %.0f RPM/s vs expected %.0f RPM/s (%.0f%% off)",
		stopTime, observed, expected, diffPct)

	if diffPct < 30 {
		t.Verdict(VerdictPass, "deceleration follows the configured ramp")
	} else {
		t.Verdict(VerdictMarginal, "deceleration differs from the configured ramp")
	}
	t.Progress(100, "done")
	return nil
}
