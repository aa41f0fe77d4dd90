package procedure

import (
	"fmt"
	"math"
	"time"

	"github.com/cncworks/spindletune/config"
)

// Ramp commands zero to maximum speed and back, checking tracking error
// through both ramps and the hold
type Ramp struct {
	MaxSpeed float64
	HoldTime time.Duration
	Capture  time.Duration
	Interval time.Duration
}

func NewRamp() *Ramp {
	return &Ramp{
		MaxSpeed: 1800,
		HoldTime: 2 * time.Second,
		Capture:  4 * time.Second,
		Interval: 100 * time.Millisecond,
	}
}

func (*Ramp) Name() string { return "full-ramp" }

func (*Ramp) Describe() Description {
	return Description{
		Name:     "Full Range Ramp",
		GuideRef: "Section 5.5",
		Purpose:  "Check tracking through the full speed range, up and down",
		Steps: []string{
			"Ramp 0 to max, hold, then ramp back to 0",
			"Track the worst error between limited command and feedback",
		},
		ExpectedResults: []string{
			"Tracking error under 100 RPM everywhere",
		},
		SafetyNotes: []string{
			"The spindle reaches its maximum speed",
		},
	}
}

func (p *Ramp) Run(t *Run) error {
	maxErr := 0.0
	track := func(duration time.Duration) bool {
		samples := t.SampleAll(duration, p.Interval)
		for _, s := range samples {
			if e := math.Abs(s["cmd_limited"] - s["feedback"]); e > maxErr {
				maxErr = e
			}
		}
		return !t.Aborted()
	}

	if err := t.HAL().SendMDI(fmt.Sprintf("M3 S%.0f", p.MaxSpeed)); err != nil {
		t.Check("spin", false, err.Error())
		return nil
	}
	t.Progress(10, "ramping up")
	if !track(p.Capture) {
		return nil
	}

	t.Progress(50, "holding at max")
	if !track(p.HoldTime) {
		return nil
	}

	if err := t.HAL().SendMDI("M5"); err != nil {
		t.Check("stop", false, err.Error())
		return nil
	}
	t.Progress(70, "ramping down")
	if !track(p.Capture) {
		return nil
	}

	fb, _ := t.HAL().PinValue(config.MonitorPins["feedback"])
	t.Check("stopped", fb < 100, fmt.Sprintf("feedback %.0f RPM after ramp down", fb))

	t.Metric("max_tracking_error", maxErr)
	t.Logf("worst tracking error %.1f RPM", maxErr)
	if maxErr < 100 {
		t.Verdict(VerdictPass, "tracking stayed tight through the full range")
	} else {
		t.Verdict(VerdictMarginal, "tracking error exceeded 100 RPM during the ramp")
	}
	t.Progress(100, "done")
	return nil
}
