package procedure

import (
	"fmt"
	"math"
	"time"

	"github.com/cncworks/spindletune/config"
)

// PreFlight sanity-checks the configuration and does a brief low-speed spin
// before any aggressive test is allowed
type PreFlight struct {
	SpinTime time.Duration
}

func NewPreFlight() *PreFlight {
	return &PreFlight{SpinTime: 3 * time.Second}
}

func (*PreFlight) Name() string { return "pre-flight" }

func (*PreFlight) Describe() Description {
	return Description{
		Name:     "Pre-Flight Check",
		GuideRef: "Section 3.2",
		Purpose:  "Confirm parameters are near baseline, DPLL is configured, and the spindle actually turns",
		Prerequisites: []string{
			"Signal chain check passed",
			"Work area clear",
		},
		Steps: []string{
			"Compare live parameters against the guide baseline",
			"Check the DPLL timer setting",
			"Check the safety chain",
			"Brief M3 S200 spin test",
		},
		SafetyNotes: []string{
			"The spindle will rotate at 200 RPM for a few seconds",
		},
	}
}

func (p *PreFlight) Run(t *Run) error {
	// Parameters wildly off baseline usually mean a stale or wrong INI
	params := t.HAL().AllParams()
	for _, name := range []string{"P", "I", "FF0", "RateLimit"} {
		baseline := config.BaselineParams[name]
		v, ok := params[name]
		if !ok {
			t.Check("param "+name, false, "not readable")
			continue
		}
		diffPct := 0.0
		if baseline != 0 {
			diffPct = math.Abs(v-baseline) / baseline * 100
		}
		detail := fmt.Sprintf("%.3f vs baseline %.3f (%.0f%% off)", v, baseline, diffPct)
		switch {
		case diffPct < 25:
			t.Check("param "+name, true, detail)
		case diffPct < 50:
			t.Check("param "+name, true, detail+" - review before aggressive tests")
		default:
			t.Check("param "+name, false, detail)
		}
	}
	t.Progress(25, "parameters checked")

	// DPLL timer should be within 20us of the configured prelude
	dpll, err := t.HAL().PinValue(config.MonitorPins["dpll_timer"])
	want := config.Encoder.DPLLTimerUS
	t.Check("dpll timer", err == nil && math.Abs(math.Abs(dpll)-math.Abs(want)) <= 20,
		fmt.Sprintf("%.0fus (want %.0fus)", dpll, want))

	safety, err := t.HAL().PinValue(config.MonitorPins["safety_chain"])
	t.Check("safety chain", err == nil && safety > 0.5, fmt.Sprintf("external-ok = %.0f", safety))
	t.Progress(50, "static checks done")

	if t.Aborted() {
		return nil
	}

	// Brief spin: the spindle must turn and produce feedback
	if err := t.HAL().SendMDI("M3 S200"); err != nil {
		t.Check("spin test", false, err.Error())
		return nil
	}
	if !t.Sleep(p.SpinTime) {
		return nil
	}

	fb, err := t.HAL().PinValue(config.MonitorPins["feedback"])
	t.Check("spin feedback", err == nil && fb > 100,
		fmt.Sprintf("feedback %.0f RPM at S200", fb))

	safeStop(t.runner.hal, t.runner.logger)
	t.Progress(100, "done")
	return nil
}
