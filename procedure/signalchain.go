package procedure

import (
	"fmt"
	"math"

	"github.com/cncworks/spindletune/config"
)

// SignalChain verifies every monitored pin and tuning parameter is readable
// before any spinning test runs
type SignalChain struct{}

func (SignalChain) Name() string { return "signal-chain" }

func (SignalChain) Describe() Description {
	return Description{
		Name:     "Signal Chain Check",
		GuideRef: "Section 3.1",
		Purpose:  "Verify every HAL pin in the spindle signal chain is present and readable",
		Prerequisites: []string{
			"LinuxCNC running with the spindle configuration loaded",
		},
		Steps: []string{
			"Read each monitored pin",
			"Read each tuning parameter",
		},
		ExpectedResults: []string{
			"All pins readable with finite values",
		},
	}
}

func (p SignalChain) Run(t *Run) error {
	checkPins := []string{
		"cmd_raw", "cmd_limited", "feedback", "feedback_raw",
		"feedback_abs", "output", "error", "errorI",
	}

	for i, name := range checkPins {
		if t.Aborted() {
			return nil
		}
		pin := config.MonitorPins[name]
		v, err := t.HAL().PinValue(pin)
		ok := err == nil && !math.IsNaN(v)
		detail := fmt.Sprintf("%s = %.3f", pin, v)
		if err != nil {
			detail = fmt.Sprintf("%s: %v", pin, err)
		}
		t.Check("pin "+name, ok, detail)
		t.Progress((i+1)*100/(len(checkPins)+4), "checking pins")
	}

	for i, name := range []string{"P", "I", "FF0", "RateLimit"} {
		if t.Aborted() {
			return nil
		}
		v, err := t.HAL().Param(name)
		t.Check("param "+name, err == nil, fmt.Sprintf("%s = %.3f", name, v))
		t.Progress((len(checkPins)+i+1)*100/(len(checkPins)+4), "checking parameters")
	}

	t.Progress(100, "done")
	return nil
}
