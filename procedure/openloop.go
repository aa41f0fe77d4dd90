package procedure

import (
	"fmt"
	"time"

	"github.com/cncworks/spindletune/config"
	"github.com/cncworks/spindletune/datalog"
)

// OpenLoop measures raw motor slip with the PID disabled. With P=I=0 and
// FF0=1 the command goes straight through, so the feedback shortfall is the
// motor's slip.
type OpenLoop struct {
	Speed      float64
	SettleTime time.Duration
	SampleTime time.Duration
}

func NewOpenLoop() *OpenLoop {
	return &OpenLoop{
		Speed:      1000,
		SettleTime: 4 * time.Second,
		SampleTime: 2 * time.Second,
	}
}

func (*OpenLoop) Name() string { return "open-loop" }

func (*OpenLoop) Describe() Description {
	return Description{
		Name:     "Open Loop Slip Test",
		GuideRef: "Section 4.2",
		Purpose:  "Measure raw motor slip with feedback correction disabled",
		Steps: []string{
			"Save P, I, FF0 and set P=0, I=0, FF0=1",
			"Run M3 S1000 and wait for the VFD to settle",
			"Compute slip from commanded vs measured speed",
			"Restore the saved parameters",
		},
		ExpectedResults: []string{
			"Slip between 1.5% and 5% (typical induction motor)",
		},
		SafetyNotes: []string{
			"The spindle runs without feedback correction",
		},
	}
}

func (p *OpenLoop) Run(t *Run) error {
	saved := map[string]float64{}
	for _, name := range []string{"P", "I", "FF0"} {
		v, err := t.HAL().Param(name)
		if err != nil {
			t.Check("save params", false, fmt.Sprintf("cannot read %s: %v", name, err))
			return nil
		}
		saved[name] = v
	}
	defer t.RestoreParams(saved)

	t.HAL().SetParam("P", 0)
	t.HAL().SetParam("I", 0)
	t.HAL().SetParam("FF0", 1.0)
	t.Logf("PID disabled for slip measurement")
	t.Progress(20, "parameters set")

	if err := t.HAL().SendMDI(fmt.Sprintf("M3 S%.0f", p.Speed)); err != nil {
		t.Check("spin", false, err.Error())
		return nil
	}
	if !t.Sleep(p.SettleTime) {
		return nil
	}
	t.Progress(60, "sampling")

	_, values := t.SampleSignal(config.MonitorPins["feedback"], p.SampleTime, 50*time.Millisecond)
	safeStop(t.runner.hal, t.runner.logger)
	if t.Aborted() || len(values) == 0 {
		return nil
	}

	fb := datalog.ComputeStatistics(values).Mean
	slip := (p.Speed - fb) / p.Speed * 100
	t.Metric("slip_pct", slip)
	t.Logf("commanded %.0f, measured %.1f, slip %.2f%%", p.Speed, fb, slip)

	switch {
	case slip >= 1.5 && slip <= 5.0:
		t.Verdict(VerdictPass, fmt.Sprintf("slip %.2f%% in the normal range", slip))
	case slip > 0 && slip < 8:
		t.Verdict(VerdictMarginal, fmt.Sprintf("slip %.2f%% outside the typical band", slip))
	default:
		t.Verdict(VerdictFail, fmt.Sprintf("slip %.2f%% suggests a scaling or VFD problem", slip))
	}
	t.Progress(100, "done")
	return nil
}
