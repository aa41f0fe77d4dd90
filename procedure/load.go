package procedure

import (
	"fmt"
	"time"

	"github.com/cncworks/spindletune/config"
	"github.com/cncworks/spindletune/datalog"
)

// loadInjector is satisfied by the mock backend. On real hardware the
// operator applies the load (a cut or a brake) during the monitoring
// window.
type loadInjector interface {
	SetLoad(pct float64)
}

// LoadRecovery measures how far speed droops under load and how fast the
// loop pulls it back
type LoadRecovery struct {
	Speed        float64
	LoadPct      float64
	SettleTime   time.Duration
	BaselineTime time.Duration
	MonitorTime  time.Duration
	Interval     time.Duration
	Targets      Targets
}

func NewLoadRecovery() *LoadRecovery {
	return &LoadRecovery{
		Speed:        1000,
		LoadPct:      50,
		SettleTime:   3 * time.Second,
		BaselineTime: 1 * time.Second,
		MonitorTime:  10 * time.Second,
		Interval:     100 * time.Millisecond,
		Targets:      DefaultTargets,
	}
}

func (*LoadRecovery) Name() string { return "load-recovery" }

func (*LoadRecovery) Describe() Description {
	return Description{
		Name:     "Load Recovery",
		GuideRef: "Section 5.2",
		Purpose:  "Measure speed droop and recovery time under a cutting load",
		Steps: []string{
			"Stabilize at 1000 RPM and record a baseline",
			"Apply load (simulated, or a real cut on hardware)",
			"Monitor the droop and the recovery",
		},
		ExpectedResults: []string{
			"Recovery within 2 seconds",
		},
	}
}

func (p *LoadRecovery) Run(t *Run) error {
	if err := t.HAL().SendMDI(fmt.Sprintf("M3 S%.0f", p.Speed)); err != nil {
		t.Check("spin", false, err.Error())
		return nil
	}
	t.Progress(10, "stabilizing")
	if !t.Sleep(p.SettleTime) {
		return nil
	}

	_, baseline := t.SampleSignal(config.MonitorPins["feedback"], p.BaselineTime, p.Interval)
	if t.Aborted() || len(baseline) == 0 {
		return nil
	}
	target := datalog.ComputeStatistics(baseline).Mean
	t.Logf("baseline %.1f RPM", target)
	t.Progress(30, "baseline recorded")

	injector, simulated := t.HAL().(loadInjector)
	if simulated {
		injector.SetLoad(p.LoadPct)
		t.Logf("applied %.0f%% simulated load", p.LoadPct)
		defer injector.SetLoad(0)
	} else {
		t.Logf("apply the load now (cut or brake)")
	}

	times, values := t.SampleSignal(config.MonitorPins["feedback"], p.MonitorTime, p.Interval)
	if simulated {
		injector.SetLoad(0)
	}
	safeStop(t.runner.hal, t.runner.logger)
	if t.Aborted() || len(values) == 0 {
		return nil
	}
	t.Progress(80, "analyzing")

	m := datalog.ComputeLoadMetrics(times, values, target)
	t.Metric("peak_deviation", m.PeakDeviation)
	t.Metric("load_recovery_time_s", m.RecoveryTime)

	if m.PeakDeviation == 0 {
		t.Verdict(VerdictNotEvaluated, "no significant droop observed, cannot evaluate")
		return nil
	}
	t.Logf("droop %.1f RPM, recovery %.2fs", m.PeakDeviation, m.RecoveryTime)

	if m.PeakDeviation > 5 {
		t.Logf("significant droop: the load transient is real, not noise")
	}
	v := grade(m.RecoveryTime, p.Targets.RecoveryGood, p.Targets.RecoveryAcceptable)
	if m.RecoveryTime == datalog.Indeterminable {
		t.Verdict(VerdictFail, "speed never recovered within the monitoring window")
	} else {
		t.Verdict(v, fmt.Sprintf("recovered in %.2fs", m.RecoveryTime))
	}
	t.Progress(100, "done")
	return nil
}
