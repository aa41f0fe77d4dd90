package procedure

import (
	"fmt"
	"time"

	"github.com/cncworks/spindletune/config"
	"github.com/cncworks/spindletune/datalog"
)

// StepResponse stabilizes at a start speed, steps to an end speed, and
// scores the response against the tuning guide's targets
type StepResponse struct {
	Start     float64
	End       float64
	Stabilize time.Duration
	Capture   time.Duration
	Interval  time.Duration
	Targets   Targets
}

func NewStepResponse(start, end float64) *StepResponse {
	return &StepResponse{
		Start:     start,
		End:       end,
		Stabilize: 3 * time.Second,
		Capture:   5 * time.Second,
		Interval:  100 * time.Millisecond,
		Targets:   DefaultTargets,
	}
}

func (*StepResponse) Name() string { return "step-response" }

func (p *StepResponse) Describe() Description {
	return Description{
		Name:     "Step Response",
		GuideRef: "Section 5.1",
		Purpose:  "Measure rise time, overshoot, settling, and steady-state error for one speed step",
		Steps: []string{
			fmt.Sprintf("Stabilize at %.0f RPM", p.Start),
			fmt.Sprintf("Step to %.0f RPM and capture the response", p.End),
			"Score the metrics against the tuning targets",
		},
	}
}

func (p *StepResponse) Run(t *Run) error {
	if err := t.HAL().SendMDI(fmt.Sprintf("M3 S%.0f", p.Start)); err != nil {
		t.Check("spin", false, err.Error())
		return nil
	}
	t.Progress(10, fmt.Sprintf("stabilizing at %.0f RPM", p.Start))
	if !t.Sleep(p.Stabilize) {
		return nil
	}

	t.Progress(40, fmt.Sprintf("stepping to %.0f RPM", p.End))
	if err := t.HAL().SendMDI(fmt.Sprintf("M3 S%.0f", p.End)); err != nil {
		t.Check("step", false, err.Error())
		return nil
	}
	times, values := t.SampleSignal(config.MonitorPins["feedback"], p.Capture, p.Interval)
	safeStop(t.runner.hal, t.runner.logger)
	if t.Aborted() || len(values) < 2 {
		return nil
	}
	t.Progress(80, "computing metrics")

	m := datalog.ComputeStepMetrics(p.Start, p.End, times, values)
	t.Metric("rise_time_s", m.RiseTime)
	t.Metric("settling_time_s", m.SettlingTime)
	t.Metric("overshoot_pct", m.Overshoot)
	t.Metric("steady_state_error", m.SteadyStateError)
	t.Metric("max_error", m.MaxError)
	t.Metric("iae", m.IAE)

	t.Logf("rise %.2fs, settle %.2fs, overshoot %.1f%%, ss error %.1f RPM, IAE %.0f",
		m.RiseTime, m.SettlingTime, m.Overshoot, m.SteadyStateError, m.IAE)

	v := grade(m.SettlingTime, p.Targets.SettlingGood, p.Targets.SettlingAcceptable)
	v = worse(v, grade(m.Overshoot, p.Targets.OvershootGood, p.Targets.OvershootAcceptable))
	ssErr := m.SteadyStateError
	if ssErr < 0 {
		ssErr = -ssErr
	}
	v = worse(v, grade(ssErr, p.Targets.SSErrorGood, p.Targets.SSErrorAcceptable))

	if m.SettlingTime == datalog.Indeterminable {
		t.Verdict(VerdictNotEvaluated, "response never settled in the capture window, cannot evaluate")
	} else {
		t.Verdict(v, fmt.Sprintf("step %.0f to %.0f RPM scored against targets", p.Start, p.End))
	}
	t.Progress(100, "done")
	return nil
}
