package procedure

import (
	"fmt"
	"math"
	"time"

	"github.com/cncworks/spindletune/datalog"
)

// SteadyState holds a speed and watches error statistics and integrator
// drift over a longer window. Useful for spotting thermal drift and slow
// oscillation.
type SteadyState struct {
	Speed      float64
	Duration   time.Duration
	SettleTime time.Duration
	Interval   time.Duration
	Targets    Targets
}

func NewSteadyState(duration time.Duration) *SteadyState {
	// Long enough to mean something, short enough to not heat-soak the
	// motor
	if duration < 10*time.Second {
		duration = 10 * time.Second
	}
	if duration > 300*time.Second {
		duration = 300 * time.Second
	}
	return &SteadyState{
		Speed:      1000,
		Duration:   duration,
		SettleTime: 4 * time.Second,
		Interval:   200 * time.Millisecond,
		Targets:    DefaultTargets,
	}
}

func (*SteadyState) Name() string { return "steady-state" }

func (p *SteadyState) Describe() Description {
	return Description{
		Name:     "Steady State Monitor",
		GuideRef: "Section 5.3",
		Purpose:  "Watch error statistics and integrator drift while holding speed",
		Steps: []string{
			fmt.Sprintf("Hold %.0f RPM for %s", p.Speed, p.Duration),
			"Sample error, feedback, and integrator",
			"Summarize noise and drift",
		},
	}
}

func (p *SteadyState) Run(t *Run) error {
	if err := t.HAL().SendMDI(fmt.Sprintf("M3 S%.0f", p.Speed)); err != nil {
		t.Check("spin", false, err.Error())
		return nil
	}
	t.Progress(10, "settling")
	if !t.Sleep(p.SettleTime) {
		return nil
	}

	samples := t.SampleAll(p.Duration, p.Interval)
	safeStop(t.runner.hal, t.runner.logger)
	if t.Aborted() || len(samples) == 0 {
		return nil
	}
	t.Progress(80, "analyzing")

	errs := make([]float64, len(samples))
	errI := make([]float64, len(samples))
	fb := make([]float64, len(samples))
	for i, s := range samples {
		errs[i] = s["error"]
		errI[i] = s["errorI"]
		fb[i] = s["feedback"]
	}

	errStats := datalog.ComputeStatistics(errs)
	fbStats := datalog.ComputeStatistics(fb)
	drift := errI[len(errI)-1] - errI[0]

	t.Metric("error_mean", errStats.Mean)
	t.Metric("error_stddev", errStats.StdDev)
	t.Metric("error_p2p", errStats.P2P)
	t.Metric("feedback_mean", fbStats.Mean)
	t.Metric("integrator_drift", drift)

	t.Logf("error mean %.2f, stddev %.2f, p2p %.1f RPM over %s",
		errStats.Mean, errStats.StdDev, errStats.P2P, p.Duration)
	t.Logf("feedback mean %.1f RPM, integrator drift %.1f", fbStats.Mean, drift)
	if math.Abs(drift) > 20 {
		t.Logf("integrator drifted %.1f: thermal slip is shifting the operating point", drift)
	}

	v := grade(errStats.StdDev, p.Targets.NoiseGood, p.Targets.NoiseAcceptable)
	v = worse(v, grade(math.Abs(errStats.Mean), p.Targets.SSErrorGood, p.Targets.SSErrorAcceptable))
	t.Verdict(v, fmt.Sprintf("held %.0f RPM for %s", p.Speed, p.Duration))
	t.Progress(100, "done")
	return nil
}
