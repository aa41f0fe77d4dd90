package procedure

import (
	"fmt"
	"math"
	"time"

	"github.com/cncworks/spindletune/config"
)

// RateLimit commands a large step from standstill and compares the observed
// ramp rate of the limited command against the configured limit
type RateLimit struct {
	Speed      float64
	SampleTime time.Duration
	Interval   time.Duration
}

func NewRateLimit() *RateLimit {
	return &RateLimit{
		Speed:      1500,
		SampleTime: 3 * time.Second,
		Interval:   50 * time.Millisecond,
	}
}

func (*RateLimit) Name() string { return "rate-limit" }

func (*RateLimit) Describe() Description {
	return Description{
		Name:     "Rate Limit Verification",
		GuideRef: "Section 4.5",
		Purpose:  "Verify the limit2 component ramps the command at the configured rate",
		Steps: []string{
			"Stop the spindle, then command M3 S1500",
			"Sample the limited command during the ramp",
			"Compare the observed 10%-90% ramp rate against RateLimit",
		},
		ExpectedResults: []string{
			"Observed rate within 25% of the configured value",
		},
	}
}

func (p *RateLimit) Run(t *Run) error {
	configured, err := t.HAL().Param("RateLimit")
	if err != nil || configured <= 0 {
		t.Verdict(VerdictNotEvaluated, "RateLimit is not configured, cannot evaluate")
		return nil
	}

	safeStop(t.runner.hal, t.runner.logger)
	if !t.Sleep(2 * time.Second) {
		return nil
	}
	t.Progress(20, "starting ramp")

	if err := t.HAL().SendMDI(fmt.Sprintf("M3 S%.0f", p.Speed)); err != nil {
		t.Check("spin", false, err.Error())
		return nil
	}
	times, values := t.SampleSignal(config.MonitorPins["cmd_limited"], p.SampleTime, p.Interval)
	safeStop(t.runner.hal, t.runner.logger)
	if t.Aborted() || len(values) < 2 {
		return nil
	}
	t.Progress(70, "analyzing ramp")

	// Observed rate between the 10% and 90% levels of the commanded step
	lo, hi := p.Speed*0.1, p.Speed*0.9
	tLo, tHi := -1.0, -1.0
	for i, v := range values {
		if tLo < 0 && v >= lo {
			tLo = times[i]
		}
		if tHi < 0 && v >= hi {
			tHi = times[i]
			break
		}
	}
	if tLo < 0 || tHi < 0 || tHi <= tLo {
		t.Verdict(VerdictNotEvaluated, "ramp did not span the 10%-90% window, cannot evaluate")
		return nil
	}

	observed := (hi - lo) / (tHi - tLo)
	diffPct := math.Abs(observed-configured) / configured * 100
	t.Metric("rate_observed", observed)
	t.Metric("rate_configured", configured)
	t.Logf("observed %.0f RPM/s vs configured %.0f RPM/s (%.0f%% off)", observed, configured, diffPct)

	switch {
	case diffPct < 25:
		t.Verdict(VerdictPass, "ramp rate matches the configuration")
	case diffPct < 50:
		t.Verdict(VerdictMarginal, "ramp rate differs noticeably from the configuration")
	default:
		t.Verdict(VerdictFail, "ramp rate does not match: check limit2 wiring")
	}
	t.Progress(100, "done")
	return nil
}
