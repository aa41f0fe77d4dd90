package procedure

import (
	"fmt"
	"math"
	"time"

	"github.com/cncworks/spindletune/config"
	"github.com/cncworks/spindletune/datalog"
)

// EncoderVerification spins at three speeds and analyzes the raw feedback
// for noise, polarity, and scale problems
type EncoderVerification struct {
	Speeds     []float64
	SettleTime time.Duration
	SampleTime time.Duration
	Interval   time.Duration
}

func NewEncoderVerification() *EncoderVerification {
	return &EncoderVerification{
		Speeds:     []float64{100, 500, 1500},
		SettleTime: 3500 * time.Millisecond,
		SampleTime: 2 * time.Second,
		Interval:   50 * time.Millisecond,
	}
}

func (*EncoderVerification) Name() string { return "encoder-verification" }

func (*EncoderVerification) Describe() Description {
	return Description{
		Name:     "Encoder Verification",
		GuideRef: "Section 4.1",
		Purpose:  "Verify encoder polarity, scale, and noise at low, medium, and high speed",
		Steps: []string{
			"Spin forward at each test speed",
			"Sample raw feedback and compute noise statistics",
			"Check the feedback sign matches the commanded direction",
		},
		ExpectedResults: []string{
			"Positive feedback at every speed",
			"Noise under 10 RPM standard deviation",
		},
		SafetyNotes: []string{
			"The spindle will run up to 1500 RPM",
		},
	}
}

func (p *EncoderVerification) Run(t *Run) error {
	scale, err := t.HAL().PinValue(config.MonitorPins["encoder_scale"])
	want := float64(config.Encoder.CountsPerRev)
	t.Check("encoder scale", err == nil && scale == want,
		fmt.Sprintf("scale %.0f (want %.0f)", scale, want))
	if err == nil && scale == -want {
		t.Logf("encoder scale is negated: polarity is reversed in the configuration")
	}

	for i, speed := range p.Speeds {
		if t.Aborted() {
			return nil
		}
		t.Progress(i*100/len(p.Speeds), fmt.Sprintf("testing %.0f RPM", speed))

		if err := t.HAL().SendMDI(fmt.Sprintf("M3 S%.0f", speed)); err != nil {
			t.Check(fmt.Sprintf("spin %.0f", speed), false, err.Error())
			continue
		}
		if !t.Sleep(p.SettleTime) {
			return nil
		}

		_, values := t.SampleSignal(config.MonitorPins["feedback_raw"], p.SampleTime, p.Interval)
		if t.Aborted() {
			return nil
		}
		if len(values) == 0 {
			t.Check(fmt.Sprintf("feedback %.0f", speed), false, "no samples")
			continue
		}

		stats := datalog.ComputeStatistics(values)
		t.Metric(fmt.Sprintf("noise_%.0f", speed), stats.StdDev)
		t.Logf("%.0f RPM: mean %.1f, stddev %.2f, p2p %.1f",
			speed, stats.Mean, stats.StdDev, stats.P2P)

		// Negative mean while commanded forward means the encoder counts
		// backwards
		t.Check(fmt.Sprintf("polarity %.0f", speed), stats.Mean > 0,
			fmt.Sprintf("mean %.1f commanded forward", stats.Mean))

		noiseOK := stats.StdDev <= DefaultTargets.NoiseAcceptable
		t.Check(fmt.Sprintf("noise %.0f", speed), noiseOK,
			fmt.Sprintf("stddev %.2f RPM", stats.StdDev))

		t.Check(fmt.Sprintf("tracking %.0f", speed),
			math.Abs(math.Abs(stats.Mean)-speed) < speed*0.15,
			fmt.Sprintf("mean %.1f vs commanded %.0f", stats.Mean, speed))
	}

	safeStop(t.runner.hal, t.runner.logger)
	t.Progress(100, "done")
	return nil
}
