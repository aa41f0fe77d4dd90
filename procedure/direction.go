package procedure

import (
	"fmt"
	"math"
	"time"

	"github.com/cncworks/spindletune/config"
)

// Forward runs the spindle forward under full PID and checks it reaches and
// holds the commanded speed
type Forward struct {
	Speed      float64
	SettleTime time.Duration
}

func NewForward() *Forward {
	return &Forward{Speed: 1000, SettleTime: 4 * time.Second}
}

func (*Forward) Name() string { return "forward" }

func (*Forward) Describe() Description {
	return Description{
		Name:     "Forward Test",
		GuideRef: "Section 4.3",
		Purpose:  "Verify closed-loop speed holding in the forward direction",
		Steps: []string{
			"Run M3 S1000 and wait for settling",
			"Check feedback, at-speed flag, and error magnitude",
		},
		ExpectedResults: []string{
			"Feedback above 90% of command",
			"At-speed flag true",
			"Error under 20 RPM",
		},
	}
}

func (p *Forward) Run(t *Run) error {
	if err := t.HAL().SendMDI(fmt.Sprintf("M3 S%.0f", p.Speed)); err != nil {
		t.Check("spin", false, err.Error())
		return nil
	}
	t.Progress(30, "settling")
	if !t.Sleep(p.SettleTime) {
		return nil
	}

	fb, _ := t.HAL().PinValue(config.MonitorPins["feedback"])
	atSpeed, _ := t.HAL().PinValue(config.MonitorPins["at_speed"])
	pidErr, _ := t.HAL().PinValue(config.MonitorPins["error"])

	t.Check("feedback", fb > p.Speed*0.9, fmt.Sprintf("%.0f RPM at S%.0f", fb, p.Speed))
	t.Check("at-speed", atSpeed > 0.5, fmt.Sprintf("flag = %.0f", atSpeed))
	t.Check("error", math.Abs(pidErr) < 20, fmt.Sprintf("%.1f RPM", pidErr))
	t.Metric("feedback", fb)
	t.Metric("error", pidErr)

	safeStop(t.runner.hal, t.runner.logger)
	t.Progress(100, "done")
	return nil
}

// Reverse runs the spindle in reverse and checks the sign conventions:
// signed feedback negative, absolute feedback positive for the PID input
type Reverse struct {
	Speed      float64
	SettleTime time.Duration
}

func NewReverse() *Reverse {
	return &Reverse{Speed: 500, SettleTime: 4 * time.Second}
}

func (*Reverse) Name() string { return "reverse" }

func (*Reverse) Describe() Description {
	return Description{
		Name:     "Reverse Test",
		GuideRef: "Section 4.4",
		Purpose:  "Verify the ABS component keeps the PID stable in reverse",
		Steps: []string{
			"Run M4 S500 and wait for settling",
			"Check feedback signs against the commanded direction",
		},
		ExpectedResults: []string{
			"Raw feedback below -100 RPM",
			"Signed feedback below -100 RPM",
			"Absolute feedback above +100 RPM",
		},
		SafetyNotes: []string{
			"A reversed encoder can cause runaway in M4. Be ready on the E-stop.",
		},
	}
}

func (p *Reverse) Run(t *Run) error {
	if err := t.HAL().SendMDI(fmt.Sprintf("M4 S%.0f", p.Speed)); err != nil {
		t.Check("spin", false, err.Error())
		return nil
	}
	t.Progress(30, "settling")
	if !t.Sleep(p.SettleTime) {
		return nil
	}

	fbRaw, _ := t.HAL().PinValue(config.MonitorPins["feedback_raw"])
	fbAbs, _ := t.HAL().PinValue(config.MonitorPins["feedback_abs"])
	fb, _ := t.HAL().PinValue(config.MonitorPins["feedback"])

	t.Check("raw feedback negative", fbRaw < -100, fmt.Sprintf("%.0f RPM", fbRaw))
	t.Check("signed feedback negative", fb < -100, fmt.Sprintf("%.0f RPM", fb))
	t.Check("abs feedback positive", fbAbs > 100, fmt.Sprintf("%.0f RPM", fbAbs))
	t.Metric("feedback_raw", fbRaw)
	t.Metric("feedback_abs", fbAbs)

	safeStop(t.runner.hal, t.runner.logger)
	t.Progress(100, "done")
	return nil
}
