package procedure

import (
	"fmt"
	"time"

	"github.com/cncworks/spindletune/config"
)

// faultInjector is satisfied by the mock backend
type faultInjector interface {
	SetFault(kind string, on bool) error
}

// Watchdog injects an encoder fault while spinning and verifies the fault
// pins react. Only runs against the mock backend; on hardware this check
// belongs to commissioning, done by unplugging the encoder.
type Watchdog struct {
	Speed      float64
	SettleTime time.Duration
	FaultTime  time.Duration
}

func NewWatchdog() *Watchdog {
	return &Watchdog{
		Speed:      1000,
		SettleTime: 3 * time.Second,
		FaultTime:  1 * time.Second,
	}
}

func (*Watchdog) Name() string { return "watchdog" }

func (*Watchdog) Describe() Description {
	return Description{
		Name:     "Encoder Watchdog",
		GuideRef: "Section 6.2",
		Purpose:  "Verify an encoder failure drops feedback and trips the fault chain",
		Steps: []string{
			"Spin up and arm the watchdog",
			"Inject an encoder fault",
			"Verify feedback collapses and the safety chain opens",
			"Clear the fault and stop",
		},
	}
}

func (p *Watchdog) Run(t *Run) error {
	injector, ok := t.HAL().(faultInjector)
	if !ok {
		t.Verdict(VerdictNotEvaluated, "fault injection needs the mock backend, cannot evaluate")
		return nil
	}

	if err := t.HAL().SendMDI(fmt.Sprintf("M3 S%.0f", p.Speed)); err != nil {
		t.Check("spin", false, err.Error())
		return nil
	}
	t.Progress(20, "arming watchdog")
	if !t.Sleep(p.SettleTime) {
		return nil
	}

	armed, _ := t.HAL().PinValue(config.MonitorPins["watchdog"])
	t.Check("watchdog armed", armed > 0.5, fmt.Sprintf("armed = %.0f at speed", armed))

	if err := injector.SetFault("encoder", true); err != nil {
		t.Check("inject fault", false, err.Error())
		return nil
	}
	defer injector.SetFault("encoder", false)
	t.Logf("encoder fault injected")
	t.Progress(50, "fault active")
	if !t.Sleep(p.FaultTime) {
		return nil
	}

	fb, _ := t.HAL().PinValue(config.MonitorPins["feedback"])
	faultPin, _ := t.HAL().PinValue(config.MonitorPins["encoder_fault"])
	safety, _ := t.HAL().PinValue(config.MonitorPins["safety_chain"])

	t.Check("feedback collapsed", fb < p.Speed*0.5, fmt.Sprintf("feedback %.0f RPM with dead encoder", fb))
	t.Check("fault pin", faultPin > 0.5, fmt.Sprintf("encoder-fault = %.0f", faultPin))
	t.Check("safety chain open", safety < 0.5, fmt.Sprintf("external-ok = %.0f", safety))

	injector.SetFault("encoder", false)
	safeStop(t.runner.hal, t.runner.logger)
	t.Progress(100, "done")
	return nil
}
