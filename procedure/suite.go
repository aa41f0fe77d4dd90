package procedure

import (
	"fmt"
	"time"
)

// FullSuite runs the core procedures back to back: signal chain, open loop,
// forward, and a step response. Component failures are counted, not fatal;
// one shared abort flag stops everything.
type FullSuite struct {
	Pause time.Duration
}

func NewFullSuite() *FullSuite {
	return &FullSuite{Pause: 1 * time.Second}
}

func (*FullSuite) Name() string { return "full-suite" }

func (*FullSuite) Describe() Description {
	return Description{
		Name:     "Full Test Suite",
		GuideRef: "Section 7",
		Purpose:  "Run the core verification sequence in one pass",
		Steps: []string{
			"Signal chain check",
			"Open loop slip test",
			"Forward test",
			"Step response 500 to 1200 RPM",
		},
	}
}

func (p *FullSuite) Run(t *Run) error {
	parts := []Procedure{
		SignalChain{},
		NewOpenLoop(),
		NewForward(),
		NewStepResponse(500, 1200),
	}

	failed := 0
	for i, part := range parts {
		if t.Aborted() {
			return nil
		}
		t.Progress(i*100/len(parts), part.Name())
		t.Logf("--- %s ---", part.Name())

		before := t.result.FailedChecks()
		if err := p.runPart(t, part); err != nil {
			t.Logf("%s failed: %v", part.Name(), err)
			failed++
		} else if t.result.FailedChecks() > before {
			failed++
		}

		if !t.Sleep(p.Pause) {
			return nil
		}
	}

	if failed == 0 {
		t.Verdict(VerdictPass, "all suite components passed")
	} else {
		t.Verdict(VerdictFail, fmt.Sprintf("%d of %d components had failures", failed, len(parts)))
	}
	t.Progress(100, "done")
	return nil
}

// runPart executes one component with its own panic guard so a broken
// component cannot take down the rest of the suite
func (p *FullSuite) runPart(t *Run, part Procedure) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return part.Run(t)
}
