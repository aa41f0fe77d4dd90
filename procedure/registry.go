package procedure

import (
	"sort"
	"time"
)

// ByName builds the standard procedure roster keyed by procedure name
func ByName() map[string]Procedure {
	return map[string]Procedure{
		"signal-chain":         SignalChain{},
		"pre-flight":           NewPreFlight(),
		"encoder-verification": NewEncoderVerification(),
		"open-loop":            NewOpenLoop(),
		"forward":              NewForward(),
		"reverse":              NewReverse(),
		"rate-limit":           NewRateLimit(),
		"step-response":        NewStepResponse(500, 1200),
		"load-recovery":        NewLoadRecovery(),
		"steady-state":         NewSteadyState(30 * time.Second),
		"deceleration":         NewDeceleration(),
		"full-ramp":            NewRamp(),
		"watchdog":             NewWatchdog(),
		"full-suite":           NewFullSuite(),
	}
}

// Names lists the roster in stable order
func Names() []string {
	byName := ByName()
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
