// Package procedure runs the spindle tuning test procedures: guided,
// abortable sequences that command the spindle, sample the signal chain,
// and score the response against the tuning guide's targets.
package procedure

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cncworks/spindletune/config"
)

// HAL is the narrow slice of the backend the procedures need
type HAL interface {
	PinValue(name string) (float64, error)
	AllValues() map[string]float64
	Param(name string) (float64, error)
	AllParams() map[string]float64
	SetParam(name string, value float64) bool
	SendMDI(cmd string) error
}

// State is the runner's lifecycle state
type State int

const (
	Idle State = iota
	Running
	Aborting
	Completed
	Aborted
	Failed
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Aborting:
		return "Aborting"
	case Completed:
		return "Completed"
	case Aborted:
		return "Aborted"
	case Failed:
		return "Failed"
	default:
		fallthrough
	case Idle:
		return "Idle"
	}
}

// Terminal reports whether the runner has finished and can be reset
func (s State) Terminal() bool {
	return s == Completed || s == Aborted || s == Failed
}

// Description documents a procedure for the operator
type Description struct {
	Name            string
	GuideRef        string
	Purpose         string
	Prerequisites   []string
	Steps           []string
	ExpectedResults []string
	SafetyNotes     []string
}

// Procedure is one runnable test
type Procedure interface {
	Name() string
	Describe() Description
	Run(t *Run) error
}

// Runner executes one procedure at a time on its own goroutine
type Runner struct {
	mu sync.Mutex

	hal    HAL
	logger *slog.Logger

	state  State
	abort  atomic.Bool
	result *Result
	done   chan struct{}

	onProgress func(pct int, msg string)
	onLog      func(line string)
}

// NewRunner builds an idle runner
func NewRunner(h HAL, logger *slog.Logger) *Runner {
	return &Runner{hal: h, logger: logger, state: Idle}
}

// OnProgress registers the progress callback. It is invoked from the
// procedure goroutine.
func (r *Runner) OnProgress(fn func(pct int, msg string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onProgress = fn
}

// OnLog registers the log-line callback. It is invoked from the procedure
// goroutine.
func (r *Runner) OnLog(fn func(line string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLog = fn
}

// Start launches the procedure if the runner is Idle. A runner that is
// already busy (or finished but not Reset) rejects the start; requests are
// never queued.
func (r *Runner) Start(p Procedure) bool {
	r.mu.Lock()
	if r.state != Idle {
		r.mu.Unlock()
		return false
	}
	r.state = Running
	r.abort.Store(false)
	r.done = make(chan struct{})
	r.result = newResult(p.Name())
	r.mu.Unlock()

	go r.run(p)
	return true
}

// Abort requests a cooperative stop and immediately commands the spindle
// off. The procedure finishes at its next checkpoint.
func (r *Runner) Abort() {
	r.mu.Lock()
	if r.state != Running {
		r.mu.Unlock()
		return
	}
	r.state = Aborting
	r.mu.Unlock()

	r.abort.Store(true)
	safeStop(r.hal, r.logger)
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Result returns the last run's result, nil before the first run
func (r *Runner) Result() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Done returns a channel closed when the current run finishes
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Reset returns a finished runner to Idle
func (r *Runner) Reset() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.Terminal() {
		return false
	}
	r.state = Idle
	return true
}

func (r *Runner) run(p Procedure) {
	t := &Run{runner: r, result: r.result}
	var err error

	defer func() {
		// The spindle stops no matter how the procedure ends
		safeStop(r.hal, r.logger)

		if rec := recover(); rec != nil {
			err = fmt.Errorf("procedure panicked: %v", rec)
			r.logger.Error("procedure panic", "procedure", p.Name(), "panic", rec)
		}

		r.mu.Lock()
		r.result.Finished = time.Now()
		switch {
		case r.abort.Load():
			r.state = Aborted
			r.result.Verdict = VerdictAborted
		case err != nil:
			r.state = Failed
			r.result.Verdict = VerdictFail
			r.result.Err = err.Error()
		default:
			r.state = Completed
			if r.result.Verdict == VerdictNone {
				r.result.Verdict = r.result.worstCheck()
			}
		}
		done := r.done
		r.mu.Unlock()

		close(done)
	}()

	r.logger.Info("procedure started", "procedure", p.Name())
	err = p.Run(t)
}

// safeStop commands the spindle off, swallowing any error so cleanup can
// never fail
func safeStop(h HAL, logger *slog.Logger) {
	if err := h.SendMDI("M5"); err != nil {
		logger.Warn("spindle stop failed", "err", err)
	}
}

// Run is the context handed to a procedure while it executes
type Run struct {
	runner *Runner
	result *Result
}

// HAL returns the backend under test
func (t *Run) HAL() HAL {
	return t.runner.hal
}

// Aborted reports whether an abort was requested. Procedures poll this at
// every safe checkpoint.
func (t *Run) Aborted() bool {
	return t.runner.abort.Load()
}

// Logf records a line in the result and forwards it to the log callback
func (t *Run) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	t.result.addLog(line)
	t.runner.logger.Info(line, "procedure", t.result.Procedure)
	if fn := t.runner.onLog; fn != nil {
		fn(line)
	}
}

// Progress reports completion percentage and a status message
func (t *Run) Progress(pct int, msg string) {
	if fn := t.runner.onProgress; fn != nil {
		fn(pct, msg)
	}
}

// Sleep waits for d unless aborted first. It returns false on abort.
func (t *Run) Sleep(d time.Duration) bool {
	const tick = 50 * time.Millisecond
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if t.Aborted() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining > tick {
			remaining = tick
		}
		time.Sleep(remaining)
	}
	return !t.Aborted()
}

// SampleSignal samples one pin at a fixed interval for the given duration.
// An abort returns whatever was collected so far. Times are seconds from
// the start of sampling.
func (t *Run) SampleSignal(pin string, duration, interval time.Duration) (times, values []float64) {
	start := time.Now()
	next := start
	for time.Since(start) < duration {
		if t.Aborted() {
			return times, values
		}

		v, err := t.runner.hal.PinValue(pin)
		if err != nil {
			t.Logf("sample read failed: %v", err)
			v = 0
		}
		times = append(times, time.Since(start).Seconds())
		values = append(values, v)

		next = next.Add(interval)
		if d := time.Until(next); d > 0 {
			if !t.Sleep(d) {
				return times, values
			}
		}
	}
	return times, values
}

// SampleAll samples every monitored signal at a fixed interval, adding a
// "time" key with seconds from the start of sampling
func (t *Run) SampleAll(duration, interval time.Duration) []map[string]float64 {
	var out []map[string]float64
	start := time.Now()
	next := start
	for time.Since(start) < duration {
		if t.Aborted() {
			return out
		}

		values := t.runner.hal.AllValues()
		values["time"] = time.Since(start).Seconds()
		out = append(out, values)

		next = next.Add(interval)
		if d := time.Until(next); d > 0 {
			if !t.Sleep(d) {
				return out
			}
		}
	}
	return out
}

// Check records one named pass/fail check
func (t *Run) Check(name string, ok bool, detail string) bool {
	t.result.addCheck(Check{Name: name, OK: ok, Detail: detail})
	status := "PASS"
	if !ok {
		status = "FAIL"
	}
	t.Logf("%s: %s %s", status, name, detail)
	return ok
}

// Metric records one named measurement in the result
func (t *Run) Metric(name string, value float64) {
	t.result.addMetric(name, value)
}

// Verdict sets the overall verdict with a summary line
func (t *Run) Verdict(v Verdict, summary string) {
	t.result.setVerdict(v)
	t.Logf("verdict: %s - %s", v, summary)
}

// RestoreParams reapplies a saved parameter set, logging anything that
// fails to apply. Used in deferred cleanup.
func (t *Run) RestoreParams(saved map[string]float64) {
	for name, v := range saved {
		if _, ok := config.TuningParams[name]; !ok {
			continue
		}
		if !t.runner.hal.SetParam(name, v) {
			t.Logf("failed to restore %s=%g", name, v)
		}
	}
}

// Result is the structured outcome of one procedure run
type Result struct {
	mu sync.Mutex

	ID        uuid.UUID
	Procedure string
	Started   time.Time
	Finished  time.Time
	Verdict   Verdict
	Err       string
	Checks    []Check
	Metrics   map[string]float64
	Log       []string
}

// Check is one pass/fail item within a result
type Check struct {
	Name   string
	OK     bool
	Detail string
}

func newResult(procedure string) *Result {
	return &Result{
		ID:        uuid.New(),
		Procedure: procedure,
		Started:   time.Now(),
		Metrics:   make(map[string]float64),
	}
}

func (r *Result) addLog(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Log = append(r.Log, line)
}

func (r *Result) addCheck(c Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Checks = append(r.Checks, c)
}

func (r *Result) addMetric(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Metrics[name] = value
}

func (r *Result) setVerdict(v Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Verdict = v
}

// worstCheck derives a verdict from recorded checks when the procedure did
// not set one explicitly
func (r *Result) worstCheck() Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Checks) == 0 {
		return VerdictNotEvaluated
	}
	for _, c := range r.Checks {
		if !c.OK {
			return VerdictFail
		}
	}
	return VerdictPass
}

// FailedChecks counts the checks that did not pass
func (r *Result) FailedChecks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.Checks {
		if !c.OK {
			n++
		}
	}
	return n
}
