package hal

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"

	"github.com/cncworks/spindletune"
	"github.com/cncworks/spindletune/config"
)

// Live talks to a running LinuxCNC instance through the external halcmd
// tool. Every read and write is a short-lived subprocess; AllValues batches
// all monitored pins into a single invocation.
type Live struct {
	mu sync.Mutex

	halcmd []string
	mdi    []string
	logger *slog.Logger

	state       spindletune.ConnectionState
	lastErr     error
	lastAttempt time.Time
	attempts    int

	cache *valueCache
	stats readStats
}

// NewLive builds a Live backend. command is the halcmd invocation and may
// carry a wrapper like "sudo halcmd"; empty means plain "halcmd". The
// initial handshake runs immediately.
func NewLive(command string, logger *slog.Logger) (*Live, error) {
	if command == "" {
		command = "halcmd"
	}
	argv, err := shlex.Split(command)
	if err != nil || len(argv) == 0 {
		return nil, fmt.Errorf("bad halcmd command %q: %w", command, err)
	}

	l := &Live{
		halcmd: argv,
		mdi:    []string{"axis-remote", "--mdi"},
		logger: logger,
		state:  spindletune.StateDisconnected,
		cache:  newValueCache(cacheTTL),
	}
	l.mu.Lock()
	l.connect()
	l.mu.Unlock()
	return l, nil
}

// connect probes halcmd with "show comp" to verify HAL is up. Caller holds
// the lock.
func (l *Live) connect() {
	l.state = spindletune.StateConnecting
	l.attempts++
	l.lastAttempt = time.Now()

	_, err := l.run(nil, "show", "comp")
	if err != nil {
		l.state = spindletune.StateError
		l.lastErr = fmt.Errorf("%w: %v", ErrConnection, err)
		l.logger.Warn("halcmd handshake failed", "attempt", l.attempts, "err", err)
		return
	}

	l.state = spindletune.StateConnected
	l.lastErr = nil
	l.cache.clear()
	l.logger.Info("connected to HAL", "attempt", l.attempts)
}

// run executes one halcmd invocation with optional stdin. Caller holds the
// lock.
func (l *Live) run(stdin []byte, args ...string) (string, error) {
	argv := append(append([]string{}, l.halcmd...), args...)
	cmd := exec.Command(argv[0], argv[1:]...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	started := time.Now()
	out, err := cmd.Output()
	l.stats.record(time.Since(started), time.Now())

	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("halcmd %s: %s: %w", strings.Join(args, " "), msg, err)
		}
		return "", fmt.Errorf("halcmd %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// getp reads one pin or parameter, classifying the failure: halcmd exiting
// nonzero means HAL answered and rejected the name, while halcmd failing to
// run at all means the backend is gone. Caller holds the lock.
func (l *Live) getp(name string) (float64, error) {
	out, err := l.run(nil, "getp", name)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return 0, fmt.Errorf("%w: %s", ErrPinNotFound, name)
		}
		l.state = spindletune.StateError
		l.lastErr = fmt.Errorf("%w: %v", ErrConnection, err)
		return 0, l.lastErr
	}
	return parsePinValue(out)
}

func (l *Live) PinValue(name string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pinValue(name)
}

func (l *Live) pinValue(name string) (float64, error) {
	now := time.Now()
	if v, ok := l.cache.get(name, now); ok {
		return v, nil
	}

	v, err := l.getp(name)
	if err != nil {
		return 0, err
	}
	l.cache.put(name, v, time.Now())
	return v, nil
}

// AllValues reads every monitored pin through one halcmd process fed getp
// lines over stdin. If the output line count does not match, it falls back
// to individual reads; pins that still fail read as 0.
func (l *Live) AllValues() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(config.MonitorPins))
	for name := range config.MonitorPins {
		names = append(names, name)
	}
	sort.Strings(names)

	var script bytes.Buffer
	for _, name := range names {
		script.WriteString("getp " + config.MonitorPins[name] + "\n")
	}

	values := make(map[string]float64, len(names))
	out, err := l.run(script.Bytes())
	if err == nil {
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) == len(names) {
			for i, name := range names {
				v, perr := parsePinValue(lines[i])
				if perr != nil {
					v = 0
				}
				values[name] = v
				l.cache.put(config.MonitorPins[name], v, time.Now())
			}
			return values
		}
		l.logger.Debug("bulk read line mismatch", "want", len(names), "got", len(lines))
	}

	for _, name := range names {
		v, perr := l.pinValue(config.MonitorPins[name])
		if perr != nil {
			v = 0
		}
		values[name] = v
	}
	return values
}

func (l *Live) Param(name string) (float64, error) {
	spec, ok := config.TuningParams[name]
	if !ok {
		return 0, fmt.Errorf("%w: parameter %s", ErrPinNotFound, name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getp(spec.Pin)
}

func (l *Live) AllParams() map[string]float64 {
	params := make(map[string]float64, len(config.TuningParams))
	for name := range config.TuningParams {
		v, err := l.Param(name)
		if err != nil {
			continue
		}
		params[name] = v
	}
	return params
}

func (l *Live) SetParam(name string, value float64) bool {
	if ValidateParam(name, value) != nil {
		return false
	}
	spec := config.TuningParams[name]
	value = ClampAndSnap(value, spec.Min, spec.Max, spec.Step)

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.run(nil, "setp", spec.Pin, strconv.FormatFloat(value, 'g', -1, 64))
	if err != nil {
		l.logger.Warn("setp failed", "param", name, "err", err)
		return false
	}
	l.cache.invalidate(spec.Pin)
	return true
}

func (l *Live) SetParamsBulk(params map[string]float64) bool {
	ok := true
	for name, value := range params {
		if err := ValidateParam(name, value); err != nil {
			l.logger.Warn("skipping parameter", "err", err)
			ok = false
			continue
		}
		if !l.SetParam(name, value) {
			ok = false
		}
	}
	return ok
}

func (l *Live) SendMDI(cmd string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	argv := append(append([]string{}, l.mdi...), cmd)
	c := exec.Command(argv[0], argv[1:]...)
	if err := c.Run(); err != nil {
		return fmt.Errorf("mdi %q: %w", cmd, err)
	}
	return nil
}

// ValidatePin reports whether halcmd can read the named pin
func (l *Live) ValidatePin(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.run(nil, "getp", name)
	return err == nil
}

func (l *Live) State() spindletune.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Live) Reconnect() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == spindletune.StateConnected {
		return true
	}
	if time.Since(l.lastAttempt) < reconnectBackoff {
		return false
	}
	l.connect()
	return l.state == spindletune.StateConnected
}

func (l *Live) Diagnostics() Diagnostics {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := Diagnostics{
		State:        l.state,
		Attempts:     l.attempts,
		CacheSize:    l.cache.size(),
		AvgReadTime:  l.stats.avg(),
		MaxReadTime:  l.stats.max(),
		LastReadTime: l.stats.last,
	}
	if l.lastErr != nil {
		d.LastError = l.lastErr.Error()
	}
	return d
}

func (l *Live) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = spindletune.StateDisconnected
	l.cache.clear()
	return nil
}
