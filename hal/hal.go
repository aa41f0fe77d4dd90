// Package hal reads and writes LinuxCNC HAL pins through two interchangeable
// backends: Live shells out to the external halcmd tool, Mock runs a physics
// simulation of the spindle drivetrain. Both satisfy Interface so everything
// above them (monitor, procedures, CLI) is backend-agnostic.
package hal

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cncworks/spindletune"
	"github.com/cncworks/spindletune/config"
)

var (
	ErrPinNotFound = errors.New("pin not found")
	ErrParse       = errors.New("unparseable pin value")
	ErrValidation  = errors.New("invalid parameter value")
	ErrConnection  = errors.New("not connected")
)

// cacheTTL is how long a pin read stays fresh. Short enough that the 10Hz
// monitor never sees stale data, long enough to coalesce bursts of reads.
const cacheTTL = 50 * time.Millisecond

// reconnectBackoff gates how often Reconnect actually attempts a handshake
const reconnectBackoff = 5 * time.Second

// Interface is the contract shared by the Live and Mock backends
type Interface interface {
	// PinValue reads one HAL pin by its full pin name, served from a
	// short-TTL cache
	PinValue(name string) (float64, error)

	// AllValues reads every monitored pin in one pass, keyed by short
	// signal name
	AllValues() map[string]float64

	// Param reads a tuning parameter by name, bypassing the cache
	Param(name string) (float64, error)

	// AllParams reads every tuning parameter
	AllParams() map[string]float64

	// SetParam clamps and snaps the value into the parameter's range and
	// applies it. Unknown names and non-finite values return false with
	// no side effect.
	SetParam(name string, value float64) bool

	// SetParamsBulk applies several parameters, skipping invalid entries.
	// It returns false if any entry was skipped.
	SetParamsBulk(params map[string]float64) bool

	// SendMDI issues a machine command (M3/M4/M5 with optional S speed)
	SendMDI(cmd string) error

	State() spindletune.ConnectionState

	// Reconnect retries the backend handshake, rate limited by a fixed
	// backoff. It reports whether the backend is usable afterwards.
	Reconnect() bool

	Diagnostics() Diagnostics

	Close() error
}

// Diagnostics is a read-only snapshot of backend health
type Diagnostics struct {
	State        spindletune.ConnectionState
	Attempts     int
	LastError    string
	CacheSize    int
	AvgReadTime  time.Duration
	MaxReadTime  time.Duration
	LastReadTime time.Time
}

// ClampAndSnap clamps value into [min, max] and snaps it to the nearest
// multiple of step counted from min, rounding half up. The result is
// clamped again so snapping can never escape the range. Applying it twice
// gives the same answer as once.
func ClampAndSnap(value, min, max, step float64) float64 {
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	if step > 0 {
		n := math.Floor((value-min)/step + 0.5)
		value = min + n*step
	}
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return value
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateParam reports whether name is a known tuning parameter and value
// is finite, without applying anything. Both backends run it before a write.
func ValidateParam(name string, value float64) error {
	if _, ok := config.TuningParams[name]; !ok {
		return fmt.Errorf("%w: unknown parameter %s", ErrValidation, name)
	}
	if !isFinite(value) {
		return fmt.Errorf("%w: non-finite value for %s", ErrValidation, name)
	}
	return nil
}

// parsePinValue converts halcmd output text to a float. HAL bit pins print
// TRUE/FALSE; some drivers print ON/OFF or YES/NO.
func parsePinValue(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty output", ErrParse)
	}

	switch strings.ToUpper(s) {
	case "TRUE", "ON", "YES":
		return 1.0, nil
	case "FALSE", "OFF", "NO":
		return 0.0, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrParse, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite value %q", ErrParse, s)
	}
	return v, nil
}

// parseSpeed extracts the S-word from an MDI command like "M3 S1000".
// A missing or malformed S-word falls back to 1000 RPM.
func parseSpeed(cmd string) float64 {
	upper := strings.ToUpper(cmd)
	i := strings.Index(upper, "S")
	if i < 0 || i+1 >= len(upper) {
		return 1000.0
	}
	field := strings.Fields(upper[i+1:])
	if len(field) == 0 {
		return 1000.0
	}
	v, err := strconv.ParseFloat(field[0], 64)
	if err != nil || v < 0 {
		return 1000.0
	}
	return v
}

type cacheEntry struct {
	value float64
	at    time.Time
}

// valueCache holds recent pin reads keyed by pin name. Timestamps come from
// time.Now, which carries a monotonic clock reading.
type valueCache struct {
	entries map[string]cacheEntry
	ttl     time.Duration
}

func newValueCache(ttl time.Duration) *valueCache {
	return &valueCache{entries: make(map[string]cacheEntry), ttl: ttl}
}

func (c *valueCache) get(name string, now time.Time) (float64, bool) {
	e, ok := c.entries[name]
	if !ok || now.Sub(e.at) > c.ttl {
		return 0, false
	}
	return e.value, true
}

func (c *valueCache) put(name string, value float64, now time.Time) {
	c.entries[name] = cacheEntry{value: value, at: now}
}

func (c *valueCache) invalidate(name string) {
	delete(c.entries, name)
}

func (c *valueCache) clear() {
	c.entries = make(map[string]cacheEntry)
}

func (c *valueCache) size() int {
	return len(c.entries)
}

// readStats keeps timing for the last reads so Diagnostics can report how
// the external tool is behaving
type readStats struct {
	samples []time.Duration
	last    time.Time
}

const readStatsWindow = 100

func (s *readStats) record(d time.Duration, at time.Time) {
	s.samples = append(s.samples, d)
	if len(s.samples) > readStatsWindow {
		s.samples = s.samples[len(s.samples)-readStatsWindow:]
	}
	s.last = at
}

func (s *readStats) avg() time.Duration {
	if len(s.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s.samples {
		total += d
	}
	return total / time.Duration(len(s.samples))
}

func (s *readStats) max() time.Duration {
	var m time.Duration
	for _, d := range s.samples {
		if d > m {
			m = d
		}
	}
	return m
}
