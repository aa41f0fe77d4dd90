// Package datalog buffers monitor samples for plotting, records sessions
// for export, and computes the step/load performance metrics the tuning
// procedures are scored with.
package datalog

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Point is one recorded sample with its wall-clock timestamp
type Point struct {
	Wall       time.Time
	Time       float64
	CmdRaw     float64
	CmdLimited float64
	Feedback   float64
	Error      float64
	ErrorI     float64
	Output     float64
	AtSpeed    bool
}

// PlotData is a consistent copy of the plot buffers taken under one lock
type PlotData struct {
	Times    []float64
	Cmd      []float64
	Feedback []float64
	Error    []float64
	ErrorI   []float64
}

// ring is a fixed-capacity circular buffer of float64
type ring struct {
	data []float64
	head int
	n    int
}

func newRing(capacity int) *ring {
	return &ring{data: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
	if r.n < len(r.data) {
		r.n++
	}
}

// snapshot copies the buffer contents oldest-first
func (r *ring) snapshot() []float64 {
	out := make([]float64, r.n)
	start := r.head - r.n
	if start < 0 {
		start += len(r.data)
	}
	for i := 0; i < r.n; i++ {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}

func (r *ring) clear() {
	r.head = 0
	r.n = 0
}

// Logger collects samples into bounded plot buffers and, when recording is
// on, an unbounded session list
type Logger struct {
	mu sync.Mutex

	times    *ring
	cmd      *ring
	feedback *ring
	errs     *ring
	errI     *ring

	recording bool
	recorded  []Point

	session uuid.UUID
	started time.Time
	elapsed func() float64

	log *slog.Logger
}

// New sizes the plot buffers to hold bufferDuration of history at the given
// sample interval
func New(bufferDuration, interval time.Duration, log *slog.Logger) *Logger {
	capacity := int(bufferDuration / interval)
	if capacity < 1 {
		capacity = 1
	}

	started := time.Now()
	return &Logger{
		times:    newRing(capacity),
		cmd:      newRing(capacity),
		feedback: newRing(capacity),
		errs:     newRing(capacity),
		errI:     newRing(capacity),
		session:  uuid.New(),
		started:  started,
		elapsed:  func() float64 { return time.Since(started).Seconds() },
		log:      log,
	}
}

// AddSample appends one monitor snapshot. Missing keys read as zero.
func (l *Logger) AddSample(values map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.elapsed()
	l.times.push(now)
	l.cmd.push(values["cmd_raw"])
	l.feedback.push(values["feedback"])
	l.errs.push(values["error"])
	l.errI.push(values["errorI"])

	if l.recording {
		l.recorded = append(l.recorded, Point{
			Wall:       time.Now(),
			Time:       now,
			CmdRaw:     values["cmd_raw"],
			CmdLimited: values["cmd_limited"],
			Feedback:   values["feedback"],
			Error:      values["error"],
			ErrorI:     values["errorI"],
			Output:     values["output"],
			AtSpeed:    values["at_speed"] > 0.5,
		})
	}
}

// PlotData returns copies of every plot buffer from a single lock epoch
func (l *Logger) PlotData() PlotData {
	l.mu.Lock()
	defer l.mu.Unlock()

	return PlotData{
		Times:    l.times.snapshot(),
		Cmd:      l.cmd.snapshot(),
		Feedback: l.feedback.snapshot(),
		Error:    l.errs.snapshot(),
		ErrorI:   l.errI.snapshot(),
	}
}

// SetRecording turns session recording on or off. Turning it on does not
// clear what was already recorded.
func (l *Logger) SetRecording(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recording = on
}

func (l *Logger) Recording() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recording
}

func (l *Logger) PointCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recorded)
}

func (l *Logger) ClearRecording() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recorded = nil
}

// Clear drops plot history and the recording, starting a fresh session
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.times.clear()
	l.cmd.clear()
	l.feedback.clear()
	l.errs.clear()
	l.errI.clear()
	l.recorded = nil
	l.session = uuid.New()
	l.log.Info("new session", "session", l.session)
}

func (l *Logger) Session() uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// points returns a copy of the recorded session
func (l *Logger) points() []Point {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Point, len(l.recorded))
	copy(out, l.recorded)
	return out
}
