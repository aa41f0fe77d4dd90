// Package monitor polls the HAL backend at a fixed rate and publishes the
// newest snapshot through a single atomically-swapped slot, so a slow
// consumer only ever sees fresh data and never builds a backlog.
package monitor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cncworks/spindletune"
	"github.com/cncworks/spindletune/datalog"
	"github.com/cncworks/spindletune/hal"
)

// Snapshot is one poll of every monitored signal
type Snapshot struct {
	Values map[string]float64
	At     time.Time
	State  spindletune.ConnectionState
}

// EncoderFault reports whether the snapshot shows an encoder problem
func (s *Snapshot) EncoderFault() bool {
	return s.Values["encoder_fault"] > 0.5
}

// SafetyChainOpen reports whether the external-ok chain has dropped
func (s *Snapshot) SafetyChainOpen() bool {
	return s.Values["safety_chain"] < 0.5
}

// Poller drives the monitor loop
type Poller struct {
	hal      hal.Interface
	sink     *datalog.Logger
	interval time.Duration
	logger   *slog.Logger

	latest atomic.Pointer[Snapshot]
}

// New builds a poller. sink may be nil if samples should not be logged.
func New(h hal.Interface, sink *datalog.Logger, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = spindletune.UpdateInterval
	}
	return &Poller{hal: h, sink: sink, interval: interval, logger: logger}
}

// Run polls until the context is canceled. Each tick overwrites the latest
// snapshot; nothing queues. A dead backend gets a reconnect nudge, rate
// limited by the backend's own backoff.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("monitor started", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("monitor stopped")
			return
		case <-ticker.C:
		}

		state := p.hal.State()
		if !state.Live() {
			if p.hal.Reconnect() {
				p.logger.Info("backend reconnected")
			}
			continue
		}

		values := p.hal.AllValues()
		snap := &Snapshot{Values: values, At: time.Now(), State: state}
		p.latest.Store(snap)

		if p.sink != nil {
			p.sink.AddSample(values)
		}
	}
}

// Latest returns the newest snapshot, nil before the first successful poll
func (p *Poller) Latest() *Snapshot {
	return p.latest.Load()
}
