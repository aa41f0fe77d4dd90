package monitor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cncworks/spindletune"
	"github.com/cncworks/spindletune/datalog"
	"github.com/cncworks/spindletune/hal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPollerPublishesLatest(t *testing.T) {
	m := hal.NewMock(testLogger())
	sink := datalog.New(time.Minute, 10*time.Millisecond, testLogger())
	p := New(m, sink, 10*time.Millisecond, testLogger())

	assert.Nil(t, p.Latest(), "no snapshot before the first poll")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	snap := p.Latest()
	require.NotNil(t, snap)
	assert.Equal(t, spindletune.StateMock, snap.State)
	assert.Contains(t, snap.Values, "feedback")
	assert.Contains(t, snap.Values, "cmd_raw")
	assert.False(t, snap.At.IsZero())

	assert.NotEmpty(t, sink.PlotData().Times, "samples flow into the sink")
}

func TestPollerNilSink(t *testing.T) {
	m := hal.NewMock(testLogger())
	p := New(m, nil, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	assert.NotNil(t, p.Latest())
}

func TestSnapshotFaultHelpers(t *testing.T) {
	snap := &Snapshot{Values: map[string]float64{
		"encoder_fault": 1,
		"safety_chain":  0,
	}}
	assert.True(t, snap.EncoderFault())
	assert.True(t, snap.SafetyChainOpen())

	snap = &Snapshot{Values: map[string]float64{
		"encoder_fault": 0,
		"safety_chain":  1,
	}}
	assert.False(t, snap.EncoderFault())
	assert.False(t, snap.SafetyChainOpen())
}

func TestPollerDefaultInterval(t *testing.T) {
	p := New(hal.NewMock(testLogger()), nil, 0, testLogger())
	assert.Equal(t, spindletune.UpdateInterval, p.interval)
}
