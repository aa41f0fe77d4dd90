package datalog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRingWrapsOldestFirst(t *testing.T) {
	r := newRing(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		r.push(v)
	}
	assert.Equal(t, []float64{3, 4, 5}, r.snapshot())

	r.clear()
	assert.Empty(t, r.snapshot())
	r.push(7)
	assert.Equal(t, []float64{7}, r.snapshot())
}

func TestLoggerBufferCapacity(t *testing.T) {
	// 120s at 100ms holds 1200 samples
	l := New(120*time.Second, 100*time.Millisecond, testLogger())
	assert.Equal(t, 1200, len(l.times.data))
}

func TestAddSampleDefaultsMissingKeys(t *testing.T) {
	l := New(time.Second, 100*time.Millisecond, testLogger())
	l.AddSample(map[string]float64{"feedback": 950})

	data := l.PlotData()
	require.Len(t, data.Feedback, 1)
	assert.Equal(t, 950.0, data.Feedback[0])
	assert.Equal(t, 0.0, data.Cmd[0], "missing keys read as zero")
}

func TestPlotDataReturnsCopies(t *testing.T) {
	l := New(time.Second, 100*time.Millisecond, testLogger())
	l.AddSample(map[string]float64{"cmd_raw": 1000})

	data := l.PlotData()
	data.Cmd[0] = -1

	assert.Equal(t, 1000.0, l.PlotData().Cmd[0], "mutating a snapshot must not touch the buffer")
}

func TestRecordingLifecycle(t *testing.T) {
	l := New(time.Second, 100*time.Millisecond, testLogger())

	l.AddSample(map[string]float64{"cmd_raw": 500})
	assert.Equal(t, 0, l.PointCount(), "nothing records until recording is on")

	l.SetRecording(true)
	l.AddSample(map[string]float64{"cmd_raw": 500, "at_speed": 1})
	l.AddSample(map[string]float64{"cmd_raw": 500})
	assert.Equal(t, 2, l.PointCount())

	l.ClearRecording()
	assert.Equal(t, 0, l.PointCount())
	assert.True(t, l.Recording(), "clearing the recording does not stop recording")

	session := l.Session()
	l.Clear()
	assert.NotEqual(t, session, l.Session(), "a full clear starts a new session")
	assert.Empty(t, l.PlotData().Times)
}

func TestExportCSVEmptyRecording(t *testing.T) {
	l := New(time.Second, 100*time.Millisecond, testLogger())
	path := filepath.Join(t.TempDir(), "empty.csv")

	assert.False(t, l.ExportCSV(path, nil))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no file may be created for an empty recording")
}

func TestExportCSV(t *testing.T) {
	l := New(time.Second, 100*time.Millisecond, testLogger())
	l.SetRecording(true)
	l.AddSample(map[string]float64{
		"cmd_raw": 1000, "cmd_limited": 800, "feedback": 795.5,
		"error": 4.5, "errorI": 12.25, "output": 810, "at_speed": 1,
	})
	l.AddSample(map[string]float64{"cmd_raw": 1000, "feedback": 990})

	path := filepath.Join(t.TempDir(), "session.csv")
	require.True(t, l.ExportCSV(path, map[string]string{"machine": "lathe"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4, "metadata, header, two points")

	assert.Equal(t, "# machine: lathe", lines[0])
	assert.Equal(t, csvHeader, lines[1])
	assert.Contains(t, lines[2], ",1000.00,800.00,795.50,4.500,12.250,810.000,1")
	assert.Contains(t, lines[3], ",1000.00,0.00,990.00,0.000,0.000,0.000,0")
}

func TestExportCSVBadPath(t *testing.T) {
	l := New(time.Second, 100*time.Millisecond, testLogger())
	l.SetRecording(true)
	l.AddSample(map[string]float64{"cmd_raw": 1})

	assert.False(t, l.ExportCSV(filepath.Join(t.TempDir(), "missing", "out.csv"), nil))
}

func TestExportChartHTML(t *testing.T) {
	l := New(time.Second, 100*time.Millisecond, testLogger())

	path := filepath.Join(t.TempDir(), "chart.html")
	assert.Error(t, l.ExportChartHTML(path, "empty"), "empty recording cannot chart")

	l.SetRecording(true)
	l.AddSample(map[string]float64{"cmd_raw": 1000, "feedback": 990})
	require.NoError(t, l.ExportChartHTML(path, "session"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Feedback")
}
