package hal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cncworks/spindletune"
)

// writeFakeHalcmd drops a stand-in halcmd script that answers the handshake
// and knows two pins; everything else fails the way halcmd does, with a
// nonzero exit and a message on stderr
func writeFakeHalcmd(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "halcmd")
	script := `#!/bin/sh
case "$1" in
show) exit 0 ;;
getp)
  case "$2" in
  pid.s.Pgain) echo "0.10" ;;
  spindle-is-at-speed) echo "TRUE" ;;
  *) echo "HAL:0: pin '$2' does not exist" >&2; exit 1 ;;
  esac ;;
*) exit 0 ;;
esac
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestLiveReadsPins(t *testing.T) {
	l, err := NewLive(writeFakeHalcmd(t), testLogger())
	require.NoError(t, err)
	require.Equal(t, spindletune.StateConnected, l.State())

	v, err := l.PinValue("pid.s.Pgain")
	require.NoError(t, err)
	assert.Equal(t, 0.10, v)

	v, err = l.PinValue("spindle-is-at-speed")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v, "bit pins parse TRUE as 1")
}

func TestLiveUnknownPinIsNotFound(t *testing.T) {
	l, err := NewLive(writeFakeHalcmd(t), testLogger())
	require.NoError(t, err)

	_, err = l.PinValue("no-such-pin")
	assert.ErrorIs(t, err, ErrPinNotFound)
	assert.NotErrorIs(t, err, ErrConnection)
	assert.Equal(t, spindletune.StateConnected, l.State(),
		"an unknown pin is not a connection problem")
}

func TestLiveDeadBackendIsConnectionError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "halcmd-gone")
	l, err := NewLive(missing, testLogger())
	require.NoError(t, err)
	assert.Equal(t, spindletune.StateError, l.State())

	_, err = l.PinValue("pid.s.Pgain")
	assert.ErrorIs(t, err, ErrConnection)
	assert.NotErrorIs(t, err, ErrPinNotFound,
		"an unreachable HAL must not read as a missing pin")

	d := l.Diagnostics()
	assert.NotEmpty(t, d.LastError)
}
