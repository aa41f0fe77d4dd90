package spindletune

import "time"

const (
	AppTitle   = "Spindle Tuner"
	AppVersion = "1.0"

	// UpdateInterval is the monitor poll period (10Hz).
	UpdateInterval = 100 * time.Millisecond

	// HistoryDuration is how much plot history the sampler keeps. It must
	// cover the largest plot time scale.
	HistoryDuration = 120 * time.Second
)

// Direction is the commanded spindle rotation direction
type Direction int

const (
	DirectionStopped Direction = 0
	DirectionForward Direction = 1
	DirectionReverse Direction = -1
)

func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "Forward"
	case DirectionReverse:
		return "Reverse"
	default:
		fallthrough
	case DirectionStopped:
		return "Stopped"
	}
}

// ConnectionState is the HAL backend's connection lifecycle state
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateMock
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateMock:
		return "Mock"
	case StateError:
		return "Error"
	default:
		fallthrough
	case StateDisconnected:
		return "Disconnected"
	}
}

// Live reports whether pin reads are expected to succeed in this state
func (s ConnectionState) Live() bool {
	return s == StateConnected || s == StateMock
}
