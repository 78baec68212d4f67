package pipeline

import (
	"errors"
	"fmt"
)

// State is the capture loop state.
type State int32

const (
	// Idle is the initial state, and the state after a failed model load.
	Idle State = iota
	// Loading means the model is being loaded.
	Loading
	// Running means frames are being captured and classified.
	Running
	// Stopped means the loop ended by request or by a device failure.
	Stopped
)

var stateNames = [...]string{"idle", "loading", "running", "stopped"}

// String returns the lower-case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// CanStart reports whether a start request is accepted in this state.
func (s State) CanStart() bool {
	return s == Idle || s == Stopped
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("pipeline: unknown state %q", b)
}

// Sentinel errors for common conditions.
var (
	// ErrNotStartable is returned by Start while the loop is loading or running.
	ErrNotStartable = errors.New("pipeline: already loading or running")

	// ErrBusy is returned when a change needs the loop and inference to be idle.
	ErrBusy = errors.New("pipeline: loop is busy")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pipeline: loop closed")
)
