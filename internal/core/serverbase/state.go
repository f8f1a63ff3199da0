// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"errors"
	"fmt"
)

// ErrInvalidState is wrapped by Validate for unknown states.
var ErrInvalidState = errors.New("invalid state")

// Lifecycle states of a listener. Stopped and Failed are terminal.
const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

// State is the lifecycle state of a listener.
type State int32

var stateNames = [...]string{
	StateCreated:  "created",
	StateStarting: "starting",
	StateRunning:  "running",
	StateStopping: "stopping",
	StateStopped:  "stopped",
	StateFailed:   "failed",
}

func (s State) String() string {
	if !s.known() {
		return "unknown"
	}
	return stateNames[s]
}

// Validate reports an unknown state as an error wrapping ErrInvalidState.
func (s State) Validate() error {
	if !s.known() {
		return fmt.Errorf("%w: %d", ErrInvalidState, int32(s))
	}
	return nil
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

func (s State) known() bool {
	return s >= StateCreated && int(s) < len(stateNames)
}
