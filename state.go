package eventserver

import (
	"sync/atomic"
)

// State represents the lifecycle state of an [Engine].
//
// State Machine:
//
//	StateStopped (0)  → StateStarting (1)  [Start()]
//	StateStarting (1) → StateRunning (2)   [startup hook succeeded]
//	StateRunning (2)  → StateStopping (3)  [Stop(), or the loop exiting]
//	StateStarting (1) → StateStopping (3)  [startup hook failed]
//	StateStopping (3) → StateDone (4)      [shutdown hook returned]
//	StateDone (4)     → (terminal)
//
// State Transition Rules:
//   - Start and Stop use TryTransition (CAS), so concurrent callers race
//     for a single winner, and calls from any other state are no-ops
//   - The run goroutine uses Store only for transitions no external caller
//     can contend with (Stopping, Done)
type State int32

const (
	// StateStopped indicates the engine has been created but not started.
	StateStopped State = iota
	// StateStarting indicates Start was called and the startup hook has not
	// yet completed.
	StateStarting
	// StateRunning indicates the engine is fetching and processing events.
	StateRunning
	// StateStopping indicates the loop has exited (or was asked to), and
	// the shutdown hook is running or about to run.
	StateStopping
	// StateDone indicates the lifecycle has completed. It is terminal.
	StateDone
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// atomicState is a lock-free lifecycle state holder.
type atomicState struct {
	v atomic.Int32
}

// Load returns the current state atomically.
func (s *atomicState) Load() State {
	return State(s.v.Load())
}

// Store atomically stores a new state, without validating the transition.
func (s *atomicState) Store(state State) {
	s.v.Store(int32(state))
}

// TryTransition attempts to atomically transition from one state to another.
// Returns true if the transition was successful.
func (s *atomicState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}
