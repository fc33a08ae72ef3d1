package session

import "fmt"

// State is the overall workflow state of the search session.
type State string

const (
	StateIdle              State = "idle"
	StateStarting          State = "starting"
	StateRunning           State = "running"
	StateAwaitingSelection State = "awaiting_selection"
	StateAwaitingApproval  State = "awaiting_approval"
	StateCompleted         State = "completed"
	StateCancelled         State = "cancelled"
	StateFailed            State = "failed"
)

// Terminal reports whether the session must be reset before a new run.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Suspended reports whether the worker is deliberately kept alive, blocked
// on a user decision.
func (s State) Suspended() bool {
	return s == StateAwaitingSelection || s == StateAwaitingApproval
}

// FailureReason classifies why a session ended in StateFailed.
type FailureReason string

const (
	// ReasonUnexpectedExit: the worker died while interaction was pending.
	ReasonUnexpectedExit FailureReason = "unexpected_exit"
	// ReasonSpawnError: the worker never started.
	ReasonSpawnError FailureReason = "spawn_error"
)

// allowedTransitions is the complete legal state graph. Reset transitions
// back to idle are legal from every state and handled separately.
var allowedTransitions = map[State]map[State]struct{}{
	StateIdle: {
		StateStarting:  {},
		StateCancelled: {},
	},
	StateStarting: {
		StateRunning:   {},
		StateIdle:      {}, // spawn error: back to idle with the error surfaced
		StateFailed:    {},
		StateCancelled: {},
	},
	StateRunning: {
		StateAwaitingSelection: {},
		StateAwaitingApproval:  {},
		StateCompleted:         {},
		StateFailed:            {},
		StateCancelled:         {},
	},
	StateAwaitingSelection: {
		StateRunning:   {},
		StateCompleted: {},
		StateFailed:    {},
		StateCancelled: {},
	},
	StateAwaitingApproval: {
		StateRunning:   {},
		StateCompleted: {},
		StateFailed:    {},
		StateCancelled: {},
	},
	StateCompleted: {},
	StateCancelled: {},
	StateFailed:    {},
}

func validateTransition(from, to State) error {
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("invalid session transition: %s -> %s", from, to)
	}
	return nil
}
