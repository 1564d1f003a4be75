package assets

import (
	"fmt"
	"sync"
)

// State is the phase of a build.
type State string

const (
	StateIdle         State = "idle"
	StateResolving    State = "resolving"
	StateTransforming State = "transforming"
	StateNaming       State = "naming"
	StateComplete     State = "complete"
	StateFailed       State = "failed"
)

// IsTerminal reports whether the build has finished.
func IsTerminal(s State) bool {
	return s == StateComplete || s == StateFailed
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateResolving
	case StateResolving:
		return to == StateTransforming || to == StateFailed
	case StateTransforming:
		return to == StateNaming || to == StateFailed
	case StateNaming:
		return to == StateComplete || to == StateFailed
	case StateComplete, StateFailed:
		return to == StateIdle
	default:
		return false
	}
}

// stateMachine tracks the phase of the current build.
type stateMachine struct {
	mu  sync.Mutex
	cur State
}

func newStateMachine() *stateMachine {
	return &stateMachine{cur: StateIdle}
}

func (s *stateMachine) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Transition moves to the next phase, rejecting transitions the build flow
// does not allow.
func (s *stateMachine) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !isAllowedTransition(s.cur, to) {
		return fmt.Errorf("disallowed build transition: %s -> %s", s.cur, to)
	}
	s.cur = to
	return nil
}

// Reset returns a finished machine to idle so the next build can start.
func (s *stateMachine) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if IsTerminal(s.cur) {
		s.cur = StateIdle
	}
}
