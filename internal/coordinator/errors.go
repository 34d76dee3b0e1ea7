package coordinator

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrPlanning is wrapped by every *PlanningError.
	ErrPlanning = errors.New("coordinator: planning failed")

	// ErrAgentInvocation marks a failed agent call. It is logged per subtask
	// and never aborts a session.
	ErrAgentInvocation = errors.New("coordinator: agent invocation failed")

	// ErrStrategyNotImplemented is never returned: every strategy executes.
	// It is kept so callers can name the kind.
	ErrStrategyNotImplemented = errors.New("coordinator: strategy not implemented")

	// ErrResourceAllocationFailed is wrapped when participants lack the
	// capacity for a session's assignment.
	ErrResourceAllocationFailed = errors.New("coordinator: resource allocation failed")

	// ErrCommunicationFailed marks a failed side-channel message.
	ErrCommunicationFailed = errors.New("coordinator: communication failed")

	// ErrDependencyViolation is wrapped when a task's dependency graph has a
	// cycle.
	ErrDependencyViolation = errors.New("coordinator: dependency violation")

	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("coordinator: session not found")

	// ErrSessionBusy is returned when a session is already being driven.
	ErrSessionBusy = errors.New("coordinator: session busy")

	// ErrSessionActive is returned when archiving a non-terminal session.
	ErrSessionActive = errors.New("coordinator: session still active")
)

// PlanningError aborts a drive before any subtask is dispatched.
type PlanningError struct {
	SessionID string
	SubtaskID string // empty when the failure is not tied to a subtask
	Reason    string
	Err       error // optional underlying cause
}

func (e *PlanningError) Error() string {
	msg := fmt.Sprintf("coordinator: planning session %s: %s", e.SessionID, e.Reason)
	if e.SubtaskID != "" {
		msg += " " + e.SubtaskID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes ErrPlanning and the underlying cause to errors.Is/As.
func (e *PlanningError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPlanning}
	}
	return []error{ErrPlanning, e.Err}
}
