package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrThreadNotFound is returned when a thread ID cannot be found in the store.
var ErrThreadNotFound = errors.New("thread not found")

// ErrEmptyStack is returned when pop is attempted on an empty flow stack.
var ErrEmptyStack = errors.New("flow stack is empty")

// ErrNoActiveFlow is returned when a slot write is attempted with no active flow.
var ErrNoActiveFlow = errors.New("no active flow")

// ErrResumeMismatch is returned when a resume call does not match the
// checkpointed suspension, either no pending action or a stale token.
var ErrResumeMismatch = errors.New("resume does not match suspended action")

// InvalidTransitionError reports an attempted conversation-state edge that is
// not in the transition table. It is a programming-contract violation and is
// never retried.
type InvalidTransitionError struct {
	Current   ConversationState
	Attempted ConversationState
	Allowed   []ConversationState
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("invalid transition %s -> %s (allowed: %s)",
		e.Current, e.Attempted, strings.Join(allowed, ", "))
}

// InconsistentStateError reports a violated data-model invariant.
type InconsistentStateError struct {
	Invariant int
	Detail    string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("inconsistent state (invariant %d): %s", e.Invariant, e.Detail)
}

// StackLimitError reports that a push would exceed the configured max stack
// depth under the reject_new overflow policy.
type StackLimitError struct {
	Limit    int
	FlowName string
}

func (e *StackLimitError) Error() string {
	return fmt.Sprintf("flow stack limit %d reached, cannot push %q", e.Limit, e.FlowName)
}

// UnderstandingError wraps a failure of the Understanding collaborator.
// It is not retried within the turn; the engine falls back to the error
// conversation state and resets to understanding for the next turn.
type UnderstandingError struct {
	Cause error
}

func (e *UnderstandingError) Error() string {
	return fmt.Sprintf("understanding failed: %v", e.Cause)
}

func (e *UnderstandingError) Unwrap() error { return e.Cause }

// ActionError wraps a failure of the Action collaborator.
type ActionError struct {
	Name  string
	Cause error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %q failed: %v", e.Name, e.Cause)
}

func (e *ActionError) Unwrap() error { return e.Cause }

// MalformedStateError reports a persisted record missing required fields.
type MalformedStateError struct {
	Missing []string
}

func (e *MalformedStateError) Error() string {
	return fmt.Sprintf("malformed dialogue state: missing %s", strings.Join(e.Missing, ", "))
}
