package runtime

import (
	"fmt"

	"github.com/aretw0/cadence/pkg/domain"
)

// Validator checks conversation-state transitions and data-model consistency.
// It is a pure value with no mutable state of its own.
type Validator struct{}

// Validate checks that the edge current -> next is legal.
func (Validator) Validate(current, next domain.ConversationState) error {
	if current.CanTransition(next) {
		return nil
	}
	return &domain.InvalidTransitionError{
		Current:   current,
		Attempted: next,
		Allowed:   current.AllowedTransitions(),
	}
}

// ValidateConsistency checks the structural invariants of a DialogueState:
//
//  1. every flow on the stack has a slot map entry;
//  2. at most one stack entry is active, and only the top one;
//  3. waiting_for_slot is set only with a non-empty stack in the
//     waiting_for_slot conversation state.
//
// Violations are programming-contract errors, never retried.
func (Validator) ValidateConsistency(s *domain.DialogueState) error {
	for _, fc := range s.FlowStack {
		if _, ok := s.FlowSlots[fc.FlowID]; !ok {
			return &domain.InconsistentStateError{
				Invariant: 1,
				Detail:    fmt.Sprintf("flow %s (%s) has no slot storage", fc.FlowID, fc.FlowName),
			}
		}
	}

	for i, fc := range s.FlowStack {
		isTop := i == len(s.FlowStack)-1
		if fc.State == domain.FlowActive && !isTop {
			return &domain.InconsistentStateError{
				Invariant: 2,
				Detail:    fmt.Sprintf("non-top flow %s is active", fc.FlowID),
			}
		}
		if !isTop && fc.State != domain.FlowPaused {
			return &domain.InconsistentStateError{
				Invariant: 2,
				Detail:    fmt.Sprintf("nested flow %s is %s, want paused", fc.FlowID, fc.State),
			}
		}
	}

	if s.WaitingForSlot != "" {
		if len(s.FlowStack) == 0 {
			return &domain.InconsistentStateError{
				Invariant: 3,
				Detail:    fmt.Sprintf("waiting for slot %q with empty flow stack", s.WaitingForSlot),
			}
		}
		if s.Conversation != domain.StateWaitingForSlot {
			return &domain.InconsistentStateError{
				Invariant: 3,
				Detail: fmt.Sprintf("waiting for slot %q in conversation state %s",
					s.WaitingForSlot, s.Conversation),
			}
		}
	}
	return nil
}
