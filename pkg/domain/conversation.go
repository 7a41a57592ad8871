package domain

// ConversationState is the phase of the per-turn state machine.
//
// Lifecycle:
//
//	idle → understanding → {waiting_for_slot, validating_slot, executing_action, error, idle}
//	validating_slot → {collecting, waiting_for_slot, error}
//	collecting → {understanding, validating_slot, executing_action}
//	executing_action → {generating_response, error}
//	generating_response → {idle, understanding}
//	error → {idle, understanding}
//
// There is no terminal state: idle is both the initial state and a valid
// resting point between turns.
type ConversationState string

const (
	StateIdle               ConversationState = "idle"
	StateUnderstanding      ConversationState = "understanding"
	StateWaitingForSlot     ConversationState = "waiting_for_slot"
	StateValidatingSlot     ConversationState = "validating_slot"
	StateCollecting         ConversationState = "collecting"
	StateExecutingAction    ConversationState = "executing_action"
	StateGeneratingResponse ConversationState = "generating_response"
	StateError              ConversationState = "error"
)

// allowedTransitions is the single source of truth for legal edges.
var allowedTransitions = map[ConversationState][]ConversationState{
	StateIdle:               {StateUnderstanding},
	StateUnderstanding:      {StateWaitingForSlot, StateValidatingSlot, StateExecutingAction, StateError, StateIdle},
	StateWaitingForSlot:     {StateUnderstanding},
	StateValidatingSlot:     {StateCollecting, StateWaitingForSlot, StateError},
	StateCollecting:         {StateUnderstanding, StateValidatingSlot, StateExecutingAction},
	StateExecutingAction:    {StateGeneratingResponse, StateError},
	StateGeneratingResponse: {StateIdle, StateUnderstanding},
	StateError:              {StateIdle, StateUnderstanding},
}

// CanTransition reports whether the edge s → next is in the transition table.
func (s ConversationState) CanTransition(next ConversationState) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the legal outgoing edges from s.
func (s ConversationState) AllowedTransitions() []ConversationState {
	out := make([]ConversationState, len(allowedTransitions[s]))
	copy(out, allowedTransitions[s])
	return out
}

// Valid reports whether s is one of the eight known states.
func (s ConversationState) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}
