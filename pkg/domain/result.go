package domain

// ActionInvocation describes a side-effect the engine wants the host (or the
// injected ActionExecutor) to perform.
type ActionInvocation struct {
	Name   string         `json:"name"`
	StepID string         `json:"step_id"`
	Inputs map[string]any `json:"inputs,omitempty"`
}

// Suspension is returned when a turn cannot finish without the host: the
// engine has checkpointed at a well-defined wait point and expects the caller
// to persist the state and later supply the token back via Resume. There is
// no hidden coroutine machinery; this value is the whole resume contract.
type Suspension struct {
	// Reason is "action" when the engine is waiting on an external action.
	Reason string `json:"reason"`

	// ResumeToken must be echoed back to Resume together with the outputs.
	ResumeToken string `json:"resume_token"`

	// Action carries the invocation the host is expected to execute.
	Action *ActionInvocation `json:"action,omitempty"`
}

// TurnResult is the externally visible outcome of one advance call.
type TurnResult struct {
	// Response is the user-facing text for this turn. Fatal paths produce a
	// templated apology here; raw error detail stays in the trace.
	Response string `json:"response_text"`

	// Conversation is the resting conversation state after the turn.
	Conversation ConversationState `json:"conversation_state"`

	// Suspension is non-nil when the turn paused at an action wait point.
	Suspension *Suspension `json:"suspension,omitempty"`
}
