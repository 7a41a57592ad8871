package domain

import "time"

// FlowState describes the lifecycle of a single flow instance on the stack.
type FlowState string

const (
	FlowActive    FlowState = "active"
	FlowPaused    FlowState = "paused"
	FlowCompleted FlowState = "completed"
	FlowCancelled FlowState = "cancelled"
	FlowAbandoned FlowState = "abandoned"
	FlowError     FlowState = "error"
)

// IsTerminal reports whether a flow in this state can never become active again.
func (s FlowState) IsTerminal() bool {
	switch s {
	case FlowCompleted, FlowCancelled, FlowAbandoned, FlowError:
		return true
	default:
		return false
	}
}

// FlowContext is one running occurrence of a flow definition, tracked on the
// flow stack. The last element of the stack is the active instance; any
// instances below it are paused until it is popped.
type FlowContext struct {
	FlowID      string         `json:"flow_id"`
	FlowName    string         `json:"flow_name"`
	State       FlowState      `json:"state"`
	CurrentStep string         `json:"current_step,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	PausedAt    *time.Time     `json:"paused_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// TraceEntry is one line of the append-only audit log kept inside the state.
// The Pruner truncates the trace to a bounded length at the end of each turn.
type TraceEntry struct {
	Turn   int       `json:"turn"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Trace kinds.
const (
	TraceTurn       = "turn"
	TraceTransition = "transition"
	TraceFlowPush   = "flow_push"
	TraceFlowPop    = "flow_pop"
	TraceSlot       = "slot"
	TraceAction     = "action"
	TraceError      = "error"
)

// StateVersion is the current serialization version of DialogueState.
const StateVersion = 1

// DialogueState is the complete persisted state of one conversation thread.
// It is created on the first turn, mutated on every turn by a single writer,
// and pruned (never deleted) at the end of each turn.
type DialogueState struct {
	Version      int                       `json:"version"`
	ThreadID     string                    `json:"thread_id"`
	TurnCount    int                       `json:"turn_count"`
	Conversation ConversationState         `json:"conversation_state"`
	FlowStack    []FlowContext             `json:"flow_stack"`
	FlowSlots    map[string]map[string]any `json:"flow_slots"`

	// WaitingForSlot names the slot the engine is blocked on. It is non-empty
	// only while Conversation == StateWaitingForSlot.
	WaitingForSlot string `json:"waiting_for_slot,omitempty"`

	Trace    []TraceEntry   `json:"trace"`
	Metadata map[string]any `json:"metadata"`
}

// NewDialogueState creates a fresh idle state for a thread.
func NewDialogueState(threadID string) *DialogueState {
	return &DialogueState{
		Version:      StateVersion,
		ThreadID:     threadID,
		Conversation: StateIdle,
		FlowStack:    []FlowContext{},
		FlowSlots:    map[string]map[string]any{},
		Trace:        []TraceEntry{},
		Metadata:     map[string]any{},
	}
}

// ActiveContext returns the top of the flow stack, or nil when idle.
func (s *DialogueState) ActiveContext() *FlowContext {
	if len(s.FlowStack) == 0 {
		return nil
	}
	return &s.FlowStack[len(s.FlowStack)-1]
}

// StackDepth returns the number of flow instances currently on the stack.
func (s *DialogueState) StackDepth() int {
	return len(s.FlowStack)
}

// Slots returns the scoped slot map for a flow instance, creating it if absent.
func (s *DialogueState) Slots(flowID string) map[string]any {
	if s.FlowSlots == nil {
		s.FlowSlots = map[string]map[string]any{}
	}
	m, ok := s.FlowSlots[flowID]
	if !ok {
		m = map[string]any{}
		s.FlowSlots[flowID] = m
	}
	return m
}

// AppendTrace records an audit entry stamped with the current turn.
func (s *DialogueState) AppendTrace(kind, detail string, at time.Time) {
	s.Trace = append(s.Trace, TraceEntry{
		Turn:   s.TurnCount,
		Kind:   kind,
		Detail: detail,
		At:     at,
	})
}
