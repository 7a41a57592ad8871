package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/google/uuid"
)

// OverflowPolicy decides what happens when a push would exceed the max stack
// depth.
type OverflowPolicy string

const (
	// CancelOldest forcibly cancels the bottom-of-stack flow to make room.
	CancelOldest OverflowPolicy = "cancel_oldest"
	// RejectNew fails the push with a StackLimitError.
	RejectNew OverflowPolicy = "reject_new"
)

// DefaultMaxStackDepth bounds flow nesting. Real conversations rarely nest
// beyond two or three levels; anything deeper is usually a classifier loop.
const DefaultMaxStackDepth = 5

// Stack implements flow-instance stack operations over a DialogueState:
// push with pause-on-nesting, pop with resume, and scoped slot access against
// the active instance. It holds configuration only; all state lives in the
// DialogueState it operates on.
type Stack struct {
	maxDepth int
	policy   OverflowPolicy
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// StackOption configures a Stack.
type StackOption func(*Stack)

// WithMaxDepth sets the maximum nesting depth.
func WithMaxDepth(depth int) StackOption {
	return func(s *Stack) {
		if depth > 0 {
			s.maxDepth = depth
		}
	}
}

// WithOverflowPolicy sets the resolution policy for pushes beyond the limit.
func WithOverflowPolicy(p OverflowPolicy) StackOption {
	return func(s *Stack) {
		s.policy = p
	}
}

// WithStackLogger sets the logger.
func WithStackLogger(logger *slog.Logger) StackOption {
	return func(s *Stack) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) StackOption {
	return func(s *Stack) {
		s.now = now
	}
}

// WithIDGenerator overrides flow-id generation, for tests.
func WithIDGenerator(gen func() string) StackOption {
	return func(s *Stack) {
		s.newID = gen
	}
}

// NewStack creates a Stack with the default depth limit and cancel_oldest
// overflow policy.
func NewStack(opts ...StackOption) *Stack {
	s := &Stack{
		maxDepth: DefaultMaxStackDepth,
		policy:   CancelOldest,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push creates a new active flow instance on top of the stack. The previously
// active instance (if any) is paused with a timestamp so it can resume with
// its slots intact once the new flow is popped.
func (s *Stack) Push(st *domain.DialogueState, flowName string, inputs map[string]any) (string, error) {
	if len(st.FlowStack) >= s.maxDepth {
		switch s.policy {
		case CancelOldest:
			if err := s.cancelBottom(st); err != nil {
				return "", err
			}
		default:
			return "", &domain.StackLimitError{Limit: s.maxDepth, FlowName: flowName}
		}
	}

	now := s.now()
	if active := st.ActiveContext(); active != nil {
		active.State = domain.FlowPaused
		pausedAt := now
		active.PausedAt = &pausedAt
	}

	flowID := s.newID()
	st.FlowStack = append(st.FlowStack, domain.FlowContext{
		FlowID:    flowID,
		FlowName:  flowName,
		State:     domain.FlowActive,
		StartedAt: now,
	})

	// Slot storage exists from the moment the flow does (invariant 1).
	slots := st.Slots(flowID)
	for k, v := range inputs {
		slots[k] = v
	}

	st.AppendTrace(domain.TraceFlowPush, flowName+" ("+flowID+")", now)
	s.logger.Debug("flow pushed", "flow", flowName, "flow_id", flowID, "depth", len(st.FlowStack))
	return flowID, nil
}

// Pop removes the top flow instance, stamps its result, archives it into the
// bounded completed_flows metadata, and resumes the parent if one remains.
// Slot storage for the popped flow is intentionally left behind until the
// Pruner removes it, so consumers can still read outputs and recently-set
// slots immediately after the pop.
func (s *Stack) Pop(st *domain.DialogueState, outputs map[string]any, result domain.FlowState) (*domain.FlowContext, error) {
	if len(st.FlowStack) == 0 {
		return nil, domain.ErrEmptyStack
	}

	now := s.now()
	popped := st.FlowStack[len(st.FlowStack)-1]
	st.FlowStack = st.FlowStack[:len(st.FlowStack)-1]

	popped.State = result
	completedAt := now
	popped.CompletedAt = &completedAt
	if outputs != nil {
		popped.Outputs = outputs
	}

	st.AppendCompletedFlow(domain.ArchivedFlow{
		FlowID:      popped.FlowID,
		FlowName:    popped.FlowName,
		Result:      result,
		Outputs:     popped.Outputs,
		CompletedAt: now.UTC().Format(time.RFC3339),
	})
	st.ResetDigressionDepth(popped.FlowID)

	if parent := st.ActiveContext(); parent != nil {
		parent.State = domain.FlowActive
		parent.PausedAt = nil
	}

	st.AppendTrace(domain.TraceFlowPop, popped.FlowName+" "+string(result), now)
	s.logger.Debug("flow popped", "flow", popped.FlowName, "result", result, "depth", len(st.FlowStack))
	return &popped, nil
}

// SetSlot writes a value into the active flow's scoped slot storage.
// Writing with no active flow is a hard failure.
func (s *Stack) SetSlot(st *domain.DialogueState, name string, value any) error {
	active := st.ActiveContext()
	if active == nil {
		return domain.ErrNoActiveFlow
	}
	st.Slots(active.FlowID)[name] = value
	return nil
}

// GetSlot reads a value from the active flow's scoped slot storage.
// Reading with no active flow is a no-op miss.
func (s *Stack) GetSlot(st *domain.DialogueState, name string) (any, bool) {
	active := st.ActiveContext()
	if active == nil {
		return nil, false
	}
	v, ok := st.Slots(active.FlowID)[name]
	return v, ok
}

// Active returns the active flow context, or nil.
func (s *Stack) Active(st *domain.DialogueState) *domain.FlowContext {
	return st.ActiveContext()
}

// cancelBottom forcibly cancels the bottom-of-stack flow under the
// cancel_oldest policy.
func (s *Stack) cancelBottom(st *domain.DialogueState) error {
	if len(st.FlowStack) == 0 {
		return domain.ErrEmptyStack
	}
	now := s.now()
	bottom := st.FlowStack[0]
	st.FlowStack = st.FlowStack[1:]

	bottom.State = domain.FlowCancelled
	completedAt := now
	bottom.CompletedAt = &completedAt

	st.AppendCompletedFlow(domain.ArchivedFlow{
		FlowID:      bottom.FlowID,
		FlowName:    bottom.FlowName,
		Result:      domain.FlowCancelled,
		Outputs:     bottom.Outputs,
		CompletedAt: now.UTC().Format(time.RFC3339),
	})
	st.ResetDigressionDepth(bottom.FlowID)
	st.AppendTrace(domain.TraceFlowPop, bottom.FlowName+" cancelled (stack overflow)", now)
	s.logger.Warn("cancelled oldest flow to make room", "flow", bottom.FlowName, "flow_id", bottom.FlowID)
	return nil
}
