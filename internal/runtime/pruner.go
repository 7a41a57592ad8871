package runtime

import (
	"log/slog"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
)

// Default bounds for persisted-state growth.
const (
	DefaultMaxCompletedFlows = 10
	DefaultMaxTrace          = 50
)

// Pruner enforces bounded growth of a DialogueState at the end of every turn.
// Its three passes are independent and idempotent, and never touch data
// belonging to a flow that is still on the stack.
type Pruner struct {
	maxCompleted int
	maxTrace     int
	logger       *slog.Logger
}

// PrunerOption configures a Pruner.
type PrunerOption func(*Pruner)

// WithMaxCompletedFlows bounds the completed-flow archive.
func WithMaxCompletedFlows(n int) PrunerOption {
	return func(p *Pruner) {
		if n > 0 {
			p.maxCompleted = n
		}
	}
}

// WithMaxTrace bounds the audit trace.
func WithMaxTrace(n int) PrunerOption {
	return func(p *Pruner) {
		if n > 0 {
			p.maxTrace = n
		}
	}
}

// WithPrunerLogger sets the logger.
func WithPrunerLogger(logger *slog.Logger) PrunerOption {
	return func(p *Pruner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPruner creates a Pruner with the default bounds.
func NewPruner(opts ...PrunerOption) *Pruner {
	p := &Pruner{
		maxCompleted: DefaultMaxCompletedFlows,
		maxTrace:     DefaultMaxTrace,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prune runs all three passes.
func (p *Pruner) Prune(st *domain.DialogueState) {
	p.pruneOrphanedSlots(st)
	st.TruncateCompletedFlows(p.maxCompleted)
	p.truncateTrace(st)
}

// pruneOrphanedSlots deletes slot storage and flow-scoped metadata whose flow
// is no longer on the stack (invariant 4).
func (p *Pruner) pruneOrphanedSlots(st *domain.DialogueState) {
	live := make(map[string]bool, len(st.FlowStack))
	for _, fc := range st.FlowStack {
		live[fc.FlowID] = true
	}
	for flowID := range st.FlowSlots {
		if !live[flowID] {
			delete(st.FlowSlots, flowID)
			p.logger.Debug("pruned orphaned slot storage", "flow_id", flowID)
		}
	}
	st.DropFlowScopedMeta(live)
}

func (p *Pruner) truncateTrace(st *domain.DialogueState) {
	if len(st.Trace) > p.maxTrace {
		st.Trace = st.Trace[len(st.Trace)-p.maxTrace:]
	}
}
