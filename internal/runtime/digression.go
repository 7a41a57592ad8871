package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
)

// ResolutionKind is the routing decision for a non-slot-bearing message.
type ResolutionKind int

const (
	// ResolutionPushed: a flow was pushed (fresh or nested); advance it.
	ResolutionPushed ResolutionKind = iota
	// ResolutionAnswered: answered inline; the flow stack is untouched and
	// the paused flow's step pointer is exactly where it was.
	ResolutionAnswered
	// ResolutionCancelled: the active flow was popped as cancelled.
	ResolutionCancelled
	// ResolutionConfirmed: a pending confirm step received a clear answer.
	ResolutionConfirmed
	// ResolutionRetry: the answer was unclear; re-prompt, bounded.
	ResolutionRetry
	// ResolutionFailed: the retry bound was exceeded; fail the step with a
	// terminal error transition instead of looping forever.
	ResolutionFailed
	// ResolutionProceed: nothing to resolve; continue normal advancement.
	ResolutionProceed
)

// Resolution is the outcome of resolving a digression-family classification.
type Resolution struct {
	Kind     ResolutionKind
	Response string
	FlowName string
}

// DefaultMaxRetries bounds consecutive unclear confirmation answers.
const DefaultMaxRetries = 3

// DefaultMaxDigressionDepth bounds inline-answered digressions per flow
// instance. The counter resets when the flow is popped.
const DefaultMaxDigressionDepth = 5

// DigressionResolver decides how interruptions, digressions, clarifications,
// cancellations, and confirmations are handled. It is stateful only through
// the DialogueState it operates on: the same classification requires
// different handling depending on stack depth, and every path that could
// loop carries an explicit bound.
type DigressionResolver struct {
	stack              *Stack
	loader             ports.FlowLoader
	knowledge          ports.KnowledgeSource
	maxRetries         int
	maxDigressionDepth int
	logger             *slog.Logger
}

// ResolverOption configures a DigressionResolver.
type ResolverOption func(*DigressionResolver)

// WithMaxRetries sets the confirmation retry bound.
func WithMaxRetries(n int) ResolverOption {
	return func(r *DigressionResolver) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

// WithMaxDigressionDepth sets the per-flow inline digression bound.
func WithMaxDigressionDepth(n int) ResolverOption {
	return func(r *DigressionResolver) {
		if n > 0 {
			r.maxDigressionDepth = n
		}
	}
}

// WithResolverKnowledge sets the read-only source for inline answers.
func WithResolverKnowledge(ks ports.KnowledgeSource) ResolverOption {
	return func(r *DigressionResolver) {
		r.knowledge = ks
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *DigressionResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewDigressionResolver creates a resolver with default bounds.
func NewDigressionResolver(stack *Stack, loader ports.FlowLoader, opts ...ResolverOption) *DigressionResolver {
	r := &DigressionResolver{
		stack:              stack,
		loader:             loader,
		maxRetries:         DefaultMaxRetries,
		maxDigressionDepth: DefaultMaxDigressionDepth,
		logger:             logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve routes a classification. The type switch is exhaustive over the
// sealed classification set; slot-bearing variants fall through to
// ResolutionProceed because SlotProcessor owns them.
func (r *DigressionResolver) Resolve(ctx context.Context, st *domain.DialogueState, def *domain.FlowDefinition, c domain.Classification) (Resolution, error) {
	switch v := c.(type) {
	case domain.Interruption:
		return r.interrupt(st, v)
	case domain.Digression:
		return r.answerInline(ctx, st, v.Topic)
	case domain.Clarification:
		return r.clarify(ctx, st, def, v.Topic)
	case domain.Cancellation:
		return r.cancel(st)
	case domain.Confirmation:
		return r.confirm(st, def, v)
	case domain.SlotValue, domain.Correction, domain.Modification, domain.Continuation:
		return Resolution{Kind: ResolutionProceed}, nil
	default:
		// Unreachable while the sum type stays sealed.
		return Resolution{}, fmt.Errorf("unhandled classification %q", c.Tag())
	}
}

// interrupt pushes the named flow. With an empty stack this starts it
// normally; with a non-empty stack it nests, pausing the current flow.
func (r *DigressionResolver) interrupt(st *domain.DialogueState, v domain.Interruption) (Resolution, error) {
	if v.FlowName == "" {
		return Resolution{
			Kind:     ResolutionRetry,
			Response: "Which task would you like to start?",
		}, nil
	}
	if _, err := r.loader.GetFlow(v.FlowName); err != nil {
		r.logger.Debug("interruption named unknown flow", "flow", v.FlowName, "err", err)
		return Resolution{
			Kind:     ResolutionRetry,
			Response: fmt.Sprintf("I don't know how to %q. What would you like to do?", v.FlowName),
		}, nil
	}
	if _, err := r.stack.Push(st, v.FlowName, nil); err != nil {
		return Resolution{}, err
	}
	return Resolution{Kind: ResolutionPushed, FlowName: v.FlowName}, nil
}

// answerInline answers a digression from the knowledge source and leaves the
// flow stack completely untouched, so the next turn re-enters at exactly the
// step the user digressed from. Inline answers are bounded per flow instance;
// past the bound the user is steered back instead of answered.
func (r *DigressionResolver) answerInline(ctx context.Context, st *domain.DialogueState, topic string) (Resolution, error) {
	if active := st.ActiveContext(); active != nil {
		depth := st.BumpDigressionDepth(active.FlowID)
		if depth > r.maxDigressionDepth {
			r.logger.Debug("digression depth exceeded", "flow_id", active.FlowID, "depth", depth)
			return Resolution{
				Kind:     ResolutionAnswered,
				Response: "Let's finish what we started first — " + r.pendingPrompt(st),
			}, nil
		}
	}

	answer := "I don't have an answer for that."
	if r.knowledge != nil {
		if a, err := r.knowledge.Answer(ctx, topic); err == nil && a != "" {
			answer = a
		}
	}
	if st.ActiveContext() != nil {
		answer += " Now, back to where we were: " + r.pendingPrompt(st)
	}
	return Resolution{Kind: ResolutionAnswered, Response: answer}, nil
}

// clarify explains what the engine is currently waiting for.
func (r *DigressionResolver) clarify(ctx context.Context, st *domain.DialogueState, def *domain.FlowDefinition, topic string) (Resolution, error) {
	if st.ActiveContext() == nil || def == nil {
		return r.answerInline(ctx, st, topic)
	}
	prompt := r.pendingPrompt(st)
	if slot := st.WaitingForSlot; slot != "" {
		if spec, ok := def.Slot(slot); ok && spec.Prompt != "" {
			prompt = spec.Prompt
		}
	}
	return Resolution{Kind: ResolutionAnswered, Response: prompt}, nil
}

// cancel pops the active flow as cancelled; the parent (if any) resumes.
func (r *DigressionResolver) cancel(st *domain.DialogueState) (Resolution, error) {
	if len(st.FlowStack) == 0 {
		return Resolution{
			Kind:     ResolutionAnswered,
			Response: "There's nothing in progress to cancel.",
		}, nil
	}
	popped, err := r.stack.Pop(st, nil, domain.FlowCancelled)
	if err != nil {
		return Resolution{}, err
	}
	resp := fmt.Sprintf("Okay, I've cancelled %s.", popped.FlowName)
	if parent := st.ActiveContext(); parent != nil {
		resp += fmt.Sprintf(" Back to %s.", parent.FlowName)
	}
	return Resolution{Kind: ResolutionCancelled, Response: resp, FlowName: popped.FlowName}, nil
}

// confirm handles a yes/no answer to a pending confirm step. Unclear answers
// are re-prompted at most maxRetries times; after that the step fails with a
// terminal error transition rather than looping forever.
func (r *DigressionResolver) confirm(st *domain.DialogueState, def *domain.FlowDefinition, v domain.Confirmation) (Resolution, error) {
	step, ok := r.pendingConfirmStep(st, def)
	if !ok {
		// No confirm step pending: a stray "yes" is just a continuation.
		return Resolution{Kind: ResolutionProceed}, nil
	}

	retryKey := "confirm:" + step.ID
	if !v.Clear {
		n := st.BumpRetryCounter(retryKey)
		if n > r.maxRetries {
			r.logger.Warn("confirmation retries exhausted", "step", step.ID, "attempts", n)
			return Resolution{
				Kind:     ResolutionFailed,
				Response: "I couldn't get a clear answer, so I've stopped here.",
			}, nil
		}
		return Resolution{
			Kind:     ResolutionRetry,
			Response: r.confirmPrompt(step) + " (yes/no)",
		}, nil
	}

	st.ResetRetryCounter(retryKey)
	if err := r.stack.SetSlot(st, step.ConfirmSlot(), v.Affirmed); err != nil {
		return Resolution{}, err
	}
	return Resolution{Kind: ResolutionConfirmed}, nil
}

// pendingConfirmStep returns the active flow's current step when it is a
// confirm step awaiting its answer.
func (r *DigressionResolver) pendingConfirmStep(st *domain.DialogueState, def *domain.FlowDefinition) (domain.Step, bool) {
	active := st.ActiveContext()
	if active == nil || def == nil {
		return domain.Step{}, false
	}
	idx := def.StepIndex(active.CurrentStep)
	if idx < 0 {
		return domain.Step{}, false
	}
	step := def.Steps[idx]
	if step.Kind != domain.StepConfirm {
		return domain.Step{}, false
	}
	if _, answered := r.stack.GetSlot(st, step.ConfirmSlot()); answered {
		return domain.Step{}, false
	}
	return step, true
}

func (r *DigressionResolver) confirmPrompt(step domain.Step) string {
	if step.Prompt != "" {
		return step.Prompt
	}
	return "Shall I go ahead?"
}

// pendingPrompt reconstructs what the engine was asking for before the
// digression.
func (r *DigressionResolver) pendingPrompt(st *domain.DialogueState) string {
	if slot := st.WaitingForSlot; slot != "" {
		return fmt.Sprintf("what is the %s?", slot)
	}
	if active := st.ActiveContext(); active != nil {
		return fmt.Sprintf("we were in the middle of %s.", active.FlowName)
	}
	return "what would you like to do?"
}
