package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/google/uuid"
)

// Engine is the per-turn orchestrator. It sequences Understanding → slot
// processing / digression resolution → step advancement → action invocation →
// response generation, and leaves the state pruned and consistent at the end
// of every turn.
//
// The engine mutates the DialogueState it is handed in place. Exclusive
// ownership per thread is the session layer's responsibility.
type Engine struct {
	loader       ports.FlowLoader
	understander ports.Understander
	executor     ports.ActionExecutor

	validator   Validator
	stack       *Stack
	slots       *SlotProcessor
	digressions *DigressionResolver
	advancer    *StepAdvancer
	pruner      *Pruner

	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	now      func() time.Time
	newToken func() string
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	executor   ports.ActionExecutor
	normalizer ports.SlotNormalizer
	knowledge  ports.KnowledgeSource
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	now        func() time.Time
	newToken   func() string

	stackOpts    []StackOption
	resolverOpts []ResolverOption
	prunerOpts   []PrunerOption
}

// WithActionExecutor wires an in-process executor. Without one, the engine
// suspends at action steps and the host resumes with the outputs.
func WithActionExecutor(exec ports.ActionExecutor) EngineOption {
	return func(c *engineConfig) { c.executor = exec }
}

// WithNormalizer wires the slot normalizer.
func WithNormalizer(n ports.SlotNormalizer) EngineOption {
	return func(c *engineConfig) { c.normalizer = n }
}

// WithKnowledgeSource wires the read-only source for digression answers.
func WithKnowledgeSource(ks ports.KnowledgeSource) EngineOption {
	return func(c *engineConfig) { c.knowledge = ks }
}

// WithHooks registers observability callbacks.
func WithHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(c *engineConfig) { c.hooks = hooks }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxStackDepth bounds flow nesting.
func WithMaxStackDepth(depth int) EngineOption {
	return func(c *engineConfig) {
		c.stackOpts = append(c.stackOpts, WithMaxDepth(depth))
	}
}

// WithStackOverflowPolicy selects cancel_oldest or reject_new.
func WithStackOverflowPolicy(p OverflowPolicy) EngineOption {
	return func(c *engineConfig) {
		c.stackOpts = append(c.stackOpts, WithOverflowPolicy(p))
	}
}

// WithConfirmationRetries bounds consecutive unclear confirmation answers.
func WithConfirmationRetries(n int) EngineOption {
	return func(c *engineConfig) {
		c.resolverOpts = append(c.resolverOpts, WithMaxRetries(n))
	}
}

// WithDigressionDepth bounds inline digression answers per flow.
func WithDigressionDepth(n int) EngineOption {
	return func(c *engineConfig) {
		c.resolverOpts = append(c.resolverOpts, WithMaxDigressionDepth(n))
	}
}

// WithPruneBounds overrides the completed-flow and trace bounds.
func WithPruneBounds(maxCompleted, maxTrace int) EngineOption {
	return func(c *engineConfig) {
		c.prunerOpts = append(c.prunerOpts,
			WithMaxCompletedFlows(maxCompleted), WithMaxTrace(maxTrace))
	}
}

// WithEngineClock overrides the time source, for tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(c *engineConfig) { c.now = now }
}

// WithTokenGenerator overrides resume-token generation, for tests.
func WithTokenGenerator(gen func() string) EngineOption {
	return func(c *engineConfig) { c.newToken = gen }
}

// NewEngine creates an orchestrator over the given flow loader and
// Understanding collaborator.
func NewEngine(loader ports.FlowLoader, understander ports.Understander, opts ...EngineOption) *Engine {
	cfg := &engineConfig{
		logger:   logging.NewNop(),
		now:      time.Now,
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	stackOpts := append([]StackOption{WithStackLogger(cfg.logger), WithClock(cfg.now)}, cfg.stackOpts...)
	stack := NewStack(stackOpts...)

	resolverOpts := append([]ResolverOption{
		WithResolverLogger(cfg.logger),
		WithResolverKnowledge(cfg.knowledge),
	}, cfg.resolverOpts...)

	prunerOpts := append([]PrunerOption{WithPrunerLogger(cfg.logger)}, cfg.prunerOpts...)

	return &Engine{
		loader:       loader,
		understander: understander,
		executor:     cfg.executor,
		stack:        stack,
		slots:        NewSlotProcessor(stack, cfg.normalizer, cfg.logger),
		digressions:  NewDigressionResolver(stack, loader, resolverOpts...),
		advancer:     NewStepAdvancer(stack, cfg.logger),
		pruner:       NewPruner(prunerOpts...),
		hooks:        cfg.hooks,
		logger:       cfg.logger,
		now:          cfg.now,
		newToken:     cfg.newToken,
	}
}

// NewState creates a fresh idle state for a thread.
func (e *Engine) NewState(threadID string) *domain.DialogueState {
	return domain.NewDialogueState(threadID)
}

// Stack exposes the flow-stack operations for embedders and tests.
func (e *Engine) Stack() *Stack { return e.stack }

// Advance processes one user message against a thread's state. The state is
// mutated in place; the caller persists it after the call returns, and before
// accepting the thread's next turn.
func (e *Engine) Advance(ctx context.Context, st *domain.DialogueState, message string) (*domain.TurnResult, error) {
	if st == nil {
		return nil, fmt.Errorf("nil dialogue state")
	}

	st.TurnCount++
	st.AppendTrace(domain.TraceTurn, truncate(message, 120), e.now())
	e.emitTurnStart(ctx, st)

	// The entry transition clears WaitingForSlot; the turn still needs it
	// for Understanding context and for re-prompting after digressions.
	expected := st.WaitingForSlot

	switch st.Conversation {
	case domain.StateIdle, domain.StateWaitingForSlot, domain.StateError:
		if err := e.transition(st, domain.StateUnderstanding); err != nil {
			return nil, err
		}
	case domain.StateUnderstanding:
		// Recovering from an Understanding failure on the previous turn.
	case domain.StateExecutingAction:
		return nil, fmt.Errorf("thread %s has a suspended action; call Resume first", st.ThreadID)
	default:
		// A mid-turn state persisted between turns is a contract violation.
		e.logger.Error("turn started from mid-turn state", "state", st.Conversation)
		e.failTurn(st, fmt.Sprintf("turn started from %s", st.Conversation))
		return e.finishTurn(ctx, st, &domain.TurnResult{
			Response:     apologyInternal(),
			Conversation: st.Conversation,
		})
	}

	st.WaitingForSlot = expected

	res, err := e.understand(ctx, st, message)
	if err != nil {
		// Understanding failures are recoverable: fall back to error, then
		// reset to understanding so the next turn can retry the same step
		// without clearing the flow stack.
		st.AppendTrace(domain.TraceError, err.Error(), e.now())
		e.logger.Warn("understanding failed", "thread", st.ThreadID, "err", err)
		if terr := e.transition(st, domain.StateError); terr != nil {
			return nil, terr
		}
		if terr := e.transition(st, domain.StateUnderstanding); terr != nil {
			return nil, terr
		}
		return e.finishTurn(ctx, st, &domain.TurnResult{
			Response:     apologyUnderstanding(),
			Conversation: st.Conversation,
		})
	}

	result, err := e.route(ctx, st, res)
	if err != nil {
		return nil, err
	}
	return e.finishTurn(ctx, st, result)
}

// Resume completes a suspended action: the host executed it out of band and
// hands back the resume token plus the action outputs.
func (e *Engine) Resume(ctx context.Context, st *domain.DialogueState, token string, outputs map[string]any) (*domain.TurnResult, error) {
	if st == nil {
		return nil, fmt.Errorf("nil dialogue state")
	}
	if st.Conversation != domain.StateExecutingAction {
		return nil, fmt.Errorf("thread %s has no suspended action: %w", st.ThreadID, domain.ErrResumeMismatch)
	}
	pending, ok := st.PeekPendingAction()
	if !ok {
		return nil, fmt.Errorf("thread %s has no pending action checkpoint: %w", st.ThreadID, domain.ErrResumeMismatch)
	}
	if pending.Token != token {
		return nil, fmt.Errorf("resume token mismatch for thread %s: %w", st.ThreadID, domain.ErrResumeMismatch)
	}
	st.TakePendingAction()

	active := st.ActiveContext()
	if active == nil {
		return nil, domain.ErrNoActiveFlow
	}
	def, err := e.loader.GetFlow(active.FlowName)
	if err != nil {
		return nil, err
	}
	if err := e.advancer.MarkActionDone(st, def, pending.StepID, outputs); err != nil {
		return nil, err
	}
	if err := e.transition(st, domain.StateGeneratingResponse); err != nil {
		return nil, err
	}

	var parts []string
	result, err := e.advanceLoop(ctx, st, &parts)
	if err != nil {
		return nil, err
	}
	return e.finishTurn(ctx, st, result)
}

// understand calls the Understanding collaborator exactly once for the turn.
func (e *Engine) understand(ctx context.Context, st *domain.DialogueState, message string) (*domain.UnderstandingResult, error) {
	flows, err := e.loader.ListFlows()
	if err != nil {
		return nil, &domain.UnderstandingError{Cause: err}
	}

	uctx := domain.UnderstandingContext{
		ThreadID:       st.ThreadID,
		ExpectedSlot:   st.WaitingForSlot,
		AvailableFlows: flows,
		RecentHistory:  recentMessages(st, 5),
	}
	if active := st.ActiveContext(); active != nil {
		uctx.ActiveFlow = active.FlowName
		uctx.FilledSlots = st.Slots(active.FlowID)
	}

	res, err := e.understander.Understand(ctx, message, uctx)
	if err != nil {
		return nil, &domain.UnderstandingError{Cause: err}
	}
	if res == nil || res.Classification == nil {
		return nil, &domain.UnderstandingError{Cause: fmt.Errorf("empty understanding result")}
	}
	return res, nil
}

// route dispatches the classified turn through slot processing or digression
// resolution and then advances as far as possible.
func (e *Engine) route(ctx context.Context, st *domain.DialogueState, res *domain.UnderstandingResult) (*domain.TurnResult, error) {
	if st.ActiveContext() == nil {
		return e.routeIdle(ctx, st, res)
	}
	return e.routeActive(ctx, st, res)
}

// routeIdle handles a turn with no flow in progress: only an interruption
// (starting a flow) or an inline-answerable message is meaningful.
func (e *Engine) routeIdle(ctx context.Context, st *domain.DialogueState, res *domain.UnderstandingResult) (*domain.TurnResult, error) {
	switch res.Classification.(type) {
	case domain.Interruption, domain.Digression, domain.Clarification, domain.Cancellation:
		resolution, err := e.digressions.Resolve(ctx, st, nil, res.Classification)
		if err != nil {
			return nil, err
		}
		if resolution.Kind == ResolutionPushed {
			e.emitFlowPush(ctx, st)
			e.seedSlots(st, res.Slots)
			var parts []string
			return e.advanceLoop(ctx, st, &parts)
		}
		if err := e.transition(st, domain.StateIdle); err != nil {
			return nil, err
		}
		return &domain.TurnResult{Response: resolution.Response, Conversation: st.Conversation}, nil

	default:
		flows, err := e.loader.ListFlows()
		if err != nil {
			return nil, err
		}
		if err := e.transition(st, domain.StateIdle); err != nil {
			return nil, err
		}
		return &domain.TurnResult{Response: greetingIdle(flows), Conversation: st.Conversation}, nil
	}
}

// routeActive handles a turn while a flow is in progress.
func (e *Engine) routeActive(ctx context.Context, st *domain.DialogueState, res *domain.UnderstandingResult) (*domain.TurnResult, error) {
	active := st.ActiveContext()
	def, err := e.loader.GetFlow(active.FlowName)
	if err != nil {
		e.failTurn(st, fmt.Sprintf("flow definition %q unavailable: %v", active.FlowName, err))
		return &domain.TurnResult{Response: apologyInternal(), Conversation: st.Conversation}, nil
	}

	switch res.Classification.(type) {
	case domain.SlotValue, domain.Correction, domain.Modification, domain.Continuation:
		return e.processSlots(ctx, st, def, res)

	case domain.Confirmation:
		return e.processConfirmation(ctx, st, def, res)

	case domain.Interruption:
		resolution, err := e.digressions.Resolve(ctx, st, def, res.Classification)
		if err != nil {
			var limit *domain.StackLimitError
			if errors.As(err, &limit) {
				return e.waitAgain(st, fmt.Sprintf(
					"I can't start %s right now. Let's finish what we're doing first — %s",
					limit.FlowName, e.digressions.pendingPrompt(st)))
			}
			return nil, err
		}
		if resolution.Kind == ResolutionPushed {
			e.emitFlowPush(ctx, st)
			e.seedSlots(st, res.Slots)
			var parts []string
			return e.advanceLoop(ctx, st, &parts)
		}
		return e.waitAgain(st, resolution.Response)

	case domain.Digression, domain.Clarification:
		resolution, err := e.digressions.Resolve(ctx, st, def, res.Classification)
		if err != nil {
			return nil, err
		}
		// The flow stack and step pointer are untouched; the conversation
		// rests at waiting_for_slot on exactly the slot it was blocked on,
		// and the next turn's entry transition takes it back through
		// understanding from there.
		return e.waitAgain(st, resolution.Response)

	case domain.Cancellation:
		resolution, err := e.digressions.Resolve(ctx, st, def, res.Classification)
		if err != nil {
			return nil, err
		}
		e.emitFlowPop(ctx, st, resolution.FlowName, domain.FlowCancelled)
		if st.ActiveContext() == nil {
			if err := e.transition(st, domain.StateIdle); err != nil {
				return nil, err
			}
			return &domain.TurnResult{Response: resolution.Response, Conversation: st.Conversation}, nil
		}
		parts := []string{resolution.Response}
		return e.advanceLoop(ctx, st, &parts)

	default:
		return nil, fmt.Errorf("unhandled classification %q", res.Classification.Tag())
	}
}

// processSlots runs the SlotProcessor path: validating_slot → collecting →
// advancement.
func (e *Engine) processSlots(ctx context.Context, st *domain.DialogueState, def *domain.FlowDefinition, res *domain.UnderstandingResult) (*domain.TurnResult, error) {
	if err := e.transition(st, domain.StateValidatingSlot); err != nil {
		return nil, err
	}

	outcome, err := e.slots.Process(st, def, res)
	if err != nil {
		return nil, err
	}

	switch outcome.Kind {
	case OutcomeAmbiguous:
		n := st.BumpRetryCounter("understanding")
		if n > e.digressions.maxRetries {
			st.ResetRetryCounter("understanding")
			e.failTurn(st, fmt.Sprintf("gave up after %d ambiguous turns", n))
			return &domain.TurnResult{Response: apologyInternal(), Conversation: st.Conversation}, nil
		}
		return e.waitAgain(st, "Sorry, I didn't catch that. "+e.reprompt(st, def))

	case OutcomeCorrect:
		st.ResetRetryCounter("understanding")
		active := st.ActiveContext()
		active.CurrentStep = outcome.PreviousStep
		st.AppendTrace(domain.TraceSlot,
			fmt.Sprintf("correction: %s, rewound to step %s", outcome.CorrectedSlot, outcome.PreviousStep), e.now())
		if err := e.transition(st, domain.StateCollecting); err != nil {
			return nil, err
		}
		parts := []string{fmt.Sprintf("Got it — updated %s.", outcome.CorrectedSlot)}
		return e.advanceLoop(ctx, st, &parts)

	default: // OutcomeProceed
		st.ResetRetryCounter("understanding")
		if err := e.transition(st, domain.StateCollecting); err != nil {
			return nil, err
		}
		var parts []string
		return e.advanceLoop(ctx, st, &parts)
	}
}

// processConfirmation routes a yes/no answer through the resolver.
func (e *Engine) processConfirmation(ctx context.Context, st *domain.DialogueState, def *domain.FlowDefinition, res *domain.UnderstandingResult) (*domain.TurnResult, error) {
	resolution, err := e.digressions.Resolve(ctx, st, def, res.Classification)
	if err != nil {
		return nil, err
	}

	switch resolution.Kind {
	case ResolutionConfirmed, ResolutionProceed:
		if err := e.transition(st, domain.StateValidatingSlot); err != nil {
			return nil, err
		}
		if err := e.transition(st, domain.StateCollecting); err != nil {
			return nil, err
		}
		var parts []string
		return e.advanceLoop(ctx, st, &parts)

	case ResolutionRetry:
		return e.waitAgain(st, resolution.Response)

	case ResolutionFailed:
		e.failTurn(st, "confirmation retries exhausted")
		return &domain.TurnResult{Response: resolution.Response, Conversation: st.Conversation}, nil

	default:
		return nil, fmt.Errorf("unexpected confirmation resolution %d", resolution.Kind)
	}
}

// advanceLoop drives StepAdvancer until the conversation reaches a resting
// point: waiting for a slot, suspended on an action, or idle.
func (e *Engine) advanceLoop(ctx context.Context, st *domain.DialogueState, parts *[]string) (*domain.TurnResult, error) {
	for {
		active := st.ActiveContext()
		if active == nil {
			if err := e.transitionPath(st, domain.StateIdle); err != nil {
				return nil, err
			}
			return &domain.TurnResult{Response: joinResponse(*parts), Conversation: st.Conversation}, nil
		}

		def, err := e.loader.GetFlow(active.FlowName)
		if err != nil {
			e.failTurn(st, fmt.Sprintf("flow definition %q unavailable: %v", active.FlowName, err))
			return &domain.TurnResult{Response: apologyInternal(), Conversation: st.Conversation}, nil
		}

		adv, err := e.advancer.Advance(st, def)
		if err != nil {
			return nil, err
		}
		*parts = append(*parts, adv.Messages...)

		switch adv.Status {
		case AdvanceWaiting:
			if err := e.transitionPath(st, domain.StateWaitingForSlot); err != nil {
				return nil, err
			}
			st.WaitingForSlot = adv.WaitSlot
			*parts = append(*parts, adv.Prompt)
			return &domain.TurnResult{Response: joinResponse(*parts), Conversation: st.Conversation}, nil

		case AdvanceCompleted:
			popped, err := e.stack.Pop(st, adv.Outputs, domain.FlowCompleted)
			if err != nil {
				return nil, err
			}
			e.emitFlowPop(ctx, st, popped.FlowName, domain.FlowCompleted)
			*parts = append(*parts, completionMessage(popped.FlowName))
			// Parent (if any) resumes and keeps advancing.

		case AdvanceCancelled:
			popped, err := e.stack.Pop(st, nil, domain.FlowCancelled)
			if err != nil {
				return nil, err
			}
			e.emitFlowPop(ctx, st, popped.FlowName, domain.FlowCancelled)
			*parts = append(*parts, cancelledStepMessage(popped.FlowName))

		case AdvanceActionPending:
			result, done, err := e.executeAction(ctx, st, def, adv.Action, parts)
			if err != nil || done {
				return result, err
			}
			// Action completed inline; keep advancing.

		case AdvanceExhausted:
			e.failTurn(st, "step advancement exhausted")
			return &domain.TurnResult{Response: apologyInternal(), Conversation: st.Conversation}, nil

		default:
			return nil, fmt.Errorf("unexpected advance status %d", adv.Status)
		}
	}
}

// executeAction transitions into executing_action and either suspends (no
// executor injected) or invokes the executor inline. done is true when the
// turn ends here.
func (e *Engine) executeAction(ctx context.Context, st *domain.DialogueState, def *domain.FlowDefinition, action *domain.ActionInvocation, parts *[]string) (*domain.TurnResult, bool, error) {
	if err := e.transitionPath(st, domain.StateExecutingAction); err != nil {
		return nil, false, err
	}

	if e.executor == nil {
		token := e.newToken()
		st.SetPendingAction(domain.PendingAction{
			Token:  token,
			Name:   action.Name,
			StepID: action.StepID,
			Inputs: action.Inputs,
		})
		st.AppendTrace(domain.TraceAction, fmt.Sprintf("%s suspended (token %s)", action.Name, token), e.now())
		*parts = append(*parts, workingMessage(action.Name))
		result := &domain.TurnResult{
			Response:     joinResponse(*parts),
			Conversation: st.Conversation,
			Suspension: &domain.Suspension{
				Reason:      "action",
				ResumeToken: token,
				Action:      action,
			},
		}
		return result, true, nil
	}

	e.emitActionCall(ctx, st, action)
	started := e.now()
	outputs, err := e.executor.Execute(ctx, action.Name, action.Inputs)
	e.emitActionReturn(ctx, st, action, e.now().Sub(started), err)

	if err != nil {
		// Action failures are recoverable: reset to idle without clearing
		// the flow stack so the same step can be retried next turn.
		actionErr := &domain.ActionError{Name: action.Name, Cause: err}
		st.AppendTrace(domain.TraceError, actionErr.Error(), e.now())
		e.logger.Warn("action failed", "action", action.Name, "err", err)
		if terr := e.transition(st, domain.StateError); terr != nil {
			return nil, false, terr
		}
		if terr := e.transition(st, domain.StateIdle); terr != nil {
			return nil, false, terr
		}
		return &domain.TurnResult{Response: apologyAction(), Conversation: st.Conversation}, true, nil
	}

	if err := e.advancer.MarkActionDone(st, def, action.StepID, outputs); err != nil {
		return nil, false, err
	}
	if err := e.transition(st, domain.StateGeneratingResponse); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// waitAgain re-enters the waiting_for_slot resting state with a re-prompt,
// preserving whatever slot the flow is blocked on.
func (e *Engine) waitAgain(st *domain.DialogueState, response string) (*domain.TurnResult, error) {
	slot := st.WaitingForSlot
	if slot == "" {
		if active := st.ActiveContext(); active != nil {
			// Recompute from the step pointer.
			if def, err := e.loader.GetFlow(active.FlowName); err == nil {
				if idx := def.StepIndex(active.CurrentStep); idx >= 0 {
					step := def.Steps[idx]
					switch step.Kind {
					case domain.StepCollect:
						slot = step.Slot
					case domain.StepConfirm:
						slot = step.ConfirmSlot()
					}
				}
			}
		}
	}
	if err := e.transitionPath(st, domain.StateWaitingForSlot); err != nil {
		return nil, err
	}
	st.WaitingForSlot = slot
	return &domain.TurnResult{Response: response, Conversation: st.Conversation}, nil
}

// seedSlots ingests slot values extracted on the same turn that started the
// flow ("book a flight from Madrid to Paris"), so the advancer can skip the
// steps those values already satisfy.
func (e *Engine) seedSlots(st *domain.DialogueState, extracted []domain.ExtractedSlot) {
	active := st.ActiveContext()
	if active == nil || len(extracted) == 0 {
		return
	}
	def, err := e.loader.GetFlow(active.FlowName)
	if err != nil {
		return
	}
	for _, ex := range extracted {
		value := e.slots.normalize(st, active.FlowID, def, ex)
		if err := e.stack.SetSlot(st, ex.Name, value); err != nil {
			return
		}
		st.AppendTrace(domain.TraceSlot, fmt.Sprintf("%s=%v (seeded)", ex.Name, value), e.now())
	}
}

// reprompt rebuilds the question for the step the active flow is blocked on.
func (e *Engine) reprompt(st *domain.DialogueState, def *domain.FlowDefinition) string {
	active := st.ActiveContext()
	if active == nil {
		return "What would you like to do?"
	}
	if idx := def.StepIndex(active.CurrentStep); idx >= 0 {
		step := def.Steps[idx]
		switch step.Kind {
		case domain.StepCollect:
			return e.advancer.promptFor(def, step, step.Slot)
		case domain.StepConfirm:
			if step.Prompt != "" {
				return step.Prompt
			}
			return "Shall I go ahead? (yes/no)"
		}
	}
	return fmt.Sprintf("We were in the middle of %s.", active.FlowName)
}

// finishTurn runs the Pruner, re-checks the structural invariants, and emits
// the turn-end hook. It is the single exit point for Advance and Resume.
func (e *Engine) finishTurn(ctx context.Context, st *domain.DialogueState, result *domain.TurnResult) (*domain.TurnResult, error) {
	// Slot storage of a flow suspended on an action is still live even
	// though the pop already happened elsewhere; the Pruner only removes
	// storage for flows absent from the stack, which is exactly invariant 4.
	e.pruner.Prune(st)

	if err := e.validator.ValidateConsistency(st); err != nil {
		// Our own bug: log with full context, park the thread in error.
		e.logger.Error("state failed consistency check", "thread", st.ThreadID, "err", err)
		st.AppendTrace(domain.TraceError, err.Error(), e.now())
		st.Conversation = domain.StateError
		st.WaitingForSlot = ""
		result = &domain.TurnResult{Response: apologyInternal(), Conversation: st.Conversation}
	}

	e.emitTurnEnd(ctx, st)
	return result, nil
}

// transition applies one validated edge.
func (e *Engine) transition(st *domain.DialogueState, next domain.ConversationState) error {
	if st.Conversation == next {
		return nil
	}
	if err := e.validator.Validate(st.Conversation, next); err != nil {
		return err
	}
	st.AppendTrace(domain.TraceTransition, fmt.Sprintf("%s -> %s", st.Conversation, next), e.now())
	if next != domain.StateWaitingForSlot {
		st.WaitingForSlot = ""
	}
	st.Conversation = next
	return nil
}

// transitionPath walks the shortest legal edge sequence from the current
// state to target. The table is small and acyclic enough that a bounded BFS
// is cheaper than special-casing every caller; intermediate hops are pure
// bookkeeping and land in the trace like any other transition.
func (e *Engine) transitionPath(st *domain.DialogueState, target domain.ConversationState) error {
	if st.Conversation == target {
		return nil
	}

	type node struct {
		state domain.ConversationState
		path  []domain.ConversationState
	}
	visited := map[domain.ConversationState]bool{st.Conversation: true}
	queue := []node{{state: st.Conversation}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range cur.state.AllowedTransitions() {
			if visited[next] {
				continue
			}
			path := append(append([]domain.ConversationState{}, cur.path...), next)
			if next == target {
				for _, hop := range path {
					if err := e.transition(st, hop); err != nil {
						return err
					}
				}
				return nil
			}
			visited[next] = true
			queue = append(queue, node{state: next, path: path})
		}
	}
	return &domain.InvalidTransitionError{
		Current:   st.Conversation,
		Attempted: target,
		Allowed:   st.Conversation.AllowedTransitions(),
	}
}

// failTurn parks the conversation in the error state with a diagnostic trace
// entry, using the shortest legal path so the transition table stays honest.
func (e *Engine) failTurn(st *domain.DialogueState, detail string) {
	st.AppendTrace(domain.TraceError, detail, e.now())
	if err := e.transitionPath(st, domain.StateError); err != nil {
		// No legal path (should not happen); force it so the thread is not
		// stuck mid-turn, and leave the evidence in the trace.
		st.AppendTrace(domain.TraceError, "forced error state: "+err.Error(), e.now())
		st.Conversation = domain.StateError
	}
	st.WaitingForSlot = ""
}

func (e *Engine) emitTurnStart(ctx context.Context, st *domain.DialogueState) {
	if e.hooks.OnTurnStart != nil {
		e.hooks.OnTurnStart(ctx, &domain.TurnEvent{ThreadID: st.ThreadID, Turn: st.TurnCount, State: st.Conversation})
	}
}

func (e *Engine) emitTurnEnd(ctx context.Context, st *domain.DialogueState) {
	if e.hooks.OnTurnEnd != nil {
		e.hooks.OnTurnEnd(ctx, &domain.TurnEvent{ThreadID: st.ThreadID, Turn: st.TurnCount, State: st.Conversation})
	}
}

func (e *Engine) emitFlowPush(ctx context.Context, st *domain.DialogueState) {
	if e.hooks.OnFlowPush == nil {
		return
	}
	if active := st.ActiveContext(); active != nil {
		e.hooks.OnFlowPush(ctx, &domain.FlowEvent{
			ThreadID: st.ThreadID,
			FlowID:   active.FlowID,
			FlowName: active.FlowName,
			Depth:    st.StackDepth(),
		})
	}
}

func (e *Engine) emitFlowPop(ctx context.Context, st *domain.DialogueState, flowName string, result domain.FlowState) {
	if e.hooks.OnFlowPop != nil {
		e.hooks.OnFlowPop(ctx, &domain.FlowEvent{
			ThreadID: st.ThreadID,
			FlowName: flowName,
			Result:   result,
			Depth:    st.StackDepth(),
		})
	}
}

func (e *Engine) emitActionCall(ctx context.Context, st *domain.DialogueState, action *domain.ActionInvocation) {
	if e.hooks.OnActionCall != nil {
		e.hooks.OnActionCall(ctx, &domain.ActionEvent{ThreadID: st.ThreadID, Name: action.Name, StepID: action.StepID})
	}
}

func (e *Engine) emitActionReturn(ctx context.Context, st *domain.DialogueState, action *domain.ActionInvocation, d time.Duration, err error) {
	if e.hooks.OnActionReturn != nil {
		e.hooks.OnActionReturn(ctx, &domain.ActionEvent{
			ThreadID: st.ThreadID,
			Name:     action.Name,
			StepID:   action.StepID,
			Duration: d,
			Err:      err,
		})
	}
}

// recentMessages pulls the last n user messages out of the trace for the
// Understanding context.
func recentMessages(st *domain.DialogueState, n int) []string {
	var msgs []string
	for i := len(st.Trace) - 1; i >= 0 && len(msgs) < n; i-- {
		if st.Trace[i].Kind == domain.TraceTurn {
			msgs = append(msgs, st.Trace[i].Detail)
		}
	}
	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}

// truncate cuts s to at most max bytes on a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
