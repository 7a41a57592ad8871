package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
)

// MaxAdvanceIterations is the hard safety limit on step advancement per call.
// A single message can satisfy several steps at once ("from Madrid to Paris
// tomorrow"), so the advancer must be able to skip many steps in one turn —
// but never unboundedly, since step satisfaction is driven by probabilistic
// classification upstream.
const MaxAdvanceIterations = 20

// AdvanceStatus is what stopped the advancement pass.
type AdvanceStatus int

const (
	// AdvanceWaiting: stopped at a step still missing required input.
	AdvanceWaiting AdvanceStatus = iota
	// AdvanceActionPending: reached an action step that has not run yet.
	AdvanceActionPending
	// AdvanceCompleted: the flow definition has no further steps.
	AdvanceCompleted
	// AdvanceCancelled: a confirm step was answered negatively.
	AdvanceCancelled
	// AdvanceExhausted: hit the iteration limit; the caller must fail the
	// turn into the error state with a diagnostic trace entry.
	AdvanceExhausted
)

// AdvanceResult reports how far a single advancement pass got.
type AdvanceResult struct {
	Status AdvanceStatus

	// WaitSlot and Prompt are set for AdvanceWaiting.
	WaitSlot string
	Prompt   string

	// Action is set for AdvanceActionPending.
	Action *domain.ActionInvocation

	// Messages collects say-step output emitted while skipping forward.
	Messages []string

	// Outputs is set for AdvanceCompleted: the flow's declared output slots.
	Outputs map[string]any
}

// StepAdvancer walks the active flow definition forward through every step
// whose required input is already present, stopping at the first step that
// needs something new.
type StepAdvancer struct {
	stack  *Stack
	now    func() time.Time
	logger *slog.Logger
}

// NewStepAdvancer creates an advancer.
func NewStepAdvancer(stack *Stack, logger *slog.Logger) *StepAdvancer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StepAdvancer{stack: stack, now: time.Now, logger: logger}
}

// Advance iterates from the active flow's current step. It mutates only
// CurrentStep and (via say steps) the result's message list; popping a
// completed flow is the caller's job so that the conversation state machine
// stays in one place.
func (a *StepAdvancer) Advance(st *domain.DialogueState, def *domain.FlowDefinition) (AdvanceResult, error) {
	active := a.stack.Active(st)
	if active == nil {
		return AdvanceResult{}, domain.ErrNoActiveFlow
	}

	idx := 0
	if active.CurrentStep != "" {
		idx = def.StepIndex(active.CurrentStep)
		if idx < 0 {
			return AdvanceResult{}, fmt.Errorf("flow %q has no step %q", def.Name, active.CurrentStep)
		}
	}

	var result AdvanceResult
	for iteration := 0; ; iteration++ {
		if idx >= len(def.Steps) {
			result.Status = AdvanceCompleted
			result.Outputs = a.collectOutputs(st, def)
			return result, nil
		}

		if iteration >= MaxAdvanceIterations {
			st.AppendTrace(domain.TraceError,
				fmt.Sprintf("step advancement exceeded %d iterations in flow %q at step %q",
					MaxAdvanceIterations, def.Name, active.CurrentStep), a.now())
			a.logger.Error("step advancement exhausted",
				"flow", def.Name, "step", active.CurrentStep, "limit", MaxAdvanceIterations)
			result.Status = AdvanceExhausted
			return result, nil
		}

		step := def.Steps[idx]
		active.CurrentStep = step.ID

		if missing := a.missingRequirement(st, step); missing != "" {
			result.Status = AdvanceWaiting
			result.WaitSlot = missing
			result.Prompt = a.promptFor(def, step, missing)
			return result, nil
		}

		switch step.Kind {
		case domain.StepSay:
			result.Messages = append(result.Messages, step.Message)

		case domain.StepCollect:
			if _, filled := a.stack.GetSlot(st, step.Slot); !filled {
				result.Status = AdvanceWaiting
				result.WaitSlot = step.Slot
				result.Prompt = a.promptFor(def, step, step.Slot)
				return result, nil
			}

		case domain.StepConfirm:
			answer, answered := a.stack.GetSlot(st, step.ConfirmSlot())
			if !answered {
				result.Status = AdvanceWaiting
				result.WaitSlot = step.ConfirmSlot()
				prompt := step.Prompt
				if prompt == "" {
					prompt = "Shall I go ahead? (yes/no)"
				}
				result.Prompt = prompt
				return result, nil
			}
			if affirmed, _ := answer.(bool); !affirmed {
				result.Status = AdvanceCancelled
				return result, nil
			}

		case domain.StepAction:
			if _, ran := a.stack.GetSlot(st, step.MarkerSlot()); !ran {
				result.Status = AdvanceActionPending
				result.Action = &domain.ActionInvocation{
					Name:   step.Action,
					StepID: step.ID,
					Inputs: a.actionInputs(st, def),
				}
				return result, nil
			}

		default:
			return AdvanceResult{}, fmt.Errorf("flow %q step %q: unknown kind %q", def.Name, step.ID, step.Kind)
		}

		idx++
	}
}

// MarkActionDone records an action step's completion so re-entry skips it,
// and mirrors the outputs into the step's named output slot.
func (a *StepAdvancer) MarkActionDone(st *domain.DialogueState, def *domain.FlowDefinition, stepID string, outputs map[string]any) error {
	idx := def.StepIndex(stepID)
	if idx < 0 {
		return fmt.Errorf("flow %q has no step %q", def.Name, stepID)
	}
	step := def.Steps[idx]
	if err := a.stack.SetSlot(st, step.MarkerSlot(), true); err != nil {
		return err
	}
	if step.OutputSlot != "" {
		if err := a.stack.SetSlot(st, step.OutputSlot, outputs); err != nil {
			return err
		}
	}
	st.AppendTrace(domain.TraceAction, fmt.Sprintf("%s completed", step.Action), a.now())
	return nil
}

// missingRequirement returns the first declared prerequisite slot that is
// absent, or "".
func (a *StepAdvancer) missingRequirement(st *domain.DialogueState, step domain.Step) string {
	for _, name := range step.Requires {
		if _, ok := a.stack.GetSlot(st, name); !ok {
			return name
		}
	}
	return ""
}

// actionInputs snapshots the active flow's user-visible slots for an action
// call. Internal pseudo-slots (confirm answers, action markers) stay out.
func (a *StepAdvancer) actionInputs(st *domain.DialogueState, def *domain.FlowDefinition) map[string]any {
	active := st.ActiveContext()
	if active == nil {
		return nil
	}
	inputs := map[string]any{}
	for name, value := range st.Slots(active.FlowID) {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		inputs[name] = value
	}
	return inputs
}

// collectOutputs gathers the flow's declared output slots.
func (a *StepAdvancer) collectOutputs(st *domain.DialogueState, def *domain.FlowDefinition) map[string]any {
	outputs := map[string]any{}
	for _, name := range def.Outputs {
		if v, ok := a.stack.GetSlot(st, name); ok {
			outputs[name] = v
		}
	}
	return outputs
}

// promptFor picks the most specific prompt available for a missing slot.
func (a *StepAdvancer) promptFor(def *domain.FlowDefinition, step domain.Step, slot string) string {
	if step.Kind == domain.StepCollect && step.Slot == slot && step.Prompt != "" {
		return step.Prompt
	}
	if spec, ok := def.Slot(slot); ok && spec.Prompt != "" {
		return spec.Prompt
	}
	return fmt.Sprintf("What is the %s?", slot)
}
