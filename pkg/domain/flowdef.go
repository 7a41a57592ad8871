package domain

import "fmt"

// StepKind defines the control-flow behavior of a flow step.
type StepKind string

const (
	// StepCollect asks for a slot and halts until it is filled (hard step).
	StepCollect StepKind = "collect"
	// StepConfirm asks a yes/no question gating the rest of the flow.
	StepConfirm StepKind = "confirm"
	// StepAction invokes the external Action collaborator (side-effect step).
	StepAction StepKind = "action"
	// StepSay emits a message and continues immediately (soft step).
	StepSay StepKind = "say"
)

// SlotSpec declares one piece of information a flow collects.
type SlotSpec struct {
	Name   string `json:"name" yaml:"name"`
	Type   string `json:"type,omitempty" yaml:"type,omitempty"` // text, number, date, bool
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
}

// Step is one unit in a flow definition's step sequence.
type Step struct {
	ID   string   `json:"id" yaml:"id"`
	Kind StepKind `json:"kind" yaml:"kind"`

	// Slot names the slot to collect (collect steps only).
	Slot string `json:"slot,omitempty" yaml:"slot,omitempty"`

	// Prompt overrides the slot's default prompt for collect/confirm steps.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// Requires lists slots that must already be filled before this step runs.
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`

	// Action and OutputSlot configure action steps.
	Action     string `json:"action,omitempty" yaml:"action,omitempty"`
	OutputSlot string `json:"output_slot,omitempty" yaml:"output_slot,omitempty"`

	// Message is the text emitted by say steps.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// ConfirmSlot returns the pseudo-slot a confirm step waits on. Confirmations
// land in scoped slot storage like any other answer so that pause/resume and
// pruning need no special cases.
func (s Step) ConfirmSlot() string {
	return "_confirm_" + s.ID
}

// MarkerSlot returns the pseudo-slot recording that an action step already
// ran. Its presence makes StepAdvancer skip the step on re-entry, which is
// what makes resuming after a checkpoint safe (at-least-once, §action).
func (s Step) MarkerSlot() string {
	return "_action_" + s.ID
}

// FlowDefinition is a named multi-step task, fully resolved in memory before
// the engine runs (loading/parsing is an adapter concern).
type FlowDefinition struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Slots       []SlotSpec `json:"slots,omitempty" yaml:"slots,omitempty"`
	Steps       []Step     `json:"steps" yaml:"steps"`

	// Outputs lists the slot names copied into FlowContext.Outputs when the
	// flow completes, making them visible to a resumed parent flow.
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// StepIndex returns the position of a step by ID, or -1.
func (d *FlowDefinition) StepIndex(id string) int {
	for i, s := range d.Steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Slot returns the declared spec for a slot name.
func (d *FlowDefinition) Slot(name string) (SlotSpec, bool) {
	for _, s := range d.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return SlotSpec{}, false
}

// CollectStepFor returns the ID of the first collect step targeting the given
// slot. Correction handling rewinds the flow to this step.
func (d *FlowDefinition) CollectStepFor(slot string) (string, bool) {
	for _, s := range d.Steps {
		if s.Kind == StepCollect && s.Slot == slot {
			return s.ID, true
		}
	}
	return "", false
}

// Validate checks structural soundness of the definition.
func (d *FlowDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("flow definition has no name")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("flow %q has no steps", d.Name)
	}
	seen := map[string]bool{}
	for _, s := range d.Steps {
		if s.ID == "" {
			return fmt.Errorf("flow %q contains a step with no id", d.Name)
		}
		if seen[s.ID] {
			return fmt.Errorf("flow %q has duplicate step id %q", d.Name, s.ID)
		}
		seen[s.ID] = true

		switch s.Kind {
		case StepCollect:
			if s.Slot == "" {
				return fmt.Errorf("flow %q step %q: collect step requires a slot", d.Name, s.ID)
			}
		case StepAction:
			if s.Action == "" {
				return fmt.Errorf("flow %q step %q: action step requires an action name", d.Name, s.ID)
			}
		case StepConfirm, StepSay:
			// no extra requirements
		default:
			return fmt.Errorf("flow %q step %q: unknown step kind %q", d.Name, s.ID, s.Kind)
		}
	}
	return nil
}
