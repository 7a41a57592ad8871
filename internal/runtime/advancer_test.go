package runtime

import (
	"fmt"
	"testing"

	"github.com/aretw0/cadence/pkg/domain"
)

func newAdvanceFixture(t *testing.T, def *domain.FlowDefinition) (*StepAdvancer, *Stack, *domain.DialogueState) {
	t.Helper()
	stack := NewStack(WithIDGenerator(sequentialIDs()))
	st := domain.NewDialogueState("t1")
	if _, err := stack.Push(st, def.Name, nil); err != nil {
		t.Fatalf("Push() error: %v", err)
	}
	return NewStepAdvancer(stack, nil), stack, st
}

func TestAdvanceStopsAtFirstMissingSlot(t *testing.T) {
	a, _, st := newAdvanceFixture(t, bookingFlow())

	res, err := a.Advance(st, bookingFlow())
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if res.Status != AdvanceWaiting || res.WaitSlot != "origin" {
		t.Fatalf("result = %+v, want waiting on origin", res)
	}
	if res.Prompt != "Where are you flying from?" {
		t.Errorf("prompt = %q", res.Prompt)
	}
	if st.ActiveContext().CurrentStep != "get_origin" {
		t.Errorf("current step = %q, want get_origin", st.ActiveContext().CurrentStep)
	}
}

func TestAdvanceSkipsSatisfiedSteps(t *testing.T) {
	a, stack, st := newAdvanceFixture(t, bookingFlow())
	stack.SetSlot(st, "origin", "Madrid")
	stack.SetSlot(st, "destination", "Paris")

	res, err := a.Advance(st, bookingFlow())
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if res.Status != AdvanceWaiting || res.WaitSlot != "date" {
		t.Fatalf("result = %+v, want waiting on date (two steps skipped)", res)
	}
}

func TestAdvanceConfirmStep(t *testing.T) {
	def := bookingFlow()
	a, stack, st := newAdvanceFixture(t, def)
	stack.SetSlot(st, "origin", "Madrid")
	stack.SetSlot(st, "destination", "Paris")
	stack.SetSlot(st, "date", "2026-09-01")

	res, err := a.Advance(st, def)
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if res.Status != AdvanceWaiting || res.WaitSlot != "_confirm_confirm_booking" {
		t.Fatalf("result = %+v, want waiting on confirm pseudo-slot", res)
	}
	if res.Prompt != "Book this flight?" {
		t.Errorf("prompt = %q", res.Prompt)
	}

	// Denial cancels the flow.
	stack.SetSlot(st, "_confirm_confirm_booking", false)
	res, err = a.Advance(st, def)
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if res.Status != AdvanceCancelled {
		t.Fatalf("result = %+v, want cancelled after denial", res)
	}
}

func TestAdvanceActionPendingAndCompletion(t *testing.T) {
	def := bookingFlow()
	a, stack, st := newAdvanceFixture(t, def)
	stack.SetSlot(st, "origin", "Madrid")
	stack.SetSlot(st, "destination", "Paris")
	stack.SetSlot(st, "date", "2026-09-01")
	stack.SetSlot(st, "_confirm_confirm_booking", true)

	res, err := a.Advance(st, def)
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if res.Status != AdvanceActionPending {
		t.Fatalf("result = %+v, want action pending", res)
	}
	if res.Action.Name != "create_booking" || res.Action.StepID != "do_booking" {
		t.Errorf("action = %+v", res.Action)
	}
	if _, ok := res.Action.Inputs["_confirm_confirm_booking"]; ok {
		t.Errorf("pseudo-slot leaked into action inputs: %v", res.Action.Inputs)
	}
	if res.Action.Inputs["origin"] != "Madrid" {
		t.Errorf("action inputs = %v", res.Action.Inputs)
	}

	if err := a.MarkActionDone(st, def, "do_booking", map[string]any{"id": "B-1"}); err != nil {
		t.Fatalf("MarkActionDone() error: %v", err)
	}

	res, err = a.Advance(st, def)
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if res.Status != AdvanceCompleted {
		t.Fatalf("result = %+v, want completed", res)
	}
	if len(res.Messages) != 1 || res.Messages[0] != "Your flight is booked." {
		t.Errorf("messages = %v", res.Messages)
	}
	booking, ok := res.Outputs["booking"].(map[string]any)
	if !ok || booking["id"] != "B-1" {
		t.Errorf("outputs = %v, want booking output mirrored", res.Outputs)
	}
}

func TestAdvanceRequiresGate(t *testing.T) {
	def := &domain.FlowDefinition{
		Name: "gated",
		Steps: []domain.Step{
			{ID: "run", Kind: domain.StepAction, Action: "do_it", Requires: []string{"approval"}},
		},
	}
	a, _, st := newAdvanceFixture(t, def)

	res, err := a.Advance(st, def)
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if res.Status != AdvanceWaiting || res.WaitSlot != "approval" {
		t.Fatalf("result = %+v, want waiting on required slot", res)
	}
}

func TestAdvanceIterationBound(t *testing.T) {
	def := &domain.FlowDefinition{Name: "chatty"}
	for i := 0; i < MaxAdvanceIterations+5; i++ {
		def.Steps = append(def.Steps, domain.Step{
			ID: fmt.Sprintf("say_%d", i), Kind: domain.StepSay, Message: "...",
		})
	}
	a, _, st := newAdvanceFixture(t, def)

	res, err := a.Advance(st, def)
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if res.Status != AdvanceExhausted {
		t.Fatalf("status = %v, want exhausted past the iteration limit", res.Status)
	}
}

func TestAdvanceExactlyAtBoundCompletes(t *testing.T) {
	// A flow whose steps all satisfy within the limit must complete, not trip
	// the bound.
	def := &domain.FlowDefinition{Name: "exact"}
	for i := 0; i < MaxAdvanceIterations; i++ {
		def.Steps = append(def.Steps, domain.Step{
			ID: fmt.Sprintf("say_%d", i), Kind: domain.StepSay, Message: "...",
		})
	}
	a, _, st := newAdvanceFixture(t, def)

	res, err := a.Advance(st, def)
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if res.Status != AdvanceCompleted {
		t.Fatalf("status = %v, want completed at exactly the limit", res.Status)
	}
}
