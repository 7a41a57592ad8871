package cadence_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/cadence"
	"github.com/aretw0/cadence/pkg/adapters/memory"
	"github.com/aretw0/cadence/pkg/domain"
)

// scriptedUnderstander replays canned understanding results in order.
type scriptedUnderstander struct {
	queue []*domain.UnderstandingResult
}

func (s *scriptedUnderstander) push(c domain.Classification, slots ...domain.ExtractedSlot) {
	s.queue = append(s.queue, &domain.UnderstandingResult{
		Classification: c,
		Slots:          slots,
		Confidence:     0.95,
	})
}

func (s *scriptedUnderstander) Understand(_ context.Context, _ string, _ domain.UnderstandingContext) (*domain.UnderstandingResult, error) {
	if len(s.queue) == 0 {
		return nil, fmt.Errorf("script exhausted")
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next, nil
}

const bookingFlowYAML = `
name: book_flight
description: Book a flight
slots:
  - name: origin
    type: text
    prompt: Where are you flying from?
  - name: destination
    type: text
    prompt: Where are you flying to?
steps:
  - id: get_origin
    kind: collect
    slot: origin
  - id: get_destination
    kind: collect
    slot: destination
  - id: do_booking
    kind: action
    action: create_booking
    output_slot: booking
  - id: done
    kind: say
    message: Your flight is booked.
outputs:
  - booking
`

func writeFlows(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "booking.yaml"), []byte(bookingFlowYAML), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestFacade_ConversationLifecycle(t *testing.T) {
	stub := &scriptedUnderstander{}
	stub.push(domain.Interruption{FlowName: "book_flight"})
	stub.push(domain.SlotValue{}, domain.ExtractedSlot{Name: "origin", Value: "Madrid", Confidence: 0.9})
	stub.push(domain.SlotValue{}, domain.ExtractedSlot{Name: "destination", Value: "Lisbon", Confidence: 0.9})

	engine, err := cadence.New(writeFlows(t), stub)
	if err != nil {
		t.Fatalf("failed to initialize engine: %v", err)
	}
	ctx := context.Background()

	result, err := engine.Converse(ctx, "t-1", "I want to book a flight")
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}
	if result.Conversation != domain.StateWaitingForSlot {
		t.Errorf("expected waiting_for_slot, got %s", result.Conversation)
	}

	// The turn was checkpointed under the thread ID.
	state, err := engine.Sessions().Load(ctx, "t-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state.WaitingForSlot != "origin" {
		t.Errorf("expected to wait on origin, got %q", state.WaitingForSlot)
	}

	if _, err := engine.Converse(ctx, "t-1", "Madrid"); err != nil {
		t.Fatalf("Converse failed: %v", err)
	}

	result, err = engine.Converse(ctx, "t-1", "Lisbon")
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}

	// No executor is injected, so the action step suspends.
	if result.Suspension == nil {
		t.Fatal("expected a suspension at the action step")
	}
	if result.Suspension.Action == nil || result.Suspension.Action.Name != "create_booking" {
		t.Errorf("unexpected suspended action: %+v", result.Suspension.Action)
	}

	result, err = engine.Resume(ctx, "t-1", result.Suspension.ResumeToken, map[string]any{"booking": "BK-42"})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if result.Conversation != domain.StateIdle {
		t.Errorf("expected idle after completion, got %s", result.Conversation)
	}

	state, err = engine.Sessions().Load(ctx, "t-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(state.FlowStack) != 0 {
		t.Errorf("expected empty stack, got %d entries", len(state.FlowStack))
	}
}

func TestFacade_ResumeTokenMismatch(t *testing.T) {
	stub := &scriptedUnderstander{}
	stub.push(domain.Interruption{FlowName: "book_flight"},
		domain.ExtractedSlot{Name: "origin", Value: "Madrid", Confidence: 0.9},
		domain.ExtractedSlot{Name: "destination", Value: "Lisbon", Confidence: 0.9})

	engine, err := cadence.New(writeFlows(t), stub)
	if err != nil {
		t.Fatalf("failed to initialize engine: %v", err)
	}
	ctx := context.Background()

	result, err := engine.Converse(ctx, "t-1", "book Madrid to Lisbon")
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}
	if result.Suspension == nil {
		t.Fatal("expected a suspension")
	}

	if _, err := engine.Resume(ctx, "t-1", "tok-stale", nil); err == nil {
		t.Fatal("expected a stale token to be rejected")
	}

	// The genuine token still works afterwards.
	if _, err := engine.Resume(ctx, "t-1", result.Suspension.ResumeToken, nil); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
}

func TestFacade_CustomLoaderAndStore(t *testing.T) {
	loader, err := memory.NewLoader(&domain.FlowDefinition{
		Name: "greet",
		Steps: []domain.Step{
			{ID: "hi", Kind: domain.StepSay, Message: "Hello there."},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	stub := &scriptedUnderstander{}
	stub.push(domain.Interruption{FlowName: "greet"})

	engine, err := cadence.New("",
		stub,
		cadence.WithFlowLoader(loader),
		cadence.WithStateStore(memory.NewStore()),
	)
	if err != nil {
		t.Fatalf("failed to initialize engine: %v", err)
	}

	result, err := engine.Converse(context.Background(), "t-1", "hi")
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}
	if result.Response == "" {
		t.Error("expected a response")
	}
}

func TestFacade_RequiresConfiguration(t *testing.T) {
	if _, err := cadence.New("./flows", nil); err == nil {
		t.Error("expected an error without an understander")
	}
	if _, err := cadence.New("", &scriptedUnderstander{}); err == nil {
		t.Error("expected an error without flows or a loader")
	}
}

func TestFacade_ReloadRequiresSupport(t *testing.T) {
	loader, err := memory.NewLoader()
	if err != nil {
		t.Fatal(err)
	}
	engine, err := cadence.New("", &scriptedUnderstander{}, cadence.WithFlowLoader(loader))
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.Reload(); err == nil {
		t.Error("expected Reload to fail for the memory loader")
	}
}
