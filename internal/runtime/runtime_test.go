package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/cadence/pkg/domain"
)

// Shared fixtures for the runtime tests.

func bookingFlow() *domain.FlowDefinition {
	return &domain.FlowDefinition{
		Name: "book_flight",
		Slots: []domain.SlotSpec{
			{Name: "origin", Type: "text", Prompt: "Where are you flying from?"},
			{Name: "destination", Type: "text", Prompt: "Where are you flying to?"},
			{Name: "date", Type: "date", Prompt: "When do you want to travel?"},
		},
		Steps: []domain.Step{
			{ID: "get_origin", Kind: domain.StepCollect, Slot: "origin"},
			{ID: "get_destination", Kind: domain.StepCollect, Slot: "destination"},
			{ID: "get_date", Kind: domain.StepCollect, Slot: "date"},
			{ID: "confirm_booking", Kind: domain.StepConfirm, Prompt: "Book this flight?"},
			{ID: "do_booking", Kind: domain.StepAction, Action: "create_booking", OutputSlot: "booking"},
			{ID: "done", Kind: domain.StepSay, Message: "Your flight is booked."},
		},
		Outputs: []string{"booking"},
	}
}

func balanceFlow() *domain.FlowDefinition {
	return &domain.FlowDefinition{
		Name: "check_balance",
		Steps: []domain.Step{
			{ID: "tell", Kind: domain.StepSay, Message: "Your balance is $120."},
		},
	}
}

func profileFlow() *domain.FlowDefinition {
	return &domain.FlowDefinition{
		Name: "update_profile",
		Slots: []domain.SlotSpec{
			{Name: "email", Type: "text", Prompt: "What's the new email?"},
		},
		Steps: []domain.Step{
			{ID: "get_email", Kind: domain.StepCollect, Slot: "email"},
		},
	}
}

type stubLoader struct {
	flows map[string]*domain.FlowDefinition
}

func newStubLoader(defs ...*domain.FlowDefinition) *stubLoader {
	l := &stubLoader{flows: map[string]*domain.FlowDefinition{}}
	for _, d := range defs {
		l.flows[d.Name] = d
	}
	return l
}

func (l *stubLoader) GetFlow(name string) (*domain.FlowDefinition, error) {
	d, ok := l.flows[name]
	if !ok {
		return nil, fmt.Errorf("unknown flow %q", name)
	}
	return d, nil
}

func (l *stubLoader) ListFlows() ([]string, error) {
	names := make([]string, 0, len(l.flows))
	for name := range l.flows {
		names = append(names, name)
	}
	return names, nil
}

// scriptedUnderstander replays a queue of results, one per turn.
type scriptedUnderstander struct {
	queue []*domain.UnderstandingResult
	err   error
	calls int
	last  domain.UnderstandingContext
}

func (u *scriptedUnderstander) Understand(_ context.Context, _ string, uctx domain.UnderstandingContext) (*domain.UnderstandingResult, error) {
	u.calls++
	u.last = uctx
	if u.err != nil {
		return nil, u.err
	}
	if len(u.queue) == 0 {
		return nil, fmt.Errorf("scripted understander exhausted after %d calls", u.calls)
	}
	res := u.queue[0]
	u.queue = u.queue[1:]
	return res, nil
}

func (u *scriptedUnderstander) push(res *domain.UnderstandingResult) {
	u.queue = append(u.queue, res)
}

func classified(c domain.Classification, slots ...domain.ExtractedSlot) *domain.UnderstandingResult {
	return &domain.UnderstandingResult{Classification: c, Slots: slots, Confidence: 0.95}
}

type stubExecutor struct {
	outputs   map[string]any
	failures  int
	calls     int
	lastName  string
	lastInput map[string]any
}

func (e *stubExecutor) Execute(_ context.Context, name string, inputs map[string]any) (map[string]any, error) {
	e.calls++
	e.lastName = name
	e.lastInput = inputs
	if e.failures > 0 {
		e.failures--
		return nil, fmt.Errorf("backend unavailable")
	}
	return e.outputs, nil
}

type stubKnowledge struct {
	answer string
}

func (k stubKnowledge) Answer(_ context.Context, topic string) (string, error) {
	if k.answer == "" {
		return "", fmt.Errorf("no answer for %q", topic)
	}
	return k.answer, nil
}

type failingNormalizer struct{}

func (failingNormalizer) Normalize(spec domain.SlotSpec, raw any) (any, error) {
	return nil, fmt.Errorf("cannot parse %v as %s", raw, spec.Type)
}

func slot(name string, value any) domain.ExtractedSlot {
	return domain.ExtractedSlot{Name: name, Value: value, Confidence: 0.9}
}
