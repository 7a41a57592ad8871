package cadence_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/cadence"
	"github.com/aretw0/cadence/pkg/adapters/memory"
	"github.com/aretw0/cadence/pkg/domain"
)

func greetEngine(t *testing.T, stub *scriptedUnderstander) *cadence.Engine {
	t.Helper()
	loader, err := memory.NewLoader(&domain.FlowDefinition{
		Name: "greet",
		Steps: []domain.Step{
			{ID: "hi", Kind: domain.StepSay, Message: "Hello there."},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	engine, err := cadence.New("", stub, cadence.WithFlowLoader(loader))
	if err != nil {
		t.Fatal(err)
	}
	return engine
}

func TestRunner_Loop(t *testing.T) {
	stub := &scriptedUnderstander{}
	stub.push(domain.Interruption{FlowName: "greet"})

	engine := greetEngine(t, stub)

	var out bytes.Buffer
	runner := cadence.NewRunner("t-1")
	runner.Input = strings.NewReader("hi\nexit\n")
	runner.Output = &out

	if err := runner.Run(context.Background(), engine); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !strings.Contains(out.String(), "Hello there.") {
		t.Errorf("expected greeting in output, got: %s", out.String())
	}
	if !strings.Contains(out.String(), "Bye!") {
		t.Errorf("expected exit message, got: %s", out.String())
	}
}

func TestRunner_SuspensionHandler(t *testing.T) {
	loader, err := memory.NewLoader(&domain.FlowDefinition{
		Name: "ship",
		Steps: []domain.Step{
			{ID: "do_ship", Kind: domain.StepAction, Action: "ship_order"},
			{ID: "done", Kind: domain.StepSay, Message: "Shipped."},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	stub := &scriptedUnderstander{}
	stub.push(domain.Interruption{FlowName: "ship"})

	engine, err := cadence.New("", stub, cadence.WithFlowLoader(loader))
	if err != nil {
		t.Fatal(err)
	}

	executed := false
	var out bytes.Buffer
	runner := cadence.NewRunner("t-1")
	runner.Input = strings.NewReader("ship my order\n")
	runner.Output = &out
	runner.Headless = true
	runner.OnSuspension = func(_ context.Context, s *cadence.Suspension) (map[string]any, error) {
		executed = true
		if s.Action == nil || s.Action.Name != "ship_order" {
			t.Errorf("unexpected action: %+v", s.Action)
		}
		return nil, nil
	}

	if err := runner.Run(context.Background(), engine); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !executed {
		t.Error("expected the suspension handler to run")
	}
	if !strings.Contains(out.String(), "Shipped.") {
		t.Errorf("expected post-action message, got: %s", out.String())
	}
}

func TestRunner_RequiresIO(t *testing.T) {
	engine := greetEngine(t, &scriptedUnderstander{})

	runner := cadence.NewRunner("t-1")
	if err := runner.Run(context.Background(), engine); err == nil {
		t.Error("expected an error without IO configured")
	}

	runner.Input = strings.NewReader("")
	if err := runner.Run(context.Background(), engine); err == nil {
		t.Error("expected an error without an output writer")
	}
}
