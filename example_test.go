package cadence_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/cadence"
	"github.com/aretw0/cadence/pkg/adapters/memory"
	"github.com/aretw0/cadence/pkg/domain"
)

// Example runs one conversational turn against an in-memory flow set with a
// scripted understander standing in for the LLM adapter.
func Example() {
	loader, err := memory.NewLoader(&domain.FlowDefinition{
		Name: "check_balance",
		Steps: []domain.Step{
			{ID: "tell", Kind: domain.StepSay, Message: "Your balance is $120."},
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	stub := &scriptedUnderstander{}
	stub.push(domain.Interruption{FlowName: "check_balance"})

	engine, err := cadence.New("", stub, cadence.WithFlowLoader(loader))
	if err != nil {
		log.Fatal(err)
	}

	result, err := engine.Converse(context.Background(), "thread-1", "what's my balance?")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(result.Response)
	// Output: Your balance is $120. Done — check_balance is complete.
}
