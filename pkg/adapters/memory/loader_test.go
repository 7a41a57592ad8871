package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/cadence/pkg/adapters/memory"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFlow(name string) *domain.FlowDefinition {
	return &domain.FlowDefinition{
		Name: name,
		Steps: []domain.Step{
			{ID: "get_origin", Kind: domain.StepCollect, Slot: "origin"},
		},
	}
}

func TestMemoryLoader(t *testing.T) {
	loader, err := memory.NewLoader(sampleFlow("book_flight"), sampleFlow("check_balance"))
	require.NoError(t, err)

	def, err := loader.GetFlow("book_flight")
	require.NoError(t, err)
	assert.Equal(t, "book_flight", def.Name)

	_, err = loader.GetFlow("order_pizza")
	assert.Error(t, err)

	names, err := loader.ListFlows()
	require.NoError(t, err)
	assert.Equal(t, []string{"book_flight", "check_balance"}, names, "deterministic order")
}

func TestMemoryLoaderRejectsInvalid(t *testing.T) {
	_, err := memory.NewLoader(&domain.FlowDefinition{Name: "broken"})
	assert.Error(t, err, "flow without steps must be rejected")

	_, err = memory.NewLoader(sampleFlow("dup"), sampleFlow("dup"))
	assert.Error(t, err, "duplicate names must be rejected")
}

func TestMemoryKnowledge(t *testing.T) {
	k := memory.NewKnowledge(map[string]string{
		"baggage": "Two checked bags are included.",
	})

	answer, err := k.Answer(context.Background(), "baggage allowance")
	require.NoError(t, err)
	assert.Equal(t, "Two checked bags are included.", answer)

	_, err = k.Answer(context.Background(), "weather")
	assert.Error(t, err)
}
