package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract verifies that a StateStore implementation adheres to
// the interface contract. Every store adapter runs this suite.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	threadID := "contract-test-thread-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewDialogueState(threadID)
		state.TurnCount = 3
		state.Conversation = domain.StateWaitingForSlot
		state.WaitingForSlot = "destination"
		state.FlowStack = append(state.FlowStack, domain.FlowContext{
			FlowID:    "f1",
			FlowName:  "book_flight",
			State:     domain.FlowActive,
			StartedAt: time.Now().UTC().Truncate(time.Second),
		})
		state.Slots("f1")["origin"] = "Madrid"
		state.BumpRetryCounter("confirm:c1")

		err := store.Save(ctx, threadID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.ThreadID, loaded.ThreadID)
		assert.Equal(t, state.TurnCount, loaded.TurnCount)
		assert.Equal(t, domain.StateWaitingForSlot, loaded.Conversation)
		assert.Equal(t, "destination", loaded.WaitingForSlot)
		require.Len(t, loaded.FlowStack, 1)
		assert.Equal(t, "book_flight", loaded.FlowStack[0].FlowName)
		assert.Equal(t, "Madrid", loaded.Slots("f1")["origin"])
		// Numeric metadata must survive whatever widening persistence applies.
		assert.Equal(t, 1, loaded.RetryCounter("confirm:c1"))
	})

	t.Run("Save Isolates Caller Mutations", func(t *testing.T) {
		state := domain.NewDialogueState(threadID)
		state.FlowStack = append(state.FlowStack, domain.FlowContext{
			FlowID: "f1", FlowName: "book_flight", State: domain.FlowActive,
		})
		state.Slots("f1")["origin"] = "Madrid"
		require.NoError(t, store.Save(ctx, threadID, state))

		state.Slots("f1")["origin"] = "Barcelona"

		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err)
		assert.Equal(t, "Madrid", loaded.Slots("f1")["origin"],
			"mutating the saved state must not change the stored snapshot")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, threadID, domain.NewDialogueState(threadID))
		require.NoError(t, err)

		err = store.Delete(ctx, threadID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound, "Load after Delete should return ErrThreadNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := threadID + "-1"
		id2 := threadID + "-2"
		_ = store.Save(ctx, id1, domain.NewDialogueState(id1))
		_ = store.Save(ctx, id2, domain.NewDialogueState(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		threads, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, threads, id1)
		assert.Contains(t, threads, id2)
	})
}
