package ports

import (
	"context"

	"github.com/aretw0/cadence/pkg/domain"
)

// StateStore persists DialogueState checkpoints per conversation thread.
// It is the only resource shared across workers; the session manager layers
// per-thread locking on top so that at most one turn mutates a thread at a
// time.
type StateStore interface {
	// Save persists the state for a thread ID.
	Save(ctx context.Context, threadID string, state *domain.DialogueState) error

	// Load retrieves the state for a thread ID.
	// Returns domain.ErrThreadNotFound if the thread does not exist.
	Load(ctx context.Context, threadID string) (*domain.DialogueState, error)

	// Delete removes the state for a thread ID.
	Delete(ctx context.Context, threadID string) error

	// List returns the IDs of all persisted threads.
	List(ctx context.Context) ([]string, error)
}
