package memory

import (
	"context"
	"sync"

	"github.com/aretw0/cadence/pkg/domain"
)

// Store implements ports.StateStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.DialogueState
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.DialogueState),
	}
}

// Save persists a deep copy of the state, so later caller mutations never
// reach the stored snapshot.
func (s *Store) Save(ctx context.Context, threadID string, state *domain.DialogueState) error {
	copied, err := domain.CloneState(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[threadID] = copied
	return nil
}

// Load retrieves a deep copy of the state.
func (s *Store) Load(ctx context.Context, threadID string) (*domain.DialogueState, error) {
	s.mu.RLock()
	state, ok := s.data[threadID]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrThreadNotFound
	}
	return domain.CloneState(state)
}

// Delete removes the state.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, threadID)
	return nil
}

// List returns all persisted thread IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads := make([]string, 0, len(s.data))
	for id := range s.data {
		threads = append(threads, id)
	}
	return threads, nil
}
