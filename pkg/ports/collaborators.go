package ports

import (
	"context"

	"github.com/aretw0/cadence/pkg/domain"
)

// Understander extracts a structured interpretation from a raw user message.
// It is called exactly once per turn, before slot processing. Failures are
// not retried within the turn; the engine falls back to the error
// conversation state.
type Understander interface {
	Understand(ctx context.Context, message string, uctx domain.UnderstandingContext) (*domain.UnderstandingResult, error)
}

// ActionExecutor performs external side-effects for action steps. Delivery is
// at-least-once: the engine may re-invoke an action after a crash between
// execution and checkpoint, so idempotency is the implementor's
// responsibility. When no executor is injected, the engine suspends instead
// and the host executes the action out of band.
type ActionExecutor interface {
	Execute(ctx context.Context, name string, inputs map[string]any) (map[string]any, error)
}

// SlotNormalizer converts a raw extracted value into the slot's declared
// type. Failures are non-fatal: the engine logs them, keeps the raw value,
// and flags it in metadata — never a silent substitution.
type SlotNormalizer interface {
	Normalize(spec domain.SlotSpec, raw any) (any, error)
}

// KnowledgeSource answers digressions and clarifications from read-only
// material, without touching the flow stack.
type KnowledgeSource interface {
	Answer(ctx context.Context, topic string) (string, error)
}
