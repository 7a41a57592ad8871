package ports

import (
	"context"

	"github.com/aretw0/cadence/pkg/domain"
)

// FlowLoader resolves flow definitions by name. Parsing (YAML, files, memory)
// is an adapter concern; the engine only ever sees resolved definitions.
type FlowLoader interface {
	// GetFlow returns the definition for a flow name.
	GetFlow(name string) (*domain.FlowDefinition, error)

	// ListFlows returns the names of all available flows, used to build the
	// Understanding context.
	ListFlows() ([]string, error)
}

// Watchable is implemented by loaders that can signal definition changes,
// typically for dev-mode hot reload.
type Watchable interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}
