package memory

import (
	"fmt"
	"sort"

	"github.com/aretw0/cadence/pkg/domain"
)

// Loader implements ports.FlowLoader over an in-memory map. It is the loader
// of choice for tests and embedded use, where flow definitions are built in
// code rather than parsed from files.
type Loader struct {
	flows map[string]*domain.FlowDefinition
}

// NewLoader creates a loader from resolved definitions, validating each one.
func NewLoader(defs ...*domain.FlowDefinition) (*Loader, error) {
	flows := make(map[string]*domain.FlowDefinition, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("invalid flow definition: %w", err)
		}
		if _, dup := flows[def.Name]; dup {
			return nil, fmt.Errorf("duplicate flow %q", def.Name)
		}
		flows[def.Name] = def
	}
	return &Loader{flows: flows}, nil
}

// GetFlow retrieves a definition by name.
func (l *Loader) GetFlow(name string) (*domain.FlowDefinition, error) {
	def, ok := l.flows[name]
	if !ok {
		return nil, fmt.Errorf("flow not found: %s", name)
	}
	return def, nil
}

// ListFlows returns all flow names in deterministic order.
func (l *Loader) ListFlows() ([]string, error) {
	names := make([]string, 0, len(l.flows))
	for name := range l.flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
