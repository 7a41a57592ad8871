// Package yamlflow loads flow definitions from YAML files on disk.
package yamlflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/cadence/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Loader implements ports.FlowLoader over a directory of YAML files, one flow
// definition per file. Definitions are parsed and validated once at
// construction; Reload re-reads the directory for dev-loop use.
type Loader struct {
	dir string

	mu    sync.RWMutex
	flows map[string]*domain.FlowDefinition
}

// New creates a loader and parses every *.yaml / *.yml file under dir.
func New(dir string) (*Loader, error) {
	l := &Loader{dir: dir}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-parses the directory, replacing the definition set atomically.
// A parse failure in any file leaves the previous set in place.
func (l *Loader) Reload() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("failed to read flow directory: %w", err)
	}

	flows := map[string]*domain.FlowDefinition{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		def, err := parseFile(path)
		if err != nil {
			return err
		}
		if _, dup := flows[def.Name]; dup {
			return fmt.Errorf("duplicate flow %q in %s", def.Name, entry.Name())
		}
		flows[def.Name] = def
	}

	l.mu.Lock()
	l.flows = flows
	l.mu.Unlock()
	return nil
}

func parseFile(path string) (*domain.FlowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var def domain.FlowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if def.Name == "" {
		// Fall back to the file name so minimal definitions stay minimal.
		base := filepath.Base(path)
		def.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &def, nil
}

// GetFlow retrieves a definition by name.
func (l *Loader) GetFlow(name string) (*domain.FlowDefinition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	def, ok := l.flows[name]
	if !ok {
		return nil, fmt.Errorf("flow not found: %s", name)
	}
	return def, nil
}

// ListFlows returns all flow names in deterministic order.
func (l *Loader) ListFlows() ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.flows))
	for name := range l.flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
