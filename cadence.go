package cadence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/internal/runtime"
	"github.com/aretw0/cadence/pkg/adapters/memory"
	"github.com/aretw0/cadence/pkg/adapters/normalize"
	"github.com/aretw0/cadence/pkg/adapters/yamlflow"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/aretw0/cadence/pkg/session"
)

// OverflowPolicy re-exports the stack overflow policy for facade consumers.
type OverflowPolicy = runtime.OverflowPolicy

const (
	// CancelOldest forcibly cancels the bottom-of-stack flow to make room.
	CancelOldest = runtime.CancelOldest
	// RejectNew refuses to start the new flow.
	RejectNew = runtime.RejectNew
)

// Engine is the high-level entry point for the Cadence library. It wraps the
// internal runtime together with a session manager, so one Converse call is a
// full load-advance-save turn.
type Engine struct {
	runtime  *runtime.Engine
	sessions *session.Manager

	loader       ports.FlowLoader
	store        ports.StateStore
	locker       ports.DistributedLocker
	understander ports.Understander
	executor     ports.ActionExecutor
	normalizer   ports.SlotNormalizer
	knowledge    ports.KnowledgeSource
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	runtimeOpts  []runtime.EngineOption

	// Name labels logs, derived from the flow directory unless a custom
	// loader is injected.
	Name string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithFlowLoader injects a custom FlowLoader, bypassing the default YAML
// directory loader.
func WithFlowLoader(l ports.FlowLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithStateStore injects the checkpoint store. Defaults to the in-memory
// store, which does not survive restarts.
func WithStateStore(s ports.StateStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithDistributedLocker enables cross-process thread locking, typically the
// Redis locker when several workers share one store.
func WithDistributedLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithActionExecutor injects an in-process action executor. Without one the
// engine suspends at action steps and the host resumes with the outputs.
func WithActionExecutor(exec ports.ActionExecutor) Option {
	return func(e *Engine) {
		e.executor = exec
	}
}

// WithNormalizer overrides the default slot normalizer.
func WithNormalizer(n ports.SlotNormalizer) Option {
	return func(e *Engine) {
		e.normalizer = n
	}
}

// WithKnowledgeSource enables digression and clarification answers.
func WithKnowledgeSource(ks ports.KnowledgeSource) Option {
	return func(e *Engine) {
		e.knowledge = ks
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxStackDepth bounds the flow stack.
func WithMaxStackDepth(depth int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxStackDepth(depth))
	}
}

// WithStackOverflowPolicy selects what happens at the stack bound.
func WithStackOverflowPolicy(p OverflowPolicy) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithStackOverflowPolicy(p))
	}
}

// WithConfirmationRetries bounds unclear confirmation answers per step.
func WithConfirmationRetries(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithConfirmationRetries(n))
	}
}

// WithDigressionDepth bounds consecutive digressions per flow instance.
func WithDigressionDepth(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithDigressionDepth(n))
	}
}

// WithPruneBounds overrides the retention bounds for completed flows and the
// trace.
func WithPruneBounds(maxCompleted, maxTrace int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithPruneBounds(maxCompleted, maxTrace))
	}
}

// New initializes a Cadence Engine. By default it loads flow definitions from
// the YAML files under flowsPath; with WithFlowLoader, flowsPath may be empty.
func New(flowsPath string, understander ports.Understander, opts ...Option) (*Engine, error) {
	if understander == nil {
		return nil, fmt.Errorf("an Understander is required")
	}

	eng := &Engine{understander: understander}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.loader == nil {
		if flowsPath == "" {
			return nil, fmt.Errorf("flowsPath is required when no custom loader is provided")
		}
		absPath, err := filepath.Abs(flowsPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		eng.Name = filepath.Base(absPath)

		loader, err := yamlflow.New(absPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load flows: %w", err)
		}
		eng.loader = loader
	} else if flowsPath != "" {
		eng.Name = filepath.Base(flowsPath)
	}

	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.normalizer == nil {
		eng.normalizer = normalize.New()
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("flows", eng.Name)
	}

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}
	eng.sessions = session.NewManager(eng.store, sessionOpts...)

	runtimeOpts := []runtime.EngineOption{
		runtime.WithNormalizer(eng.normalizer),
		runtime.WithHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
	}
	if eng.executor != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithActionExecutor(eng.executor))
	}
	if eng.knowledge != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithKnowledgeSource(eng.knowledge))
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)

	eng.runtime = runtime.NewEngine(eng.loader, eng.understander, runtimeOpts...)
	return eng, nil
}

// Converse advances a thread by one user message: the state is loaded (or
// created on first contact), advanced, and checkpointed, all under the
// thread's lock.
func (e *Engine) Converse(ctx context.Context, threadID, message string) (*domain.TurnResult, error) {
	var result *domain.TurnResult
	err := e.sessions.WithLock(ctx, threadID, func(ctx context.Context) error {
		state, err := e.loadOrStart(ctx, threadID)
		if err != nil {
			return err
		}

		result, err = e.runtime.Advance(ctx, state, message)
		if err != nil {
			return err
		}
		return e.store.Save(ctx, threadID, state)
	})
	return result, err
}

// Resume completes a suspended action for a thread. The token must match the
// one issued in the suspending turn's TurnResult.
func (e *Engine) Resume(ctx context.Context, threadID, token string, outputs map[string]any) (*domain.TurnResult, error) {
	var result *domain.TurnResult
	err := e.sessions.WithLock(ctx, threadID, func(ctx context.Context) error {
		state, err := e.store.Load(ctx, threadID)
		if err != nil {
			return err
		}

		result, err = e.runtime.Resume(ctx, state, token, outputs)
		if err != nil {
			return err
		}
		return e.store.Save(ctx, threadID, state)
	})
	return result, err
}

// loadOrStart runs inside the caller's WithLock, so it talks to the store
// directly rather than through the manager.
func (e *Engine) loadOrStart(ctx context.Context, threadID string) (*domain.DialogueState, error) {
	state, err := e.store.Load(ctx, threadID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, domain.ErrThreadNotFound) {
		return nil, err
	}
	return domain.NewDialogueState(threadID), nil
}

// Sessions returns the session manager for thread management outside the
// conversational loop.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Loader returns the underlying FlowLoader.
func (e *Engine) Loader() ports.FlowLoader {
	return e.loader
}

// Reload re-reads flow definitions when the loader supports it.
func (e *Engine) Reload() error {
	if r, ok := e.loader.(interface{ Reload() error }); ok {
		return r.Reload()
	}
	return fmt.Errorf("current loader does not support reloading")
}
