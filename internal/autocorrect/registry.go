package autocorrect

import (
	"context"
	"sync"

	"spellfix/internal/app"
	"spellfix/internal/protocol"
)

// ActionFunc resolves code actions for one request context.
type ActionFunc func(ctx context.Context, params protocol.CodeActionParams) ([]protocol.CodeAction, error)

// Registry holds the named code-action sources known to the server. The
// autocorrect provider registers here, and so does any source standing in
// for the spell checker's own quick fixes; resolving through the registry
// is how the provider recovers suggestion titles it was not handed
// directly.
type Registry struct {
	mu      sync.RWMutex
	names   []string
	sources map[string]ActionFunc
	logger  *app.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *app.Logger) *Registry {
	if logger == nil {
		logger = app.NullLogger
	}
	return &Registry{
		sources: make(map[string]ActionFunc),
		logger:  logger.WithComponent("registry"),
	}
}

// Register adds a source under a unique name. Registering an existing name
// replaces the source but keeps its position in resolution order.
func (r *Registry) Register(name string, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[name]; !ok {
		r.names = append(r.names, name)
	}
	r.sources[name] = fn
}

// Resolve collects actions from every source in registration order. A
// failing source is logged and skipped; the rest still contribute.
func (r *Registry) Resolve(ctx context.Context, params protocol.CodeActionParams) []protocol.CodeAction {
	r.mu.RLock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	sources := make(map[string]ActionFunc, len(r.sources))
	for name, fn := range r.sources {
		sources[name] = fn
	}
	r.mu.RUnlock()

	var actions []protocol.CodeAction
	for _, name := range names {
		resolved, err := sources[name](ctx, params)
		if err != nil {
			r.logger.Warn("action source %s failed: %v", name, err)
			continue
		}
		actions = append(actions, resolved...)
	}
	return actions
}
