package actions

import (
	"sort"
	"sync"

	"github.com/rendis/procura/pkg/schema"
)

// Registry maps action types to their handlers. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	actions map[schema.ActionType]Action
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[schema.ActionType]Action)}
}

// Register adds a handler. Returns error on duplicate type.
func (r *Registry) Register(action Action) error {
	if action == nil {
		return schema.NewError(schema.ErrCodeValidation, "action is nil")
	}
	t := action.Type()
	if t == "" {
		return schema.NewError(schema.ErrCodeValidation, "action type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[t]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", t)
	}
	r.actions[t] = action
	return nil
}

// Get returns the handler for t, if any.
func (r *Registry) Get(t schema.ActionType) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[t]
	return a, ok
}

// Has checks if a handler is registered for t.
func (r *Registry) Has(t schema.ActionType) bool {
	_, ok := r.Get(t)
	return ok
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// List returns info for all registered handlers, sorted by type.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.actions))
	for t, a := range r.actions {
		infos = append(infos, Info{Type: t, Description: a.Describe()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })
	return infos
}
