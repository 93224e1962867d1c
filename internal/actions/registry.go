package actions

import (
	"sort"
	"sync"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Registry maps node types to their handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[schema.NodeType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[schema.NodeType]Handler)}
}

// Register adds a handler. Returns an error for nil handlers, unknown node
// types or a type that is already registered.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	t := h.Type()
	if !t.Known() {
		return schema.NewErrorf(schema.ErrCodeUnknownNodeType, "cannot register handler for unknown node type %q", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "handler for %q already registered", t)
	}
	r.handlers[t] = h
	return nil
}

// Get returns the handler for t.
func (r *Registry) Get(t schema.NodeType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Missing returns the node types that have no handler, in enumeration order.
func (r *Registry) Missing() []schema.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []schema.NodeType
	for _, t := range schema.AllNodeTypes {
		if _, ok := r.handlers[t]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

// List returns info for all registered handlers, sorted by type.
func (r *Registry) List() []HandlerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]HandlerInfo, 0, len(r.handlers))
	for t, h := range r.handlers {
		infos = append(infos, HandlerInfo{Type: t, Description: h.Describe(), Branching: t.IsBranching()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })
	return infos
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
