package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/teranos/airlock/intake"
)

// Handler executes one action type against the platform. Implementations
// identify themselves by type name; the engine routes validated messages
// to them and never inspects type-specific fields itself.
//
// A handler resolves the message's temporary-id references through the
// snapshot it receives. A reference the snapshot cannot resolve is a
// deferral, not an error.
type Handler interface {
	// Type returns the action type this handler executes.
	Type() string

	// Handle performs the action. The returned error is for unexpected
	// failures; expected conditions travel inside the Outcome.
	Handle(ctx context.Context, msg intake.Message, ids ResolvedIDs) (Outcome, error)
}

// BodyRewriter is implemented by creation handlers whose entities accept
// a body correction after creation. The engine calls it for synthetic
// updates once forward references resolve.
type BodyRewriter interface {
	RewriteBody(ctx context.Context, entry TempEntry, body string) error
}

// Registry routes action types to handlers. It is populated once at
// startup from the run's policy and read-only afterwards.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under its own type name.
// Panics if the type already has a handler; double registration is a
// wiring bug, not a runtime condition.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := h.Type()
	if _, exists := r.handlers[t]; exists {
		panic(fmt.Sprintf("handler already registered for type: %s", t))
	}
	r.handlers[t] = h
}

// Get retrieves the handler for an action type, nil when unregistered.
func (r *Registry) Get(actionType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[actionType]
}

// Has checks whether an action type has a handler.
func (r *Registry) Has(actionType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[actionType]
	return exists
}

// Len reports how many handlers are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Types returns all registered action types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
