package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

var (
	// ErrUnknownHandler indicates a binding references a handler name that was never registered.
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrDuplicateHandler indicates a handler name or binding is registered twice.
	ErrDuplicateHandler = errors.New("duplicate handler")
)

type bindingKey struct {
	provider  string
	eventType string
}

// HandlerRegistry maps handler names to implementations and (provider, event type) pairs to
// the bindings that should run for them.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]domain.Handler
	bindings map[bindingKey][]domain.HandlerBinding
}

// NewHandlerRegistry creates an empty HandlerRegistry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]domain.Handler),
		bindings: make(map[bindingKey][]domain.HandlerBinding),
	}
}

// Register makes a handler implementation available under name.
func (r *HandlerRegistry) Register(name string, handler domain.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}
	r.handlers[name] = handler
	return nil
}

// Handler returns the implementation registered under name.
func (r *HandlerRegistry) Handler(name string) (domain.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	return h, ok
}

// Bind attaches a handler to a (provider, event type) pair. When binding.Handler is nil it is
// resolved by binding.Name; an unknown name fails.
func (r *HandlerRegistry) Bind(binding domain.HandlerBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if binding.Handler == nil {
		h, ok := r.handlers[binding.Name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownHandler, binding.Name)
		}
		binding.Handler = h
	}

	key := bindingKey{provider: binding.Provider, eventType: binding.EventType}
	for _, existing := range r.bindings[key] {
		if existing.Name == binding.Name {
			return fmt.Errorf(
				"%w: %s for %s/%s",
				ErrDuplicateHandler,
				binding.Name,
				binding.Provider,
				binding.EventType,
			)
		}
	}

	bindings := append(r.bindings[key], binding)
	sort.SliceStable(bindings, func(i, j int) bool {
		if bindings[i].Priority != bindings[j].Priority {
			return bindings[i].Priority < bindings[j].Priority
		}
		return bindings[i].Name < bindings[j].Name
	})
	r.bindings[key] = bindings
	return nil
}

// Bindings returns the bindings for an exact (provider, event type) match ordered by ascending
// priority then name.
func (r *HandlerRegistry) Bindings(provider, eventType string) []domain.HandlerBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bindings := r.bindings[bindingKey{provider: provider, eventType: eventType}]
	out := make([]domain.HandlerBinding, len(bindings))
	copy(out, bindings)
	return out
}

// Binding returns the binding of one handler for a (provider, event type) pair.
func (r *HandlerRegistry) Binding(provider, eventType, name string) (domain.HandlerBinding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.bindings[bindingKey{provider: provider, eventType: eventType}] {
		if b.Name == name {
			return b, true
		}
	}
	return domain.HandlerBinding{}, false
}

// ResetBindings drops every binding but keeps the registered handlers.
func (r *HandlerRegistry) ResetBindings() {
	r.mu.Lock()
	r.bindings = make(map[bindingKey][]domain.HandlerBinding)
	r.mu.Unlock()
}
