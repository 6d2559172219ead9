// Package breaker tracks consecutive delivery failures per endpoint and blocks deliveries while
// an endpoint's circuit is open.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is matched by every OpenError.
var ErrCircuitOpen = errors.New("circuit open")

// OpenError is returned by Check while a circuit is open.
type OpenError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open for %s, retry after %s", e.Key, e.RetryAfter)
}

func (e *OpenError) Unwrap() error {
	return ErrCircuitOpen
}

// Settings configures the circuit of one key.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open.
	Cooldown time.Duration
}

// Enabled reports whether the settings describe an active breaker.
func (s Settings) Enabled() bool {
	return s.FailureThreshold > 0
}

// State is a snapshot of one circuit.
type State struct {
	Failures int
	Open     bool
	OpenedAt *time.Time
}

type circuit struct {
	failures int
	open     bool
	openedAt time.Time
	cooldown time.Duration
}

// Registry holds the circuits of all keys. There is no half-open trial request: once the cooldown
// elapses the next call goes through, and the retained failure count means a single further
// failure re-opens the circuit.
type Registry struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the registry clock.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) get(key string) *circuit {
	c, ok := r.circuits[key]
	if !ok {
		c = &circuit{}
		r.circuits[key] = c
	}
	return c
}

// Check returns an *OpenError while the circuit of key is open and inside its cooldown.
func (r *Registry) Check(key string, settings Settings) error {
	if !settings.Enabled() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.circuits[key]
	if !ok || !c.open {
		return nil
	}

	elapsed := r.now().Sub(c.openedAt)
	if elapsed >= settings.Cooldown {
		c.open = false
		return nil
	}

	return &OpenError{Key: key, RetryAfter: settings.Cooldown - elapsed}
}

// RecordSuccess resets the failure count of key and closes its circuit.
func (r *Registry) RecordSuccess(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.circuits[key]
	if !ok {
		return
	}
	c.failures = 0
	c.open = false
	c.openedAt = time.Time{}
}

// RecordFailure counts a failure for key and opens the circuit once the threshold is reached.
// It reports whether this failure opened the circuit.
func (r *Registry) RecordFailure(key string, settings Settings) bool {
	if !settings.Enabled() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.get(key)
	c.failures++
	c.cooldown = settings.Cooldown

	if c.failures >= settings.FailureThreshold && !c.open {
		c.open = true
		c.openedAt = r.now()
		return true
	}
	return false
}

// State returns a snapshot of the circuit of key.
func (r *Registry) State(key string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.circuits[key]
	if !ok {
		return State{}
	}

	state := State{Failures: c.failures}
	if c.open && r.now().Sub(c.openedAt) < c.cooldown {
		openedAt := c.openedAt
		state.Open = true
		state.OpenedAt = &openedAt
	}
	return state
}

// Reset forgets the circuit of key.
func (r *Registry) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.circuits, key)
}
