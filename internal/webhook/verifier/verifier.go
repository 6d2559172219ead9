// Package verifier implements per-provider webhook signature verification and event identity
// extraction. Verifiers are looked up by identifier in a Registry built at startup.
package verifier

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

// Verifier identifiers.
const (
	NameStripe  = "stripe"
	NameSquare  = "square"
	NameWebhook = "webhook"
)

// DefaultEventType is returned when a payload carries no event type.
const DefaultEventType = "unknown"

// Verifier validates signatures and extracts event identity for one provider family.
// Implementations must compare secrets and signatures in constant time.
type Verifier interface {
	// VerifySignature reports whether payload carries a valid signature for provider.
	VerifySignature(payload []byte, headers http.Header, provider *domain.Provider) bool
	// ExtractEventID returns the provider event id, or a generated UUID when absent.
	ExtractEventID(payload map[string]any) string
	// ExtractEventType returns the provider event type, or DefaultEventType when absent.
	ExtractEventType(payload map[string]any) string
	// ExtractTimestamp returns the signed timestamp, or nil when absent or malformed.
	ExtractTimestamp(headers http.Header) *int64
}

// Option configures the built-in verifiers.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for timestamp tolerance checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Registry maps verifier identifiers to implementations.
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry creates a registry holding the given verifiers.
func NewRegistry(verifiers map[string]Verifier) *Registry {
	copied := make(map[string]Verifier, len(verifiers))
	for name, v := range verifiers {
		copied[name] = v
	}
	return &Registry{verifiers: copied}
}

// NewDefaultRegistry creates a registry with the stripe, square and webhook verifiers.
func NewDefaultRegistry(opts ...Option) *Registry {
	return NewRegistry(map[string]Verifier{
		NameStripe:  NewStripeVerifier(opts...),
		NameSquare:  NewSquareVerifier(),
		NameWebhook: NewWebhookVerifier(opts...),
	})
}

// Get returns the verifier registered under name.
func (r *Registry) Get(name string) (Verifier, error) {
	v, ok := r.verifiers[name]
	if !ok {
		return nil, fmt.Errorf("unknown verifier %q", name)
	}
	return v, nil
}

// Has reports whether a verifier is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.verifiers[name]
	return ok
}

// Names returns the registered identifiers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
