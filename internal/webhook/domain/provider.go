// Package domain defines the webhook gateway models: providers, incoming events and their
// handler actions, outgoing events, outgoing endpoints and the handler contract.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SkipSignatureSecret disables signature verification for a provider when used as its secret.
const SkipSignatureSecret = "skip"

// Provider is a third-party service allowed to send webhooks to the gateway.
type Provider struct {
	// ID is the unique identifier (UUIDv7).
	ID uuid.UUID
	// Name is the unique, lowercase/underscore provider name used in the inbound URL.
	Name string
	// Token is the opaque routing token used in the inbound URL.
	Token string `json:"-"`
	// Secret is the signing secret shared with the provider.
	Secret string `json:"-"`
	// Verifier identifies the signature verifier implementation (stripe, square, webhook).
	Verifier string
	// WebhookURL is the public notification URL registered with the provider.
	WebhookURL string
	// TimestampTolerance is the accepted clock skew for signed timestamps. Zero disables the check.
	TimestampTolerance time.Duration
	// MaxPayloadSize is the largest accepted body in bytes. Zero disables the check.
	MaxPayloadSize int64
	// RateLimitRequests is the request quota per RateLimitPeriod. Zero disables rate limiting.
	RateLimitRequests int
	// RateLimitPeriod is the sliding window length for RateLimitRequests.
	RateLimitPeriod time.Duration
	// Active reports whether the provider currently accepts webhooks.
	Active bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SkipsSignature reports whether signature verification is disabled for this provider.
func (p *Provider) SkipsSignature() bool {
	return p.Secret == "" || p.Secret == SkipSignatureSecret
}

// RateLimited reports whether a request quota is configured.
func (p *Provider) RateLimited() bool {
	return p.RateLimitRequests > 0 && p.RateLimitPeriod > 0
}
