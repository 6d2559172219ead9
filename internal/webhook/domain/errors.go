package domain

import (
	"time"

	"github.com/bowerbird-app/captain-hook-sub004/internal/errors"
)

// Webhook-specific error definitions. The messages of intake errors are returned to callers.
var (
	// ErrProviderNotFound indicates no provider is registered under the requested name.
	ErrProviderNotFound = errors.Wrap(errors.ErrNotFound, "Unknown provider")

	// ErrInvalidToken indicates the routing token does not match the provider.
	ErrInvalidToken = errors.Wrap(errors.ErrUnauthorized, "Invalid token")

	// ErrProviderInactive indicates the provider is disabled.
	ErrProviderInactive = errors.Wrap(errors.ErrForbidden, "Provider is inactive")

	// ErrPayloadTooLarge indicates the body exceeds the provider's payload cap.
	ErrPayloadTooLarge = errors.Wrap(errors.ErrPayloadTooLarge, "Payload too large")

	// ErrRateLimited indicates the provider exceeded its request quota.
	ErrRateLimited = errors.Wrap(errors.ErrTooManyRequests, "Rate limit exceeded")

	// ErrInvalidSignature indicates signature or timestamp verification failed.
	ErrInvalidSignature = errors.Wrap(errors.ErrUnauthorized, "Invalid signature")

	// ErrInvalidJSON indicates the body is not a JSON object.
	ErrInvalidJSON = errors.Wrap(errors.ErrInvalidInput, "Invalid JSON")

	// ErrInvalidEventType indicates the extracted event type cannot be stored.
	ErrInvalidEventType = errors.Wrap(errors.ErrInvalidInput, "Invalid event type")

	// ErrIncomingEventNotFound indicates the incoming event does not exist.
	ErrIncomingEventNotFound = errors.Wrap(errors.ErrNotFound, "incoming event not found")

	// ErrIncomingEventDuplicate indicates an event with the same provider and external id exists.
	ErrIncomingEventDuplicate = errors.Wrap(errors.ErrConflict, "incoming event already exists")

	// ErrActionNotFound indicates the incoming event action does not exist.
	ErrActionNotFound = errors.Wrap(errors.ErrNotFound, "incoming event action not found")

	// ErrOutgoingEventNotFound indicates the outgoing event does not exist.
	ErrOutgoingEventNotFound = errors.Wrap(errors.ErrNotFound, "outgoing event not found")

	// ErrEndpointNotFound indicates no outgoing endpoint is configured under the requested name.
	ErrEndpointNotFound = errors.Wrap(errors.ErrNotFound, "endpoint not found")

	// ErrVersionConflict indicates a row changed since it was read.
	ErrVersionConflict = errors.Wrap(errors.ErrConflict, "row version changed")

	// ErrHandlerConfigMissing indicates an action references a handler no longer bound to its event.
	ErrHandlerConfigMissing = errors.Wrap(errors.ErrUnavailable, "handler configuration not found")
	// ErrCircuitOpen indicates deliveries to an endpoint are paused after repeated failures.
	ErrCircuitOpen = errors.Wrap(errors.ErrUnavailable, "circuit open")
	// ErrUnsafeURL indicates a delivery target failed URL or address validation.
	ErrUnsafeURL = errors.Wrap(errors.ErrInvalidInput, "unsafe target url")
)

// RateLimitError is returned by intake when a provider exceeds its quota. It matches
// ErrRateLimited and carries the wait before a new request would be accepted.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// HandlerConfigError is returned with a config_missing dispatch result.
type HandlerConfigError struct {
	Handler string
}

func (e *HandlerConfigError) Error() string {
	return ErrHandlerConfigMissing.Error() + ": " + e.Handler
}

func (e *HandlerConfigError) Unwrap() error {
	return ErrHandlerConfigMissing
}

// CircuitOpenError is returned with a circuit_open delivery result.
type CircuitOpenError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return ErrCircuitOpen.Error() + ": " + e.Endpoint
}

func (e *CircuitOpenError) Unwrap() error {
	return ErrCircuitOpen
}
