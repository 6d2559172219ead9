package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Metadata describes the invocation a handler is running in.
type Metadata struct {
	ActionID    uuid.UUID
	HandlerName string
	Provider    string
	EventType   string
	Attempt     int
	MaxAttempts int
	Headers     map[string]string
}

// Handler is application logic invoked once per matching incoming event.
// Returning an error marks the attempt as failed and schedules a retry.
type Handler interface {
	Handle(ctx context.Context, event *IncomingEvent, payload map[string]any, meta Metadata) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event *IncomingEvent, payload map[string]any, meta Metadata) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event *IncomingEvent, payload map[string]any, meta Metadata) error {
	return f(ctx, event, payload, meta)
}

// HandlerBinding registers a handler for a (provider, event type) pair.
type HandlerBinding struct {
	Provider  string
	EventType string
	// Name is the registered handler name, stored on each action.
	Name     string
	Priority int
	// Async handlers run on the worker; others run inline during intake.
	Async       bool
	MaxAttempts int
	RetryDelays []time.Duration
	Handler     Handler
}
