package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/registry"
)

// Built-in handler names.
const (
	HandlerLog   = "log"
	HandlerRelay = "relay"
)

// Headers added to relayed outgoing events.
const (
	HeaderSourceProvider = "X-Source-Provider"
	HeaderSourceEventID  = "X-Source-Event-Id"
)

// NewLogHandler returns a handler that logs the event identity. It never fails.
func NewLogHandler(logger *slog.Logger) domain.Handler {
	return domain.HandlerFunc(func(
		_ context.Context,
		event *domain.IncomingEvent,
		_ map[string]any,
		meta domain.Metadata,
	) error {
		logger.Info("webhook event",
			slog.String("event_id", event.ID.String()),
			slog.String("provider", event.Provider),
			slog.String("external_id", event.ExternalID),
			slog.String("event_type", event.EventType),
			slog.Int("attempt", meta.Attempt),
		)
		return nil
	})
}

// NewRelayHandler returns a handler that enqueues one outgoing event for every endpoint
// subscribed to the event type, forwarding the original payload.
func NewRelayHandler(endpoints *registry.EndpointRegistry, delivery DeliveryUseCase) domain.Handler {
	return domain.HandlerFunc(func(
		ctx context.Context,
		event *domain.IncomingEvent,
		_ map[string]any,
		_ domain.Metadata,
	) error {
		var errs []error
		for _, endpoint := range endpoints.Subscribers(event.EventType) {
			_, err := delivery.Enqueue(ctx, EnqueueOutgoingInput{
				Provider:  endpoint.Name,
				EventType: event.EventType,
				Payload:   event.Payload,
				Headers: map[string]string{
					HeaderSourceProvider: event.Provider,
					HeaderSourceEventID:  event.ExternalID,
				},
			})
			if err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// RegisterBuiltinHandlers registers the log and relay handlers.
func RegisterBuiltinHandlers(
	handlers *registry.HandlerRegistry,
	endpoints *registry.EndpointRegistry,
	delivery DeliveryUseCase,
	logger *slog.Logger,
) error {
	if err := handlers.Register(HandlerLog, NewLogHandler(logger)); err != nil {
		return err
	}
	return handlers.Register(HandlerRelay, NewRelayHandler(endpoints, delivery))
}
