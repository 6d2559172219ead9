package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/bowerbird-app/captain-hook-sub004/internal/database"
	apperrors "github.com/bowerbird-app/captain-hook-sub004/internal/errors"
	queueDomain "github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
	appvalidation "github.com/bowerbird-app/captain-hook-sub004/internal/validation"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/breaker"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/registry"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/service"
)

const staleDeliveryMessage = "delivery attempt interrupted"

// Validate checks the outgoing event input.
func (in EnqueueOutgoingInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Provider, validation.Required, appvalidation.ProviderName),
		validation.Field(&in.EventType, validation.Required, appvalidation.NotBlank, appvalidation.NoWhitespace),
		validation.Field(&in.TargetURL, appvalidation.HTTPURL),
		validation.Field(&in.Payload, validation.Required, appvalidation.JSONObject),
	)
}

// deliveryUseCase implements the DeliveryUseCase interface.
type deliveryUseCase struct {
	txManager    database.TxManager
	outgoingRepo OutgoingEventRepository
	endpoints    *registry.EndpointRegistry
	breakers     *breaker.Registry
	sender       Sender
	scheduler    JobScheduler
	logger       *slog.Logger
	now          func() time.Time
}

// Enqueue stores a pending outgoing event for a configured endpoint and schedules its delivery.
// The target defaults to the endpoint URL.
func (d *deliveryUseCase) Enqueue(ctx context.Context, input EnqueueOutgoingInput) (*domain.OutgoingEvent, error) {
	if err := input.Validate(); err != nil {
		return nil, appvalidation.WrapValidationError(err)
	}

	endpoint, err := d.endpoints.Get(input.Provider)
	if err != nil {
		return nil, err
	}

	targetURL := input.TargetURL
	if targetURL == "" {
		targetURL = endpoint.URL
	}
	headers := input.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	now := d.now().UTC()
	event := &domain.OutgoingEvent{
		ID:        uuid.Must(uuid.NewV7()),
		Provider:  endpoint.Name,
		EventType: input.EventType,
		TargetURL: targetURL,
		Headers:   headers,
		Payload:   input.Payload,
		Status:    domain.OutgoingStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = d.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := d.outgoingRepo.Create(txCtx, event); err != nil {
			return err
		}
		return d.scheduler.Schedule(txCtx, queueDomain.JobKindDeliverOutgoing, event.ID, 0)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("outgoing event enqueued",
		slog.String("outgoing_event_id", event.ID.String()),
		slog.String("endpoint", event.Provider),
		slog.String("event_type", event.EventType),
	)
	return event, nil
}

// Deliver makes one delivery attempt of a pending outgoing event.
func (d *deliveryUseCase) Deliver(ctx context.Context, id uuid.UUID) (DeliveryResult, error) {
	event, err := d.outgoingRepo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if event.Status != domain.OutgoingStatusPending {
		return ResultDeliverySkip, nil
	}

	endpoint, err := d.endpoints.Get(event.Provider)
	if err != nil {
		d.logger.Debug("no endpoint configured for outgoing event",
			slog.String("outgoing_event_id", event.ID.String()),
			slog.String("endpoint", event.Provider),
		)
		return ResultNoEndpoint, nil
	}

	settings := breaker.Settings{FailureThreshold: endpoint.FailureThreshold, Cooldown: endpoint.Cooldown}
	var openErr *breaker.OpenError
	if err := d.breakers.Check(event.TargetURL, settings); errors.As(err, &openErr) {
		if err := d.scheduler.Schedule(ctx, queueDomain.JobKindDeliverOutgoing, event.ID, openErr.RetryAfter); err != nil {
			return "", apperrors.Wrap(err, "failed to schedule delivery")
		}
		d.logger.Info("circuit open, delivery postponed",
			slog.String("outgoing_event_id", event.ID.String()),
			slog.String("endpoint", endpoint.Name),
			slog.Duration("retry_after", openErr.RetryAfter),
		)
		return ResultCircuitOpen, &domain.CircuitOpenError{Endpoint: endpoint.Name, RetryAfter: openErr.RetryAfter}
	}

	now := d.now().UTC()
	event.Status = domain.OutgoingStatusProcessing
	event.AttemptCount++
	if event.FirstAttemptAt == nil {
		event.FirstAttemptAt = &now
	}
	event.LastAttemptAt = &now
	if err := d.outgoingRepo.Update(ctx, event); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return ResultDeliveryStale, nil
		}
		return "", err
	}

	resp, sendErr := d.sender.Send(ctx, service.DeliveryRequest{
		URL:       event.TargetURL,
		EventID:   event.ID.String(),
		EventType: event.EventType,
		Headers:   []map[string]string{endpoint.Headers, event.Headers},
		Body:      event.Payload,
		Secret:    endpoint.Secret,
	})
	recordResponse(event, resp)

	var deliveryErr error
	switch {
	case sendErr != nil && errors.Is(sendErr, domain.ErrUnsafeURL):
		return d.finish(ctx, event, domain.OutgoingStatusFailed, sendErr)
	case sendErr != nil:
		deliveryErr = sendErr
	case resp.Success():
		d.breakers.RecordSuccess(event.TargetURL)
		return d.finish(ctx, event, domain.OutgoingStatusDelivered, nil)
	case resp.Redirect():
		return d.finish(ctx, event, domain.OutgoingStatusFailed, fmt.Errorf("unexpected redirect %d", resp.StatusCode))
	case resp.ClientError():
		return d.finish(ctx, event, domain.OutgoingStatusFailed, fmt.Errorf("unexpected status %d", resp.StatusCode))
	default:
		deliveryErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if d.breakers.RecordFailure(event.TargetURL, settings) {
		d.logger.Warn("circuit opened",
			slog.String("endpoint", endpoint.Name),
			slog.String("target_url", event.TargetURL),
			slog.Duration("cooldown", endpoint.Cooldown),
		)
	}

	if event.AttemptCount >= endpoint.MaxAttempts {
		return d.finish(ctx, event, domain.OutgoingStatusFailed, deliveryErr)
	}

	result, err := d.finish(ctx, event, domain.OutgoingStatusPending, deliveryErr)
	if result == "" {
		return result, err
	}
	delay := domain.RetryDelay(endpoint.RetryDelays, event.AttemptCount)
	if err := d.scheduler.Schedule(ctx, queueDomain.JobKindDeliverOutgoing, event.ID, delay); err != nil {
		return "", apperrors.Wrap(err, "failed to schedule delivery retry")
	}
	return result, err
}

// SweepStaleDeliveries recovers events whose worker stopped between claiming and finishing an
// attempt. The interrupted attempt stays counted.
func (d *deliveryUseCase) SweepStaleDeliveries(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := d.outgoingRepo.ListStale(ctx, d.now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, event := range stale {
		message := staleDeliveryMessage
		event.ErrorMessage = &message
		event.Status = domain.OutgoingStatusPending

		// Without an endpoint the event waits like any undeliverable pending one.
		if endpoint, err := d.endpoints.Get(event.Provider); err == nil && event.AttemptCount >= endpoint.MaxAttempts {
			event.Status = domain.OutgoingStatusFailed
		}

		if err := d.outgoingRepo.Update(ctx, event); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			return swept, err
		}
		swept++

		d.logger.Warn("stale outgoing delivery released",
			slog.String("outgoing_event_id", event.ID.String()),
			slog.String("endpoint", event.Provider),
			slog.Int("attempt", event.AttemptCount),
			slog.String("status", string(event.Status)),
		)

		if event.Status == domain.OutgoingStatusFailed {
			continue
		}
		if err := d.scheduler.Schedule(ctx, queueDomain.JobKindDeliverOutgoing, event.ID, 0); err != nil {
			return swept, apperrors.Wrap(err, "failed to schedule delivery")
		}
	}

	return swept, nil
}

// finish persists the outcome of an attempt. deliveryErr is recorded on the event and returned
// wrapped for every outcome except delivered.
func (d *deliveryUseCase) finish(
	ctx context.Context,
	event *domain.OutgoingEvent,
	status domain.OutgoingStatus,
	deliveryErr error,
) (DeliveryResult, error) {
	event.Status = status
	event.ErrorMessage = nil
	if deliveryErr != nil {
		message := domain.TruncateError(deliveryErr)
		event.ErrorMessage = &message
	}

	if err := d.outgoingRepo.Update(ctx, event); err != nil {
		return "", err
	}

	attrs := []any{
		slog.String("outgoing_event_id", event.ID.String()),
		slog.String("endpoint", event.Provider),
		slog.Int("attempt", event.AttemptCount),
	}
	if event.ResponseCode != nil {
		attrs = append(attrs, slog.Int("status_code", *event.ResponseCode))
	}

	switch status {
	case domain.OutgoingStatusDelivered:
		d.logger.Info("outgoing event delivered", attrs...)
		return ResultDelivered, nil
	case domain.OutgoingStatusFailed:
		d.logger.Error("outgoing event failed", append(attrs, slog.Any("error", deliveryErr))...)
		return ResultDeliveryFail, fmt.Errorf("delivery failed: %w", deliveryErr)
	default:
		d.logger.Warn("outgoing event delivery will be retried", append(attrs, slog.Any("error", deliveryErr))...)
		return ResultRetryable, fmt.Errorf("delivery failed: %w", deliveryErr)
	}
}

// recordResponse stores what the destination answered, or clears it when nothing came back.
func recordResponse(event *domain.OutgoingEvent, resp *service.DeliveryResponse) {
	if resp == nil {
		event.ResponseCode = nil
		event.ResponseBody = nil
		event.ResponseTimeMs = nil
		return
	}

	code := resp.StatusCode
	body := resp.Body
	elapsed := resp.Duration.Milliseconds()
	event.ResponseCode = &code
	event.ResponseBody = &body
	event.ResponseTimeMs = &elapsed
}

// NewDeliveryUseCase creates a new DeliveryUseCase.
func NewDeliveryUseCase(
	txManager database.TxManager,
	outgoingRepo OutgoingEventRepository,
	endpoints *registry.EndpointRegistry,
	breakers *breaker.Registry,
	sender Sender,
	scheduler JobScheduler,
	logger *slog.Logger,
) DeliveryUseCase {
	return &deliveryUseCase{
		txManager:    txManager,
		outgoingRepo: outgoingRepo,
		endpoints:    endpoints,
		breakers:     breakers,
		sender:       sender,
		scheduler:    scheduler,
		logger:       logger,
		now:          time.Now,
	}
}
