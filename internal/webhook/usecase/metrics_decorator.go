package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bowerbird-app/captain-hook-sub004/internal/metrics"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// intakeUseCaseWithMetrics decorates IntakeUseCase with metrics instrumentation.
type intakeUseCaseWithMetrics struct {
	next    IntakeUseCase
	metrics metrics.BusinessMetrics
}

// NewIntakeUseCaseWithMetrics wraps an IntakeUseCase with metrics recording.
func NewIntakeUseCaseWithMetrics(useCase IntakeUseCase, m metrics.BusinessMetrics) IntakeUseCase {
	return &intakeUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Receive records metrics for inbound webhooks, counting rate limited requests per provider.
func (i *intakeUseCaseWithMetrics) Receive(ctx context.Context, input ReceiveInput) (*ReceiveResult, error) {
	start := time.Now()
	result, err := i.next.Receive(ctx, input)

	status := statusOf(err)
	if result != nil && result.Duplicate {
		status = "duplicate"
	}

	var limitErr *domain.RateLimitError
	if errors.As(err, &limitErr) {
		i.metrics.RecordEvent(ctx, "intake", "rate_limited", limitErr.Provider)
	}

	i.metrics.RecordOperation(ctx, "intake", "webhook_receive", status)
	i.metrics.RecordDuration(ctx, "intake", "webhook_receive", time.Since(start), status)

	return result, err
}

// dispatchUseCaseWithMetrics decorates DispatchUseCase with metrics instrumentation.
type dispatchUseCaseWithMetrics struct {
	next    DispatchUseCase
	metrics metrics.BusinessMetrics
}

// NewDispatchUseCaseWithMetrics wraps a DispatchUseCase with metrics recording.
func NewDispatchUseCaseWithMetrics(useCase DispatchUseCase, m metrics.BusinessMetrics) DispatchUseCase {
	return &dispatchUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Process records metrics labelled with the dispatch result.
func (d *dispatchUseCaseWithMetrics) Process(ctx context.Context, actionID uuid.UUID) (DispatchResult, error) {
	start := time.Now()
	result, err := d.next.Process(ctx, actionID)

	status := string(result)
	if result == "" {
		status = "error"
	}
	var configErr *domain.HandlerConfigError
	if errors.As(err, &configErr) {
		d.metrics.RecordEvent(ctx, "dispatch", "config_missing", configErr.Handler)
	}

	d.metrics.RecordOperation(ctx, "dispatch", "action_process", status)
	d.metrics.RecordDuration(ctx, "dispatch", "action_process", time.Since(start), status)

	return result, err
}

// Schedule records metrics for enqueuing the actions of an event.
func (d *dispatchUseCaseWithMetrics) Schedule(
	ctx context.Context,
	event *domain.IncomingEvent,
	actions []*domain.IncomingEventAction,
) error {
	err := d.next.Schedule(ctx, event, actions)
	d.metrics.RecordOperation(ctx, "dispatch", "event_schedule", statusOf(err))
	return err
}

// Run records metrics for dispatching a freshly stored event.
func (d *dispatchUseCaseWithMetrics) Run(
	ctx context.Context,
	event *domain.IncomingEvent,
	actions []*domain.IncomingEventAction,
) error {
	start := time.Now()
	err := d.next.Run(ctx, event, actions)

	status := statusOf(err)
	d.metrics.RecordOperation(ctx, "dispatch", "event_run", status)
	d.metrics.RecordDuration(ctx, "dispatch", "event_run", time.Since(start), status)

	return err
}

// SweepStaleLocks records metrics for the stale lock sweep.
func (d *dispatchUseCaseWithMetrics) SweepStaleLocks(
	ctx context.Context,
	olderThan time.Duration,
	limit int,
) (int, error) {
	start := time.Now()
	swept, err := d.next.SweepStaleLocks(ctx, olderThan, limit)

	status := statusOf(err)
	d.metrics.RecordOperation(ctx, "dispatch", "lock_sweep", status)
	d.metrics.RecordDuration(ctx, "dispatch", "lock_sweep", time.Since(start), status)

	return swept, err
}

// deliveryUseCaseWithMetrics decorates DeliveryUseCase with metrics instrumentation.
type deliveryUseCaseWithMetrics struct {
	next    DeliveryUseCase
	metrics metrics.BusinessMetrics
}

// NewDeliveryUseCaseWithMetrics wraps a DeliveryUseCase with metrics recording.
func NewDeliveryUseCaseWithMetrics(useCase DeliveryUseCase, m metrics.BusinessMetrics) DeliveryUseCase {
	return &deliveryUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Enqueue records metrics for outgoing event creation.
func (d *deliveryUseCaseWithMetrics) Enqueue(
	ctx context.Context,
	input EnqueueOutgoingInput,
) (*domain.OutgoingEvent, error) {
	start := time.Now()
	event, err := d.next.Enqueue(ctx, input)

	status := statusOf(err)
	d.metrics.RecordOperation(ctx, "delivery", "outgoing_enqueue", status)
	d.metrics.RecordDuration(ctx, "delivery", "outgoing_enqueue", time.Since(start), status)

	return event, err
}

// Deliver records metrics labelled with the delivery result, counting postponements caused by
// open circuits.
func (d *deliveryUseCaseWithMetrics) Deliver(ctx context.Context, id uuid.UUID) (DeliveryResult, error) {
	start := time.Now()
	result, err := d.next.Deliver(ctx, id)

	status := string(result)
	if result == "" {
		status = "error"
	}
	var openErr *domain.CircuitOpenError
	if errors.As(err, &openErr) {
		d.metrics.RecordEvent(ctx, "delivery", "circuit_open", openErr.Endpoint)
	}

	d.metrics.RecordOperation(ctx, "delivery", "outgoing_deliver", status)
	d.metrics.RecordDuration(ctx, "delivery", "outgoing_deliver", time.Since(start), status)

	return result, err
}

// SweepStaleDeliveries records metrics for the stale delivery sweep.
func (d *deliveryUseCaseWithMetrics) SweepStaleDeliveries(
	ctx context.Context,
	olderThan time.Duration,
	limit int,
) (int, error) {
	start := time.Now()
	swept, err := d.next.SweepStaleDeliveries(ctx, olderThan, limit)

	status := statusOf(err)
	d.metrics.RecordOperation(ctx, "delivery", "delivery_sweep", status)
	d.metrics.RecordDuration(ctx, "delivery", "delivery_sweep", time.Since(start), status)

	return swept, err
}
