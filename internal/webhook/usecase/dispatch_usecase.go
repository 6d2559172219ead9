package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bowerbird-app/captain-hook-sub004/internal/database"
	apperrors "github.com/bowerbird-app/captain-hook-sub004/internal/errors"
	queueDomain "github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/registry"
)

const lockExpiredMessage = "lock expired after the final attempt"

// dispatchUseCase implements the DispatchUseCase interface.
type dispatchUseCase struct {
	txManager  database.TxManager
	eventRepo  IncomingEventRepository
	actionRepo ActionRepository
	handlers   *registry.HandlerRegistry
	scheduler  JobScheduler
	workerID   string
	logger     *slog.Logger
	now        func() time.Time
}

// Process locks one action, runs its handler and records the outcome.
func (d *dispatchUseCase) Process(ctx context.Context, actionID uuid.UUID) (DispatchResult, error) {
	action, err := d.actionRepo.GetByID(ctx, actionID)
	if err != nil {
		return "", err
	}
	if !action.Status.IsRunnable() {
		return ResultSkipped, nil
	}

	event, err := d.eventRepo.GetByID(ctx, action.IncomingEventID)
	if err != nil {
		return "", err
	}

	previous := action.Status
	acquired, err := d.actionRepo.Lock(ctx, action, d.workerID, d.now().UTC())
	if err != nil {
		return "", err
	}
	if !acquired {
		d.logger.Debug("action lock not acquired", slog.String("action_id", action.ID.String()))
		return ResultNotAcquired, nil
	}

	if event.Status == domain.EventStatusReceived {
		if err := d.eventRepo.UpdateStatus(ctx, event.ID, domain.EventStatusProcessing); err != nil {
			return "", err
		}
		event.Status = domain.EventStatusProcessing
	}

	binding, ok := d.handlers.Binding(event.Provider, event.EventType, action.Handler)
	if !ok {
		return d.releaseMissingConfig(ctx, event, action, previous)
	}

	action.AttemptCount++
	if err := d.actionRepo.Update(ctx, action); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return ResultNotAcquired, nil
		}
		return "", err
	}

	handlerErr := d.invoke(ctx, binding.Handler, event, action)
	now := d.now().UTC()
	action.LockedBy = nil
	action.LockedAt = nil

	if handlerErr == nil {
		action.Status = domain.ActionStatusProcessed
		action.ProcessedAt = &now
		action.ErrorMessage = nil
		if err := d.actionRepo.Update(ctx, action); err != nil {
			return "", err
		}
		if err := d.aggregate(ctx, event.ID); err != nil {
			return "", err
		}

		d.logger.Info("action processed",
			slog.String("action_id", action.ID.String()),
			slog.String("handler", action.Handler),
			slog.Int("attempt", action.AttemptCount),
		)
		return ResultProcessed, nil
	}

	message := domain.TruncateError(handlerErr)
	action.ErrorMessage = &message

	result := ResultPendingRetry
	action.Status = domain.ActionStatusPendingRetry
	if action.AttemptsExhausted() {
		result = ResultFailed
		action.Status = domain.ActionStatusFailed
	}

	if err := d.actionRepo.Update(ctx, action); err != nil {
		return "", err
	}

	if result == ResultPendingRetry {
		delay := action.NextRetryDelay()
		if err := d.scheduler.Schedule(ctx, queueDomain.JobKindDispatchAction, action.ID, delay); err != nil {
			return "", apperrors.Wrap(err, "failed to schedule action retry")
		}
		d.logger.Warn("action failed, retry scheduled",
			slog.String("action_id", action.ID.String()),
			slog.String("handler", action.Handler),
			slog.Int("attempt", action.AttemptCount),
			slog.Int("max_attempts", action.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", handlerErr),
		)
	} else {
		d.logger.Error("action failed permanently",
			slog.String("action_id", action.ID.String()),
			slog.String("handler", action.Handler),
			slog.Int("attempt", action.AttemptCount),
			slog.Any("error", handlerErr),
		)
	}

	if err := d.aggregate(ctx, event.ID); err != nil {
		return "", err
	}
	return result, fmt.Errorf("handler %s failed: %w", action.Handler, handlerErr)
}

// releaseMissingConfig undoes the lock without consuming an attempt and without scheduling a
// retry. The action stays runnable so replaying the job after the binding is restored works.
func (d *dispatchUseCase) releaseMissingConfig(
	ctx context.Context,
	event *domain.IncomingEvent,
	action *domain.IncomingEventAction,
	previous domain.ActionStatus,
) (DispatchResult, error) {
	message := domain.ErrHandlerConfigMissing.Error()
	action.Status = previous
	action.LockedBy = nil
	action.LockedAt = nil
	action.ErrorMessage = &message

	if err := d.actionRepo.Update(ctx, action); err != nil && !errors.Is(err, domain.ErrVersionConflict) {
		return "", err
	}

	d.logger.Error("handler configuration not found",
		slog.String("action_id", action.ID.String()),
		slog.String("handler", action.Handler),
		slog.String("provider", event.Provider),
		slog.String("event_type", event.EventType),
	)
	return ResultConfigMissing, &domain.HandlerConfigError{Handler: action.Handler}
}

// invoke parses the payload and calls the handler, converting a panic into an error.
func (d *dispatchUseCase) invoke(
	ctx context.Context,
	handler domain.Handler,
	event *domain.IncomingEvent,
	action *domain.IncomingEventAction,
) (err error) {
	var payload map[string]any
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return apperrors.Wrap(err, "failed to parse stored payload")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler.Handle(ctx, event, payload, domain.Metadata{
		ActionID:    action.ID,
		HandlerName: action.Handler,
		Provider:    event.Provider,
		EventType:   event.EventType,
		Attempt:     action.AttemptCount,
		MaxAttempts: action.MaxAttempts,
		Headers:     event.Headers,
	})
}

// aggregate recomputes the event status from its actions while holding the event row lock.
func (d *dispatchUseCase) aggregate(ctx context.Context, eventID uuid.UUID) error {
	return d.txManager.WithTx(ctx, func(txCtx context.Context) error {
		event, err := d.eventRepo.GetByIDForUpdate(txCtx, eventID)
		if err != nil {
			return err
		}

		actions, err := d.actionRepo.ListByEvent(txCtx, eventID)
		if err != nil {
			return err
		}

		status := domain.AggregateStatus(actions)
		if status == event.Status {
			return nil
		}
		return d.eventRepo.UpdateStatus(txCtx, eventID, status)
	})
}

// runsInline reports whether the action is bound synchronously. Actions without a binding are
// queued so the worker records the missing configuration.
func (d *dispatchUseCase) runsInline(event *domain.IncomingEvent, action *domain.IncomingEventAction) bool {
	binding, ok := d.handlers.Binding(event.Provider, event.EventType, action.Handler)
	return ok && !binding.Async
}

// Schedule enqueues every action that does not run inline. The first queue error stops it.
func (d *dispatchUseCase) Schedule(
	ctx context.Context,
	event *domain.IncomingEvent,
	actions []*domain.IncomingEventAction,
) error {
	for _, action := range actions {
		if d.runsInline(event, action) {
			continue
		}
		if err := d.scheduler.Schedule(ctx, queueDomain.JobKindDispatchAction, action.ID, 0); err != nil {
			return apperrors.Wrap(err, "failed to enqueue action")
		}
	}
	return nil
}

// Run processes synchronous bindings inline. Handler failures are already recorded on the
// action, so only storage errors are returned.
func (d *dispatchUseCase) Run(
	ctx context.Context,
	event *domain.IncomingEvent,
	actions []*domain.IncomingEventAction,
) error {
	var errs []error
	for _, action := range actions {
		if !d.runsInline(event, action) {
			continue
		}
		result, err := d.Process(ctx, action.ID)
		if err == nil {
			continue
		}
		if result == "" {
			errs = append(errs, err)
			continue
		}
		d.logger.Warn("inline action failed",
			slog.String("action_id", action.ID.String()),
			slog.String("result", string(result)),
			slog.Any("error", err),
		)
	}
	return errors.Join(errs...)
}

// SweepStaleLocks releases actions whose worker disappeared mid-run. Actions with attempts left
// go back to pending_retry and are scheduled again; the others fail.
func (d *dispatchUseCase) SweepStaleLocks(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := d.actionRepo.ListStale(ctx, d.now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, action := range stale {
		lockedBy := ""
		if action.LockedBy != nil {
			lockedBy = *action.LockedBy
		}

		action.LockedBy = nil
		action.LockedAt = nil
		action.Status = domain.ActionStatusPendingRetry
		if action.AttemptsExhausted() {
			message := lockExpiredMessage
			action.Status = domain.ActionStatusFailed
			action.ErrorMessage = &message
		}

		if err := d.actionRepo.Update(ctx, action); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			return swept, err
		}
		swept++

		d.logger.Warn("stale action lock released",
			slog.String("action_id", action.ID.String()),
			slog.String("locked_by", lockedBy),
			slog.String("status", string(action.Status)),
		)

		if action.Status == domain.ActionStatusFailed {
			if err := d.aggregate(ctx, action.IncomingEventID); err != nil {
				return swept, err
			}
			continue
		}
		if err := d.scheduler.Schedule(ctx, queueDomain.JobKindDispatchAction, action.ID, 0); err != nil {
			return swept, apperrors.Wrap(err, "failed to enqueue action")
		}
	}

	return swept, nil
}

// NewDispatchUseCase creates a new DispatchUseCase. workerID is stored on every lock it takes.
func NewDispatchUseCase(
	txManager database.TxManager,
	eventRepo IncomingEventRepository,
	actionRepo ActionRepository,
	handlers *registry.HandlerRegistry,
	scheduler JobScheduler,
	workerID string,
	logger *slog.Logger,
) DispatchUseCase {
	return &dispatchUseCase{
		txManager:  txManager,
		eventRepo:  eventRepo,
		actionRepo: actionRepo,
		handlers:   handlers,
		scheduler:  scheduler,
		workerID:   workerID,
		logger:     logger,
		now:        time.Now,
	}
}
