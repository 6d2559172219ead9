package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bowerbird-app/captain-hook-sub004/internal/database"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/registry"
)

// eventUseCase implements the EventUseCase interface.
type eventUseCase struct {
	txManager    database.TxManager
	eventRepo    IncomingEventRepository
	actionRepo   ActionRepository
	outgoingRepo OutgoingEventRepository
	handlers     *registry.HandlerRegistry
	dispatcher   DispatchUseCase
	logger       *slog.Logger
	now          func() time.Time
}

// GetIncoming returns an incoming event with its actions.
func (e *eventUseCase) GetIncoming(ctx context.Context, id uuid.UUID) (*EventDetail, error) {
	event, err := e.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	actions, err := e.actionRepo.ListByEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	return &EventDetail{Event: event, Actions: actions}, nil
}

// ListIncoming lists incoming events newest first.
func (e *eventUseCase) ListIncoming(
	ctx context.Context,
	filter domain.IncomingEventFilter,
	offset, limit int,
) ([]*domain.IncomingEvent, error) {
	return e.eventRepo.List(ctx, filter, offset, limit)
}

// Replay runs the event through the handlers bound to it today. Earlier actions are kept for
// history; the new ones are dispatched like those of a fresh event.
func (e *eventUseCase) Replay(ctx context.Context, id uuid.UUID) (*EventDetail, error) {
	event, err := e.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	actions := newActions(event, e.handlers.Bindings(event.Provider, event.EventType), now)

	err = e.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := e.eventRepo.UpdateDedupState(txCtx, event.ID, domain.DedupStateReplayed); err != nil {
			return err
		}
		if len(actions) == 0 {
			return nil
		}
		if err := e.eventRepo.UpdateStatus(txCtx, event.ID, domain.EventStatusReceived); err != nil {
			return err
		}
		for _, action := range actions {
			if err := e.actionRepo.Create(txCtx, action); err != nil {
				return err
			}
		}
		return e.dispatcher.Schedule(txCtx, event, actions)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("incoming event replayed",
		slog.String("event_id", event.ID.String()),
		slog.String("provider", event.Provider),
		slog.Int("actions", len(actions)),
	)

	if len(actions) > 0 {
		event.Status = domain.EventStatusReceived
		if err := e.dispatcher.Run(ctx, event, actions); err != nil {
			e.logger.Error("failed to run inline actions of replayed event",
				slog.String("event_id", event.ID.String()),
				slog.Any("error", err),
			)
		}
	}

	return e.GetIncoming(ctx, event.ID)
}

// GetOutgoing returns an outgoing event.
func (e *eventUseCase) GetOutgoing(ctx context.Context, id uuid.UUID) (*domain.OutgoingEvent, error) {
	return e.outgoingRepo.GetByID(ctx, id)
}

// ListOutgoing lists outgoing events newest first.
func (e *eventUseCase) ListOutgoing(
	ctx context.Context,
	filter domain.OutgoingEventFilter,
	offset, limit int,
) ([]*domain.OutgoingEvent, error) {
	return e.outgoingRepo.List(ctx, filter, offset, limit)
}

// NewEventUseCase creates a new EventUseCase.
func NewEventUseCase(
	txManager database.TxManager,
	eventRepo IncomingEventRepository,
	actionRepo ActionRepository,
	outgoingRepo OutgoingEventRepository,
	handlers *registry.HandlerRegistry,
	dispatcher DispatchUseCase,
	logger *slog.Logger,
) EventUseCase {
	return &eventUseCase{
		txManager:    txManager,
		eventRepo:    eventRepo,
		actionRepo:   actionRepo,
		outgoingRepo: outgoingRepo,
		handlers:     handlers,
		dispatcher:   dispatcher,
		logger:       logger,
		now:          time.Now,
	}
}
