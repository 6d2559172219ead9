// Package usecase implements the webhook gateway business logic: intake of inbound webhooks,
// dispatch of handler actions, delivery of outgoing events and their maintenance operations.
package usecase

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	queueDomain "github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/service"
)

// ProviderRepository defines provider persistence operations.
type ProviderRepository interface {
	Upsert(ctx context.Context, provider *domain.Provider) error
	GetByName(ctx context.Context, name string) (*domain.Provider, error)
	ListAll(ctx context.Context) ([]*domain.Provider, error)
	SetActive(ctx context.Context, name string, active bool) error
}

// IncomingEventRepository defines incoming event persistence operations.
type IncomingEventRepository interface {
	// Create inserts the event. A (provider, external_id) collision returns
	// domain.ErrIncomingEventDuplicate.
	Create(ctx context.Context, event *domain.IncomingEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.IncomingEvent, error)
	// GetByIDForUpdate locks the event row for the current transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.IncomingEvent, error)
	GetByProviderExternalID(ctx context.Context, provider, externalID string) (*domain.IncomingEvent, error)
	List(ctx context.Context, filter domain.IncomingEventFilter, offset, limit int) ([]*domain.IncomingEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.EventStatus) error
	UpdateDedupState(ctx context.Context, id uuid.UUID, state domain.DedupState) error
	// Archive stamps archived_at on finished events created before cutoff.
	Archive(ctx context.Context, cutoff time.Time, archivedAt time.Time) (int64, error)
	CountArchivable(ctx context.Context, cutoff time.Time) (int64, error)
}

// ActionRepository defines incoming event action persistence operations.
type ActionRepository interface {
	Create(ctx context.Context, action *domain.IncomingEventAction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.IncomingEventAction, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*domain.IncomingEventAction, error)
	// Lock moves a runnable action to processing when its lock_version still equals
	// action.LockVersion. It returns false, without error, when another worker got there first.
	Lock(ctx context.Context, action *domain.IncomingEventAction, workerID string, lockedAt time.Time) (bool, error)
	// Update persists the mutable fields guarded by lock_version and bumps the version.
	// A stale version returns domain.ErrVersionConflict.
	Update(ctx context.Context, action *domain.IncomingEventAction) error
	// ListStale returns processing actions locked before lockedBefore.
	ListStale(ctx context.Context, lockedBefore time.Time, limit int) ([]*domain.IncomingEventAction, error)
}

// OutgoingEventRepository defines outgoing event persistence operations.
type OutgoingEventRepository interface {
	Create(ctx context.Context, event *domain.OutgoingEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OutgoingEvent, error)
	List(ctx context.Context, filter domain.OutgoingEventFilter, offset, limit int) ([]*domain.OutgoingEvent, error)
	// Update persists the mutable fields guarded by lock_version and bumps the version.
	// A stale version returns domain.ErrVersionConflict.
	Update(ctx context.Context, event *domain.OutgoingEvent) error
	ListStale(ctx context.Context, attemptedBefore time.Time, limit int) ([]*domain.OutgoingEvent, error)
	Archive(ctx context.Context, cutoff time.Time, archivedAt time.Time) (int64, error)
	CountArchivable(ctx context.Context, cutoff time.Time) (int64, error)
}

// JobScheduler enqueues queue jobs relative to now.
type JobScheduler interface {
	Schedule(ctx context.Context, kind queueDomain.JobKind, refID uuid.UUID, delay time.Duration) error
}

// Sender posts one outgoing delivery. A nil response with an error means nothing was received.
type Sender interface {
	Send(ctx context.Context, req service.DeliveryRequest) (*service.DeliveryResponse, error)
}

// ReceiveInput is one inbound webhook request.
type ReceiveInput struct {
	Provider string
	Token    string
	Body     []byte
	Headers  http.Header
	// BodyTruncated reports that the request body exceeded the read ceiling and Body is incomplete.
	BodyTruncated bool
}

// ReceiveResult describes the stored event.
type ReceiveResult struct {
	EventID   uuid.UUID
	Duplicate bool
	Actions   int
}

// IntakeUseCase authenticates, deduplicates and persists inbound webhooks.
type IntakeUseCase interface {
	Receive(ctx context.Context, input ReceiveInput) (*ReceiveResult, error)
}

// DispatchResult is the outcome of one dispatch attempt.
type DispatchResult string

// Dispatch results.
const (
	ResultProcessed     DispatchResult = "processed"
	ResultPendingRetry  DispatchResult = "pending_retry"
	ResultFailed        DispatchResult = "failed"
	ResultSkipped       DispatchResult = "skipped"
	ResultNotAcquired   DispatchResult = "not_acquired"
	ResultConfigMissing DispatchResult = "config_missing"
)

// DispatchUseCase runs handler actions.
type DispatchUseCase interface {
	// Process runs one action. Handler failures are recorded and returned wrapped alongside
	// ResultPendingRetry or ResultFailed; a missing binding returns ResultConfigMissing with a
	// *domain.HandlerConfigError. An empty result means nothing was recorded.
	Process(ctx context.Context, actionID uuid.UUID) (DispatchResult, error)
	// Schedule enqueues the actions that do not run inline. Call it with the transaction
	// context that stores the actions so a queue failure rolls them back.
	Schedule(ctx context.Context, event *domain.IncomingEvent, actions []*domain.IncomingEventAction) error
	// Run executes the actions whose binding is synchronous. Call it after the actions are
	// committed.
	Run(ctx context.Context, event *domain.IncomingEvent, actions []*domain.IncomingEventAction) error
	// SweepStaleLocks returns actions stuck in processing for longer than olderThan to
	// pending_retry and schedules them again.
	SweepStaleLocks(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// EnqueueOutgoingInput describes an outgoing event to deliver.
type EnqueueOutgoingInput struct {
	Provider  string
	EventType string
	TargetURL string
	Payload   []byte
	Headers   map[string]string
}

// DeliveryResult is the outcome of one delivery attempt.
type DeliveryResult string

// Delivery results.
const (
	ResultDelivered     DeliveryResult = "delivered"
	ResultRetryable     DeliveryResult = "retry_scheduled"
	ResultDeliveryFail  DeliveryResult = "failed"
	ResultDeliverySkip  DeliveryResult = "skipped"
	ResultNoEndpoint    DeliveryResult = "no_endpoint"
	ResultCircuitOpen   DeliveryResult = "circuit_open"
	ResultDeliveryStale DeliveryResult = "not_acquired"
)

// DeliveryUseCase stores and delivers outgoing events.
type DeliveryUseCase interface {
	Enqueue(ctx context.Context, input EnqueueOutgoingInput) (*domain.OutgoingEvent, error)
	// Deliver makes one attempt. Failures are returned alongside the result that recorded them;
	// an open circuit returns a *domain.CircuitOpenError. An empty result means nothing was recorded.
	Deliver(ctx context.Context, id uuid.UUID) (DeliveryResult, error)
	// SweepStaleDeliveries returns events left in processing for longer than olderThan to
	// pending and schedules them again, or fails them when no attempts are left.
	SweepStaleDeliveries(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// EventDetail is an incoming event together with its actions.
type EventDetail struct {
	Event   *domain.IncomingEvent
	Actions []*domain.IncomingEventAction
}

// EventUseCase exposes incoming and outgoing events to operators.
type EventUseCase interface {
	GetIncoming(ctx context.Context, id uuid.UUID) (*EventDetail, error)
	ListIncoming(ctx context.Context, filter domain.IncomingEventFilter, offset, limit int) ([]*domain.IncomingEvent, error)
	// Replay marks the event replayed and creates a fresh action per current binding.
	Replay(ctx context.Context, id uuid.UUID) (*EventDetail, error)
	GetOutgoing(ctx context.Context, id uuid.UUID) (*domain.OutgoingEvent, error)
	ListOutgoing(ctx context.Context, filter domain.OutgoingEventFilter, offset, limit int) ([]*domain.OutgoingEvent, error)
}

// ArchiveResult counts the events archived, or that would be archived on a dry run.
type ArchiveResult struct {
	Incoming int64
	Outgoing int64
	DryRun   bool
}

// MaintenanceUseCase holds periodic housekeeping.
type MaintenanceUseCase interface {
	Archive(ctx context.Context, olderThan time.Duration, dryRun bool) (*ArchiveResult, error)
}

// ProviderUseCase manages providers and keeps the in-memory registry in step with the database.
type ProviderUseCase interface {
	Sync(ctx context.Context, providers []*domain.Provider) (int, error)
	List(ctx context.Context) ([]*domain.Provider, error)
	SetActive(ctx context.Context, name string, active bool) (*domain.Provider, error)
}
