package usecase

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	queueDomain "github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

// memoryStore backs the in-memory repositories used by the use case tests. Rows are copied on
// the way in and out so tests observe only persisted state.
type memoryStore struct {
	mu       sync.Mutex
	events   map[uuid.UUID]domain.IncomingEvent
	actions  map[uuid.UUID]domain.IncomingEventAction
	outgoing map[uuid.UUID]domain.OutgoingEvent
	// beforeLock runs inside Lock, before the version check, to simulate a competing worker.
	beforeLock func(id uuid.UUID)
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		events:   make(map[uuid.UUID]domain.IncomingEvent),
		actions:  make(map[uuid.UUID]domain.IncomingEventAction),
		outgoing: make(map[uuid.UUID]domain.OutgoingEvent),
	}
}

func (s *memoryStore) eventRepo() *memoryEventRepository       { return &memoryEventRepository{s} }
func (s *memoryStore) actionRepo() *memoryActionRepository     { return &memoryActionRepository{s} }
func (s *memoryStore) outgoingRepo() *memoryOutgoingRepository { return &memoryOutgoingRepository{s} }

func (s *memoryStore) event(id uuid.UUID) domain.IncomingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[id]
}

func (s *memoryStore) action(id uuid.UUID) domain.IncomingEventAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actions[id]
}

func (s *memoryStore) outgoingEvent(id uuid.UUID) domain.OutgoingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outgoing[id]
}

func (s *memoryStore) actionsOf(eventID uuid.UUID) []domain.IncomingEventAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.IncomingEventAction
	for _, a := range s.actions {
		if a.IncomingEventID == eventID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Handler < out[j].Handler
	})
	return out
}

func (s *memoryStore) outgoingEvents() []domain.OutgoingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OutgoingEvent, 0, len(s.outgoing))
	for _, e := range s.outgoing {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

type memoryEventRepository struct{ s *memoryStore }

func (r *memoryEventRepository) Create(_ context.Context, event *domain.IncomingEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.events {
		if e.Provider == event.Provider && e.ExternalID == event.ExternalID {
			return domain.ErrIncomingEventDuplicate
		}
	}
	r.s.events[event.ID] = *event
	return nil
}

func (r *memoryEventRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.IncomingEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return nil, domain.ErrIncomingEventNotFound
	}
	return &e, nil
}

func (r *memoryEventRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.IncomingEvent, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryEventRepository) GetByProviderExternalID(
	_ context.Context,
	provider, externalID string,
) (*domain.IncomingEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.events {
		if e.Provider == provider && e.ExternalID == externalID {
			return &e, nil
		}
	}
	return nil, domain.ErrIncomingEventNotFound
}

func (r *memoryEventRepository) List(
	_ context.Context,
	filter domain.IncomingEventFilter,
	offset, limit int,
) ([]*domain.IncomingEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.IncomingEvent, 0)
	for _, e := range r.s.events {
		e := e
		if filter.Provider != "" && e.Provider != filter.Provider {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []*domain.IncomingEvent{}, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

func (r *memoryEventRepository) UpdateStatus(_ context.Context, id uuid.UUID, status domain.EventStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return domain.ErrIncomingEventNotFound
	}
	e.Status = status
	r.s.events[id] = e
	return nil
}

func (r *memoryEventRepository) UpdateDedupState(_ context.Context, id uuid.UUID, state domain.DedupState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return domain.ErrIncomingEventNotFound
	}
	e.DedupState = state
	r.s.events[id] = e
	return nil
}

func (r *memoryEventRepository) archivable(e domain.IncomingEvent, cutoff time.Time) bool {
	return e.ArchivedAt == nil && e.CreatedAt.Before(cutoff) && e.Status.IsFinal()
}

func (r *memoryEventRepository) Archive(_ context.Context, cutoff, archivedAt time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, e := range r.s.events {
		if r.archivable(e, cutoff) {
			e.ArchivedAt = &archivedAt
			r.s.events[id] = e
			n++
		}
	}
	return n, nil
}

func (r *memoryEventRepository) CountArchivable(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, e := range r.s.events {
		if r.archivable(e, cutoff) {
			n++
		}
	}
	return n, nil
}

type memoryActionRepository struct{ s *memoryStore }

func (r *memoryActionRepository) Create(_ context.Context, action *domain.IncomingEventAction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.actions[action.ID] = *action
	return nil
}

func (r *memoryActionRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.IncomingEventAction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.actions[id]
	if !ok {
		return nil, domain.ErrActionNotFound
	}
	return &a, nil
}

func (r *memoryActionRepository) ListByEvent(
	_ context.Context,
	eventID uuid.UUID,
) ([]*domain.IncomingEventAction, error) {
	out := make([]*domain.IncomingEventAction, 0)
	for _, a := range r.s.actionsOf(eventID) {
		a := a
		out = append(out, &a)
	}
	return out, nil
}

func (r *memoryActionRepository) Lock(
	_ context.Context,
	action *domain.IncomingEventAction,
	workerID string,
	lockedAt time.Time,
) (bool, error) {
	if r.s.beforeLock != nil {
		r.s.beforeLock(action.ID)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.actions[action.ID]
	if !ok || stored.LockVersion != action.LockVersion || !stored.Status.IsRunnable() {
		return false, nil
	}

	action.Status = domain.ActionStatusProcessing
	action.LockedBy = &workerID
	action.LockedAt = &lockedAt
	action.LockVersion++
	r.s.actions[action.ID] = *action
	return true, nil
}

func (r *memoryActionRepository) Update(_ context.Context, action *domain.IncomingEventAction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.actions[action.ID]
	if !ok || stored.LockVersion != action.LockVersion {
		return domain.ErrVersionConflict
	}
	action.LockVersion++
	r.s.actions[action.ID] = *action
	return nil
}

func (r *memoryActionRepository) ListStale(
	_ context.Context,
	lockedBefore time.Time,
	limit int,
) ([]*domain.IncomingEventAction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.IncomingEventAction, 0)
	for _, a := range r.s.actions {
		a := a
		if a.Status == domain.ActionStatusProcessing && a.LockedAt != nil && a.LockedAt.Before(lockedBefore) {
			out = append(out, &a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryOutgoingRepository struct{ s *memoryStore }

func (r *memoryOutgoingRepository) Create(_ context.Context, event *domain.OutgoingEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.outgoing[event.ID] = *event
	return nil
}

func (r *memoryOutgoingRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.OutgoingEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outgoing[id]
	if !ok {
		return nil, domain.ErrOutgoingEventNotFound
	}
	return &e, nil
}

func (r *memoryOutgoingRepository) List(
	_ context.Context,
	filter domain.OutgoingEventFilter,
	offset, limit int,
) ([]*domain.OutgoingEvent, error) {
	out := make([]*domain.OutgoingEvent, 0)
	for _, e := range r.s.outgoingEvents() {
		e := e
		if filter.Provider != "" && e.Provider != filter.Provider {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, &e)
	}
	if offset >= len(out) {
		return []*domain.OutgoingEvent{}, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

func (r *memoryOutgoingRepository) Update(_ context.Context, event *domain.OutgoingEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.outgoing[event.ID]
	if !ok || stored.LockVersion != event.LockVersion {
		return domain.ErrVersionConflict
	}
	event.LockVersion++
	r.s.outgoing[event.ID] = *event
	return nil
}

func (r *memoryOutgoingRepository) ListStale(
	_ context.Context,
	attemptedBefore time.Time,
	limit int,
) ([]*domain.OutgoingEvent, error) {
	out := make([]*domain.OutgoingEvent, 0)
	for _, e := range r.s.outgoingEvents() {
		e := e
		if e.Status == domain.OutgoingStatusProcessing && e.ArchivedAt == nil &&
			e.LastAttemptAt != nil && e.LastAttemptAt.Before(attemptedBefore) {
			out = append(out, &e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryOutgoingRepository) archivable(e domain.OutgoingEvent, cutoff time.Time) bool {
	final := e.Status == domain.OutgoingStatusDelivered || e.Status == domain.OutgoingStatusFailed
	return e.ArchivedAt == nil && e.CreatedAt.Before(cutoff) && final
}

func (r *memoryOutgoingRepository) Archive(_ context.Context, cutoff, archivedAt time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, e := range r.s.outgoing {
		if r.archivable(e, cutoff) {
			e.ArchivedAt = &archivedAt
			r.s.outgoing[id] = e
			n++
		}
	}
	return n, nil
}

func (r *memoryOutgoingRepository) CountArchivable(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, e := range r.s.outgoing {
		if r.archivable(e, cutoff) {
			n++
		}
	}
	return n, nil
}

// passthroughTx runs the function without a transaction.
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// snapshotTx restores the store when the function fails, like a rolled back transaction.
type snapshotTx struct {
	store *memoryStore
}

func (tx snapshotTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.store.mu.Lock()
	events := maps.Clone(tx.store.events)
	actions := maps.Clone(tx.store.actions)
	outgoing := maps.Clone(tx.store.outgoing)
	tx.store.mu.Unlock()

	if err := fn(ctx); err != nil {
		tx.store.mu.Lock()
		tx.store.events = events
		tx.store.actions = actions
		tx.store.outgoing = outgoing
		tx.store.mu.Unlock()
		return err
	}
	return nil
}

type scheduledJob struct {
	Kind  queueDomain.JobKind
	RefID uuid.UUID
	Delay time.Duration
}

// recordingScheduler keeps every scheduled job in order.
type recordingScheduler struct {
	mu   sync.Mutex
	jobs []scheduledJob
	err  error
}

func (s *recordingScheduler) Schedule(
	_ context.Context,
	kind queueDomain.JobKind,
	refID uuid.UUID,
	delay time.Duration,
) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, scheduledJob{Kind: kind, RefID: refID, Delay: delay})
	s.mu.Unlock()
	return nil
}

func (s *recordingScheduler) delaysFor(refID uuid.UUID) []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, job := range s.jobs {
		if job.RefID == refID {
			out = append(out, job.Delay)
		}
	}
	return out
}

func (s *recordingScheduler) kinds() []queueDomain.JobKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]queueDomain.JobKind, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Kind)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
