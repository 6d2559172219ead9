package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	queueDomain "github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/registry"
)

type dispatchFixture struct {
	store     *memoryStore
	scheduler *recordingScheduler
	handlers  *registry.HandlerRegistry
	useCase   DispatchUseCase
	now       time.Time
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		store:     newMemoryStore(),
		scheduler: &recordingScheduler{},
		handlers:  registry.NewHandlerRegistry(),
		now:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	uc := NewDispatchUseCase(
		passthroughTx{},
		f.store.eventRepo(),
		f.store.actionRepo(),
		f.handlers,
		f.scheduler,
		"worker-1",
		discardLogger(),
	).(*dispatchUseCase)
	uc.now = func() time.Time { return f.now }
	f.useCase = uc
	return f
}

// bind registers handler under name and binds it to stripe/charge.succeeded.
func (f *dispatchFixture) bind(t *testing.T, name string, async bool, handler domain.HandlerFunc) {
	t.Helper()
	require.NoError(t, f.handlers.Register(name, handler))
	require.NoError(t, f.handlers.Bind(domain.HandlerBinding{
		Provider:  "stripe",
		EventType: "charge.succeeded",
		Name:      name,
		Async:     async,
	}))
}

// seed stores an event with one pending action per handler name.
func (f *dispatchFixture) seed(
	t *testing.T,
	maxAttempts int,
	delays []time.Duration,
	handlers ...string,
) (*domain.IncomingEvent, []*domain.IncomingEventAction) {
	t.Helper()
	ctx := context.Background()

	event := &domain.IncomingEvent{
		ID:         uuid.Must(uuid.NewV7()),
		Provider:   "stripe",
		ExternalID: "evt_" + uuid.NewString(),
		EventType:  "charge.succeeded",
		Payload:    []byte(`{"id":"evt_1","type":"charge.succeeded","data":{"amount":100}}`),
		Headers:    map[string]string{"content-type": "application/json"},
		Status:     domain.EventStatusReceived,
		DedupState: domain.DedupStateUnique,
		CreatedAt:  f.now,
		UpdatedAt:  f.now,
	}
	require.NoError(t, f.store.eventRepo().Create(ctx, event))

	actions := make([]*domain.IncomingEventAction, 0, len(handlers))
	for i, name := range handlers {
		action := &domain.IncomingEventAction{
			ID:              uuid.Must(uuid.NewV7()),
			IncomingEventID: event.ID,
			Handler:         name,
			Priority:        i,
			MaxAttempts:     maxAttempts,
			RetryDelays:     delays,
			Status:          domain.ActionStatusPending,
			CreatedAt:       f.now,
			UpdatedAt:       f.now,
		}
		require.NoError(t, f.store.actionRepo().Create(ctx, action))
		actions = append(actions, action)
	}
	return event, actions
}

func TestDispatchUseCase_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_Processed", func(t *testing.T) {
		f := newDispatchFixture(t)
		var got domain.Metadata
		var amount any
		f.bind(t, "record", true, func(_ context.Context, _ *domain.IncomingEvent, payload map[string]any, meta domain.Metadata) error {
			got = meta
			amount = payload["data"].(map[string]any)["amount"]
			return nil
		})
		event, actions := f.seed(t, 3, nil, "record")

		result, err := f.useCase.Process(ctx, actions[0].ID)
		require.NoError(t, err)
		assert.Equal(t, ResultProcessed, result)

		stored := f.store.action(actions[0].ID)
		assert.Equal(t, domain.ActionStatusProcessed, stored.Status)
		assert.Equal(t, 1, stored.AttemptCount)
		assert.NotNil(t, stored.ProcessedAt)
		assert.Nil(t, stored.LockedBy)
		assert.Nil(t, stored.LockedAt)
		assert.Nil(t, stored.ErrorMessage)
		assert.Equal(t, domain.EventStatusProcessed, f.store.event(event.ID).Status)

		assert.Equal(t, actions[0].ID, got.ActionID)
		assert.Equal(t, "record", got.HandlerName)
		assert.Equal(t, "stripe", got.Provider)
		assert.Equal(t, "charge.succeeded", got.EventType)
		assert.Equal(t, 1, got.Attempt)
		assert.Equal(t, 3, got.MaxAttempts)
		assert.Equal(t, "application/json", got.Headers["content-type"])
		assert.InDelta(t, 100, amount, 0)
		assert.Empty(t, f.scheduler.jobs)
	})

	t.Run("Success_RetriesUntilAttemptsExhausted", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.bind(t, "flaky", true, func(context.Context, *domain.IncomingEvent, map[string]any, domain.Metadata) error {
			return errors.New("downstream unavailable")
		})
		delays := []time.Duration{10 * time.Second, 20 * time.Second}
		event, actions := f.seed(t, 4, delays, "flaky")

		var results []DispatchResult
		for n := 0; n < 4; n++ {
			result, err := f.useCase.Process(ctx, actions[0].ID)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "downstream unavailable")
			results = append(results, result)
		}

		assert.Equal(t, []DispatchResult{
			ResultPendingRetry, ResultPendingRetry, ResultPendingRetry, ResultFailed,
		}, results)
		assert.Equal(t,
			[]time.Duration{10 * time.Second, 20 * time.Second, 20 * time.Second},
			f.scheduler.delaysFor(actions[0].ID),
		)

		stored := f.store.action(actions[0].ID)
		assert.Equal(t, domain.ActionStatusFailed, stored.Status)
		assert.Equal(t, 4, stored.AttemptCount)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, "downstream unavailable", *stored.ErrorMessage)
		assert.Equal(t, domain.EventStatusFailed, f.store.event(event.ID).Status)

		result, err := f.useCase.Process(ctx, actions[0].ID)
		require.NoError(t, err)
		assert.Equal(t, ResultSkipped, result)
	})

	t.Run("Success_FailFailSucceed", func(t *testing.T) {
		f := newDispatchFixture(t)
		var calls atomic.Int32
		f.bind(t, "eventual", true, func(context.Context, *domain.IncomingEvent, map[string]any, domain.Metadata) error {
			if calls.Add(1) < 3 {
				return errors.New("not yet")
			}
			return nil
		})
		event, actions := f.seed(t, 5, []time.Duration{time.Second}, "eventual")

		for _, want := range []DispatchResult{ResultPendingRetry, ResultPendingRetry, ResultProcessed} {
			result, _ := f.useCase.Process(ctx, actions[0].ID)
			assert.Equal(t, want, result)
		}

		stored := f.store.action(actions[0].ID)
		assert.Equal(t, domain.ActionStatusProcessed, stored.Status)
		assert.Equal(t, 3, stored.AttemptCount)
		assert.Nil(t, stored.ErrorMessage)
		assert.Equal(t, domain.EventStatusProcessed, f.store.event(event.ID).Status)
	})

	t.Run("Success_PartiallyProcessed", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.bind(t, "ok", true, func(context.Context, *domain.IncomingEvent, map[string]any, domain.Metadata) error {
			return nil
		})
		f.bind(t, "broken", true, func(context.Context, *domain.IncomingEvent, map[string]any, domain.Metadata) error {
			return errors.New("broken")
		})
		event, actions := f.seed(t, 1, nil, "ok", "broken")

		result, err := f.useCase.Process(ctx, actions[0].ID)
		require.NoError(t, err)
		assert.Equal(t, ResultProcessed, result)
		assert.Equal(t, domain.EventStatusProcessing, f.store.event(event.ID).Status)

		result, err = f.useCase.Process(ctx, actions[1].ID)
		require.Error(t, err)
		assert.Equal(t, ResultFailed, result)
		assert.Equal(t, domain.EventStatusPartiallyProcessed, f.store.event(event.ID).Status)
	})

	t.Run("Success_PanicRecordedAsFailure", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.bind(t, "panics", true, func(context.Context, *domain.IncomingEvent, map[string]any, domain.Metadata) error {
			panic("nil map")
		})
		_, actions := f.seed(t, 2, []time.Duration{time.Minute}, "panics")

		result, err := f.useCase.Process(ctx, actions[0].ID)
		require.Error(t, err)
		assert.Equal(t, ResultPendingRetry, result)

		stored := f.store.action(actions[0].ID)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, "handler panic: nil map", *stored.ErrorMessage)
	})

	t.Run("Success_LongErrorTruncated", func(t *testing.T) {
		f := newDispatchFixture(t)
		long := make([]rune, 1500)
		for i := range long {
			long[i] = 'é'
		}
		f.bind(t, "verbose", true, func(context.Context, *domain.IncomingEvent, map[string]any, domain.Metadata) error {
			return errors.New(string(long))
		})
		_, actions := f.seed(t, 1, nil, "verbose")

		_, err := f.useCase.Process(ctx, actions[0].ID)
		require.Error(t, err)

		stored := f.store.action(actions[0].ID)
		require.NotNil(t, stored.ErrorMessage)
		assert.Len(t, []rune(*stored.ErrorMessage), domain.MaxErrorMessageLength)
	})

	t.Run("Success_NotAcquiredWhenAnotherWorkerWins", func(t *testing.T) {
		f := newDispatchFixture(t)
		var calls atomic.Int32
		f.bind(t, "once", true, func(context.Context, *domain.IncomingEvent, map[string]any, domain.Metadata) error {
			calls.Add(1)
			return nil
		})
		_, actions := f.seed(t, 3, nil, "once")

		f.store.beforeLock = func(id uuid.UUID) {
			f.store.mu.Lock()
			a := f.store.actions[id]
			a.LockVersion++
			f.store.actions[id] = a
			f.store.mu.Unlock()
		}

		result, err := f.useCase.Process(ctx, actions[0].ID)
		require.NoError(t, err)
		assert.Equal(t, ResultNotAcquired, result)
		assert.Zero(t, calls.Load())
		assert.Equal(t, 0, f.store.action(actions[0].ID).AttemptCount)
	})

	t.Run("Success_ConfigMissingReleasesLock", func(t *testing.T) {
		f := newDispatchFixture(t)
		_, actions := f.seed(t, 3, nil, "removed")

		result, err := f.useCase.Process(ctx, actions[0].ID)
		assert.Equal(t, ResultConfigMissing, result)
		var configErr *domain.HandlerConfigError
		require.ErrorAs(t, err, &configErr)
		assert.Equal(t, "removed", configErr.Handler)
		assert.ErrorIs(t, err, domain.ErrHandlerConfigMissing)

		stored := f.store.action(actions[0].ID)
		assert.Equal(t, domain.ActionStatusPending, stored.Status)
		assert.Equal(t, 0, stored.AttemptCount)
		assert.Nil(t, stored.LockedBy)
		assert.Nil(t, stored.LockedAt)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, "handler configuration not found: unavailable", *stored.ErrorMessage)
		assert.Empty(t, f.scheduler.jobs)
	})

	t.Run("Error_ActionNotFound", func(t *testing.T) {
		f := newDispatchFixture(t)

		result, err := f.useCase.Process(ctx, uuid.New())
		assert.Empty(t, result)
		assert.ErrorIs(t, err, domain.ErrActionNotFound)
	})

	t.Run("Error_RetryNotScheduled", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.bind(t, "failing", true, func(context.Context, *domain.IncomingEvent, map[string]any, domain.Metadata) error {
			return errors.New("boom")
		})
		_, actions := f.seed(t, 3, nil, "failing")
		f.scheduler.err = errors.New("queue down")

		result, err := f.useCase.Process(ctx, actions[0].ID)
		assert.Empty(t, result)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue down")
		assert.Equal(t, domain.ActionStatusPendingRetry, f.store.action(actions[0].ID).Status)
	})
}

func TestDispatchUseCase_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_OnlyInlineActionsRun", func(t *testing.T) {
		f := newDispatchFixture(t)
		var inline, queued atomic.Int32
		f.bind(t, "sync", false, func(context.Context, *domain.IncomingEvent, map[string]any, domain.Metadata) error {
			inline.Add(1)
			return nil
		})
		f.bind(t, "async", true, func(context.Context, *domain.IncomingEvent, map[string]any, domain.Metadata) error {
			queued.Add(1)
			return nil
		})
		event, actions := f.seed(t, 3, nil, "sync", "async")

		require.NoError(t, f.useCase.Run(ctx, event, actions))

		assert.Equal(t, int32(1), inline.Load())
		assert.Zero(t, queued.Load())
		assert.Equal(t, domain.ActionStatusProcessed, f.store.action(actions[0].ID).Status)
		assert.Equal(t, domain.ActionStatusPending, f.store.action(actions[1].ID).Status)
		assert.Empty(t, f.scheduler.jobs)
	})

	t.Run("Success_InlineFailureNotReturned", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.bind(t, "sync", false, func(context.Context, *domain.IncomingEvent, map[string]any, domain.Metadata) error {
			return errors.New("boom")
		})
		event, actions := f.seed(t, 2, []time.Duration{time.Second}, "sync")

		require.NoError(t, f.useCase.Run(ctx, event, actions))
		assert.Equal(t, domain.ActionStatusPendingRetry, f.store.action(actions[0].ID).Status)
		assert.Equal(t, []time.Duration{time.Second}, f.scheduler.delaysFor(actions[0].ID))
	})
}

func TestDispatchUseCase_Schedule(t *testing.T) {
	ctx := context.Background()
	noop := func(context.Context, *domain.IncomingEvent, map[string]any, domain.Metadata) error { return nil }

	t.Run("Success_QueuesAsyncAndUnbound", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.bind(t, "sync", false, noop)
		f.bind(t, "async", true, noop)
		event, actions := f.seed(t, 3, nil, "sync", "async", "unbound")

		require.NoError(t, f.useCase.Schedule(ctx, event, actions))

		assert.Equal(t, []scheduledJob{
			{Kind: queueDomain.JobKindDispatchAction, RefID: actions[1].ID, Delay: 0},
			{Kind: queueDomain.JobKindDispatchAction, RefID: actions[2].ID, Delay: 0},
		}, f.scheduler.jobs)
		assert.Equal(t, domain.ActionStatusPending, f.store.action(actions[0].ID).Status)
	})

	t.Run("Error_EnqueueFailure", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.bind(t, "async", true, noop)
		event, actions := f.seed(t, 3, nil, "async")
		f.scheduler.err = errors.New("queue down")

		err := f.useCase.Schedule(ctx, event, actions)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to enqueue action")
	})
}

func TestDispatchUseCase_SweepStaleLocks(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)
	event, actions := f.seed(t, 2, []time.Duration{time.Minute}, "a", "b", "c")

	lock := func(id uuid.UUID, attempts int, lockedAt time.Time) {
		f.store.mu.Lock()
		defer f.store.mu.Unlock()
		a := f.store.actions[id]
		worker := "gone"
		a.Status = domain.ActionStatusProcessing
		a.AttemptCount = attempts
		a.LockedBy = &worker
		a.LockedAt = &lockedAt
		f.store.actions[id] = a
	}
	lock(actions[0].ID, 1, f.now.Add(-time.Hour))
	lock(actions[1].ID, 2, f.now.Add(-time.Hour))
	lock(actions[2].ID, 1, f.now.Add(-time.Minute))

	swept, err := f.useCase.SweepStaleLocks(ctx, 10*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, swept)

	retried := f.store.action(actions[0].ID)
	assert.Equal(t, domain.ActionStatusPendingRetry, retried.Status)
	assert.Nil(t, retried.LockedBy)
	assert.Nil(t, retried.LockedAt)
	assert.Equal(t, 1, retried.LockVersion)
	assert.Equal(t, []time.Duration{0}, f.scheduler.delaysFor(actions[0].ID))

	exhausted := f.store.action(actions[1].ID)
	assert.Equal(t, domain.ActionStatusFailed, exhausted.Status)
	assert.Empty(t, f.scheduler.delaysFor(actions[1].ID))

	assert.Equal(t, domain.ActionStatusProcessing, f.store.action(actions[2].ID).Status)
	assert.Equal(t, domain.EventStatusProcessing, f.store.event(event.ID).Status)
}
