package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

func TestMaintenanceUseCase_Archive(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	old := now.Add(-100 * 24 * time.Hour)
	recent := now.Add(-24 * time.Hour)

	seed := func(t *testing.T) *memoryStore {
		t.Helper()
		store := newMemoryStore()
		incoming := []struct {
			status    domain.EventStatus
			createdAt time.Time
		}{
			{domain.EventStatusProcessed, old},
			{domain.EventStatusFailed, old},
			{domain.EventStatusProcessing, old},
			{domain.EventStatusProcessed, recent},
		}
		for i, e := range incoming {
			require.NoError(t, store.eventRepo().Create(ctx, &domain.IncomingEvent{
				ID:         uuid.New(),
				Provider:   "stripe",
				ExternalID: "evt_" + string(rune('a'+i)),
				Status:     e.status,
				CreatedAt:  e.createdAt,
			}))
		}

		outgoing := []struct {
			status    domain.OutgoingStatus
			createdAt time.Time
		}{
			{domain.OutgoingStatusDelivered, old},
			{domain.OutgoingStatusPending, old},
			{domain.OutgoingStatusFailed, recent},
		}
		for _, e := range outgoing {
			require.NoError(t, store.outgoingRepo().Create(ctx, &domain.OutgoingEvent{
				ID:        uuid.New(),
				Provider:  "billing",
				Status:    e.status,
				CreatedAt: e.createdAt,
			}))
		}
		return store
	}

	newUseCase := func(store *memoryStore) MaintenanceUseCase {
		uc := NewMaintenanceUseCase(passthroughTx{}, store.eventRepo(), store.outgoingRepo(), discardLogger())
		uc.(*maintenanceUseCase).now = func() time.Time { return now }
		return uc
	}

	t.Run("Success_DryRunCounts", func(t *testing.T) {
		store := seed(t)

		result, err := newUseCase(store).Archive(ctx, 90*24*time.Hour, true)
		require.NoError(t, err)
		assert.Equal(t, &ArchiveResult{Incoming: 2, Outgoing: 1, DryRun: true}, result)

		for _, e := range store.events {
			assert.Nil(t, e.ArchivedAt)
		}
	})

	t.Run("Success_ArchivesFinishedEvents", func(t *testing.T) {
		store := seed(t)
		uc := newUseCase(store)

		result, err := uc.Archive(ctx, 90*24*time.Hour, false)
		require.NoError(t, err)
		assert.Equal(t, &ArchiveResult{Incoming: 2, Outgoing: 1}, result)

		archived := 0
		for _, e := range store.events {
			if e.ArchivedAt != nil {
				archived++
				assert.Equal(t, now, *e.ArchivedAt)
				assert.True(t, e.Status.IsFinal())
			}
		}
		assert.Equal(t, 2, archived)
		assert.Len(t, store.events, 4)

		again, err := uc.Archive(ctx, 90*24*time.Hour, false)
		require.NoError(t, err)
		assert.Zero(t, again.Incoming)
		assert.Zero(t, again.Outgoing)
	})
}
