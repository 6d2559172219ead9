package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

func TestMySQLProviderRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Success_ListAll", func(t *testing.T) {
		db, mock := newMock(t)
		id := uuid.Must(uuid.NewV7())
		rows := sqlmock.NewRows(providerRowColumns).
			AddRow(uuidBytes(id), "square", "tok", "sec", "square", "https://example.com/hook", 0, 0, 0, 0, false,
				now, now)
		mock.ExpectQuery(regexp.QuoteMeta("FROM providers ORDER BY name ASC")).WillReturnRows(rows)

		providers, err := NewMySQLProviderRepository(db).ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, providers, 1)
		assert.Equal(t, id, providers[0].ID)
		assert.Equal(t, "https://example.com/hook", providers[0].WebhookURL)
		assert.False(t, providers[0].Active)
	})

	t.Run("Success_Upsert", func(t *testing.T) {
		db, mock := newMock(t)
		provider := &domain.Provider{ID: uuid.Must(uuid.NewV7()), Name: "square", Verifier: "square", Active: true}
		mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE")).
			WithArgs(uuidBytes(provider.ID), "square", "", "", "square", "", int64(0), int64(0), 0, int64(0), true).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewMySQLProviderRepository(db).Upsert(ctx, provider))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_SetActiveUnchangedValue", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM providers WHERE name = ?")).
			WithArgs("square").
			WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE providers SET active = ?")).
			WithArgs(true, "square").
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, NewMySQLProviderRepository(db).SetActive(ctx, "square", true))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_SetActiveNotFound", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM providers")).WillReturnError(sql.ErrNoRows)

		err := NewMySQLProviderRepository(db).SetActive(ctx, "missing", true)
		assert.ErrorIs(t, err, domain.ErrProviderNotFound)
	})
}

func TestMySQLIncomingEventRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Error_CreateDuplicate", func(t *testing.T) {
		db, mock := newMock(t)
		event := &domain.IncomingEvent{
			ID:         uuid.Must(uuid.NewV7()),
			Provider:   "stripe",
			ExternalID: "evt_1",
			Status:     domain.EventStatusReceived,
			DedupState: domain.DedupStateUnique,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO incoming_events")).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

		err := NewMySQLIncomingEventRepository(db).Create(ctx, event)
		assert.ErrorIs(t, err, domain.ErrIncomingEventDuplicate)
	})

	t.Run("Success_GetByIDBinaryID", func(t *testing.T) {
		db, mock := newMock(t)
		id := uuid.Must(uuid.NewV7())
		rows := sqlmock.NewRows(incomingEventRowColumns).
			AddRow(uuidBytes(id), "stripe", "evt_1", "charge.succeeded", []byte(`{}`), []byte(`{}`), "received",
				"unique", nil, now, now)
		mock.ExpectQuery(regexp.QuoteMeta("FROM incoming_events WHERE id = ?")).
			WithArgs(uuidBytes(id)).
			WillReturnRows(rows)

		event, err := NewMySQLIncomingEventRepository(db).GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, event.ID)
		assert.Equal(t, domain.DedupStateUnique, event.DedupState)
	})

	t.Run("Success_UpdateStatusUnchanged", func(t *testing.T) {
		db, mock := newMock(t)
		id := uuid.New()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE incoming_events SET status = ?")).
			WithArgs(domain.EventStatusProcessing, uuidBytes(id)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM incoming_events WHERE id = ?")).
			WithArgs(uuidBytes(id)).
			WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		require.NoError(t, NewMySQLIncomingEventRepository(db).UpdateStatus(ctx, id, domain.EventStatusProcessing))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_UpdateStatusNotFound", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE incoming_events")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM incoming_events")).WillReturnError(sql.ErrNoRows)

		err := NewMySQLIncomingEventRepository(db).UpdateStatus(ctx, uuid.New(), domain.EventStatusFailed)
		assert.ErrorIs(t, err, domain.ErrIncomingEventNotFound)
	})

	t.Run("Success_ListWithoutFilter", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM incoming_events ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")).
			WithArgs(50, 0).
			WillReturnRows(sqlmock.NewRows(incomingEventRowColumns))

		events, err := NewMySQLIncomingEventRepository(db).List(ctx, domain.IncomingEventFilter{}, 0, 50)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestMySQLActionRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Success_GetByID", func(t *testing.T) {
		db, mock := newMock(t)
		id := uuid.Must(uuid.NewV7())
		eventID := uuid.Must(uuid.NewV7())
		rows := sqlmock.NewRows(actionRowColumns).
			AddRow(uuidBytes(id), uuidBytes(eventID), "relay", 0, 1, 5, []byte("[60]"), "pending_retry", nil, nil,
				"boom", nil, 2, now, now)
		mock.ExpectQuery(regexp.QuoteMeta("FROM incoming_event_actions WHERE id = ?")).
			WithArgs(uuidBytes(id)).
			WillReturnRows(rows)

		action, err := NewMySQLActionRepository(db).GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, action.ID)
		assert.Equal(t, eventID, action.IncomingEventID)
		assert.Equal(t, domain.ActionStatusPendingRetry, action.Status)
		require.NotNil(t, action.ErrorMessage)
		assert.Equal(t, "boom", *action.ErrorMessage)
	})

	t.Run("Error_GetByIDNotFound", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM incoming_event_actions")).WillReturnError(sql.ErrNoRows)

		_, err := NewMySQLActionRepository(db).GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrActionNotFound)
	})

	t.Run("Success_LockNotAcquired", func(t *testing.T) {
		db, mock := newMock(t)
		action := &domain.IncomingEventAction{ID: uuid.New(), Status: domain.ActionStatusPending}
		mock.ExpectExec(regexp.QuoteMeta("AND lock_version = ? AND status IN (?, ?)")).
			WithArgs(domain.ActionStatusProcessing, "w", now, uuidBytes(action.ID), 0,
				domain.ActionStatusPending, domain.ActionStatusPendingRetry).
			WillReturnResult(sqlmock.NewResult(0, 0))

		acquired, err := NewMySQLActionRepository(db).Lock(ctx, action, "w", now)
		require.NoError(t, err)
		assert.False(t, acquired)
	})
}

func TestMySQLOutgoingEventRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Success_Update", func(t *testing.T) {
		db, mock := newMock(t)
		code := 503
		event := &domain.OutgoingEvent{
			ID:             uuid.New(),
			Status:         domain.OutgoingStatusPending,
			AttemptCount:   1,
			FirstAttemptAt: &now,
			LastAttemptAt:  &now,
			ResponseCode:   &code,
			LockVersion:    1,
		}
		mock.ExpectExec(regexp.QuoteMeta("UPDATE outgoing_events")).
			WithArgs(domain.OutgoingStatusPending, 1, now, now, 503, nil, nil, nil, uuidBytes(event.ID), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewMySQLOutgoingEventRepository(db).Update(ctx, event))
		assert.Equal(t, 2, event.LockVersion)
	})

	t.Run("Success_ListStale", func(t *testing.T) {
		db, mock := newMock(t)
		id := uuid.Must(uuid.NewV7())
		cutoff := now.Add(-15 * time.Minute)
		attempted := now.Add(-time.Hour)
		rows := sqlmock.NewRows(outgoingEventRowColumns).
			AddRow(uuidBytes(id), "billing", "charge.succeeded", "https://x.example.com", []byte(`{}`),
				[]byte(`{}`), "processing", 1, attempted, attempted, nil, nil, nil, nil, 2, nil, now, now)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE status = ? AND last_attempt_at < ? AND archived_at IS NULL")).
			WithArgs(domain.OutgoingStatusProcessing, cutoff, 50).
			WillReturnRows(rows)

		events, err := NewMySQLOutgoingEventRepository(db).ListStale(ctx, cutoff, 50)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, id, events[0].ID)
		assert.Equal(t, 1, events[0].AttemptCount)
	})

	t.Run("Success_CountArchivable", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM outgoing_events")).
			WithArgs(now, "delivered", "failed").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

		count, err := NewMySQLOutgoingEventRepository(db).CountArchivable(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
	})
}
