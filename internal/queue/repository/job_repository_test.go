package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
)

var jobColumns = []string{
	"id", "kind", "ref_id", "status", "attempts", "run_at", "last_error", "created_at", "updated_at",
}

func TestPostgreSQLJobRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Success_Create", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		job := domain.NewJob(domain.JobKindDispatchAction, uuid.Must(uuid.NewV7()), now)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_jobs")).
			WithArgs(job.ID, job.Kind, job.RefID, job.Status, 0, now, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewPostgreSQLJobRepository(db).Create(ctx, job))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_GetDueJobs", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		id := uuid.Must(uuid.NewV7())
		refID := uuid.Must(uuid.NewV7())
		rows := sqlmock.NewRows(jobColumns).
			AddRow(id.String(), "deliver_outgoing", refID.String(), "pending", 2, now, nil, now, now)

		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
			WithArgs(domain.JobStatusPending, now, 10).
			WillReturnRows(rows)

		jobs, err := NewPostgreSQLJobRepository(db).GetDueJobs(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, id, jobs[0].ID)
		assert.Equal(t, refID, jobs[0].RefID)
		assert.Equal(t, domain.JobKindDeliverOutgoing, jobs[0].Kind)
		assert.Equal(t, 2, jobs[0].Attempts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_GetDueJobsQuery", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectQuery(regexp.QuoteMeta("FROM webhook_jobs")).WillReturnError(errors.New("boom"))

		_, err = NewPostgreSQLJobRepository(db).GetDueJobs(ctx, now, 10)
		assert.Error(t, err)
	})

	t.Run("Success_UpdateAndDelete", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		job := domain.NewJob(domain.JobKindDispatchAction, uuid.Must(uuid.NewV7()), now)
		job.Attempts = 1

		mock.ExpectExec(regexp.QuoteMeta("UPDATE webhook_jobs")).
			WithArgs(job.Status, 1, now, nil, job.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM webhook_jobs WHERE id = $1")).
			WithArgs(job.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewPostgreSQLJobRepository(db)
		require.NoError(t, repo.Update(ctx, job))
		require.NoError(t, repo.Delete(ctx, job))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMySQLJobRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Success_CreateUsesBinaryIDs", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		job := domain.NewJob(domain.JobKindDispatchAction, uuid.Must(uuid.NewV7()), now)
		idBytes, _ := job.ID.MarshalBinary()
		refBytes, _ := job.RefID.MarshalBinary()

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_jobs")).
			WithArgs(idBytes, job.Kind, refBytes, job.Status, 0, now, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewMySQLJobRepository(db).Create(ctx, job))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_GetDueJobs", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		id := uuid.Must(uuid.NewV7())
		refID := uuid.Must(uuid.NewV7())
		idBytes, _ := id.MarshalBinary()
		refBytes, _ := refID.MarshalBinary()

		rows := sqlmock.NewRows(jobColumns).
			AddRow(idBytes, "dispatch_action", refBytes, "pending", 0, now, nil, now, now)
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
			WithArgs(domain.JobStatusPending, now, 5).
			WillReturnRows(rows)

		jobs, err := NewMySQLJobRepository(db).GetDueJobs(ctx, now, 5)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, id, jobs[0].ID)
		assert.Equal(t, refID, jobs[0].RefID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
