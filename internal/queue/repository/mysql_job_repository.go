package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/bowerbird-app/captain-hook-sub004/internal/database"
	"github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
)

// MySQLJobRepository handles job persistence for MySQL
type MySQLJobRepository struct {
	db *sql.DB
}

// NewMySQLJobRepository creates a new MySQLJobRepository
func NewMySQLJobRepository(db *sql.DB) *MySQLJobRepository {
	return &MySQLJobRepository{
		db: db,
	}
}

// Create inserts a new job
func (r *MySQLJobRepository) Create(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO webhook_jobs (id, kind, ref_id, status, attempts, run_at, last_error, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, NOW(6), NOW(6))`

	// Convert UUIDs to bytes for MySQL BINARY(16)
	idBytes, err := job.ID.MarshalBinary()
	if err != nil {
		return err
	}
	refBytes, err := job.RefID.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = querier.ExecContext(ctx, query, idBytes, job.Kind, refBytes, job.Status,
		job.Attempts, job.RunAt.UTC(), job.LastError)

	return err
}

// GetDueJobs retrieves pending jobs whose run_at has passed, locking them for the current transaction
func (r *MySQLJobRepository) GetDueJobs(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, kind, ref_id, status, attempts, run_at, last_error, created_at, updated_at
			  FROM webhook_jobs
			  WHERE status = ? AND run_at <= ?
			  ORDER BY run_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.JobStatusPending, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var jobs []*domain.Job
	for rows.Next() {
		var job domain.Job
		var idBytes, refBytes []byte

		err := rows.Scan(&idBytes, &job.Kind, &refBytes, &job.Status, &job.Attempts,
			&job.RunAt, &job.LastError, &job.CreatedAt, &job.UpdatedAt)
		if err != nil {
			return nil, err
		}

		// Convert bytes back to UUID
		if err := job.ID.UnmarshalBinary(idBytes); err != nil {
			return nil, err
		}
		if err := job.RefID.UnmarshalBinary(refBytes); err != nil {
			return nil, err
		}

		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}

// Update updates a job
func (r *MySQLJobRepository) Update(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE webhook_jobs
			  SET status = ?, attempts = ?, run_at = ?, last_error = ?, updated_at = NOW(6)
			  WHERE id = ?`

	idBytes, err := job.ID.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = querier.ExecContext(ctx, query, job.Status, job.Attempts, job.RunAt.UTC(), job.LastError, idBytes)

	return err
}

// Delete removes a finished job
func (r *MySQLJobRepository) Delete(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := job.ID.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = querier.ExecContext(ctx, `DELETE FROM webhook_jobs WHERE id = ?`, idBytes)

	return err
}
