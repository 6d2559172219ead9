// Package repository provides data persistence implementations for queue jobs.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/bowerbird-app/captain-hook-sub004/internal/database"
	"github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
)

// PostgreSQLJobRepository handles job persistence for PostgreSQL
type PostgreSQLJobRepository struct {
	db *sql.DB
}

// NewPostgreSQLJobRepository creates a new PostgreSQLJobRepository
func NewPostgreSQLJobRepository(db *sql.DB) *PostgreSQLJobRepository {
	return &PostgreSQLJobRepository{
		db: db,
	}
}

// Create inserts a new job
func (r *PostgreSQLJobRepository) Create(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO webhook_jobs (id, kind, ref_id, status, attempts, run_at, last_error, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`

	_, err := querier.ExecContext(ctx, query, job.ID, job.Kind, job.RefID, job.Status,
		job.Attempts, job.RunAt, job.LastError)

	return err
}

// GetDueJobs retrieves pending jobs whose run_at has passed, locking them for the current transaction
func (r *PostgreSQLJobRepository) GetDueJobs(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, kind, ref_id, status, attempts, run_at, last_error, created_at, updated_at
			  FROM webhook_jobs
			  WHERE status = $1 AND run_at <= $2
			  ORDER BY run_at ASC
			  LIMIT $3
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.JobStatusPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var jobs []*domain.Job
	for rows.Next() {
		var job domain.Job

		err := rows.Scan(&job.ID, &job.Kind, &job.RefID, &job.Status, &job.Attempts,
			&job.RunAt, &job.LastError, &job.CreatedAt, &job.UpdatedAt)
		if err != nil {
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
func (r *PostgreSQLJobRepository) Update(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE webhook_jobs
			  SET status = $1, attempts = $2, run_at = $3, last_error = $4, updated_at = NOW()
			  WHERE id = $5`

	_, err := querier.ExecContext(ctx, query, job.Status, job.Attempts, job.RunAt, job.LastError, job.ID)

	return err
}

// Delete removes a finished job
func (r *PostgreSQLJobRepository) Delete(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	_, err := querier.ExecContext(ctx, `DELETE FROM webhook_jobs WHERE id = $1`, job.ID)

	return err
}
