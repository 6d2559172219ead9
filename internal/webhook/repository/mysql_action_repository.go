package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bowerbird-app/captain-hook-sub004/internal/database"
	apperrors "github.com/bowerbird-app/captain-hook-sub004/internal/errors"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

// MySQLActionRepository implements incoming event action persistence for MySQL.
type MySQLActionRepository struct {
	db *sql.DB
}

// NewMySQLActionRepository creates a new MySQL action repository.
func NewMySQLActionRepository(db *sql.DB) *MySQLActionRepository {
	return &MySQLActionRepository{db: db}
}

// Create inserts a new action.
func (m *MySQLActionRepository) Create(ctx context.Context, action *domain.IncomingEventAction) error {
	querier := database.GetTx(ctx, m.db)

	delays, err := encodeDelays(action.RetryDelays)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal retry delays")
	}

	query := `INSERT INTO incoming_event_actions (id, incoming_event_id, handler, priority, attempt_count,
			  max_attempts, retry_delays, status, lock_version, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		uuidBytes(action.ID),
		uuidBytes(action.IncomingEventID),
		action.Handler,
		action.Priority,
		action.AttemptCount,
		action.MaxAttempts,
		delays,
		action.Status,
		action.LockVersion,
		action.CreatedAt.UTC(),
		action.UpdatedAt.UTC(),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create incoming event action")
	}
	return nil
}

// GetByID retrieves an action by its id.
func (m *MySQLActionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.IncomingEventAction, error) {
	querier := database.GetTx(ctx, m.db)

	row := querier.QueryRowContext(
		ctx,
		`SELECT `+actionColumns+` FROM incoming_event_actions WHERE id = ?`,
		uuidBytes(id),
	)
	action, err := scanAction(row, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrActionNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get incoming event action")
	}
	return action, nil
}

// ListByEvent retrieves the actions of an event in execution order.
func (m *MySQLActionRepository) ListByEvent(
	ctx context.Context,
	eventID uuid.UUID,
) ([]*domain.IncomingEventAction, error) {
	query := `SELECT ` + actionColumns + ` FROM incoming_event_actions
			  WHERE incoming_event_id = ?
			  ORDER BY priority ASC, handler ASC, created_at ASC`
	return m.list(ctx, query, uuidBytes(eventID))
}

// ListStale retrieves processing actions locked before lockedBefore.
func (m *MySQLActionRepository) ListStale(
	ctx context.Context,
	lockedBefore time.Time,
	limit int,
) ([]*domain.IncomingEventAction, error) {
	query := `SELECT ` + actionColumns + ` FROM incoming_event_actions
			  WHERE status = ? AND locked_at < ?
			  ORDER BY locked_at ASC
			  LIMIT ?`
	return m.list(ctx, query, domain.ActionStatusProcessing, lockedBefore.UTC(), limit)
}

func (m *MySQLActionRepository) list(
	ctx context.Context,
	query string,
	args ...any,
) ([]*domain.IncomingEventAction, error) {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list incoming event actions")
	}
	defer func() {
		_ = rows.Close()
	}()

	actions := make([]*domain.IncomingEventAction, 0)
	for rows.Next() {
		action, err := scanAction(rows, true)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan incoming event action")
		}
		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate incoming event actions")
	}
	return actions, nil
}

// Lock moves a runnable action to processing if nobody changed it since it was read.
func (m *MySQLActionRepository) Lock(
	ctx context.Context,
	action *domain.IncomingEventAction,
	workerID string,
	lockedAt time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE incoming_event_actions
			  SET status = ?, locked_by = ?, locked_at = ?, lock_version = lock_version + 1, updated_at = NOW(6)
			  WHERE id = ? AND lock_version = ? AND status IN (?, ?)`

	result, err := querier.ExecContext(
		ctx,
		query,
		domain.ActionStatusProcessing,
		workerID,
		lockedAt.UTC(),
		uuidBytes(action.ID),
		action.LockVersion,
		domain.ActionStatusPending,
		domain.ActionStatusPendingRetry,
	)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to lock incoming event action")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return false, nil
	}

	action.Status = domain.ActionStatusProcessing
	action.LockedBy = &workerID
	action.LockedAt = &lockedAt
	action.LockVersion++
	return true, nil
}

// Update persists the mutable state of an action guarded by its lock_version.
func (m *MySQLActionRepository) Update(ctx context.Context, action *domain.IncomingEventAction) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE incoming_event_actions
			  SET status = ?, attempt_count = ?, error_message = ?, processed_at = ?, locked_by = ?,
			  locked_at = ?, lock_version = lock_version + 1, updated_at = NOW(6)
			  WHERE id = ? AND lock_version = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		action.Status,
		action.AttemptCount,
		action.ErrorMessage,
		utcPtr(action.ProcessedAt),
		action.LockedBy,
		utcPtr(action.LockedAt),
		uuidBytes(action.ID),
		action.LockVersion,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update incoming event action")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return domain.ErrVersionConflict
	}

	action.LockVersion++
	return nil
}
