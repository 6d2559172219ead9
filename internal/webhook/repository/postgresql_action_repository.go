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

const actionColumns = `id, incoming_event_id, handler, priority, attempt_count, max_attempts, retry_delays,
			  status, locked_by, locked_at, error_message, processed_at, lock_version, created_at, updated_at`

// PostgreSQLActionRepository implements incoming event action persistence for PostgreSQL.
// Writes after creation are compare-and-swap updates on lock_version.
type PostgreSQLActionRepository struct {
	db *sql.DB
}

// NewPostgreSQLActionRepository creates a new PostgreSQL action repository.
func NewPostgreSQLActionRepository(db *sql.DB) *PostgreSQLActionRepository {
	return &PostgreSQLActionRepository{db: db}
}

// Create inserts a new action.
func (p *PostgreSQLActionRepository) Create(ctx context.Context, action *domain.IncomingEventAction) error {
	querier := database.GetTx(ctx, p.db)

	delays, err := encodeDelays(action.RetryDelays)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal retry delays")
	}

	query := `INSERT INTO incoming_event_actions (id, incoming_event_id, handler, priority, attempt_count,
			  max_attempts, retry_delays, status, lock_version, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = querier.ExecContext(
		ctx,
		query,
		action.ID,
		action.IncomingEventID,
		action.Handler,
		action.Priority,
		action.AttemptCount,
		action.MaxAttempts,
		delays,
		action.Status,
		action.LockVersion,
		action.CreatedAt,
		action.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create incoming event action")
	}
	return nil
}

// GetByID retrieves an action by its id.
func (p *PostgreSQLActionRepository) GetByID(
	ctx context.Context,
	id uuid.UUID,
) (*domain.IncomingEventAction, error) {
	querier := database.GetTx(ctx, p.db)

	row := querier.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM incoming_event_actions WHERE id = $1`, id)
	action, err := scanAction(row, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrActionNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get incoming event action")
	}
	return action, nil
}

// ListByEvent retrieves the actions of an event in execution order (priority, then handler).
func (p *PostgreSQLActionRepository) ListByEvent(
	ctx context.Context,
	eventID uuid.UUID,
) ([]*domain.IncomingEventAction, error) {
	query := `SELECT ` + actionColumns + ` FROM incoming_event_actions
			  WHERE incoming_event_id = $1
			  ORDER BY priority ASC, handler ASC, created_at ASC`
	return p.list(ctx, query, eventID)
}

// ListStale retrieves processing actions locked before lockedBefore, oldest lock first.
func (p *PostgreSQLActionRepository) ListStale(
	ctx context.Context,
	lockedBefore time.Time,
	limit int,
) ([]*domain.IncomingEventAction, error) {
	query := `SELECT ` + actionColumns + ` FROM incoming_event_actions
			  WHERE status = $1 AND locked_at < $2
			  ORDER BY locked_at ASC
			  LIMIT $3`
	return p.list(ctx, query, domain.ActionStatusProcessing, lockedBefore, limit)
}

func (p *PostgreSQLActionRepository) list(
	ctx context.Context,
	query string,
	args ...any,
) ([]*domain.IncomingEventAction, error) {
	querier := database.GetTx(ctx, p.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list incoming event actions")
	}
	defer func() {
		_ = rows.Close()
	}()

	actions := make([]*domain.IncomingEventAction, 0)
	for rows.Next() {
		action, err := scanAction(rows, false)
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
// On success the action is updated in place.
func (p *PostgreSQLActionRepository) Lock(
	ctx context.Context,
	action *domain.IncomingEventAction,
	workerID string,
	lockedAt time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE incoming_event_actions
			  SET status = $1, locked_by = $2, locked_at = $3, lock_version = lock_version + 1, updated_at = NOW()
			  WHERE id = $4 AND lock_version = $5 AND status IN ($6, $7)`

	result, err := querier.ExecContext(
		ctx,
		query,
		domain.ActionStatusProcessing,
		workerID,
		lockedAt,
		action.ID,
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
func (p *PostgreSQLActionRepository) Update(ctx context.Context, action *domain.IncomingEventAction) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE incoming_event_actions
			  SET status = $1, attempt_count = $2, error_message = $3, processed_at = $4, locked_by = $5,
			  locked_at = $6, lock_version = lock_version + 1, updated_at = NOW()
			  WHERE id = $7 AND lock_version = $8`

	result, err := querier.ExecContext(
		ctx,
		query,
		action.Status,
		action.AttemptCount,
		action.ErrorMessage,
		action.ProcessedAt,
		action.LockedBy,
		action.LockedAt,
		action.ID,
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

// scanAction reads one action row. With binaryIDs set, the id columns are read as MySQL BINARY(16).
func scanAction(row rowScanner, binaryIDs bool) (*domain.IncomingEventAction, error) {
	var action domain.IncomingEventAction
	var delays []byte
	var idBytes, eventIDBytes []byte

	var idDest, eventIDDest any = &action.ID, &action.IncomingEventID
	if binaryIDs {
		idDest, eventIDDest = &idBytes, &eventIDBytes
	}

	err := row.Scan(
		idDest,
		eventIDDest,
		&action.Handler,
		&action.Priority,
		&action.AttemptCount,
		&action.MaxAttempts,
		&delays,
		&action.Status,
		&action.LockedBy,
		&action.LockedAt,
		&action.ErrorMessage,
		&action.ProcessedAt,
		&action.LockVersion,
		&action.CreatedAt,
		&action.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if binaryIDs {
		if action.ID, err = uuidFromBytes(idBytes); err != nil {
			return nil, err
		}
		if action.IncomingEventID, err = uuidFromBytes(eventIDBytes); err != nil {
			return nil, err
		}
	}
	if action.RetryDelays, err = decodeDelays(delays); err != nil {
		return nil, err
	}
	return &action, nil
}
