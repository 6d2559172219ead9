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

// MySQLOutgoingEventRepository implements outgoing event persistence for MySQL.
type MySQLOutgoingEventRepository struct {
	db *sql.DB
}

// NewMySQLOutgoingEventRepository creates a new MySQL outgoing event repository.
func NewMySQLOutgoingEventRepository(db *sql.DB) *MySQLOutgoingEventRepository {
	return &MySQLOutgoingEventRepository{db: db}
}

// Create inserts a new outgoing event.
func (m *MySQLOutgoingEventRepository) Create(ctx context.Context, event *domain.OutgoingEvent) error {
	querier := database.GetTx(ctx, m.db)

	headers, err := encodeHeaders(event.Headers)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outgoing event headers")
	}

	query := `INSERT INTO outgoing_events (id, provider, event_type, target_url, headers, payload, status,
			  attempt_count, lock_version, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		uuidBytes(event.ID),
		event.Provider,
		event.EventType,
		event.TargetURL,
		headers,
		event.Payload,
		event.Status,
		event.AttemptCount,
		event.LockVersion,
		event.CreatedAt.UTC(),
		event.UpdatedAt.UTC(),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outgoing event")
	}
	return nil
}

// GetByID retrieves an outgoing event by its id.
func (m *MySQLOutgoingEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutgoingEvent, error) {
	querier := database.GetTx(ctx, m.db)

	row := querier.QueryRowContext(
		ctx,
		`SELECT `+outgoingEventColumns+` FROM outgoing_events WHERE id = ?`,
		uuidBytes(id),
	)
	event, err := scanOutgoingEvent(row, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOutgoingEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get outgoing event")
	}
	return event, nil
}

// List retrieves outgoing events newest first with pagination.
func (m *MySQLOutgoingEventRepository) List(
	ctx context.Context,
	filter domain.OutgoingEventFilter,
	offset, limit int,
) ([]*domain.OutgoingEvent, error) {
	where := &whereClause{}
	if filter.Provider != "" {
		where.add("provider", filter.Provider)
	}
	if filter.Status != "" {
		where.add("status", string(filter.Status))
	}
	where.args = append(where.args, limit, offset)

	query := `SELECT ` + outgoingEventColumns + ` FROM outgoing_events` + where.String() +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	return m.list(ctx, query, where.args...)
}

// ListStale retrieves unarchived processing events whose last attempt started before
// attemptedBefore, oldest attempt first.
func (m *MySQLOutgoingEventRepository) ListStale(
	ctx context.Context,
	attemptedBefore time.Time,
	limit int,
) ([]*domain.OutgoingEvent, error) {
	query := `SELECT ` + outgoingEventColumns + ` FROM outgoing_events
			  WHERE status = ? AND last_attempt_at < ? AND archived_at IS NULL
			  ORDER BY last_attempt_at ASC
			  LIMIT ?`
	return m.list(ctx, query, domain.OutgoingStatusProcessing, attemptedBefore, limit)
}

func (m *MySQLOutgoingEventRepository) list(ctx context.Context, query string, args ...any) ([]*domain.OutgoingEvent, error) {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list outgoing events")
	}
	defer func() {
		_ = rows.Close()
	}()

	events := make([]*domain.OutgoingEvent, 0)
	for rows.Next() {
		event, err := scanOutgoingEvent(rows, true)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outgoing event")
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outgoing events")
	}
	return events, nil
}

// Update persists the delivery state guarded by lock_version.
func (m *MySQLOutgoingEventRepository) Update(ctx context.Context, event *domain.OutgoingEvent) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE outgoing_events
			  SET status = ?, attempt_count = ?, first_attempt_at = ?, last_attempt_at = ?, response_code = ?,
			  response_body = ?, response_time_ms = ?, error_message = ?, lock_version = lock_version + 1,
			  updated_at = NOW(6)
			  WHERE id = ? AND lock_version = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		event.Status,
		event.AttemptCount,
		utcPtr(event.FirstAttemptAt),
		utcPtr(event.LastAttemptAt),
		event.ResponseCode,
		event.ResponseBody,
		event.ResponseTimeMs,
		event.ErrorMessage,
		uuidBytes(event.ID),
		event.LockVersion,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update outgoing event")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return domain.ErrVersionConflict
	}

	event.LockVersion++
	return nil
}

// Archive stamps archived_at on delivered or failed events created before cutoff.
func (m *MySQLOutgoingEventRepository) Archive(ctx context.Context, cutoff, archivedAt time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE outgoing_events SET archived_at = ?, updated_at = NOW(6)
			  WHERE archived_at IS NULL AND created_at < ? AND status IN (?, ?)`

	args := append([]any{archivedAt.UTC(), cutoff.UTC()}, finalOutgoingStatuses...)
	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to archive outgoing events")
	}
	return result.RowsAffected()
}

// CountArchivable counts the events Archive would stamp.
func (m *MySQLOutgoingEventRepository) CountArchivable(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT COUNT(*) FROM outgoing_events
			  WHERE archived_at IS NULL AND created_at < ? AND status IN (?, ?)`

	var count int64
	args := append([]any{cutoff.UTC()}, finalOutgoingStatuses...)
	if err := querier.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count archivable outgoing events")
	}
	return count, nil
}
