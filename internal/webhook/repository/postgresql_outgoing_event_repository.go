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

const outgoingEventColumns = `id, provider, event_type, target_url, headers, payload, status, attempt_count,
			  first_attempt_at, last_attempt_at, response_code, response_body, response_time_ms, error_message,
			  lock_version, archived_at, created_at, updated_at`

// PostgreSQLOutgoingEventRepository implements outgoing event persistence for PostgreSQL.
type PostgreSQLOutgoingEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutgoingEventRepository creates a new PostgreSQL outgoing event repository.
func NewPostgreSQLOutgoingEventRepository(db *sql.DB) *PostgreSQLOutgoingEventRepository {
	return &PostgreSQLOutgoingEventRepository{db: db}
}

// Create inserts a new outgoing event.
func (p *PostgreSQLOutgoingEventRepository) Create(ctx context.Context, event *domain.OutgoingEvent) error {
	querier := database.GetTx(ctx, p.db)

	headers, err := encodeHeaders(event.Headers)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outgoing event headers")
	}

	query := `INSERT INTO outgoing_events (id, provider, event_type, target_url, headers, payload, status,
			  attempt_count, lock_version, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = querier.ExecContext(
		ctx,
		query,
		event.ID,
		event.Provider,
		event.EventType,
		event.TargetURL,
		headers,
		event.Payload,
		event.Status,
		event.AttemptCount,
		event.LockVersion,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outgoing event")
	}
	return nil
}

// GetByID retrieves an outgoing event by its id.
func (p *PostgreSQLOutgoingEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutgoingEvent, error) {
	querier := database.GetTx(ctx, p.db)

	row := querier.QueryRowContext(ctx, `SELECT `+outgoingEventColumns+` FROM outgoing_events WHERE id = $1`, id)
	event, err := scanOutgoingEvent(row, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOutgoingEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get outgoing event")
	}
	return event, nil
}

// List retrieves outgoing events newest first with pagination.
func (p *PostgreSQLOutgoingEventRepository) List(
	ctx context.Context,
	filter domain.OutgoingEventFilter,
	offset, limit int,
) ([]*domain.OutgoingEvent, error) {
	where := &whereClause{numbered: true}
	if filter.Provider != "" {
		where.add("provider", filter.Provider)
	}
	if filter.Status != "" {
		where.add("status", string(filter.Status))
	}
	limitPlaceholder := where.next()
	where.args = append(where.args, limit)
	offsetPlaceholder := where.next()
	where.args = append(where.args, offset)

	query := `SELECT ` + outgoingEventColumns + ` FROM outgoing_events` + where.String() +
		` ORDER BY created_at DESC, id DESC LIMIT ` + limitPlaceholder + ` OFFSET ` + offsetPlaceholder

	return p.list(ctx, query, where.args...)
}

// ListStale retrieves unarchived processing events whose last attempt started before
// attemptedBefore, oldest attempt first.
func (p *PostgreSQLOutgoingEventRepository) ListStale(
	ctx context.Context,
	attemptedBefore time.Time,
	limit int,
) ([]*domain.OutgoingEvent, error) {
	query := `SELECT ` + outgoingEventColumns + ` FROM outgoing_events
			  WHERE status = $1 AND last_attempt_at < $2 AND archived_at IS NULL
			  ORDER BY last_attempt_at ASC
			  LIMIT $3`
	return p.list(ctx, query, domain.OutgoingStatusProcessing, attemptedBefore, limit)
}

func (p *PostgreSQLOutgoingEventRepository) list(ctx context.Context, query string, args ...any) ([]*domain.OutgoingEvent, error) {
	querier := database.GetTx(ctx, p.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list outgoing events")
	}
	defer func() {
		_ = rows.Close()
	}()

	events := make([]*domain.OutgoingEvent, 0)
	for rows.Next() {
		event, err := scanOutgoingEvent(rows, false)
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
func (p *PostgreSQLOutgoingEventRepository) Update(ctx context.Context, event *domain.OutgoingEvent) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE outgoing_events
			  SET status = $1, attempt_count = $2, first_attempt_at = $3, last_attempt_at = $4, response_code = $5,
			  response_body = $6, response_time_ms = $7, error_message = $8, lock_version = lock_version + 1,
			  updated_at = NOW()
			  WHERE id = $9 AND lock_version = $10`

	result, err := querier.ExecContext(
		ctx,
		query,
		event.Status,
		event.AttemptCount,
		event.FirstAttemptAt,
		event.LastAttemptAt,
		event.ResponseCode,
		event.ResponseBody,
		event.ResponseTimeMs,
		event.ErrorMessage,
		event.ID,
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
func (p *PostgreSQLOutgoingEventRepository) Archive(ctx context.Context, cutoff, archivedAt time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE outgoing_events SET archived_at = $1, updated_at = NOW()
			  WHERE archived_at IS NULL AND created_at < $2 AND status IN ($3, $4)`

	args := append([]any{archivedAt, cutoff}, finalOutgoingStatuses...)
	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to archive outgoing events")
	}
	return result.RowsAffected()
}

// CountArchivable counts the events Archive would stamp.
func (p *PostgreSQLOutgoingEventRepository) CountArchivable(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT COUNT(*) FROM outgoing_events
			  WHERE archived_at IS NULL AND created_at < $1 AND status IN ($2, $3)`

	var count int64
	args := append([]any{cutoff}, finalOutgoingStatuses...)
	if err := querier.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count archivable outgoing events")
	}
	return count, nil
}

func scanOutgoingEvent(row rowScanner, binaryID bool) (*domain.OutgoingEvent, error) {
	var event domain.OutgoingEvent
	var headers, idBytes []byte

	var idDest any = &event.ID
	if binaryID {
		idDest = &idBytes
	}

	err := row.Scan(
		idDest,
		&event.Provider,
		&event.EventType,
		&event.TargetURL,
		&headers,
		&event.Payload,
		&event.Status,
		&event.AttemptCount,
		&event.FirstAttemptAt,
		&event.LastAttemptAt,
		&event.ResponseCode,
		&event.ResponseBody,
		&event.ResponseTimeMs,
		&event.ErrorMessage,
		&event.LockVersion,
		&event.ArchivedAt,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if binaryID {
		if event.ID, err = uuidFromBytes(idBytes); err != nil {
			return nil, err
		}
	}
	if event.Headers, err = decodeHeaders(headers); err != nil {
		return nil, err
	}
	return &event, nil
}
