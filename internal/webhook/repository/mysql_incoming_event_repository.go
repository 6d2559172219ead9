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

// MySQLIncomingEventRepository implements incoming event persistence for MySQL.
type MySQLIncomingEventRepository struct {
	db *sql.DB
}

// NewMySQLIncomingEventRepository creates a new MySQL incoming event repository.
func NewMySQLIncomingEventRepository(db *sql.DB) *MySQLIncomingEventRepository {
	return &MySQLIncomingEventRepository{db: db}
}

// Create inserts a new incoming event, reporting a duplicate idempotency key as
// domain.ErrIncomingEventDuplicate.
func (m *MySQLIncomingEventRepository) Create(ctx context.Context, event *domain.IncomingEvent) error {
	querier := database.GetTx(ctx, m.db)

	headers, err := encodeHeaders(event.Headers)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal incoming event headers")
	}

	query := `INSERT INTO incoming_events (id, provider, external_id, event_type, payload, headers, status,
			  dedup_state, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		uuidBytes(event.ID),
		event.Provider,
		event.ExternalID,
		event.EventType,
		event.Payload,
		headers,
		event.Status,
		event.DedupState,
		event.CreatedAt.UTC(),
		event.UpdatedAt.UTC(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrIncomingEventDuplicate
		}
		return apperrors.Wrap(err, "failed to create incoming event")
	}
	return nil
}

// GetByID retrieves an incoming event by its id.
func (m *MySQLIncomingEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.IncomingEvent, error) {
	return m.getOne(ctx, `SELECT `+incomingEventColumns+` FROM incoming_events WHERE id = ?`, uuidBytes(id))
}

// GetByIDForUpdate retrieves an incoming event and locks its row until the transaction ends.
func (m *MySQLIncomingEventRepository) GetByIDForUpdate(
	ctx context.Context,
	id uuid.UUID,
) (*domain.IncomingEvent, error) {
	return m.getOne(
		ctx,
		`SELECT `+incomingEventColumns+` FROM incoming_events WHERE id = ? FOR UPDATE`,
		uuidBytes(id),
	)
}

// GetByProviderExternalID retrieves the event stored under the idempotency key.
func (m *MySQLIncomingEventRepository) GetByProviderExternalID(
	ctx context.Context,
	provider, externalID string,
) (*domain.IncomingEvent, error) {
	return m.getOne(
		ctx,
		`SELECT `+incomingEventColumns+` FROM incoming_events WHERE provider = ? AND external_id = ?`,
		provider,
		externalID,
	)
}

func (m *MySQLIncomingEventRepository) getOne(
	ctx context.Context,
	query string,
	args ...any,
) (*domain.IncomingEvent, error) {
	querier := database.GetTx(ctx, m.db)

	var idBytes []byte
	event, err := scanIncomingEvent(querier.QueryRowContext(ctx, query, args...), &idBytes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIncomingEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get incoming event")
	}
	return event, nil
}

// List retrieves incoming events newest first with pagination.
func (m *MySQLIncomingEventRepository) List(
	ctx context.Context,
	filter domain.IncomingEventFilter,
	offset, limit int,
) ([]*domain.IncomingEvent, error) {
	querier := database.GetTx(ctx, m.db)

	where := &whereClause{}
	if filter.Provider != "" {
		where.add("provider", filter.Provider)
	}
	if filter.Status != "" {
		where.add("status", string(filter.Status))
	}
	where.args = append(where.args, limit, offset)

	query := `SELECT ` + incomingEventColumns + ` FROM incoming_events` + where.String() +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list incoming events")
	}
	defer func() {
		_ = rows.Close()
	}()

	events := make([]*domain.IncomingEvent, 0)
	for rows.Next() {
		var idBytes []byte
		event, err := scanIncomingEvent(rows, &idBytes)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan incoming event")
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate incoming events")
	}
	return events, nil
}

// UpdateStatus sets the aggregate processing status of an event.
func (m *MySQLIncomingEventRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.EventStatus,
) error {
	return m.exec(ctx, `UPDATE incoming_events SET status = ?, updated_at = NOW(6) WHERE id = ?`, status, id)
}

// UpdateDedupState records whether the event was seen again or replayed.
func (m *MySQLIncomingEventRepository) UpdateDedupState(
	ctx context.Context,
	id uuid.UUID,
	state domain.DedupState,
) error {
	return m.exec(ctx, `UPDATE incoming_events SET dedup_state = ?, updated_at = NOW(6) WHERE id = ?`, state, id)
}

// exec runs a single-row update. MySQL counts only changed rows, so a missing row is detected
// with a follow-up existence check rather than from RowsAffected.
func (m *MySQLIncomingEventRepository) exec(ctx context.Context, query string, value any, id uuid.UUID) error {
	querier := database.GetTx(ctx, m.db)

	result, err := querier.ExecContext(ctx, query, value, uuidBytes(id))
	if err != nil {
		return apperrors.Wrap(err, "failed to update incoming event")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = querier.QueryRowContext(ctx, `SELECT 1 FROM incoming_events WHERE id = ?`, uuidBytes(id)).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrIncomingEventNotFound
		}
		return apperrors.Wrap(err, "failed to get incoming event")
	}
	return nil
}

// Archive stamps archived_at on finished, unarchived events created before cutoff.
func (m *MySQLIncomingEventRepository) Archive(ctx context.Context, cutoff, archivedAt time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE incoming_events SET archived_at = ?, updated_at = NOW(6)
			  WHERE archived_at IS NULL AND created_at < ? AND status IN (?, ?, ?)`

	args := append([]any{archivedAt.UTC(), cutoff.UTC()}, finalEventStatuses...)
	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to archive incoming events")
	}
	return result.RowsAffected()
}

// CountArchivable counts the events Archive would stamp.
func (m *MySQLIncomingEventRepository) CountArchivable(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT COUNT(*) FROM incoming_events
			  WHERE archived_at IS NULL AND created_at < ? AND status IN (?, ?, ?)`

	var count int64
	args := append([]any{cutoff.UTC()}, finalEventStatuses...)
	if err := querier.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count archivable incoming events")
	}
	return count, nil
}
