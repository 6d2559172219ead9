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

const incomingEventColumns = `id, provider, external_id, event_type, payload, headers, status, dedup_state,
			  archived_at, created_at, updated_at`

// Terminal statuses eligible for archival.
var (
	finalEventStatuses = []any{
		string(domain.EventStatusProcessed),
		string(domain.EventStatusPartiallyProcessed),
		string(domain.EventStatusFailed),
	}
	finalOutgoingStatuses = []any{
		string(domain.OutgoingStatusDelivered),
		string(domain.OutgoingStatusFailed),
	}
)

// PostgreSQLIncomingEventRepository implements incoming event persistence for PostgreSQL.
type PostgreSQLIncomingEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLIncomingEventRepository creates a new PostgreSQL incoming event repository.
func NewPostgreSQLIncomingEventRepository(db *sql.DB) *PostgreSQLIncomingEventRepository {
	return &PostgreSQLIncomingEventRepository{db: db}
}

// Create inserts a new incoming event. The unique (provider, external_id) index is the
// idempotency boundary: a collision is reported as domain.ErrIncomingEventDuplicate.
func (p *PostgreSQLIncomingEventRepository) Create(ctx context.Context, event *domain.IncomingEvent) error {
	querier := database.GetTx(ctx, p.db)

	headers, err := encodeHeaders(event.Headers)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal incoming event headers")
	}

	query := `INSERT INTO incoming_events (id, provider, external_id, event_type, payload, headers, status,
			  dedup_state, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = querier.ExecContext(
		ctx,
		query,
		event.ID,
		event.Provider,
		event.ExternalID,
		event.EventType,
		event.Payload,
		headers,
		event.Status,
		event.DedupState,
		event.CreatedAt,
		event.UpdatedAt,
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
func (p *PostgreSQLIncomingEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.IncomingEvent, error) {
	return p.getOne(ctx, `SELECT `+incomingEventColumns+` FROM incoming_events WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves an incoming event and locks its row until the transaction ends.
func (p *PostgreSQLIncomingEventRepository) GetByIDForUpdate(
	ctx context.Context,
	id uuid.UUID,
) (*domain.IncomingEvent, error) {
	return p.getOne(ctx, `SELECT `+incomingEventColumns+` FROM incoming_events WHERE id = $1 FOR UPDATE`, id)
}

// GetByProviderExternalID retrieves the event stored under the idempotency key.
func (p *PostgreSQLIncomingEventRepository) GetByProviderExternalID(
	ctx context.Context,
	provider, externalID string,
) (*domain.IncomingEvent, error) {
	return p.getOne(
		ctx,
		`SELECT `+incomingEventColumns+` FROM incoming_events WHERE provider = $1 AND external_id = $2`,
		provider,
		externalID,
	)
}

func (p *PostgreSQLIncomingEventRepository) getOne(
	ctx context.Context,
	query string,
	args ...any,
) (*domain.IncomingEvent, error) {
	querier := database.GetTx(ctx, p.db)

	event, err := scanIncomingEvent(querier.QueryRowContext(ctx, query, args...), nil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIncomingEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get incoming event")
	}
	return event, nil
}

// List retrieves incoming events newest first with pagination.
func (p *PostgreSQLIncomingEventRepository) List(
	ctx context.Context,
	filter domain.IncomingEventFilter,
	offset, limit int,
) ([]*domain.IncomingEvent, error) {
	querier := database.GetTx(ctx, p.db)

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

	query := `SELECT ` + incomingEventColumns + ` FROM incoming_events` + where.String() +
		` ORDER BY created_at DESC, id DESC LIMIT ` + limitPlaceholder + ` OFFSET ` + offsetPlaceholder

	rows, err := querier.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list incoming events")
	}
	defer func() {
		_ = rows.Close()
	}()

	events := make([]*domain.IncomingEvent, 0)
	for rows.Next() {
		event, err := scanIncomingEvent(rows, nil)
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
func (p *PostgreSQLIncomingEventRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.EventStatus,
) error {
	return p.exec(ctx, `UPDATE incoming_events SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
}

// UpdateDedupState records whether the event was seen again or replayed.
func (p *PostgreSQLIncomingEventRepository) UpdateDedupState(
	ctx context.Context,
	id uuid.UUID,
	state domain.DedupState,
) error {
	return p.exec(ctx, `UPDATE incoming_events SET dedup_state = $1, updated_at = NOW() WHERE id = $2`, state, id)
}

func (p *PostgreSQLIncomingEventRepository) exec(ctx context.Context, query string, args ...any) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(err, "failed to update incoming event")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return domain.ErrIncomingEventNotFound
	}
	return nil
}

// Archive stamps archived_at on finished, unarchived events created before cutoff.
func (p *PostgreSQLIncomingEventRepository) Archive(ctx context.Context, cutoff, archivedAt time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE incoming_events SET archived_at = $1, updated_at = NOW()
			  WHERE archived_at IS NULL AND created_at < $2 AND status IN ($3, $4, $5)`

	args := append([]any{archivedAt, cutoff}, finalEventStatuses...)
	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to archive incoming events")
	}
	return result.RowsAffected()
}

// CountArchivable counts the events Archive would stamp.
func (p *PostgreSQLIncomingEventRepository) CountArchivable(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT COUNT(*) FROM incoming_events
			  WHERE archived_at IS NULL AND created_at < $1 AND status IN ($2, $3, $4)`

	var count int64
	args := append([]any{cutoff}, finalEventStatuses...)
	if err := querier.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count archivable incoming events")
	}
	return count, nil
}

// scanIncomingEvent reads one incoming event row. When idBytes is non-nil the id column is
// read as MySQL BINARY(16).
func scanIncomingEvent(row rowScanner, idBytes *[]byte) (*domain.IncomingEvent, error) {
	var event domain.IncomingEvent
	var headers []byte

	var idDest any = &event.ID
	if idBytes != nil {
		idDest = idBytes
	}

	err := row.Scan(
		idDest,
		&event.Provider,
		&event.ExternalID,
		&event.EventType,
		&event.Payload,
		&headers,
		&event.Status,
		&event.DedupState,
		&event.ArchivedAt,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if idBytes != nil {
		if event.ID, err = uuidFromBytes(*idBytes); err != nil {
			return nil, err
		}
	}
	if event.Headers, err = decodeHeaders(headers); err != nil {
		return nil, err
	}
	return &event, nil
}
