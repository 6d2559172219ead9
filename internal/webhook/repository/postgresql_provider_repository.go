package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bowerbird-app/captain-hook-sub004/internal/database"
	apperrors "github.com/bowerbird-app/captain-hook-sub004/internal/errors"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

const providerColumns = `id, name, token, secret, verifier, webhook_url, timestamp_tolerance, max_payload_size,
			  rate_limit_requests, rate_limit_period, active, created_at, updated_at`

// PostgreSQLProviderRepository implements provider persistence for PostgreSQL.
type PostgreSQLProviderRepository struct {
	db *sql.DB
}

// NewPostgreSQLProviderRepository creates a new PostgreSQL provider repository.
func NewPostgreSQLProviderRepository(db *sql.DB) *PostgreSQLProviderRepository {
	return &PostgreSQLProviderRepository{db: db}
}

// Upsert inserts the provider or, when a provider with the same name exists, overwrites its
// configuration. The existing id and created_at are kept.
func (p *PostgreSQLProviderRepository) Upsert(ctx context.Context, provider *domain.Provider) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO providers (id, name, token, secret, verifier, webhook_url, timestamp_tolerance,
			  max_payload_size, rate_limit_requests, rate_limit_period, active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
			  ON CONFLICT (name) DO UPDATE SET
			  token = EXCLUDED.token,
			  secret = EXCLUDED.secret,
			  verifier = EXCLUDED.verifier,
			  webhook_url = EXCLUDED.webhook_url,
			  timestamp_tolerance = EXCLUDED.timestamp_tolerance,
			  max_payload_size = EXCLUDED.max_payload_size,
			  rate_limit_requests = EXCLUDED.rate_limit_requests,
			  rate_limit_period = EXCLUDED.rate_limit_period,
			  active = EXCLUDED.active,
			  updated_at = NOW()`

	_, err := querier.ExecContext(
		ctx,
		query,
		provider.ID,
		provider.Name,
		provider.Token,
		provider.Secret,
		provider.Verifier,
		provider.WebhookURL,
		int64(provider.TimestampTolerance/time.Second),
		provider.MaxPayloadSize,
		provider.RateLimitRequests,
		int64(provider.RateLimitPeriod/time.Second),
		provider.Active,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert provider")
	}
	return nil
}

// GetByName retrieves a provider by its unique name.
func (p *PostgreSQLProviderRepository) GetByName(ctx context.Context, name string) (*domain.Provider, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + providerColumns + ` FROM providers WHERE name = $1`

	provider, err := scanProvider(querier.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProviderNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get provider")
	}
	return provider, nil
}

// ListAll retrieves every provider ordered by name.
func (p *PostgreSQLProviderRepository) ListAll(ctx context.Context) ([]*domain.Provider, error) {
	querier := database.GetTx(ctx, p.db)

	rows, err := querier.QueryContext(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY name ASC`)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list providers")
	}
	defer func() {
		_ = rows.Close()
	}()

	providers := make([]*domain.Provider, 0)
	for rows.Next() {
		provider, err := scanProvider(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan provider")
		}
		providers = append(providers, provider)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate providers")
	}
	return providers, nil
}

// SetActive toggles the active flag of the named provider.
func (p *PostgreSQLProviderRepository) SetActive(ctx context.Context, name string, active bool) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(
		ctx,
		`UPDATE providers SET active = $1, updated_at = NOW() WHERE name = $2`,
		active,
		name,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update provider")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return domain.ErrProviderNotFound
	}
	return nil
}

// scanProvider reads one provider row. Durations are stored as whole seconds.
func scanProvider(row rowScanner) (*domain.Provider, error) {
	var provider domain.Provider
	var tolerance, period int64

	err := row.Scan(
		&provider.ID,
		&provider.Name,
		&provider.Token,
		&provider.Secret,
		&provider.Verifier,
		&provider.WebhookURL,
		&tolerance,
		&provider.MaxPayloadSize,
		&provider.RateLimitRequests,
		&period,
		&provider.Active,
		&provider.CreatedAt,
		&provider.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	provider.TimestampTolerance = time.Duration(tolerance) * time.Second
	provider.RateLimitPeriod = time.Duration(period) * time.Second
	return &provider, nil
}
