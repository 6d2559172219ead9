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

// MySQLProviderRepository implements provider persistence for MySQL.
// UUIDs are stored as BINARY(16).
type MySQLProviderRepository struct {
	db *sql.DB
}

// NewMySQLProviderRepository creates a new MySQL provider repository.
func NewMySQLProviderRepository(db *sql.DB) *MySQLProviderRepository {
	return &MySQLProviderRepository{db: db}
}

// Upsert inserts the provider or overwrites the configuration of the provider with the same name.
func (m *MySQLProviderRepository) Upsert(ctx context.Context, provider *domain.Provider) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO providers (id, name, token, secret, verifier, webhook_url, timestamp_tolerance,
			  max_payload_size, rate_limit_requests, rate_limit_period, active, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(6), NOW(6))
			  ON DUPLICATE KEY UPDATE
			  token = VALUES(token),
			  secret = VALUES(secret),
			  verifier = VALUES(verifier),
			  webhook_url = VALUES(webhook_url),
			  timestamp_tolerance = VALUES(timestamp_tolerance),
			  max_payload_size = VALUES(max_payload_size),
			  rate_limit_requests = VALUES(rate_limit_requests),
			  rate_limit_period = VALUES(rate_limit_period),
			  active = VALUES(active),
			  updated_at = NOW(6)`

	_, err := querier.ExecContext(
		ctx,
		query,
		uuidBytes(provider.ID),
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
func (m *MySQLProviderRepository) GetByName(ctx context.Context, name string) (*domain.Provider, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + providerColumns + ` FROM providers WHERE name = ?`

	provider, err := scanMySQLProvider(querier.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProviderNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get provider")
	}
	return provider, nil
}

// ListAll retrieves every provider ordered by name.
func (m *MySQLProviderRepository) ListAll(ctx context.Context) ([]*domain.Provider, error) {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY name ASC`)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list providers")
	}
	defer func() {
		_ = rows.Close()
	}()

	providers := make([]*domain.Provider, 0)
	for rows.Next() {
		provider, err := scanMySQLProvider(rows)
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

// SetActive toggles the active flag of the named provider. MySQL reports zero affected rows
// when the value is unchanged, so existence is checked separately.
func (m *MySQLProviderRepository) SetActive(ctx context.Context, name string, active bool) error {
	querier := database.GetTx(ctx, m.db)

	var exists int
	err := querier.QueryRowContext(ctx, `SELECT 1 FROM providers WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrProviderNotFound
		}
		return apperrors.Wrap(err, "failed to get provider")
	}

	_, err = querier.ExecContext(
		ctx,
		`UPDATE providers SET active = ?, updated_at = NOW(6) WHERE name = ?`,
		active,
		name,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update provider")
	}
	return nil
}

func scanMySQLProvider(row rowScanner) (*domain.Provider, error) {
	var provider domain.Provider
	var idBytes []byte
	var tolerance, period int64

	err := row.Scan(
		&idBytes,
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

	if provider.ID, err = uuidFromBytes(idBytes); err != nil {
		return nil, err
	}
	provider.TimestampTolerance = time.Duration(tolerance) * time.Second
	provider.RateLimitPeriod = time.Duration(period) * time.Second
	return &provider, nil
}
