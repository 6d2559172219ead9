package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bowerbird-app/captain-hook-sub004/internal/database"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/registry"
)

// providerUseCase implements the ProviderUseCase interface.
type providerUseCase struct {
	txManager    database.TxManager
	providerRepo ProviderRepository
	registry     *registry.ProviderRegistry
	logger       *slog.Logger
}

// Sync upserts the given providers by name in one transaction and reloads the registry.
// Configuration in the file wins over the stored row, active flag included.
func (p *providerUseCase) Sync(ctx context.Context, providers []*domain.Provider) (int, error) {
	err := p.txManager.WithTx(ctx, func(txCtx context.Context) error {
		for _, provider := range providers {
			if provider.ID == uuid.Nil {
				provider.ID = uuid.Must(uuid.NewV7())
			}
			if err := p.providerRepo.Upsert(txCtx, provider); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := p.registry.Load(ctx, p.providerRepo); err != nil {
		return 0, err
	}

	p.logger.Info("providers synchronized", slog.Int("count", len(providers)))
	return len(providers), nil
}

// List returns the stored providers ordered by name.
func (p *providerUseCase) List(ctx context.Context) ([]*domain.Provider, error) {
	return p.providerRepo.ListAll(ctx)
}

// SetActive enables or disables a provider and updates the registry immediately.
func (p *providerUseCase) SetActive(ctx context.Context, name string, active bool) (*domain.Provider, error) {
	if err := p.providerRepo.SetActive(ctx, name, active); err != nil {
		return nil, err
	}

	provider, err := p.providerRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	p.registry.Put(provider)

	p.logger.Info("provider updated", slog.String("provider", name), slog.Bool("active", active))
	return provider, nil
}

// NewProviderUseCase creates a new ProviderUseCase.
func NewProviderUseCase(
	txManager database.TxManager,
	providerRepo ProviderRepository,
	providers *registry.ProviderRegistry,
	logger *slog.Logger,
) ProviderUseCase {
	return &providerUseCase{
		txManager:    txManager,
		providerRepo: providerRepo,
		registry:     providers,
		logger:       logger,
	}
}
