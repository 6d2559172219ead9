package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/bowerbird-app/captain-hook-sub004/internal/database"
)

// maintenanceUseCase implements the MaintenanceUseCase interface.
type maintenanceUseCase struct {
	txManager    database.TxManager
	eventRepo    IncomingEventRepository
	outgoingRepo OutgoingEventRepository
	logger       *slog.Logger
	now          func() time.Time
}

// Archive stamps archived_at on incoming and outgoing events in a terminal status created more
// than olderThan ago. Rows are never deleted. A dry run only counts them.
func (m *maintenanceUseCase) Archive(ctx context.Context, olderThan time.Duration, dryRun bool) (*ArchiveResult, error) {
	now := m.now().UTC()
	cutoff := now.Add(-olderThan)
	result := &ArchiveResult{DryRun: dryRun}

	if dryRun {
		incoming, err := m.eventRepo.CountArchivable(ctx, cutoff)
		if err != nil {
			return nil, err
		}
		outgoing, err := m.outgoingRepo.CountArchivable(ctx, cutoff)
		if err != nil {
			return nil, err
		}
		result.Incoming, result.Outgoing = incoming, outgoing
		return result, nil
	}

	err := m.txManager.WithTx(ctx, func(txCtx context.Context) error {
		incoming, err := m.eventRepo.Archive(txCtx, cutoff, now)
		if err != nil {
			return err
		}
		outgoing, err := m.outgoingRepo.Archive(txCtx, cutoff, now)
		if err != nil {
			return err
		}
		result.Incoming, result.Outgoing = incoming, outgoing
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("events archived",
		slog.Time("cutoff", cutoff),
		slog.Int64("incoming", result.Incoming),
		slog.Int64("outgoing", result.Outgoing),
	)
	return result, nil
}

// NewMaintenanceUseCase creates a new MaintenanceUseCase.
func NewMaintenanceUseCase(
	txManager database.TxManager,
	eventRepo IncomingEventRepository,
	outgoingRepo OutgoingEventRepository,
	logger *slog.Logger,
) MaintenanceUseCase {
	return &maintenanceUseCase{
		txManager:    txManager,
		eventRepo:    eventRepo,
		outgoingRepo: outgoingRepo,
		logger:       logger,
		now:          time.Now,
	}
}
