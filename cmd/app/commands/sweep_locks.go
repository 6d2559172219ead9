package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	webhookUseCase "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
)

// RunSweepLocks releases action locks and interrupted deliveries older than olderThan once and
// reports how many were swept.
func RunSweepLocks(
	ctx context.Context,
	dispatcher webhookUseCase.DispatchUseCase,
	delivery webhookUseCase.DeliveryUseCase,
	logger *slog.Logger,
	writer io.Writer,
	olderThan time.Duration,
	limit int,
	format string,
) error {
	if olderThan <= 0 {
		return fmt.Errorf("older-than must be positive, got: %s", olderThan)
	}
	if limit <= 0 {
		return fmt.Errorf("limit must be a positive number, got: %d", limit)
	}

	actions, err := dispatcher.SweepStaleLocks(ctx, olderThan, limit)
	if err != nil {
		return fmt.Errorf("failed to sweep stale locks: %w", err)
	}

	deliveries, err := delivery.SweepStaleDeliveries(ctx, olderThan, limit)
	if err != nil {
		return fmt.Errorf("failed to sweep stale deliveries: %w", err)
	}

	logger.Info("sweep completed",
		slog.Int("actions", actions),
		slog.Int("deliveries", deliveries),
		slog.Duration("older_than", olderThan),
	)

	if format == "json" {
		return writeJSON(writer, map[string]interface{}{
			"count":      actions,
			"deliveries": deliveries,
			"older_than": olderThan.String(),
		})
	}

	_, err = fmt.Fprintf(writer,
		"Released %d stale action lock(s) and %d interrupted delivery(ies) older than %s\n",
		actions, deliveries, olderThan,
	)
	return err
}
