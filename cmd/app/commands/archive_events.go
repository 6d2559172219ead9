package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	webhookUseCase "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
)

// RunArchiveEvents archives finished incoming and outgoing events older than the specified
// number of days. Supports dry-run mode to preview the counts and both text/JSON output formats.
//
// Requirements: Database must be migrated and accessible.
func RunArchiveEvents(
	ctx context.Context,
	maintenanceUseCase webhookUseCase.MaintenanceUseCase,
	logger *slog.Logger,
	writer io.Writer,
	days int,
	dryRun bool,
	format string,
) error {
	if days < 0 {
		return fmt.Errorf("days must be a positive number, got: %d", days)
	}

	logger.Info("archiving events", slog.Int("days", days), slog.Bool("dry_run", dryRun))

	result, err := maintenanceUseCase.Archive(ctx, time.Duration(days)*24*time.Hour, dryRun)
	if err != nil {
		return fmt.Errorf("failed to archive events: %w", err)
	}

	logger.Info("archival completed",
		slog.Int64("incoming", result.Incoming),
		slog.Int64("outgoing", result.Outgoing),
		slog.Bool("dry_run", dryRun),
	)

	if format == "json" {
		return writeJSON(writer, map[string]interface{}{
			"incoming": result.Incoming,
			"outgoing": result.Outgoing,
			"days":     days,
			"dry_run":  dryRun,
		})
	}

	verb := "Successfully archived"
	if dryRun {
		verb = "Dry-run mode: Would archive"
	}
	_, err = fmt.Fprintf(
		writer,
		"%s %d incoming and %d outgoing event(s) older than %d day(s)\n",
		verb,
		result.Incoming,
		result.Outgoing,
		days,
	)
	return err
}
