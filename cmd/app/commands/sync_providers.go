package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/registry"
	webhookUseCase "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
)

// RunSyncProviders upserts the providers declared in the webhook config file into the database.
// Values from the file win over stored rows, including the active flag.
func RunSyncProviders(
	ctx context.Context,
	providerUseCase webhookUseCase.ProviderUseCase,
	file *registry.File,
	defaults registry.Defaults,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	providers := file.ProvidersToDomain(defaults)

	count, err := providerUseCase.Sync(ctx, providers)
	if err != nil {
		return fmt.Errorf("failed to sync providers: %w", err)
	}

	names := make([]string, 0, len(providers))
	for _, provider := range providers {
		names = append(names, provider.Name)
	}

	logger.Info("providers synced", slog.Int("count", count))

	if format == "json" {
		return writeJSON(writer, map[string]interface{}{
			"count":     count,
			"providers": names,
		})
	}

	if _, err := fmt.Fprintf(writer, "Synchronized %d provider(s)\n", count); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := fmt.Fprintf(writer, "  - %s\n", name); err != nil {
			return err
		}
	}
	return nil
}
