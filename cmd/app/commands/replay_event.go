package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	webhookUseCase "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
)

// RunReplayEvent re-runs every handler bound to an incoming event.
func RunReplayEvent(
	ctx context.Context,
	eventUseCase webhookUseCase.EventUseCase,
	logger *slog.Logger,
	writer io.Writer,
	eventID string,
	format string,
) error {
	id, err := uuid.Parse(eventID)
	if err != nil {
		return fmt.Errorf("invalid event ID format: %w", err)
	}

	detail, err := eventUseCase.Replay(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to replay event: %w", err)
	}

	logger.Info("event replayed",
		slog.String("event_id", id.String()),
		slog.Int("actions", len(detail.Actions)),
	)

	if format == "json" {
		actions := make([]map[string]interface{}, 0, len(detail.Actions))
		for _, action := range detail.Actions {
			actions = append(actions, map[string]interface{}{
				"id":      action.ID.String(),
				"handler": action.Handler,
				"status":  string(action.Status),
			})
		}
		return writeJSON(writer, map[string]interface{}{
			"id":          detail.Event.ID.String(),
			"provider":    detail.Event.Provider,
			"status":      string(detail.Event.Status),
			"dedup_state": string(detail.Event.DedupState),
			"actions":     actions,
		})
	}

	_, err = fmt.Fprintf(
		writer,
		"Replayed event %s (%s) with %d action(s)\n",
		detail.Event.ID,
		detail.Event.Provider,
		len(detail.Actions),
	)
	return err
}
