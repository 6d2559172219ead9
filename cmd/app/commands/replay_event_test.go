package commands

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
	webhookUseCase "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
	usecaseMocks "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase/mocks"
)

func TestRunReplayEvent(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	eventID := uuid.Must(uuid.NewV7())

	detail := &webhookUseCase.EventDetail{
		Event: &domain.IncomingEvent{
			ID:         eventID,
			Provider:   "stripe",
			Status:     domain.EventStatusReceived,
			DedupState: domain.DedupStateReplayed,
		},
		Actions: []*domain.IncomingEventAction{
			{ID: uuid.Must(uuid.NewV7()), Handler: "log", Status: domain.ActionStatusPending},
		},
	}

	t.Run("text-output", func(t *testing.T) {
		mockUseCase := &usecaseMocks.MockEventUseCase{}
		mockUseCase.On("Replay", ctx, eventID).Return(detail, nil)

		var out bytes.Buffer
		err := RunReplayEvent(ctx, mockUseCase, logger, &out, eventID.String(), "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Replayed event "+eventID.String()+" (stripe) with 1 action(s)")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("json-output", func(t *testing.T) {
		mockUseCase := &usecaseMocks.MockEventUseCase{}
		mockUseCase.On("Replay", ctx, eventID).Return(detail, nil)

		var out bytes.Buffer
		err := RunReplayEvent(ctx, mockUseCase, logger, &out, eventID.String(), "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), `"dedup_state": "replayed"`)
		require.Contains(t, out.String(), `"handler": "log"`)
	})

	t.Run("invalid-id", func(t *testing.T) {
		mockUseCase := &usecaseMocks.MockEventUseCase{}

		err := RunReplayEvent(ctx, mockUseCase, logger, &bytes.Buffer{}, "not-a-uuid", "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid event ID format")
		mockUseCase.AssertNotCalled(t, "Replay")
	})

	t.Run("not-found", func(t *testing.T) {
		mockUseCase := &usecaseMocks.MockEventUseCase{}
		mockUseCase.On("Replay", ctx, eventID).Return(nil, domain.ErrIncomingEventNotFound)

		err := RunReplayEvent(ctx, mockUseCase, logger, &bytes.Buffer{}, eventID.String(), "text")

		require.ErrorIs(t, err, domain.ErrIncomingEventNotFound)
	})
}
