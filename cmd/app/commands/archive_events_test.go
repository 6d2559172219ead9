package commands

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	webhookUseCase "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
	usecaseMocks "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase/mocks"
)

func TestRunArchiveEvents(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	days := 30
	olderThan := 30 * 24 * time.Hour

	t.Run("text-output", func(t *testing.T) {
		mockUseCase := &usecaseMocks.MockMaintenanceUseCase{}
		mockUseCase.On("Archive", ctx, olderThan, false).
			Return(&webhookUseCase.ArchiveResult{Incoming: 100, Outgoing: 7}, nil)

		var out bytes.Buffer
		err := RunArchiveEvents(ctx, mockUseCase, logger, &out, days, false, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Successfully archived 100 incoming and 7 outgoing event(s)")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("dry-run-text-output", func(t *testing.T) {
		mockUseCase := &usecaseMocks.MockMaintenanceUseCase{}
		mockUseCase.On("Archive", ctx, olderThan, true).
			Return(&webhookUseCase.ArchiveResult{Incoming: 3, DryRun: true}, nil)

		var out bytes.Buffer
		err := RunArchiveEvents(ctx, mockUseCase, logger, &out, days, true, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Dry-run mode: Would archive 3 incoming")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("json-output", func(t *testing.T) {
		mockUseCase := &usecaseMocks.MockMaintenanceUseCase{}
		mockUseCase.On("Archive", ctx, olderThan, true).
			Return(&webhookUseCase.ArchiveResult{Incoming: 50, Outgoing: 2, DryRun: true}, nil)

		var out bytes.Buffer
		err := RunArchiveEvents(ctx, mockUseCase, logger, &out, days, true, "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), `"incoming": 50`)
		require.Contains(t, out.String(), `"outgoing": 2`)
		require.Contains(t, out.String(), `"dry_run": true`)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("invalid-days", func(t *testing.T) {
		mockUseCase := &usecaseMocks.MockMaintenanceUseCase{}
		err := RunArchiveEvents(ctx, mockUseCase, logger, &bytes.Buffer{}, -1, false, "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "days must be a positive number")
		mockUseCase.AssertNotCalled(t, "Archive")
	})

	t.Run("use-case-error", func(t *testing.T) {
		mockUseCase := &usecaseMocks.MockMaintenanceUseCase{}
		mockUseCase.On("Archive", ctx, olderThan, false).Return(nil, errors.New("db down"))

		err := RunArchiveEvents(ctx, mockUseCase, logger, &bytes.Buffer{}, days, false, "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to archive events: db down")
	})
}
