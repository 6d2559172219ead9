package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bowerbird-app/captain-hook-sub004/internal/app"
	"github.com/bowerbird-app/captain-hook-sub004/internal/config"
	queueUsecase "github.com/bowerbird-app/captain-hook-sub004/internal/queue/usecase"
	webhookUseCase "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
)

const sweepBatchSize = 100

// RunWorker runs the job worker and the stale lock and delivery sweeper until SIGINT/SIGTERM.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting worker",
		slog.String("version", version),
		slog.String("worker_id", cfg.WorkerID),
		slog.String("queue_driver", cfg.QueueDriver),
	)

	defer closeContainer(container, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	worker, err := container.Worker()
	if err != nil {
		return fmt.Errorf("failed to initialize worker: %w", err)
	}

	dispatcher, err := container.DispatchUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize dispatch use case: %w", err)
	}

	delivery, err := container.DeliveryUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize delivery use case: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return worker.Start(groupCtx)
	})
	group.Go(func() error {
		return queueUsecase.RunPeriodic(groupCtx, "sweep_stale_locks", cfg.SweepInterval,
			sweepFunc(dispatcher, delivery, cfg.LockTimeout, logger), logger)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("worker stopped")
	return nil
}

// sweepFunc releases action locks and interrupted deliveries older than lockTimeout, one batch
// of each per call.
func sweepFunc(
	dispatcher webhookUseCase.DispatchUseCase,
	delivery webhookUseCase.DeliveryUseCase,
	lockTimeout time.Duration,
	logger *slog.Logger,
) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		swept, err := dispatcher.SweepStaleLocks(ctx, lockTimeout, sweepBatchSize)
		if err != nil {
			return err
		}
		if swept > 0 {
			logger.Info("stale locks swept", slog.Int("count", swept))
		}

		released, err := delivery.SweepStaleDeliveries(ctx, lockTimeout, sweepBatchSize)
		if err != nil {
			return err
		}
		if released > 0 {
			logger.Info("stale deliveries swept", slog.Int("count", released))
		}
		return nil
	}
}
