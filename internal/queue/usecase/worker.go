package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
)

// Config holds worker configuration
type Config struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	// Lease is how long a claimed job stays hidden from other workers.
	Lease time.Duration
	// MaxAttempts buries a job after this many processor errors.
	MaxAttempts int
	// RetryInterval is multiplied by the attempt number to delay a job after a processor error.
	RetryInterval time.Duration
}

// JobProcessor handles the jobs of one kind. Returning an error leaves the job for a later retry.
type JobProcessor interface {
	Process(ctx context.Context, job *domain.Job) error
}

// JobProcessorFunc adapts a function to the JobProcessor interface.
type JobProcessorFunc func(ctx context.Context, job *domain.Job) error

// Process calls f.
func (f JobProcessorFunc) Process(ctx context.Context, job *domain.Job) error {
	return f(ctx, job)
}

// Worker polls the queue and routes claimed jobs to processors by kind.
type Worker struct {
	config     Config
	queue      Queue
	mu         sync.RWMutex
	processors map[domain.JobKind]JobProcessor
	logger     *slog.Logger
	now        func() time.Time
}

// NewWorker creates a new Worker
func NewWorker(config Config, queue Queue, logger *slog.Logger) *Worker {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	return &Worker{
		config:     config,
		queue:      queue,
		processors: make(map[domain.JobKind]JobProcessor),
		logger:     logger,
		now:        time.Now,
	}
}

// Handle registers the processor for a job kind.
func (w *Worker) Handle(kind domain.JobKind, processor JobProcessor) {
	w.mu.Lock()
	w.processors[kind] = processor
	w.mu.Unlock()
}

// Start runs the polling loop until ctx is cancelled
func (w *Worker) Start(ctx context.Context) error {
	if w.logger != nil {
		w.logger.Info("starting job worker",
			slog.Duration("interval", w.config.Interval),
			slog.Int("batch_size", w.config.BatchSize),
			slog.Int("concurrency", w.config.Concurrency),
		)
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if w.logger != nil {
				w.logger.Info("stopping job worker")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessJobs(ctx); err != nil {
				if w.logger != nil {
					w.logger.Error("failed to process jobs", slog.Any("error", err))
				}
			}
		}
	}
}

// ProcessJobs claims one batch and processes it with bounded concurrency. Processor errors are
// absorbed into retries; only queue errors are returned.
func (w *Worker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.queue.Claim(ctx, w.config.BatchSize, w.config.Lease)
	if err != nil {
		return fmt.Errorf("failed to claim jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	if w.logger != nil {
		w.logger.Debug("processing jobs", slog.Int("count", len(jobs)))
	}

	var g errgroup.Group
	g.SetLimit(w.config.Concurrency)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			return w.processJob(ctx, job)
		})
	}

	return g.Wait()
}

func (w *Worker) processJob(ctx context.Context, job *domain.Job) error {
	w.mu.RLock()
	processor, ok := w.processors[job.Kind]
	w.mu.RUnlock()

	if !ok {
		if w.logger != nil {
			w.logger.Error("no processor for job kind",
				slog.String("job_id", job.ID.String()),
				slog.String("kind", string(job.Kind)),
			)
		}
		return w.queue.Bury(ctx, job, fmt.Sprintf("no processor for job kind %q", job.Kind))
	}

	err := processor.Process(ctx, job)
	if err == nil {
		return w.queue.Complete(ctx, job)
	}

	if w.logger != nil {
		w.logger.Error("failed to process job",
			slog.String("job_id", job.ID.String()),
			slog.String("kind", string(job.Kind)),
			slog.String("ref_id", job.RefID.String()),
			slog.Int("attempts", job.Attempts),
			slog.Any("error", err),
		)
	}

	if w.config.MaxAttempts > 0 && job.Attempts >= w.config.MaxAttempts {
		return w.queue.Bury(ctx, job, err.Error())
	}

	runAt := w.now().Add(w.config.RetryInterval * time.Duration(job.Attempts))
	return w.queue.Retry(ctx, job, err.Error(), runAt)
}

// RunPeriodic calls fn every interval until ctx is cancelled. Errors are logged and do not stop
// the loop.
func RunPeriodic(
	ctx context.Context,
	name string,
	interval time.Duration,
	fn func(ctx context.Context) error,
	logger *slog.Logger,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil && logger != nil {
				logger.Error("periodic task failed", slog.String("task", name), slog.Any("error", err))
			}
		}
	}
}
