// Package usecase implements the job queue: enqueueing, claiming with a lease and the polling
// worker that routes claimed jobs to their processors.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bowerbird-app/captain-hook-sub004/internal/database"
	"github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
)

// Queue is a durable store of scheduled jobs.
type Queue interface {
	// Enqueue stores a job.
	Enqueue(ctx context.Context, job *domain.Job) error
	// Claim returns up to limit due jobs, increments their attempts and hides them from other
	// claimers until the lease expires.
	Claim(ctx context.Context, limit int, lease time.Duration) ([]*domain.Job, error)
	// Complete removes a finished job.
	Complete(ctx context.Context, job *domain.Job) error
	// Retry makes a job due again at runAt, recording lastErr.
	Retry(ctx context.Context, job *domain.Job, lastErr string, runAt time.Time) error
	// Bury marks a job as failed so it is never claimed again.
	Bury(ctx context.Context, job *domain.Job, lastErr string) error
}

// JobRepository defines job repository operations
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	GetDueJobs(ctx context.Context, now time.Time, limit int) ([]*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	Delete(ctx context.Context, job *domain.Job) error
}

// DatabaseQueue implements Queue on top of the webhook_jobs table.
type DatabaseQueue struct {
	txManager database.TxManager
	jobRepo   JobRepository
	now       func() time.Time
}

// NewDatabaseQueue creates a new DatabaseQueue
func NewDatabaseQueue(txManager database.TxManager, jobRepo JobRepository) *DatabaseQueue {
	return &DatabaseQueue{
		txManager: txManager,
		jobRepo:   jobRepo,
		now:       time.Now,
	}
}

// Enqueue stores a job. It joins the transaction carried by ctx, if any.
func (q *DatabaseQueue) Enqueue(ctx context.Context, job *domain.Job) error {
	return q.jobRepo.Create(ctx, job)
}

// Claim locks due rows with FOR UPDATE SKIP LOCKED and pushes their run_at past the lease.
func (q *DatabaseQueue) Claim(ctx context.Context, limit int, lease time.Duration) ([]*domain.Job, error) {
	var claimed []*domain.Job

	err := q.txManager.WithTx(ctx, func(ctx context.Context) error {
		now := q.now()

		jobs, err := q.jobRepo.GetDueJobs(ctx, now, limit)
		if err != nil {
			return err
		}

		for _, job := range jobs {
			job.Attempts++
			job.RunAt = now.Add(lease)
			if err := q.jobRepo.Update(ctx, job); err != nil {
				return err
			}
		}

		claimed = jobs
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// Complete removes a finished job.
func (q *DatabaseQueue) Complete(ctx context.Context, job *domain.Job) error {
	return q.jobRepo.Delete(ctx, job)
}

// Retry makes a job due again at runAt.
func (q *DatabaseQueue) Retry(ctx context.Context, job *domain.Job, lastErr string, runAt time.Time) error {
	job.RunAt = runAt
	job.LastError = &lastErr
	return q.jobRepo.Update(ctx, job)
}

// Bury marks a job as failed.
func (q *DatabaseQueue) Bury(ctx context.Context, job *domain.Job, lastErr string) error {
	job.Status = domain.JobStatusFailed
	job.LastError = &lastErr
	return q.jobRepo.Update(ctx, job)
}

// Scheduler enqueues jobs relative to the current time.
type Scheduler struct {
	queue Queue
	now   func() time.Time
}

// NewScheduler creates a new Scheduler
func NewScheduler(queue Queue) *Scheduler {
	return &Scheduler{
		queue: queue,
		now:   time.Now,
	}
}

// Schedule enqueues a job of kind for refID that becomes due after delay.
func (s *Scheduler) Schedule(ctx context.Context, kind domain.JobKind, refID uuid.UUID, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	return s.queue.Enqueue(ctx, domain.NewJob(kind, refID, s.now().Add(delay)))
}
