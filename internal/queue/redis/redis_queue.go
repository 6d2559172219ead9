// Package redis implements the job queue on a Redis sorted set scored by run time, with one hash
// per job holding its fields.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
)

// claimScript moves up to ARGV[2] due members past the lease and bumps their attempt counters.
// KEYS[1] is the schedule set, ARGV[1] now in ms, ARGV[3] the lease expiry in ms and ARGV[4]
// the job hash prefix.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
	redis.call('ZADD', KEYS[1], ARGV[3], id)
	redis.call('HINCRBY', ARGV[4] .. id, 'attempts', 1)
	redis.call('HSET', ARGV[4] .. id, 'run_at', ARGV[3])
end
return ids
`)

// Queue is a Redis implementation of the job queue.
type Queue struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return client, nil
}

// NewQueue creates a Queue storing its schedule under key.
func NewQueue(client *redis.Client, key string) *Queue {
	return &Queue{
		client: client,
		key:    key,
		now:    time.Now,
	}
}

func (q *Queue) hashPrefix() string {
	return q.key + ":job:"
}

func (q *Queue) hashKey(id uuid.UUID) string {
	return q.hashPrefix() + id.String()
}

// Enqueue stores the job hash and schedules it.
func (q *Queue) Enqueue(ctx context.Context, job *domain.Job) error {
	now := q.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.hashKey(job.ID), map[string]interface{}{
			"id":         job.ID.String(),
			"kind":       string(job.Kind),
			"ref_id":     job.RefID.String(),
			"status":     string(job.Status),
			"attempts":   job.Attempts,
			"run_at":     job.RunAt.UnixMilli(),
			"created_at": job.CreatedAt.UnixMilli(),
		})
		pipe.ZAdd(ctx, q.key, redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID.String()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueueing job: %w", err)
	}
	return nil
}

// Claim leases up to limit due jobs atomically.
func (q *Queue) Claim(ctx context.Context, limit int, lease time.Duration) ([]*domain.Job, error) {
	now := q.now()

	ids, err := claimScript.Run(ctx, q.client, []string{q.key},
		now.UnixMilli(),
		limit,
		now.Add(lease).UnixMilli(),
		q.hashPrefix(),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claiming jobs: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, q.hashPrefix()+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("loading jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Hash expired or was deleted; drop the dangling member.
			q.client.ZRem(ctx, q.key, ids[i])
			continue
		}
		job, err := parseJob(fields)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// Complete removes the job from the schedule and deletes its hash.
func (q *Queue) Complete(ctx context.Context, job *domain.Job) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.key, job.ID.String())
		pipe.Del(ctx, q.hashKey(job.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	return nil
}

// Retry reschedules the job at runAt.
func (q *Queue) Retry(ctx context.Context, job *domain.Job, lastErr string, runAt time.Time) error {
	job.RunAt = runAt
	job.LastError = &lastErr

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.hashKey(job.ID), map[string]interface{}{
			"run_at":     runAt.UnixMilli(),
			"last_error": lastErr,
		})
		pipe.ZAdd(ctx, q.key, redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID.String()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("retrying job: %w", err)
	}
	return nil
}

// Bury removes the job from the schedule and keeps its hash with status failed.
func (q *Queue) Bury(ctx context.Context, job *domain.Job, lastErr string) error {
	job.Status = domain.JobStatusFailed
	job.LastError = &lastErr

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.key, job.ID.String())
		pipe.HSet(ctx, q.hashKey(job.ID), map[string]interface{}{
			"status":     string(domain.JobStatusFailed),
			"last_error": lastErr,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("burying job: %w", err)
	}
	return nil
}

// Get loads one job by id.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	fields, err := q.client.HGetAll(ctx, q.hashKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return parseJob(fields)
}

func parseJob(fields map[string]string) (*domain.Job, error) {
	id, err := uuid.Parse(fields["id"])
	if err != nil {
		return nil, fmt.Errorf("parsing job id: %w", err)
	}
	refID, err := uuid.Parse(fields["ref_id"])
	if err != nil {
		return nil, fmt.Errorf("parsing job ref_id: %w", err)
	}

	job := &domain.Job{
		ID:        id,
		Kind:      domain.JobKind(fields["kind"]),
		RefID:     refID,
		Status:    domain.JobStatus(fields["status"]),
		Attempts:  parseInt(fields["attempts"]),
		RunAt:     time.UnixMilli(parseInt64(fields["run_at"])),
		CreatedAt: time.UnixMilli(parseInt64(fields["created_at"])),
	}
	if lastErr, ok := fields["last_error"]; ok {
		job.LastError = &lastErr
	}
	job.UpdatedAt = job.CreatedAt
	return job, nil
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
