package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	queueDomain "github.com/bowerbird-app/captain-hook-sub004/internal/queue/domain"
	queueRedis "github.com/bowerbird-app/captain-hook-sub004/internal/queue/redis"
	queueRepository "github.com/bowerbird-app/captain-hook-sub004/internal/queue/repository"
	queueUsecase "github.com/bowerbird-app/captain-hook-sub004/internal/queue/usecase"
	webhookUseCase "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
)

const (
	queueDriverDatabase = "database"
	queueDriverRedis    = "redis"
)

// RedisClient returns the Redis client used by the redis queue driver.
func (c *Container) RedisClient(ctx context.Context) (*goredis.Client, error) {
	var err error
	c.redisClientInit.Do(func() {
		c.redisClient, err = queueRedis.NewClient(ctx, c.config.RedisAddr, c.config.RedisPassword, c.config.RedisDB)
		if err != nil {
			c.setInitError("redisClient", fmt.Errorf("failed to connect to redis: %w", err))
		}
	})
	if storedErr := c.initError("redisClient"); storedErr != nil {
		return nil, storedErr
	}
	return c.redisClient, nil
}

// Queue returns the job queue selected by QUEUE_DRIVER.
func (c *Container) Queue() (queueUsecase.Queue, error) {
	var err error
	c.queueInit.Do(func() {
		c.queue, err = c.initQueue()
		if err != nil {
			c.setInitError("queue", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("queue"); storedErr != nil {
		return nil, storedErr
	}
	return c.queue, nil
}

// Scheduler returns the job scheduler shared by the dispatch and delivery use cases.
func (c *Container) Scheduler() (*queueUsecase.Scheduler, error) {
	var err error
	c.schedulerInit.Do(func() {
		var queue queueUsecase.Queue
		queue, err = c.Queue()
		if err != nil {
			err = fmt.Errorf("failed to get queue for scheduler: %w", err)
			c.setInitError("scheduler", err)
			return
		}
		c.scheduler = queueUsecase.NewScheduler(queue)
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("scheduler"); storedErr != nil {
		return nil, storedErr
	}
	return c.scheduler, nil
}

// Worker returns the queue worker with the action and delivery processors registered.
func (c *Container) Worker() (*queueUsecase.Worker, error) {
	var err error
	c.workerInit.Do(func() {
		c.worker, err = c.initWorker()
		if err != nil {
			c.setInitError("worker", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("worker"); storedErr != nil {
		return nil, storedErr
	}
	return c.worker, nil
}

// initQueue creates the database or redis backed queue.
func (c *Container) initQueue() (queueUsecase.Queue, error) {
	switch c.config.QueueDriver {
	case queueDriverRedis:
		client, err := c.RedisClient(context.Background())
		if err != nil {
			return nil, err
		}
		return queueRedis.NewQueue(client, c.config.RedisQueueKey), nil
	case queueDriverDatabase, "":
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for queue: %w", err)
		}
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for queue: %w", err)
		}

		var jobRepo queueUsecase.JobRepository
		switch c.config.DBDriver {
		case dbDriverMySQL:
			jobRepo = queueRepository.NewMySQLJobRepository(db)
		case dbDriverPostgres:
			jobRepo = queueRepository.NewPostgreSQLJobRepository(db)
		default:
			return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
		return queueUsecase.NewDatabaseQueue(txManager, jobRepo), nil
	default:
		return nil, fmt.Errorf("unsupported queue driver: %s", c.config.QueueDriver)
	}
}

// initWorker creates the worker and binds each job kind to its processor.
func (c *Container) initWorker() (*queueUsecase.Worker, error) {
	queue, err := c.Queue()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue for worker: %w", err)
	}

	dispatcher, err := c.DispatchUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch use case for worker: %w", err)
	}

	delivery, err := c.DeliveryUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery use case for worker: %w", err)
	}

	worker := queueUsecase.NewWorker(queueUsecase.Config{
		Interval:      c.config.WorkerInterval,
		BatchSize:     c.config.WorkerBatchSize,
		Concurrency:   c.config.WorkerConcurrency,
		Lease:         c.config.LockTimeout,
		MaxAttempts:   c.config.JobMaxAttempts,
		RetryInterval: c.config.JobRetryInterval,
	}, queue, c.Logger())

	worker.Handle(queueDomain.JobKindDispatchAction, webhookUseCase.NewDispatchProcessor(dispatcher))
	worker.Handle(queueDomain.JobKindDeliverOutgoing, webhookUseCase.NewDeliveryProcessor(delivery))

	return worker, nil
}
