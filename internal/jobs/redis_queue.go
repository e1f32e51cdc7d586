package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/STRATINT/eventcatalog/internal/ingestion"
)

// RedisQueueOptions configures the Redis-backed queue.
type RedisQueueOptions struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379/0)
	URL string

	// Key is the sorted set holding pending tasks.
	Key string

	// PollInterval is how long Dequeue sleeps when nothing is due.
	PollInterval time.Duration

	ConnectTimeout time.Duration
}

// DefaultRedisQueueOptions returns sensible defaults.
func DefaultRedisQueueOptions() RedisQueueOptions {
	return RedisQueueOptions{
		Key:            "eventcatalog:enrich:queue",
		PollInterval:   time.Second,
		ConnectTimeout: 5 * time.Second,
	}
}

// RedisQueue is a durable Queue: tasks are members of a sorted set scored
// by due time in unix milliseconds. A task is claimed by the worker whose
// ZREM removes it.
type RedisQueue struct {
	client *redis.Client
	opts   RedisQueueOptions
	policy ingestion.RetryPolicy
	logger *slog.Logger
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(opts RedisQueueOptions, logger *slog.Logger) (*RedisQueue, error) {
	if opts.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if opts.ConnectTimeout > 0 {
		redisOpts.DialTimeout = opts.ConnectTimeout
	}
	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), redisOpts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisQueueWithClient(client, opts, logger), nil
}

// NewRedisQueueWithClient wraps an existing client.
func NewRedisQueueWithClient(client *redis.Client, opts RedisQueueOptions, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultRedisQueueOptions()
	if opts.Key == "" {
		opts.Key = defaults.Key
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	return &RedisQueue{
		client: client,
		opts:   opts,
		policy: ingestion.DefaultRetryPolicy(),
		logger: logger.With("component", "redis_queue"),
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, eventID int64, delay time.Duration) error {
	task := Task{ID: uuid.NewString(), EventID: eventID, DueAt: time.Now().Add(delay)}
	member, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	err = ingestion.Retry(ctx, q.policy, func() error {
		err := q.client.ZAdd(ctx, q.opts.Key, redis.Z{
			Score:  float64(task.DueAt.UnixMilli()),
			Member: member,
		}).Err()
		if err != nil {
			return ingestion.NewRetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue event %d: %w", eventID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		task, err := q.claimDue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			q.logger.Warn("failed to poll queue", "error", err)
		}
		if task != nil {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.opts.PollInterval):
		}
	}
}

func (q *RedisQueue) claimDue(ctx context.Context) (*Task, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.client.ZRangeByScore(ctx, q.opts.Key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 10,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, member := range members {
		removed, err := q.client.ZRem(ctx, q.opts.Key, member).Result()
		if err != nil {
			return nil, err
		}
		if removed == 0 {
			// Another worker claimed it.
			continue
		}
		var task Task
		if err := json.Unmarshal([]byte(member), &task); err != nil {
			q.logger.Error("dropping malformed task", "member", member, "error", err)
			continue
		}
		return &task, nil
	}
	return nil, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.opts.Key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
