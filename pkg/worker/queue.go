package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue hands tasks between producers and the orchestrator. Enqueue
// deduplicates on UniqueKey while a task with the same key is pending
// or running.
type Queue interface {
	// Enqueue adds a task. A duplicate unique key is a silent no-op
	// (the work is already scheduled).
	Enqueue(ctx context.Context, task Task) error

	// Dequeue pops the next due task, or nil when none is due.
	Dequeue(ctx context.Context) (*Task, error)

	// Complete marks a task finished and releases its unique key.
	Complete(ctx context.Context, task Task) error

	// Retry re-schedules a task for a later attempt.
	Retry(ctx context.Context, task Task, runAt time.Time) error
}

const (
	redisTaskZSet    = "orderflow:tasks"
	redisTaskPrefix  = "orderflow:task:"
	redisUniquePrefix = "orderflow:task-unique:"

	// uniqueKeyTTL bounds how long a crashed worker can hold a unique
	// key hostage.
	uniqueKeyTTL = 6 * time.Hour
)

// RedisQueue is the production Queue: a sorted set scored by run-at
// time, task bodies in plain keys, unique keys as SETNX locks.
type RedisQueue struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisQueue builds a queue over an existing client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, now: time.Now}
}

// WithClock overrides the queue's clock.
func (q *RedisQueue) WithClock(now func() time.Time) *RedisQueue {
	q.now = now
	return q
}

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	if task.UniqueKey != "" {
		ok, err := q.client.SetNX(ctx, redisUniquePrefix+task.UniqueKey, task.ID.String(), uniqueKeyTTL).Result()
		if err != nil {
			return fmt.Errorf("unique key check: %w", err)
		}
		if !ok {
			return nil // already scheduled
		}
	}

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, redisTaskPrefix+task.ID.String(), body, 0)
	pipe.ZAdd(ctx, redisTaskZSet, redis.Z{Score: float64(task.RunAt.UnixMilli()), Member: task.ID.String()})
	_, err = pipe.Exec(ctx)
	return err
}

// Dequeue implements Queue.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	now := q.now().UTC()

	ids, err := q.client.ZRangeByScore(ctx, redisTaskZSet, &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now.UnixMilli()), Count: 1,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	id := ids[0]
	// Claim by removal; only one worker wins the ZREM.
	removed, err := q.client.ZRem(ctx, redisTaskZSet, id).Result()
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		return nil, nil // another worker claimed it
	}

	body, err := q.client.Get(ctx, redisTaskPrefix+id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var task Task
	if err := json.Unmarshal([]byte(body), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task %s: %w", id, err)
	}
	return &task, nil
}

// Complete implements Queue.
func (q *RedisQueue) Complete(ctx context.Context, task Task) error {
	pipe := q.client.TxPipeline()
	pipe.Del(ctx, redisTaskPrefix+task.ID.String())
	if task.UniqueKey != "" {
		pipe.Del(ctx, redisUniquePrefix+task.UniqueKey)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Retry implements Queue.
func (q *RedisQueue) Retry(ctx context.Context, task Task, runAt time.Time) error {
	task.RunAt = runAt
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, redisTaskPrefix+task.ID.String(), body, 0)
	pipe.ZAdd(ctx, redisTaskZSet, redis.Z{Score: float64(runAt.UnixMilli()), Member: task.ID.String()})
	_, err = pipe.Exec(ctx)
	return err
}
