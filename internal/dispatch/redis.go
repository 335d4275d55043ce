package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps tasks in a redis list.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
}

func NewRedisQueue(client redis.UniversalClient, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	payload, err := encodeTask(task)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push task: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Task{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return Task{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return Task{}, err
		}
		if len(res) != 2 {
			return Task{}, errors.New("redis queue: unexpected response")
		}
		return decodeTask([]byte(res[1]))
	}
}

// Deduplicated rejects tasks whose key was already enqueued within the window.
type Deduplicated struct {
	Queue
	client redis.UniversalClient
	prefix string
	window time.Duration
}

func NewDeduplicated(queue Queue, client redis.UniversalClient, prefix string, window time.Duration) *Deduplicated {
	return &Deduplicated{Queue: queue, client: client, prefix: prefix, window: window}
}

func (d *Deduplicated) Enqueue(ctx context.Context, task Task) error {
	if d.window <= 0 || task.Key == "" {
		return d.Queue.Enqueue(ctx, task)
	}

	key := d.prefix + task.Key
	ok, err := d.client.SetNX(ctx, key, task.ID, d.window).Result()
	if err != nil {
		return fmt.Errorf("reserve task key %s: %w", task.Key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.Key)
	}

	if err := d.Queue.Enqueue(ctx, task); err != nil {
		_ = d.client.Del(ctx, key).Err()
		return err
	}
	return nil
}
