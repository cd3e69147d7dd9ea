package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/reelforge/reelforge/internal/jobs"
)

// QueueCollect holds collect tasks awaiting a worker.
const QueueCollect = "queue:collect"

// Queue is the redis-backed work queue that carries detached collect tasks
// from the submitting request to the worker pool.
type Queue struct {
	client *redis.Client
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Dispatch enqueues a collect task. Implements jobs.Dispatcher.
func (q *Queue) Dispatch(ctx context.Context, task jobs.CollectTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal collect task: %w", err)
	}
	return q.client.RPush(ctx, QueueCollect, data).Err()
}

// Dequeue blocks up to timeout for the next collect task. A nil task with a
// nil error means nothing was available.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*jobs.CollectTask, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueCollect).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var task jobs.CollectTask
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal collect task: %w", err)
	}

	return &task, nil
}

// Length reports how many collect tasks are waiting.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueCollect).Result()
}
