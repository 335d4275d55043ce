package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateTask is returned when a task with the same key was enqueued within the dedupe window.
var ErrDuplicateTask = errors.New("duplicate task")

const (
	DriverRedis    = "redis"
	DriverRabbitMQ = "rabbitmq"
	DriverMemory   = "memory"

	webhookTaskPrefix = "send-funding-requests-webhook-"
)

// Config selects the queue backing webhook tasks.
type Config struct {
	Driver       string        `mapstructure:"driver"`
	Queue        string        `mapstructure:"queue"`
	RabbitMQURL  string        `mapstructure:"rabbitmq-url"`
	DedupeWindow time.Duration `mapstructure:"dedupe-window"`
}

// Task is a webhook call waiting to be delivered.
type Task struct {
	ID        string          `json:"id"`
	Key       string          `json:"key"`
	UserID    string          `json:"user_id"`
	URL       string          `json:"url"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue stores tasks until a worker pops them. Pop blocks until a task arrives or ctx is done.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Pop(ctx context.Context) (Task, error)
}

// WebhookTaskKey is the idempotency key of the funding requests webhook of a user.
func WebhookTaskKey(userID string) string {
	return webhookTaskPrefix + userID
}

func NewTask(key, userID, url string, payload any) (Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Task{
		ID:        uuid.NewString(),
		Key:       key,
		UserID:    userID,
		URL:       url,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func encodeTask(task Task) ([]byte, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	return data, nil
}

func decodeTask(data []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	return task, nil
}
