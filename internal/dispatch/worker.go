package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/metrics"
	"github.com/cumplo-spotter/cumplo-spotter/internal/utils"
)

const (
	taskHeader   = "X-Spotter-Task"
	taskIDHeader = "X-Spotter-Task-Id"

	defaultAttempts = 3
	defaultBackoff  = time.Second
)

// Worker pops webhook tasks and posts their payload to the user webhook.
type Worker struct {
	queue    Queue
	client   *http.Client
	logger   *zap.Logger
	Attempts int
	Backoff  time.Duration
}

func NewWorker(logger *zap.Logger, queue Queue, client *http.Client) *Worker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Worker{
		queue:    queue,
		client:   client,
		logger:   logger,
		Attempts: defaultAttempts,
		Backoff:  defaultBackoff,
	}
}

// Run delivers tasks until ctx is done. Failed deliveries are logged and dropped.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	for {
		task, err := w.queue.Pop(ctx)
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}
		if err != nil {
			w.logger.Error("pop task", zap.Error(err))
			if err := utils.WaitFor(ctx, w.Backoff); err != nil {
				return nil
			}
			continue
		}

		w.handle(ctx, task)
	}
}

// Drain delivers the tasks already waiting in an in-memory queue and returns.
// It is meant for one-shot runs that would otherwise exit with tasks pending.
func (w *Worker) Drain(ctx context.Context) int {
	q, ok := w.queue.(*MemoryQueue)
	if !ok {
		return 0
	}

	var n int
	for q.Len() > 0 && ctx.Err() == nil {
		task, err := q.Pop(ctx)
		if err != nil {
			break
		}
		w.handle(ctx, task)
		n++
	}
	return n
}

func (w *Worker) handle(ctx context.Context, task Task) {
	logger := w.logger.With(zap.String("task", task.ID), zap.String("key", task.Key), zap.String("user", task.UserID))
	if err := w.Deliver(ctx, task); err != nil {
		logger.Error("webhook delivery failed", zap.Error(err))
		return
	}
	logger.Info("webhook delivered")
}

// Deliver posts the task payload, retrying transport errors and 5xx answers.
func (w *Worker) Deliver(ctx context.Context, task Task) error {
	if task.URL == "" {
		return fmt.Errorf("task %s has no webhook url", task.ID)
	}

	attempts := max(w.Attempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var retry bool
		retry, err = w.post(ctx, task)
		if err == nil || !retry {
			return err
		}
		if attempt < attempts {
			w.logger.Debug("retrying webhook", zap.String("task", task.ID), zap.Int("attempt", attempt), zap.Error(err))
			if waitErr := utils.WaitFor(ctx, w.Backoff*time.Duration(attempt)); waitErr != nil {
				return errors.Join(err, waitErr)
			}
		}
	}
	return err
}

func (w *Worker) post(ctx context.Context, task Task) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.URL, bytes.NewReader(task.Payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(taskHeader, task.Key)
	req.Header.Set(taskIDHeader, task.ID)

	resp, err := w.client.Do(req)
	if err != nil {
		metrics.ObserveWebhookDelivery(0)
		return true, err
	}
	defer resp.Body.Close()
	metrics.ObserveWebhookDelivery(resp.StatusCode)

	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode >= http.StatusInternalServerError,
			fmt.Errorf("webhook answered %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return false, nil
}
