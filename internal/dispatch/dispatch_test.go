package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/store"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	task, err := NewTask(WebhookTaskKey("u1"), "u1", "https://example.com", map[string]int{"a": 1})
	require.NoError(t, err)

	assert.Equal(t, "send-funding-requests-webhook-u1", task.Key)
	assert.JSONEq(t, `{"a":1}`, string(task.Payload))
	_, err = uuid.Parse(task.ID)
	assert.NoError(t, err)
	assert.False(t, task.CreatedAt.IsZero())
}

func TestMemoryQueue(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue()
	task := Task{ID: "1", Key: "k"}
	require.NoError(t, q.Enqueue(t.Context(), task))

	got, err := q.Pop(t.Context())
	require.NoError(t, err)
	assert.Equal(t, task, got)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = q.Pop(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueueEnqueueWithoutConsumer(t *testing.T) {
	t.Parallel()

	const total = 200
	q := NewMemoryQueue()
	for i := range total {
		require.NoError(t, q.Enqueue(t.Context(), Task{ID: strconv.Itoa(i)}))
	}
	assert.Equal(t, total, q.Len())

	for i := range total {
		got, err := q.Pop(t.Context())
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(i), got.ID)
	}
	assert.Zero(t, q.Len())
}

func TestMemoryQueuePopWaitsForEnqueue(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue()
	got := make(chan Task, 1)
	go func() {
		task, err := q.Pop(t.Context())
		if err == nil {
			got <- task
		}
	}()

	require.NoError(t, q.Enqueue(t.Context(), Task{ID: "late"}))
	select {
	case task := <-got:
		assert.Equal(t, "late", task.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("pop did not return after enqueue")
	}
}

func TestWorkerDeliver(t *testing.T) {
	t.Parallel()

	var received atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received.Store(map[string]string{
			"task": r.Header.Get("X-Spotter-Task"),
			"type": r.Header.Get("Content-Type"),
			"body": string(body),
		})
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	task, err := NewTask(WebhookTaskKey("u1"), "u1", srv.URL, map[string]any{"12": map[string]int{"id": 12}})
	require.NoError(t, err)

	w := NewWorker(zap.NewNop(), NewMemoryQueue(), srv.Client())
	require.NoError(t, w.Deliver(t.Context(), task))

	got := received.Load().(map[string]string)
	assert.Equal(t, "send-funding-requests-webhook-u1", got["task"])
	assert.Equal(t, "application/json", got["type"])
	assert.JSONEq(t, `{"12":{"id":12}}`, got["body"])
}

func TestWorkerRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWorker(zap.NewNop(), NewMemoryQueue(), srv.Client())
	w.Backoff = 0

	require.NoError(t, w.Deliver(t.Context(), Task{ID: "1", URL: srv.URL, Payload: json.RawMessage(`{}`)}))
	assert.EqualValues(t, 3, calls.Load())
}

func TestWorkerDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	w := NewWorker(zap.NewNop(), NewMemoryQueue(), srv.Client())
	w.Backoff = 0

	err := w.Deliver(t.Context(), Task{ID: "1", URL: srv.URL, Payload: json.RawMessage(`{}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "410")
	assert.EqualValues(t, 1, calls.Load())
}

func TestWorkerDrain(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := NewMemoryQueue()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, q.Enqueue(t.Context(), Task{ID: id, URL: srv.URL, Payload: json.RawMessage(`{}`)}))
	}
	assert.Equal(t, 3, q.Len())

	w := NewWorker(zap.NewNop(), q, srv.Client())
	assert.Equal(t, 3, w.Drain(t.Context()))
	assert.Equal(t, 0, q.Len())
	assert.EqualValues(t, 3, calls.Load())

	// only in-memory queues are drained
	other := NewWorker(zap.NewNop(), NewRedisQueue(nil, "unused"), srv.Client())
	assert.Zero(t, other.Drain(t.Context()))
}

func TestWorkerRun(t *testing.T) {
	t.Parallel()

	delivered := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered <- r.Header.Get("X-Spotter-Task-Id")
	}))
	defer srv.Close()

	q := NewMemoryQueue()
	require.NoError(t, q.Enqueue(t.Context(), Task{ID: "a", URL: srv.URL, Payload: json.RawMessage(`{}`)}))
	require.NoError(t, q.Enqueue(t.Context(), Task{ID: "b", URL: srv.URL, Payload: json.RawMessage(`{}`)}))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- NewWorker(zap.NewNop(), q, srv.Client()).Run(ctx) }()

	assert.Equal(t, "a", <-delivered)
	assert.Equal(t, "b", <-delivered)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRedisQueueAndDeduplication(t *testing.T) {
	addr := os.Getenv("SPOTTER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SPOTTER_TEST_REDIS_ADDR is not set")
	}

	client, err := store.NewRedisClient(t.Context(), store.RedisConfig{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	prefix := "spotter-test:" + uuid.NewString() + ":"
	q := NewDeduplicated(NewRedisQueue(client, prefix+"tasks"), client, prefix+"dedupe:", time.Minute)

	task, err := NewTask(WebhookTaskKey("u1"), "u1", "https://example.com", []int{1})
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(t.Context(), task))
	require.ErrorIs(t, q.Enqueue(t.Context(), task), ErrDuplicateTask)

	got, err := q.Pop(t.Context())
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.JSONEq(t, `[1]`, string(got.Payload))
}

func TestRabbitQueue(t *testing.T) {
	url := os.Getenv("SPOTTER_TEST_AMQP_URL")
	if url == "" {
		t.Skip("SPOTTER_TEST_AMQP_URL is not set")
	}

	q, err := NewRabbitQueue(url, "spotter-test-"+uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	task, err := NewTask(WebhookTaskKey("u1"), "u1", "https://example.com", []int{1})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(t.Context(), task))

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
}
