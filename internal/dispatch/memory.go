package dispatch

import (
	"context"
	"sync"
)

// MemoryQueue is an unbounded in process queue for local runs where the worker lives in the same binary.
// Enqueue never blocks, so a run notifying many users cannot stall before the queue is drained.
type MemoryQueue struct {
	mu    sync.Mutex
	tasks []Task
	ready chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{ready: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Pop returns tasks in enqueue order, waiting for one when the queue is empty.
func (q *MemoryQueue) Pop(ctx context.Context) (Task, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks[0] = Task{}
			q.tasks = q.tasks[1:]
			left := len(q.tasks)
			q.mu.Unlock()

			// wake the next waiting consumer
			if left > 0 {
				q.signal()
			}
			return task, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return Task{}, ctx.Err()
		}
	}
}

// Len reports how many tasks are waiting.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *MemoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
