package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const contentType = "application/json"

// RabbitQueue publishes tasks to a durable queue on the default exchange.
type RabbitQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	once       sync.Once
	deliveries <-chan amqp.Delivery
	consumeErr error
}

func NewRabbitQueue(url, queue string) (*RabbitQueue, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &RabbitQueue{conn: conn, ch: ch, queue: queue}, nil
}

func (q *RabbitQueue) Enqueue(ctx context.Context, task Task) error {
	body, err := encodeTask(task)
	if err != nil {
		return err
	}

	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    task.ID,
		Timestamp:    task.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Pop acknowledges a delivery as soon as it is decoded. Tasks are never requeued by the broker.
func (q *RabbitQueue) Pop(ctx context.Context) (Task, error) {
	q.once.Do(func() {
		q.deliveries, q.consumeErr = q.ch.Consume(q.queue, "", false, false, false, false, nil)
	})
	if q.consumeErr != nil {
		return Task{}, fmt.Errorf("consume %s: %w", q.queue, q.consumeErr)
	}

	select {
	case <-ctx.Done():
		return Task{}, ctx.Err()
	case d, ok := <-q.deliveries:
		if !ok {
			return Task{}, errors.New("rabbitmq: delivery channel closed")
		}
		task, err := decodeTask(d.Body)
		if err != nil {
			_ = d.Nack(false, false)
			return Task{}, err
		}
		if err := d.Ack(false); err != nil {
			return Task{}, fmt.Errorf("ack task %s: %w", task.ID, err)
		}
		return task, nil
	}
}

func (q *RabbitQueue) Close() error {
	if err := q.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return q.conn.Close()
}
