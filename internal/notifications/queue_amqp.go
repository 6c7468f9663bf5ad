/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue delivers jobs through a durable RabbitMQ queue with manual acks.
type AMQPQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	publishMu sync.Mutex

	consumeOnce sync.Once
	consumeErr  error
	deliveries  <-chan amqp.Delivery
	cancel      context.CancelFunc
}

// NewAMQPQueue dials url and declares queue. prefetch bounds unacked
// deliveries held by this process.
func NewAMQPQueue(url, queue string, prefetch int) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	return &AMQPQueue{conn: conn, ch: ch, queue: q.Name}, nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, job Job) (err error) {
	defer func() { observeQueue("amqp", "enqueue", err) }()

	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	q.publishMu.Lock()
	defer q.publishMu.Unlock()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Body:         data,
	})
	if err != nil {
		return fmt.Errorf("amqp enqueue: %w", err)
	}
	return nil
}

func (q *AMQPQueue) startConsuming() error {
	q.consumeOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		q.cancel = cancel
		q.deliveries, q.consumeErr = q.ch.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	})
	return q.consumeErr
}

func (q *AMQPQueue) Dequeue(ctx context.Context) (*Message, error) {
	if err := q.startConsuming(); err != nil {
		observeQueue("amqp", "dequeue", err)
		return nil, fmt.Errorf("amqp consume: %w", err)
	}

	select {
	case d, ok := <-q.deliveries:
		if !ok {
			return nil, ErrQueueClosed
		}
		job, err := decodeJob(d.Body)
		if err != nil {
			_ = d.Nack(false, false)
			observeQueue("amqp", "dequeue", err)
			return nil, err
		}
		observeQueue("amqp", "dequeue", nil)
		return &Message{Job: job, ack: func() error { return d.Ack(false) }}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *AMQPQueue) Close() error {
	if q.cancel != nil {
		q.cancel()
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
