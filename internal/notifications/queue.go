/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"errors"
	"sync"

	"github.com/friendsincode/slotkeeper/internal/telemetry"
)

var (
	// ErrQueueClosed is returned once a queue has been closed.
	ErrQueueClosed = errors.New("notification queue closed")
	// ErrMalformedJob is returned for a message that does not decode. The
	// message has already been dropped from the broker.
	ErrMalformedJob = errors.New("malformed notification job")
)

// Queue buffers jobs between producers and dispatcher workers.
type Queue interface {
	// Enqueue stores job. It blocks while a bounded queue is full.
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (*Message, error)
	Close() error
}

// Message is a dequeued job. Ack must be called once the job reached a
// terminal outcome; unacked messages may be redelivered by broker backends.
type Message struct {
	Job Job
	ack func() error
}

// Ack acknowledges the message.
func (m *Message) Ack() error {
	if m == nil || m.ack == nil {
		return nil
	}
	return m.ack()
}

func observeQueue(backend, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	telemetry.NotificationQueueOpsTotal.WithLabelValues(backend, op, result).Inc()
}

// MemoryQueue is a bounded in-process queue.
type MemoryQueue struct {
	jobs   chan Job
	closed chan struct{}
	once   sync.Once
}

// NewMemoryQueue creates a queue holding up to capacity jobs.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryQueue{
		jobs:   make(chan Job, capacity),
		closed: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) (err error) {
	defer func() { observeQueue("memory", "enqueue", err) }()

	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.jobs <- job:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Message, error) {
	select {
	case job := <-q.jobs:
		observeQueue("memory", "dequeue", nil)
		return &Message{Job: job}, nil
	case <-q.closed:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of buffered jobs.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}
