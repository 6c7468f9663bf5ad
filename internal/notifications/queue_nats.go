/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL     string
	Subject string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
	AckWait       time.Duration
	FetchWait     time.Duration
}

// DefaultNATSConfig returns default NATS configuration for subject.
func DefaultNATSConfig(url, subject string) NATSConfig {
	return NATSConfig{
		URL:           url,
		Subject:       subject,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
		AckWait:       5 * time.Minute,
		FetchWait:     5 * time.Second,
	}
}

// NATSQueue delivers jobs through a JetStream work-queue stream consumed by a
// durable pull consumer shared by all dispatcher instances.
type NATSQueue struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	sub       *nats.Subscription
	subject   string
	fetchWait time.Duration
}

// NewNATSQueue connects and provisions the stream and consumer.
func NewNATSQueue(cfg NATSConfig) (*NATSQueue, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("slotkeeper"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	stream := streamName(cfg.Subject)
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      stream,
		Subjects:  []string{cfg.Subject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, fmt.Errorf("add stream %s: %w", stream, err)
	}

	sub, err := js.PullSubscribe(cfg.Subject, stream+"_dispatcher",
		nats.BindStream(stream),
		nats.ManualAck(),
		nats.AckWait(cfg.AckWait),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("pull subscribe %s: %w", cfg.Subject, err)
	}

	return &NATSQueue{
		nc:        nc,
		js:        js,
		sub:       sub,
		subject:   cfg.Subject,
		fetchWait: cfg.FetchWait,
	}, nil
}

// streamName maps a subject such as "slotkeeper.email" to a valid stream
// name.
func streamName(subject string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "*", "_", ">", "_").Replace(subject))
}

func (q *NATSQueue) Enqueue(ctx context.Context, job Job) (err error) {
	defer func() { observeQueue("nats", "enqueue", err) }()

	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	if _, err := q.js.Publish(q.subject, data, nats.Context(ctx), nats.MsgId(job.ID)); err != nil {
		return fmt.Errorf("nats enqueue: %w", err)
	}
	return nil
}

func (q *NATSQueue) Dequeue(ctx context.Context) (*Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fetchCtx, cancel := context.WithTimeout(ctx, q.fetchWait)
		msgs, err := q.sub.Fetch(1, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			observeQueue("nats", "dequeue", err)
			return nil, fmt.Errorf("nats dequeue: %w", err)
		}
		if len(msgs) == 0 {
			continue
		}

		msg := msgs[0]
		job, err := decodeJob(msg.Data)
		if err != nil {
			_ = msg.Term()
			observeQueue("nats", "dequeue", err)
			return nil, err
		}
		observeQueue("nats", "dequeue", nil)
		return &Message{Job: job, ack: func() error { return msg.Ack() }}, nil
	}
}

// Close drains the subscription and closes the connection.
func (q *NATSQueue) Close() error {
	if q.sub != nil {
		_ = q.sub.Unsubscribe()
	}
	if q.nc != nil {
		q.nc.Close()
	}
	return nil
}
