/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStaleAfter is how long a job may sit on the processing list before
// Requeue treats its worker as gone.
const DefaultStaleAfter = 10 * time.Minute

// requeueScript moves one parked job back to the head of the queue, unless a
// worker acked it in the meantime.
var requeueScript = redis.NewScript(`
	local removed = redis.call("lrem", KEYS[1], 1, ARGV[1])
	if removed > 0 then
		redis.call("rpush", KEYS[2], ARGV[1])
	end
	redis.call("hdel", KEYS[3], ARGV[1])
	return removed
`)

// RedisQueue keeps jobs in a Redis list. Dequeued jobs are parked on a
// processing list, with their dequeue time in a lease hash, until acked.
type RedisQueue struct {
	client        redis.UniversalClient
	key           string
	processingKey string
	leasesKey     string
	pollTimeout   time.Duration
}

// NewRedisQueue creates a queue on list key name.
func NewRedisQueue(client redis.UniversalClient, name string) *RedisQueue {
	return &RedisQueue{
		client:        client,
		key:           name,
		processingKey: name + ":processing",
		leasesKey:     name + ":leases",
		pollTimeout:   time.Second,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) (err error) {
	defer func() { observeQueue("redis", "enqueue", err) }()

	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("redis enqueue: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := q.client.BRPopLPush(ctx, q.key, q.processingKey, q.pollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			observeQueue("redis", "dequeue", err)
			return nil, fmt.Errorf("redis dequeue: %w", err)
		}
		if err := q.client.HSet(ctx, q.leasesKey, raw, time.Now().UnixMilli()).Err(); err != nil {
			// Requeue stamps unleased jobs on its first pass.
			observeQueue("redis", "lease", err)
		}

		ack := func() error {
			_, err := q.client.TxPipelined(context.Background(), func(pipe redis.Pipeliner) error {
				pipe.LRem(context.Background(), q.processingKey, 1, raw)
				pipe.HDel(context.Background(), q.leasesKey, raw)
				return nil
			})
			return err
		}
		job, err := decodeJob([]byte(raw))
		if err != nil {
			_ = ack()
			observeQueue("redis", "dequeue", err)
			return nil, err
		}
		observeQueue("redis", "dequeue", nil)
		return &Message{Job: job, ack: ack}, nil
	}
}

// Requeue moves jobs that have been parked for at least staleAfter back onto
// the queue, so work held by a crashed worker is retried. A parked job with
// no lease is stamped now and left for a later pass. It returns the number of
// jobs moved.
func (q *RedisQueue) Requeue(ctx context.Context, staleAfter time.Duration) (int, error) {
	parked, err := q.client.LRange(ctx, q.processingKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis requeue: %w", err)
	}
	if len(parked) == 0 {
		return 0, nil
	}
	leases, err := q.client.HMGet(ctx, q.leasesKey, parked...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis requeue leases: %w", err)
	}

	now := time.Now()
	moved := 0
	for i, raw := range parked {
		since, ok := leaseTime(leases[i])
		if !ok {
			if err := q.client.HSetNX(ctx, q.leasesKey, raw, now.UnixMilli()).Err(); err != nil {
				return moved, fmt.Errorf("redis requeue stamp: %w", err)
			}
			continue
		}
		if now.Sub(since) < staleAfter {
			continue
		}
		n, err := requeueScript.Run(ctx, q.client, []string{q.processingKey, q.key, q.leasesKey}, raw).Int()
		if err != nil {
			return moved, fmt.Errorf("redis requeue: %w", err)
		}
		moved += n
	}
	if moved > 0 {
		observeQueue("redis", "requeue", nil)
	}
	return moved, nil
}

func leaseTime(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Close is a no-op; the client is owned by the caller.
func (q *RedisQueue) Close() error {
	return nil
}
