/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slotkeeper/internal/config"
	"github.com/friendsincode/slotkeeper/internal/notifications"
	"github.com/friendsincode/slotkeeper/internal/scheduler"
)

// NewRedisClient connects to the configured Redis and verifies it answers.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// needsRedis reports whether any configured component talks to Redis.
func needsRedis(cfg *config.Config) bool {
	return cfg.LeaderElectionEnabled || cfg.QueueBackend == config.QueueRedis
}

// OpenQueue builds the notification queue for the configured backend. client
// is only consulted for the redis backend.
func OpenQueue(cfg *config.Config, client redis.UniversalClient) (notifications.Queue, error) {
	switch cfg.QueueBackend {
	case config.QueueMemory, "":
		return notifications.NewMemoryQueue(cfg.QueueCapacity), nil
	case config.QueueRedis:
		if client == nil {
			return nil, fmt.Errorf("redis queue backend requires a redis client")
		}
		return notifications.NewRedisQueue(client, cfg.QueueName), nil
	case config.QueueNATS:
		q, err := notifications.NewNATSQueue(notifications.DefaultNATSConfig(cfg.NATSURL, cfg.QueueName))
		if err != nil {
			return nil, err
		}
		return q, nil
	case config.QueueAMQP:
		q, err := notifications.NewAMQPQueue(cfg.AMQPURL, cfg.QueueName, cfg.DispatcherWorkers)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.QueueBackend)
	}
}

// NewTransport returns the SMTP transport, or a logging transport when no
// SMTP host is configured.
func NewTransport(cfg *config.Config, logger zerolog.Logger) notifications.Transport {
	if cfg.SMTPHost == "" {
		logger.Warn().Msg("SMTP host not configured, reminders will be logged and left unsent")
		return notifications.NewLogTransport(logger)
	}
	return notifications.NewSMTPTransport(notifications.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
}

// DispatcherConfig maps process configuration onto the worker pool settings.
func DispatcherConfig(cfg *config.Config) notifications.DispatcherConfig {
	dc := notifications.DefaultDispatcherConfig()
	if cfg.DispatcherWorkers > 0 {
		dc.Workers = cfg.DispatcherWorkers
	}
	if cfg.DeliveryMaxAttempts > 0 {
		dc.MaxAttempts = cfg.DeliveryMaxAttempts
	}
	if cfg.DeliveryInitialBackoff > 0 {
		dc.InitialBackoff = cfg.DeliveryInitialBackoff
	}
	if cfg.DeliveryAttemptTimeout > 0 {
		dc.AttemptTimeout = cfg.DeliveryAttemptTimeout
	}
	return dc
}

// RequeueJob returns a periodic job that returns stalled jobs from the redis
// processing list to the queue. Other backends redeliver unacked messages
// themselves, so ok is false for them.
func RequeueJob(queue notifications.Queue, logger zerolog.Logger) (scheduler.Job, bool) {
	rq, ok := queue.(*notifications.RedisQueue)
	if !ok {
		return scheduler.Job{}, false
	}
	return scheduler.Job{Name: "requeue_stalled", Interval: time.Minute, Run: func(ctx context.Context) error {
		moved, err := rq.Requeue(ctx, notifications.DefaultStaleAfter)
		if moved > 0 {
			logger.Warn().Int("moved", moved).Msg("requeued stalled notification jobs")
		}
		return err
	}}, true
}
