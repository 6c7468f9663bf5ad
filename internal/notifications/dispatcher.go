/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/slotkeeper/internal/apperr"
	"github.com/friendsincode/slotkeeper/internal/models"
	"github.com/friendsincode/slotkeeper/internal/telemetry"
)

// ReminderMarker records that a booking's reminder went out.
type ReminderMarker interface {
	MarkReminderSent(ctx context.Context, bookingID string) error
}

// DispatcherConfig tunes the worker pool and retry policy.
type DispatcherConfig struct {
	Workers        int
	MaxAttempts    int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
}

// DefaultDispatcherConfig returns 4 workers, 3 attempts and a 5s initial
// backoff doubling per retry.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:        4,
		MaxAttempts:    3,
		InitialBackoff: 5 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

// Dispatcher drains a Queue with a pool of workers.
type Dispatcher struct {
	queue      Queue
	transport  Transport
	marker     ReminderMarker
	deliveries DeliveryLog
	config     DispatcherConfig
	logger     zerolog.Logger
}

// NewDispatcher creates a dispatcher. marker and deliveries may be nil.
func NewDispatcher(queue Queue, transport Transport, marker ReminderMarker, deliveries DeliveryLog, config DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.Workers < 1 {
		config.Workers = defaults.Workers
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = defaults.AttemptTimeout
	}
	return &Dispatcher{
		queue:      queue,
		transport:  transport,
		marker:     marker,
		deliveries: deliveries,
		config:     config,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Run starts the workers and blocks until ctx is cancelled or the queue is
// closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Int("workers", d.config.Workers).Msg("notification dispatcher started")

	var wg sync.WaitGroup
	for i := 0; i < d.config.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.work(ctx, id)
		}(i)
	}
	wg.Wait()

	d.logger.Info().Msg("notification dispatcher stopped")
	return nil
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	logger := d.logger.With().Int("worker", id).Logger()
	for {
		msg, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			logger.Error().Err(err).Msg("dequeue failed")
			if errors.Is(err, ErrMalformedJob) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		_ = d.Process(ctx, msg.Job)

		// Interrupted jobs stay unacked so a broker can hand them to another
		// instance.
		if ctx.Err() != nil {
			return
		}
		if err := msg.Ack(); err != nil {
			logger.Warn().Err(err).Str("job_id", msg.Job.ID).Msg("ack failed")
		}
	}
}

func (d *Dispatcher) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.config.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if b.MaxInterval < d.config.InitialBackoff {
		b.MaxInterval = d.config.InitialBackoff
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.config.MaxAttempts-1)), ctx)
}

// Process delivers job, retrying transient failures. On exhaustion it
// returns an error wrapping apperr.ErrDeliveryFailure after logging it; the
// error never reaches whoever enqueued the job.
func (d *Dispatcher) Process(ctx context.Context, job Job) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "slotkeeper/notifications", "notifications.deliver",
		attribute.String("job.id", job.ID),
		attribute.String("booking.id", job.BookingID),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	logger := d.logger.With().Str("job_id", job.ID).Str("to", job.To).Logger()
	started := time.Now()
	d.record(ctx, job, models.DeliveryStatusPending, nil)

	attempts := 0
	send := func() error {
		attempts++
		telemetry.NotificationAttemptsTotal.Inc()
		attemptCtx, cancel := context.WithTimeout(ctx, d.config.AttemptTimeout)
		defer cancel()
		return d.transport.Send(attemptCtx, job.To, job.Subject, job.HTML)
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempts).Dur("retry_in", wait).Msg("email delivery failed, retrying")
	}

	sendErr := backoff.RetryNotify(send, d.policy(ctx), notify)
	job.Attempts += attempts
	telemetry.NotificationDeliveryDuration.Observe(time.Since(started).Seconds())

	if sendErr != nil {
		telemetry.NotificationDeliveriesTotal.WithLabelValues("failed").Inc()
		d.record(ctx, job, models.DeliveryStatusFailed, sendErr)
		logger.Error().Err(sendErr).Int("attempts", attempts).Msg("email delivery failed permanently")
		return fmt.Errorf("%w: %s after %d attempts: %v", apperr.ErrDeliveryFailure, job.To, attempts, sendErr)
	}

	telemetry.NotificationDeliveriesTotal.WithLabelValues("sent").Inc()
	d.record(ctx, job, models.DeliveryStatusSent, nil)
	logger.Info().Int("attempts", attempts).Msg("email sent")

	if job.BookingID == "" || d.marker == nil {
		return nil
	}
	// Sending and marking are separate steps. If marking fails the flag stays
	// false and the next reminder scan sends again: delivery is at-least-once.
	if err := d.marker.MarkReminderSent(ctx, job.BookingID); err != nil {
		logger.Warn().Err(err).Str("booking_id", job.BookingID).Msg("reminder sent but not marked; it may be sent again")
		return nil
	}
	logger.Debug().Str("booking_id", job.BookingID).Msg("marked reminder as sent")
	return nil
}

func (d *Dispatcher) record(ctx context.Context, job Job, status models.DeliveryStatus, lastErr error) {
	if d.deliveries == nil {
		return
	}
	if err := d.deliveries.Record(ctx, job, status, lastErr); err != nil {
		d.logger.Warn().Err(err).Str("job_id", job.ID).Str("status", string(status)).Msg("failed to record delivery")
	}
}
