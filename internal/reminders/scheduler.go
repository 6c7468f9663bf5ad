/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package reminders finds confirmed bookings about to start and queues a
// reminder email for each.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/slotkeeper/internal/clock"
	"github.com/friendsincode/slotkeeper/internal/notifications"
	"github.com/friendsincode/slotkeeper/internal/store"
	"github.com/friendsincode/slotkeeper/internal/telemetry"
)

// Window is how far ahead of the start a reminder is sent.
const Window = 30 * time.Minute

// Scheduler queues reminder jobs. It never sets reminder_sent; the
// dispatcher does that after a successful delivery.
type Scheduler struct {
	repo     store.Repository
	queue    notifications.Queue
	clock    clock.Clock
	location *time.Location
	logger   zerolog.Logger
}

// New creates a reminder scheduler rendering times in loc.
func New(repo store.Repository, queue notifications.Queue, clk clock.Clock, loc *time.Location, logger zerolog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.System{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		repo:     repo,
		queue:    queue,
		clock:    clk,
		location: loc,
		logger:   logger.With().Str("component", "reminders").Logger(),
	}
}

// Scan queues a reminder for every confirmed, unreminded booking starting
// within [now, now+Window]. A booking whose job cannot be rendered or queued
// is logged and picked up again by the next scan.
func (s *Scheduler) Scan(ctx context.Context) (_ int, err error) {
	ctx, span := telemetry.StartSpan(ctx, "slotkeeper/reminders", "reminders.scan")
	defer func() { telemetry.EndSpan(span, err) }()

	now := s.clock.Now()
	candidates, err := s.repo.FindReminderCandidates(ctx, now, now.Add(Window))
	if err != nil {
		return 0, fmt.Errorf("scan reminders: %w", err)
	}

	queued := 0
	for i := range candidates {
		b := &candidates[i]
		if b.Client == nil || b.Slot == nil {
			s.logger.Warn().Str("booking_id", b.ID).Msg("booking missing client or slot, skipping reminder")
			continue
		}

		html, err := Render(b, now, s.location)
		if err != nil {
			s.logger.Error().Err(err).Str("booking_id", b.ID).Msg("failed to render reminder")
			continue
		}
		job := notifications.NewJob(b.Client.Email, Subject, html, b.ID)
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.logger.Error().Err(err).Str("booking_id", b.ID).Msg("failed to queue reminder")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		queued++
		s.logger.Debug().Str("booking_id", b.ID).Str("job_id", job.ID).Msg("appointment reminder queued")
	}

	telemetry.RemindersQueuedTotal.Add(float64(queued))
	span.SetAttributes(attribute.Int("reminders.queued", queued))
	if queued > 0 || len(candidates) > 0 {
		s.logger.Info().Int("candidates", len(candidates)).Msgf("queued %d appointment reminders", queued)
	}
	return queued, ctx.Err()
}
