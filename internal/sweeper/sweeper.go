/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sweeper completes bookings whose slot has ended.
package sweeper

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/slotkeeper/internal/clock"
	"github.com/friendsincode/slotkeeper/internal/events"
	"github.com/friendsincode/slotkeeper/internal/models"
	"github.com/friendsincode/slotkeeper/internal/store"
	"github.com/friendsincode/slotkeeper/internal/telemetry"
)

// Result summarises one sweep.
type Result struct {
	UpdatedCount int `json:"updated_count"`
	FailedCount  int `json:"failed_count"`
}

// Sweeper moves open bookings on ended slots to COMPLETED.
type Sweeper struct {
	repo   store.Repository
	clock  clock.Clock
	bus    *events.Bus
	logger zerolog.Logger
}

// New creates a sweeper. bus may be nil.
func New(repo store.Repository, clk clock.Clock, bus *events.Bus, logger zerolog.Logger) *Sweeper {
	if clk == nil {
		clk = clock.System{}
	}
	return &Sweeper{
		repo:   repo,
		clock:  clk,
		bus:    bus,
		logger: logger.With().Str("component", "sweeper").Logger(),
	}
}

// Sweep completes every open booking whose slot ended before now. Each
// booking is updated on its own and only while still open, so a cancel that
// lands first is kept. Per-booking failures are logged and skipped.
func (s *Sweeper) Sweep(ctx context.Context) (_ Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "slotkeeper/sweeper", "sweeper.sweep")
	defer func() { telemetry.EndSpan(span, err) }()

	now := s.clock.Now()
	expired, err := s.repo.FindExpiredBookings(ctx, now)
	if err != nil {
		return Result{}, fmt.Errorf("sweep: %w", err)
	}

	var res Result
	for _, b := range expired {
		if ctx.Err() != nil {
			break
		}
		changed, err := s.repo.TransitionBooking(ctx, b.ID, models.OpenStatuses, models.BookingCompleted)
		if err != nil {
			res.FailedCount++
			s.logger.Error().Err(err).Str("booking_id", b.ID).Msg("failed to complete expired booking")
			continue
		}
		if !changed {
			continue
		}
		res.UpdatedCount++
		telemetry.BookingTransitionsTotal.WithLabelValues(string(models.BookingCompleted)).Inc()
		s.bus.Publish(events.EventBookingCompleted, events.Payload{"booking_id": b.ID, "slot_id": b.SlotID})
	}

	telemetry.SweepCompletedTotal.Add(float64(res.UpdatedCount))
	span.SetAttributes(attribute.Int("sweep.updated", res.UpdatedCount))
	s.logger.Info().Int("failed", res.FailedCount).Msgf("updated %d expired bookings to COMPLETED", res.UpdatedCount)
	return res, ctx.Err()
}
