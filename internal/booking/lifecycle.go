/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/slotkeeper/internal/apperr"
	"github.com/friendsincode/slotkeeper/internal/events"
	"github.com/friendsincode/slotkeeper/internal/models"
	"github.com/friendsincode/slotkeeper/internal/telemetry"
)

// ProviderCancelNotice is how far ahead of the start a provider must cancel.
const ProviderCancelNotice = 24 * time.Hour

// ErrProviderCancelTooLate is returned when a provider cancels inside the
// notice period.
var ErrProviderCancelTooLate = fmt.Errorf("%w: providers cannot cancel bookings less than 24 hours in advance", apperr.ErrInvalidState)

var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending:   {models.BookingConfirmed, models.BookingCancelled, models.BookingCompleted},
	models.BookingConfirmed: {models.BookingCancelled, models.BookingCompleted},
}

// CanTransition reports whether a booking may move from one status to another.
// CANCELLED and COMPLETED are terminal.
func CanTransition(from, to models.BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// sourcesOf lists the statuses that may move to `to`.
func sourcesOf(to models.BookingStatus) []models.BookingStatus {
	var from []models.BookingStatus
	for _, status := range []models.BookingStatus{models.BookingPending, models.BookingConfirmed} {
		if CanTransition(status, to) {
			from = append(from, status)
		}
	}
	return from
}

// Get returns a booking visible to its client or the slot's provider.
func (s *Service) Get(ctx context.Context, bookingID string, actor Actor) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.ClientID != actor.ID && !actor.ProvidesSlot(booking.Slot) {
		return nil, fmt.Errorf("%w: you can only access your own bookings or bookings for your time slots", apperr.ErrForbidden)
	}
	return booking, nil
}

// ListForClient returns the actor's bookings ordered by slot start.
func (s *Service) ListForClient(ctx context.Context, actor Actor) ([]models.Booking, error) {
	return s.repo.ListBookingsByClient(ctx, actor.ID)
}

// Cancel moves a booking to CANCELLED and frees its slot. Clients may cancel
// until the slot starts; providers only while more than
// ProviderCancelNotice remains.
func (s *Service) Cancel(ctx context.Context, bookingID string, actor Actor) (_ *models.Booking, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "booking.cancel",
		attribute.String("booking.id", bookingID),
		attribute.String("actor.id", actor.ID),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Slot == nil {
		return nil, fmt.Errorf("%w: time slot for booking %s", apperr.ErrNotFound, bookingID)
	}

	isClient := booking.ClientID == actor.ID
	isProvider := actor.ProvidesSlot(booking.Slot)
	if !isClient && !isProvider {
		return nil, fmt.Errorf("%w: you can only cancel your own bookings or bookings for your time slots", apperr.ErrForbidden)
	}

	untilStart := booking.Slot.StartsAt.Sub(s.clock.Now())
	switch {
	case isProvider && untilStart <= ProviderCancelNotice:
		return nil, ErrProviderCancelTooLate
	case untilStart <= 0:
		return nil, fmt.Errorf("%w: the appointment has already started", apperr.ErrInvalidState)
	}

	if !CanTransition(booking.Status, models.BookingCancelled) {
		return nil, fmt.Errorf("%w: booking is %s", apperr.ErrInvalidState, booking.Status)
	}

	changed, err := s.repo.TransitionBooking(ctx, bookingID, sourcesOf(models.BookingCancelled), models.BookingCancelled)
	if err != nil {
		return nil, err
	}
	if !changed {
		// A concurrent cancel or sweep got there first.
		return nil, fmt.Errorf("%w: booking %s is no longer open", apperr.ErrInvalidState, bookingID)
	}

	telemetry.BookingTransitionsTotal.WithLabelValues(string(models.BookingCancelled)).Inc()
	s.logger.Info().
		Str("booking_id", bookingID).
		Str("actor_id", actor.ID).
		Bool("by_provider", isProvider && !isClient).
		Msg("booking cancelled")
	s.publish(events.EventBookingCancelled, bookingID, booking.SlotID, actor.ID)

	return s.repo.GetBooking(ctx, bookingID)
}

// Remove hard-deletes a booking owned by actor whose slot has not started.
func (s *Service) Remove(ctx context.Context, bookingID string, actor Actor) (err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "booking.remove",
		attribute.String("booking.id", bookingID),
		attribute.String("actor.id", actor.ID),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.ClientID != actor.ID {
		return fmt.Errorf("%w: you can only cancel your own bookings", apperr.ErrForbidden)
	}
	if booking.Slot != nil && booking.Slot.StartsAt.Before(s.clock.Now()) {
		return fmt.Errorf("%w: cannot cancel a booking in the past", apperr.ErrInvalidState)
	}

	if err := s.repo.DeleteBooking(ctx, bookingID); err != nil {
		return err
	}

	s.logger.Info().Str("booking_id", bookingID).Str("actor_id", actor.ID).Msg("booking removed")
	s.publish(events.EventBookingRemoved, bookingID, booking.SlotID, actor.ID)
	return nil
}

// MarkReminderSent records that the reminder for bookingID was delivered.
// Repeated calls are no-ops.
func (s *Service) MarkReminderSent(ctx context.Context, bookingID string) error {
	if err := s.repo.MarkReminderSent(ctx, bookingID); err != nil {
		return err
	}
	s.publish(events.EventReminderSent, bookingID, "", "")
	return nil
}
