/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/slotkeeper/internal/apperr"
	"github.com/friendsincode/slotkeeper/internal/events"
	"github.com/friendsincode/slotkeeper/internal/models"
	"github.com/friendsincode/slotkeeper/internal/telemetry"
)

// Claim books slotID for actor. A slot that has started is InvalidState even
// when it is also booked; Conflict is reserved for a live booking on a
// future slot.
func (s *Service) Claim(ctx context.Context, slotID string, actor Actor) (_ *models.Booking, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "booking.claim",
		attribute.String("slot.id", slotID),
		attribute.String("actor.id", actor.ID),
	)
	defer func() {
		telemetry.BookingClaimsTotal.WithLabelValues(resultLabel(err)).Inc()
		telemetry.EndSpan(span, err)
	}()

	now := s.clock.Now()
	booking := &models.Booking{
		ID:       uuid.NewString(),
		ClientID: actor.ID,
		Status:   models.BookingConfirmed,
	}

	err = s.repo.ClaimSlot(ctx, slotID, func(slot *models.TimeSlot) error {
		if !slot.StartsAt.After(now) {
			return fmt.Errorf("%w: cannot book a time slot in the past", apperr.ErrInvalidState)
		}
		if slot.ProviderID == actor.ID {
			return fmt.Errorf("%w: cannot book your own time slot", apperr.ErrInvalidState)
		}
		return nil
	}, booking)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("slot_id", slotID).
		Str("client_id", actor.ID).
		Msg("slot claimed")
	s.publish(events.EventBookingClaimed, booking.ID, slotID, actor.ID)

	return s.repo.GetBooking(ctx, booking.ID)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.Code(err)
}
