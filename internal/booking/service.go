/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package booking implements slot claims and the booking lifecycle.
package booking

import (
	"github.com/rs/zerolog"

	"github.com/friendsincode/slotkeeper/internal/clock"
	"github.com/friendsincode/slotkeeper/internal/events"
	"github.com/friendsincode/slotkeeper/internal/store"
)

const tracerName = "slotkeeper/booking"

// Service owns booking creation and state changes.
type Service struct {
	repo   store.Repository
	clock  clock.Clock
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a booking service. bus may be nil.
func NewService(repo store.Repository, clk clock.Clock, bus *events.Bus, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		repo:   repo,
		clock:  clk,
		bus:    bus,
		logger: logger.With().Str("component", "booking").Logger(),
	}
}

func (s *Service) publish(eventType events.EventType, bookingID, slotID, actorID string) {
	payload := events.Payload{
		"booking_id": bookingID,
		"slot_id":    slotID,
	}
	if actorID != "" {
		payload["actor_id"] = actorID
	}
	s.bus.Publish(eventType, payload)
}
