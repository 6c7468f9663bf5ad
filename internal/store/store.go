/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store is the transactional persistence layer for users, time
// slots and bookings.
package store

import (
	"context"
	"time"

	"github.com/friendsincode/slotkeeper/internal/models"
)

// SlotFilter narrows slot listings. Zero fields are ignored.
type SlotFilter struct {
	ProviderID string
	StartFrom  *time.Time // starts_at >= StartFrom
	StartTo    *time.Time // starts_at <= StartTo
}

// Repository is the persistence contract the booking core runs against.
//
// Errors wrap the apperr taxonomy: absent rows are apperr.ErrNotFound, a
// second live booking for a slot is apperr.ErrConflict, and edits to an
// occupied slot are apperr.ErrInvalidState.
type Repository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateSlot(ctx context.Context, slot *models.TimeSlot) error
	GetSlot(ctx context.Context, id string) (*models.TimeSlot, error)
	ListSlots(ctx context.Context, filter SlotFilter) ([]models.TimeSlot, error)
	// UpdateSlot loads the slot under lock, lets apply authorise and mutate
	// it, refuses the write while the slot is occupied, then saves.
	UpdateSlot(ctx context.Context, id string, apply func(*models.TimeSlot) error) (*models.TimeSlot, error)
	// DeleteSlot removes an unoccupied slot together with its cancelled
	// booking history. guard runs before the occupancy check.
	DeleteSlot(ctx context.Context, id string, guard func(*models.TimeSlot) error) error
	// SlotOccupied reports whether a non-cancelled booking references the slot.
	SlotOccupied(ctx context.Context, id string) (bool, error)

	// ClaimSlot atomically checks the slot and inserts booking for it. check
	// sees the locked slot and may veto the claim; a live booking on the slot
	// yields apperr.ErrConflict.
	ClaimSlot(ctx context.Context, slotID string, check func(*models.TimeSlot) error, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookingsByClient(ctx context.Context, clientID string) ([]models.Booking, error)
	// TransitionBooking moves a booking to status `to` only if its current
	// status is one of from. It reports whether the row changed.
	TransitionBooking(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus) (bool, error)
	DeleteBooking(ctx context.Context, id string) error
	FindExpiredBookings(ctx context.Context, now time.Time) ([]models.Booking, error)
	FindReminderCandidates(ctx context.Context, from, to time.Time) ([]models.Booking, error)
	MarkReminderSent(ctx context.Context, id string) error
}
