/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

// Terminal reports whether no transition may leave s.
func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled || s == BookingCompleted
}

// OpenStatuses are the non-terminal states.
var OpenStatuses = []BookingStatus{BookingPending, BookingConfirmed}

// Booking is a client's claim on exactly one time slot.
//
// LiveSlotID mirrors SlotID while the booking occupies the slot and is
// cleared on cancellation. Its unique index is what makes at most one live
// booking per slot a store-level guarantee.
type Booking struct {
	ID           string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	ClientID     string        `gorm:"type:varchar(36);index:idx_bookings_client;not null" json:"client_id"`
	SlotID       string        `gorm:"type:varchar(36);index:idx_bookings_slot;not null" json:"slot_id"`
	LiveSlotID   *string       `gorm:"type:varchar(36);uniqueIndex:idx_bookings_live_slot" json:"-"`
	Status       BookingStatus `gorm:"type:varchar(16);not null;index:idx_bookings_status" json:"status"`
	ReminderSent bool          `gorm:"not null;default:false;index:idx_bookings_reminder" json:"reminder_sent"`

	Client *User     `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Slot   *TimeSlot `gorm:"foreignKey:SlotID" json:"slot,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Booking) TableName() string {
	return "bookings"
}
