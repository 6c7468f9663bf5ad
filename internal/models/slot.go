/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// MinSlotMinutes is the shortest bookable slot.
const MinSlotMinutes = 15

// TimeSlot is a provider-owned bookable interval. Occupancy is not stored on
// the slot; it is derived from the bookings that reference it.
type TimeSlot struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProviderID      string    `gorm:"type:varchar(36);index:idx_time_slots_provider;not null" json:"provider_id"`
	StartsAt        time.Time `gorm:"index:idx_time_slots_starts_at;not null" json:"starts_at"`
	EndsAt          time.Time `gorm:"index:idx_time_slots_ends_at;not null" json:"ends_at"`
	DurationMinutes int       `gorm:"not null" json:"duration_minutes"`

	Provider *User `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`

	// Booked is filled by list queries and is not persisted.
	Booked bool `gorm:"-" json:"booked"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (TimeSlot) TableName() string {
	return "time_slots"
}

// Span returns the slot length.
func (s *TimeSlot) Span() time.Duration {
	return s.EndsAt.Sub(s.StartsAt)
}
