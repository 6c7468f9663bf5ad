/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

const (
	AuditActionSlotCreate      AuditAction = "slot.create"
	AuditActionSlotUpdate      AuditAction = "slot.update"
	AuditActionSlotDelete      AuditAction = "slot.delete"
	AuditActionBookingClaim    AuditAction = "booking.claim"
	AuditActionBookingCancel   AuditAction = "booking.cancel"
	AuditActionBookingRemove   AuditAction = "booking.remove"
	AuditActionBookingComplete AuditAction = "booking.complete"
	AuditActionReminderSent    AuditAction = "booking.reminder_sent"
)

// AuditLog is the append-only history of slot and booking changes.
type AuditLog struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Timestamp time.Time      `gorm:"index:idx_audit_timestamp;not null" json:"timestamp"`
	ActorID   *string        `gorm:"type:varchar(36);index:idx_audit_actor" json:"actor_id,omitempty"` // NULL for background jobs
	Action    AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null" json:"action"`
	BookingID *string        `gorm:"type:varchar(36);index:idx_audit_booking" json:"booking_id,omitempty"`
	SlotID    *string        `gorm:"type:varchar(36);index:idx_audit_slot" json:"slot_id,omitempty"`
	Details   map[string]any `gorm:"type:text;serializer:json" json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
