/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// DeliveryStatus defines the delivery status.
type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// NotificationDelivery records the outcome of one queued notification job.
// A job redelivered by its broker updates the same row.
type NotificationDelivery struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Recipient string         `gorm:"type:varchar(255);not null" json:"recipient"`
	Subject   string         `gorm:"type:varchar(255)" json:"subject"`
	BookingID *string        `gorm:"type:varchar(36);index:idx_deliveries_booking" json:"booking_id,omitempty"`
	Status    DeliveryStatus `gorm:"type:varchar(32);not null;default:'pending';index:idx_deliveries_status" json:"status"`
	Attempts  int            `gorm:"not null;default:0" json:"attempts"`
	Error     string         `gorm:"type:text" json:"error,omitempty"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (NotificationDelivery) TableName() string {
	return "notification_deliveries"
}
