/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/slotkeeper/internal/models"
)

// DeliveryLog records the outcome of each job.
type DeliveryLog interface {
	Record(ctx context.Context, job Job, status models.DeliveryStatus, lastErr error) error
}

// GormDeliveryLog stores deliveries in notification_deliveries keyed by job id.
type GormDeliveryLog struct {
	db *gorm.DB
}

// NewGormDeliveryLog creates a delivery log.
func NewGormDeliveryLog(db *gorm.DB) *GormDeliveryLog {
	return &GormDeliveryLog{db: db}
}

func (l *GormDeliveryLog) Record(ctx context.Context, job Job, status models.DeliveryStatus, lastErr error) error {
	row := models.NotificationDelivery{
		ID:        job.ID,
		Recipient: job.To,
		Subject:   job.Subject,
		Status:    status,
		Attempts:  job.Attempts,
	}
	if job.BookingID != "" {
		bookingID := job.BookingID
		row.BookingID = &bookingID
	}
	if lastErr != nil {
		row.Error = lastErr.Error()
	}
	if status == models.DeliveryStatusSent {
		now := time.Now().UTC()
		row.SentAt = &now
	}

	return l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "attempts", "error", "sent_at", "updated_at"}),
	}).Create(&row).Error
}
