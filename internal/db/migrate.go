/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"gorm.io/gorm"

	"github.com/friendsincode/slotkeeper/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.User{},
		&models.TimeSlot{},
		&models.Booking{},
		&models.NotificationDelivery{},
		&models.AuditLog{},
	); err != nil {
		return err
	}

	if err := applyPostgresSlotIntervalCheck(database); err != nil {
		return err
	}
	if err := backfillLiveSlotIDs(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresSlotIntervalCheck adds a CHECK constraint mirroring the slot
// validation rules so rows written outside the service are rejected too.
func applyPostgresSlotIntervalCheck(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_constraint WHERE conname = 'time_slots_interval_check'
	) THEN
		ALTER TABLE time_slots
			ADD CONSTRAINT time_slots_interval_check
			CHECK (starts_at < ends_at AND duration_minutes >= 15);
	END IF;
END
$$;`
	return database.Exec(stmt).Error
}

// backfillLiveSlotIDs populates live_slot_id for open bookings created before
// the column existed.
func backfillLiveSlotIDs(database *gorm.DB) error {
	return database.Exec(
		"UPDATE bookings SET live_slot_id = slot_id WHERE live_slot_id IS NULL AND status IN (?, ?, ?)",
		models.BookingPending, models.BookingConfirmed, models.BookingCompleted,
	).Error
}
