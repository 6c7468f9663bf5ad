// Package storetest provides an in-memory SQLite database and fixtures for
// package tests.
package storetest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/slotkeeper/internal/db"
	"github.com/friendsincode/slotkeeper/internal/models"
)

// Open returns a migrated in-memory database closed at test cleanup.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

// User inserts an account with role.
func User(t testing.TB, database *gorm.DB, role models.Role, first, last string) *models.User {
	t.Helper()
	id := uuid.NewString()
	user := &models.User{
		ID:        id,
		Email:     id + "@example.com",
		FirstName: first,
		LastName:  last,
		Role:      role,
	}
	if err := database.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// Slot inserts a slot for provider starting at start.
func Slot(t testing.TB, database *gorm.DB, providerID string, start time.Time, minutes int) *models.TimeSlot {
	t.Helper()
	start = start.UTC()
	slot := &models.TimeSlot{
		ID:              uuid.NewString(),
		ProviderID:      providerID,
		StartsAt:        start,
		EndsAt:          start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
	}
	if err := database.Omit(clause.Associations).Create(slot).Error; err != nil {
		t.Fatalf("create slot: %v", err)
	}
	return slot
}

// Booking inserts a booking in status, keeping live_slot_id consistent.
func Booking(t testing.TB, database *gorm.DB, clientID, slotID string, status models.BookingStatus) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		ID:       uuid.NewString(),
		ClientID: clientID,
		SlotID:   slotID,
		Status:   status,
	}
	if status != models.BookingCancelled {
		live := slotID
		booking.LiveSlotID = &live
	}
	if err := database.Omit(clause.Associations).Create(booking).Error; err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return booking
}
