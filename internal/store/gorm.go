/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/slotkeeper/internal/apperr"
	"github.com/friendsincode/slotkeeper/internal/models"
)

// Gorm implements Repository on a gorm connection.
type Gorm struct {
	db *gorm.DB
}

// NewGorm wraps db.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// forUpdate adds SELECT ... FOR UPDATE where the dialect supports row locks.
// SQLite serialises writers at the database level instead.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// liveBookingExists is the single occupancy predicate: a slot is occupied
// while any booking referencing it is not cancelled. Claims and slot edits
// both go through it.
func liveBookingExists(tx *gorm.DB, slotID string) (bool, error) {
	var n int64
	err := tx.Model(&models.Booking{}).
		Where("slot_id = ? AND status <> ?", slotID, models.BookingCancelled).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check slot occupancy: %w", err)
	}
	return n > 0, nil
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, what, id)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func (g *Gorm) CreateUser(ctx context.Context, user *models.User) error {
	err := g.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: email %s already registered", apperr.ErrConflict, user.Email)
	}
	return err
}

func (g *Gorm) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := g.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

func (g *Gorm) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := g.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, notFound(err, "user", email)
	}
	return &user, nil
}

func (g *Gorm) CreateSlot(ctx context.Context, slot *models.TimeSlot) error {
	return g.db.WithContext(ctx).Omit(clause.Associations).Create(slot).Error
}

func (g *Gorm) GetSlot(ctx context.Context, id string) (*models.TimeSlot, error) {
	tx := g.db.WithContext(ctx)
	var slot models.TimeSlot
	if err := tx.Preload("Provider").First(&slot, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "time slot", id)
	}
	booked, err := liveBookingExists(tx, id)
	if err != nil {
		return nil, err
	}
	slot.Booked = booked
	return &slot, nil
}

func (g *Gorm) ListSlots(ctx context.Context, filter SlotFilter) ([]models.TimeSlot, error) {
	tx := g.db.WithContext(ctx)
	query := tx.Preload("Provider").Order("starts_at ASC")
	if filter.ProviderID != "" {
		query = query.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.StartFrom != nil {
		query = query.Where("starts_at >= ?", filter.StartFrom.UTC())
	}
	if filter.StartTo != nil {
		query = query.Where("starts_at <= ?", filter.StartTo.UTC())
	}

	var slots []models.TimeSlot
	if err := query.Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	if len(slots) == 0 {
		return slots, nil
	}

	ids := make([]string, len(slots))
	for i := range slots {
		ids[i] = slots[i].ID
	}
	var occupied []string
	err := tx.Model(&models.Booking{}).
		Where("slot_id IN ? AND status <> ?", ids, models.BookingCancelled).
		Distinct().
		Pluck("slot_id", &occupied).Error
	if err != nil {
		return nil, fmt.Errorf("list slot occupancy: %w", err)
	}
	booked := make(map[string]bool, len(occupied))
	for _, id := range occupied {
		booked[id] = true
	}
	for i := range slots {
		slots[i].Booked = booked[slots[i].ID]
	}
	return slots, nil
}

func (g *Gorm) UpdateSlot(ctx context.Context, id string, apply func(*models.TimeSlot) error) (*models.TimeSlot, error) {
	var slot models.TimeSlot
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&slot, "id = ?", id).Error; err != nil {
			return notFound(err, "time slot", id)
		}
		if err := apply(&slot); err != nil {
			return err
		}
		occupied, err := liveBookingExists(tx, id)
		if err != nil {
			return err
		}
		if occupied {
			return fmt.Errorf("%w: time slot %s is booked", apperr.ErrInvalidState, id)
		}
		return tx.Omit(clause.Associations).Save(&slot).Error
	})
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (g *Gorm) DeleteSlot(ctx context.Context, id string, guard func(*models.TimeSlot) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var slot models.TimeSlot
		if err := forUpdate(tx).First(&slot, "id = ?", id).Error; err != nil {
			return notFound(err, "time slot", id)
		}
		if guard != nil {
			if err := guard(&slot); err != nil {
				return err
			}
		}
		occupied, err := liveBookingExists(tx, id)
		if err != nil {
			return err
		}
		if occupied {
			return fmt.Errorf("%w: time slot %s is booked", apperr.ErrInvalidState, id)
		}
		if err := tx.Where("slot_id = ?", id).Delete(&models.Booking{}).Error; err != nil {
			return fmt.Errorf("delete cancelled bookings: %w", err)
		}
		return tx.Delete(&models.TimeSlot{}, "id = ?", id).Error
	})
}

func (g *Gorm) SlotOccupied(ctx context.Context, id string) (bool, error) {
	return liveBookingExists(g.db.WithContext(ctx), id)
}

func (g *Gorm) ClaimSlot(ctx context.Context, slotID string, check func(*models.TimeSlot) error, booking *models.Booking) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var slot models.TimeSlot
		if err := forUpdate(tx).First(&slot, "id = ?", slotID).Error; err != nil {
			return notFound(err, "time slot", slotID)
		}
		if check != nil {
			if err := check(&slot); err != nil {
				return err
			}
		}

		occupied, err := liveBookingExists(tx, slotID)
		if err != nil {
			return err
		}
		if occupied {
			return fmt.Errorf("%w: time slot %s is already booked", apperr.ErrConflict, slotID)
		}

		booking.SlotID = slotID
		live := slotID
		booking.LiveSlotID = &live
		if err := tx.Omit(clause.Associations).Create(booking).Error; err != nil {
			// The unique live_slot_id index catches a racing claim that slipped
			// past the occupancy read on engines without row locks.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: time slot %s is already booked", apperr.ErrConflict, slotID)
			}
			return fmt.Errorf("create booking: %w", err)
		}
		return nil
	})
}

func (g *Gorm) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := g.db.WithContext(ctx).
		Preload("Client").
		Preload("Slot.Provider").
		First(&booking, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	return &booking, nil
}

func (g *Gorm) ListBookingsByClient(ctx context.Context, clientID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := g.db.WithContext(ctx).
		Preload("Slot.Provider").
		Where("client_id = ?", clientID).
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	sort.SliceStable(bookings, func(i, j int) bool {
		return startOf(&bookings[i]).Before(startOf(&bookings[j]))
	})
	return bookings, nil
}

func startOf(b *models.Booking) time.Time {
	if b.Slot == nil {
		return time.Time{}
	}
	return b.Slot.StartsAt
}

func (g *Gorm) TransitionBooking(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus) (bool, error) {
	updates := map[string]any{"status": to}
	if to == models.BookingCancelled {
		// Releasing live_slot_id is what makes the slot claimable again.
		updates["live_slot_id"] = nil
	}
	res := g.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("transition booking %s to %s: %w", id, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (g *Gorm) DeleteBooking(ctx context.Context, id string) error {
	res := g.db.WithContext(ctx).Delete(&models.Booking{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete booking %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: booking %s", apperr.ErrNotFound, id)
	}
	return nil
}

func (g *Gorm) FindExpiredBookings(ctx context.Context, now time.Time) ([]models.Booking, error) {
	tx := g.db.WithContext(ctx)
	ended := tx.Model(&models.TimeSlot{}).Select("id").Where("ends_at < ?", now.UTC())

	var bookings []models.Booking
	err := tx.Preload("Slot").
		Where("status IN ?", models.OpenStatuses).
		Where("slot_id IN (?)", ended).
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("find expired bookings: %w", err)
	}
	return bookings, nil
}

func (g *Gorm) FindReminderCandidates(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	tx := g.db.WithContext(ctx)
	upcoming := tx.Model(&models.TimeSlot{}).
		Select("id").
		Where("starts_at >= ? AND starts_at <= ?", from.UTC(), to.UTC())

	var bookings []models.Booking
	err := tx.Preload("Client").
		Preload("Slot.Provider").
		Where("reminder_sent = ? AND status = ?", false, models.BookingConfirmed).
		Where("slot_id IN (?)", upcoming).
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("find reminder candidates: %w", err)
	}
	return bookings, nil
}

// MarkReminderSent sets the flag with a single UPDATE so concurrent
// duplicate deliveries cannot lose it. Setting an already-true flag is not
// an error.
func (g *Gorm) MarkReminderSent(ctx context.Context, id string) error {
	tx := g.db.WithContext(ctx)
	res := tx.Model(&models.Booking{}).Where("id = ?", id).Update("reminder_sent", true)
	if res.Error != nil {
		return fmt.Errorf("mark reminder sent %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the value is unchanged.
	var n int64
	if err := tx.Model(&models.Booking{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("mark reminder sent %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: booking %s", apperr.ErrNotFound, id)
	}
	return nil
}
