/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package slots manages the time windows providers publish for booking.
package slots

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slotkeeper/internal/apperr"
	"github.com/friendsincode/slotkeeper/internal/booking"
	"github.com/friendsincode/slotkeeper/internal/clock"
	"github.com/friendsincode/slotkeeper/internal/events"
	"github.com/friendsincode/slotkeeper/internal/models"
	"github.com/friendsincode/slotkeeper/internal/store"
)

// CreateInput describes a new slot. DurationMinutes may be omitted and is
// then derived from the interval.
type CreateInput struct {
	StartsAt        time.Time `json:"starts_at" validate:"required"`
	EndsAt          time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	DurationMinutes int       `json:"duration_minutes" validate:"omitempty,min=15"`
}

// UpdateInput carries the fields to change on a slot.
type UpdateInput struct {
	StartsAt        *time.Time `json:"starts_at,omitempty"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty" validate:"omitempty,min=15"`
}

// Service implements provider slot management.
type Service struct {
	repo     store.Repository
	clock    clock.Clock
	bus      *events.Bus
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewService creates a slot service. bus may be nil.
func NewService(repo store.Repository, clk clock.Clock, bus *events.Bus, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		repo:     repo,
		clock:    clk,
		bus:      bus,
		validate: validator.New(),
		logger:   logger.With().Str("component", "slots").Logger(),
	}
}

// Create publishes a new slot owned by actor, who must be a provider.
func (s *Service) Create(ctx context.Context, actor booking.Actor, in CreateInput) (*models.TimeSlot, error) {
	if actor.Role != models.RoleProvider {
		return nil, fmt.Errorf("%w: only providers can create time slots", apperr.ErrForbidden)
	}
	if err := s.check(in); err != nil {
		return nil, err
	}

	slot := &models.TimeSlot{
		ID:              uuid.NewString(),
		ProviderID:      actor.ID,
		StartsAt:        in.StartsAt.UTC(),
		EndsAt:          in.EndsAt.UTC(),
		DurationMinutes: in.DurationMinutes,
	}
	if err := checkInterval(slot, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.CreateSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	s.logger.Info().Str("slot_id", slot.ID).Str("provider_id", actor.ID).Time("starts_at", slot.StartsAt).Msg("time slot created")
	s.publish(events.EventSlotCreated, slot.ID, actor.ID)
	return s.repo.GetSlot(ctx, slot.ID)
}

// Get returns a slot with its provider and booked flag.
func (s *Service) Get(ctx context.Context, id string) (*models.TimeSlot, error) {
	return s.repo.GetSlot(ctx, id)
}

// List returns slots matching filter ordered by start.
func (s *Service) List(ctx context.Context, filter store.SlotFilter) ([]models.TimeSlot, error) {
	return s.repo.ListSlots(ctx, filter)
}

// ListForProvider returns every slot owned by providerID.
func (s *Service) ListForProvider(ctx context.Context, providerID string) ([]models.TimeSlot, error) {
	return s.repo.ListSlots(ctx, store.SlotFilter{ProviderID: providerID})
}

// Update edits an unbooked slot owned by actor.
func (s *Service) Update(ctx context.Context, id string, actor booking.Actor, in UpdateInput) (*models.TimeSlot, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	now := s.clock.Now()

	_, err := s.repo.UpdateSlot(ctx, id, func(slot *models.TimeSlot) error {
		if !actor.ProvidesSlot(slot) {
			return fmt.Errorf("%w: you can only update your own time slots", apperr.ErrForbidden)
		}
		if in.StartsAt != nil {
			slot.StartsAt = in.StartsAt.UTC()
		}
		if in.EndsAt != nil {
			slot.EndsAt = in.EndsAt.UTC()
		}
		switch {
		case in.DurationMinutes != nil:
			slot.DurationMinutes = *in.DurationMinutes
		case in.StartsAt != nil || in.EndsAt != nil:
			slot.DurationMinutes = 0
		}
		return checkInterval(slot, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("slot_id", id).Str("provider_id", actor.ID).Msg("time slot updated")
	s.publish(events.EventSlotUpdated, id, actor.ID)
	return s.repo.GetSlot(ctx, id)
}

// Delete removes an unbooked slot owned by actor.
func (s *Service) Delete(ctx context.Context, id string, actor booking.Actor) error {
	err := s.repo.DeleteSlot(ctx, id, func(slot *models.TimeSlot) error {
		if !actor.ProvidesSlot(slot) {
			return fmt.Errorf("%w: you can only delete your own time slots", apperr.ErrForbidden)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("slot_id", id).Str("provider_id", actor.ID).Msg("time slot deleted")
	s.publish(events.EventSlotDeleted, id, actor.ID)
	return nil
}

// checkInterval enforces start < end, a future start, the minimum length and
// agreement between duration and interval. A zero duration is derived.
func checkInterval(slot *models.TimeSlot, now time.Time) error {
	if !slot.EndsAt.After(slot.StartsAt) {
		return fmt.Errorf("%w: end time must be after start time", apperr.ErrInvalidState)
	}
	if !slot.StartsAt.After(now) {
		return fmt.Errorf("%w: start time must be in the future", apperr.ErrInvalidState)
	}

	span := slot.Span()
	if span%time.Minute != 0 {
		return fmt.Errorf("%w: interval must be a whole number of minutes", apperr.ErrInvalidState)
	}
	minutes := int(span / time.Minute)
	if slot.DurationMinutes == 0 {
		slot.DurationMinutes = minutes
	}
	if slot.DurationMinutes < models.MinSlotMinutes {
		return fmt.Errorf("%w: duration must be at least %d minutes", apperr.ErrInvalidState, models.MinSlotMinutes)
	}
	if slot.DurationMinutes != minutes {
		return fmt.Errorf("%w: duration %d does not match the %d minute interval", apperr.ErrInvalidState, slot.DurationMinutes, minutes)
	}
	return nil
}

func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", apperr.ErrInvalidState, strings.Join(messages, "; "))
}

func (s *Service) publish(eventType events.EventType, slotID, actorID string) {
	s.bus.Publish(eventType, events.Payload{"slot_id": slotID, "actor_id": actorID})
}
