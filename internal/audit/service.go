/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit persists slot and booking lifecycle events.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/slotkeeper/internal/events"
	"github.com/friendsincode/slotkeeper/internal/models"
)

// actions maps bus events to audit actions.
var actions = map[events.EventType]models.AuditAction{
	events.EventSlotCreated:      models.AuditActionSlotCreate,
	events.EventSlotUpdated:      models.AuditActionSlotUpdate,
	events.EventSlotDeleted:      models.AuditActionSlotDelete,
	events.EventBookingClaimed:   models.AuditActionBookingClaim,
	events.EventBookingCancelled: models.AuditActionBookingCancel,
	events.EventBookingRemoved:   models.AuditActionBookingRemove,
	events.EventBookingCompleted: models.AuditActionBookingComplete,
	events.EventReminderSent:     models.AuditActionReminderSent,
}

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

type received struct {
	action  models.AuditAction
	payload events.Payload
}

// Start subscribes to every lifecycle event and records each one until ctx
// is cancelled. ready, if non-nil, is closed once subscriptions are in place.
func (s *Service) Start(ctx context.Context, ready chan<- struct{}) {
	s.logger.Info().Msg("audit service starting")

	merged := make(chan received, 64)
	var wg sync.WaitGroup
	for _, eventType := range events.AllEventTypes {
		action, ok := actions[eventType]
		if !ok {
			continue
		}
		sub := s.bus.Subscribe(eventType)
		wg.Add(1)
		go func(eventType events.EventType, sub events.Subscriber, action models.AuditAction) {
			defer wg.Done()
			defer s.bus.Unsubscribe(eventType, sub)
			for {
				select {
				case <-ctx.Done():
					return
				case payload := <-sub:
					select {
					case merged <- received{action: action, payload: payload}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(eventType, sub, action)
	}
	if ready != nil {
		close(ready)
	}

	s.logger.Info().Msg("audit service started")
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.logger.Info().Msg("audit service stopping")
			return
		case r := <-merged:
			s.logAuditEntry(ctx, r.action, r.payload)
		}
	}
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		Action:  action,
		Details: make(map[string]any),
	}

	if actorID, ok := payload["actor_id"].(string); ok && actorID != "" {
		entry.ActorID = &actorID
	}
	if bookingID, ok := payload["booking_id"].(string); ok && bookingID != "" {
		entry.BookingID = &bookingID
	}
	if slotID, ok := payload["slot_id"].(string); ok && slotID != "" {
		entry.SlotID = &slotID
	}

	for k, v := range payload {
		switch k {
		case "actor_id", "booking_id", "slot_id":
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly.
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	now := time.Now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")
	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	ActorID   *string
	BookingID *string
	SlotID    *string
	Action    *models.AuditAction
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit logs with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.ActorID != nil {
		query = query.Where("actor_id = ?", *filters.ActorID)
	}
	if filters.BookingID != nil {
		query = query.Where("booking_id = ?", *filters.BookingID)
	}
	if filters.SlotID != nil {
		query = query.Where("slot_id = ?", *filters.SlotID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
