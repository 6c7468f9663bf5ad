/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventSlotCreated      EventType = "slot.created"
	EventSlotUpdated      EventType = "slot.updated"
	EventSlotDeleted      EventType = "slot.deleted"
	EventBookingClaimed   EventType = "booking.claimed"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingRemoved   EventType = "booking.removed"
	EventBookingCompleted EventType = "booking.completed"
	EventReminderSent     EventType = "booking.reminder_sent"
)

// AllEventTypes lists every type published by the booking core.
var AllEventTypes = []EventType{
	EventSlotCreated,
	EventSlotUpdated,
	EventSlotDeleted,
	EventBookingClaimed,
	EventBookingCancelled,
	EventBookingRemoved,
	EventBookingCompleted,
	EventReminderSent,
}

// Payload generic event payload. Common keys: booking_id, slot_id, actor_id.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

const subscriberBuffer = 64

// Bus implements a simple in-process pubsub. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. A nil bus discards the event.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}
