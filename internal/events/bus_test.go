package events

import "testing"

func TestPublishDeliversToSubscribersOfType(t *testing.T) {
	bus := NewBus()
	claimed := bus.Subscribe(EventBookingClaimed)
	cancelled := bus.Subscribe(EventBookingCancelled)

	bus.Publish(EventBookingClaimed, Payload{"booking_id": "b1"})

	select {
	case p := <-claimed:
		if p["booking_id"] != "b1" {
			t.Fatalf("unexpected payload %v", p)
		}
	default:
		t.Fatal("expected claimed subscriber to receive the event")
	}

	select {
	case p := <-cancelled:
		t.Fatalf("cancelled subscriber should not receive %v", p)
	default:
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventBookingCompleted)

	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish(EventBookingCompleted, Payload{"n": i})
	}
	if len(sub) != subscriberBuffer {
		t.Fatalf("expected buffer of %d, got %d", subscriberBuffer, len(sub))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventSlotCreated)
	bus.Unsubscribe(EventSlotCreated, sub)

	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel")
	}
	bus.Publish(EventSlotCreated, Payload{})
	bus.Unsubscribe(EventSlotCreated, sub)
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(EventBookingClaimed, Payload{"booking_id": "x"})
}
