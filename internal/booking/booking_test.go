package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/slotkeeper/internal/apperr"
	"github.com/friendsincode/slotkeeper/internal/clock"
	"github.com/friendsincode/slotkeeper/internal/events"
	"github.com/friendsincode/slotkeeper/internal/models"
	"github.com/friendsincode/slotkeeper/internal/store"
	"github.com/friendsincode/slotkeeper/internal/store/storetest"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type env struct {
	db       *gorm.DB
	svc      *Service
	clock    *clock.Manual
	bus      *events.Bus
	provider Actor
	clientA  Actor
	clientC  Actor
}

func newEnv(t *testing.T) env {
	t.Helper()
	database := storetest.Open(t)
	clk := clock.NewManual(now)
	bus := events.NewBus()
	p := storetest.User(t, database, models.RoleProvider, "Pat", "Provider")
	a := storetest.User(t, database, models.RoleClient, "Alex", "Client")
	c := storetest.User(t, database, models.RoleClient, "Casey", "Client")
	return env{
		db:       database,
		svc:      NewService(store.NewGorm(database), clk, bus, zerolog.Nop()),
		clock:    clk,
		bus:      bus,
		provider: Actor{ID: p.ID, Role: p.Role},
		clientA:  Actor{ID: a.ID, Role: a.Role},
		clientC:  Actor{ID: c.ID, Role: c.Role},
	}
}

func (e env) slotIn(t *testing.T, d time.Duration) *models.TimeSlot {
	t.Helper()
	return storetest.Slot(t, e.db, e.provider.ID, now.Add(d), 60)
}

func TestClaimConfirmsBooking(t *testing.T) {
	e := newEnv(t)
	claimed := e.bus.Subscribe(events.EventBookingClaimed)
	slot := e.slotIn(t, 48*time.Hour)

	b, err := e.svc.Claim(context.Background(), slot.ID, e.clientA)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if b.Status != models.BookingConfirmed || b.ClientID != e.clientA.ID || b.SlotID != slot.ID {
		t.Fatalf("unexpected booking %+v", b)
	}
	if b.Slot == nil || b.Slot.Provider == nil || b.Client == nil {
		t.Fatal("expected slot, provider and client loaded")
	}

	select {
	case p := <-claimed:
		if p["booking_id"] != b.ID {
			t.Fatalf("unexpected event payload %v", p)
		}
	default:
		t.Fatal("expected booking.claimed event")
	}
}

func TestClaimErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	booked := e.slotIn(t, 48*time.Hour)
	if _, err := e.svc.Claim(ctx, booked.ID, e.clientA); err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	pastBooked := e.slotIn(t, -2*time.Hour)
	storetest.Booking(t, e.db, e.clientA.ID, pastBooked.ID, models.BookingConfirmed)

	tests := []struct {
		name   string
		slotID string
		actor  Actor
		want   error
	}{
		{"missing slot", uuid.NewString(), e.clientA, apperr.ErrNotFound},
		{"past slot", e.slotIn(t, -time.Hour).ID, e.clientA, apperr.ErrInvalidState},
		{"starts now", e.slotIn(t, 0).ID, e.clientA, apperr.ErrInvalidState},
		{"past and booked is not a conflict", pastBooked.ID, e.clientC, apperr.ErrInvalidState},
		{"own slot", e.slotIn(t, 72*time.Hour).ID, e.provider, apperr.ErrInvalidState},
		{"already booked", booked.ID, e.clientC, apperr.ErrConflict},
		{"same client again", booked.ID, e.clientA, apperr.ErrConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.Claim(ctx, tc.slotID, tc.actor)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestProviderCancelNoticeBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		until   time.Duration
		wantErr error
	}{
		{"ten hours", 10 * time.Hour, ErrProviderCancelTooLate},
		{"exactly 24 hours", 24 * time.Hour, ErrProviderCancelTooLate},
		{"24 hours and a minute", 24*time.Hour + time.Minute, nil},
		{"a week", 7 * 24 * time.Hour, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			slot := e.slotIn(t, tc.until)
			b, err := e.svc.Claim(context.Background(), slot.ID, e.clientA)
			if err != nil {
				t.Fatalf("claim: %v", err)
			}

			got, err := e.svc.Cancel(context.Background(), b.ID, e.provider)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) || !errors.Is(err, apperr.ErrInvalidState) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if errors.Is(err, apperr.ErrForbidden) {
					t.Fatal("late cancel must not look like an authorization failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if got.Status != models.BookingCancelled {
				t.Fatalf("expected CANCELLED, got %s", got.Status)
			}
		})
	}
}

func TestClientCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	slot := e.slotIn(t, 30*time.Minute)
	b, err := e.svc.Claim(ctx, slot.ID, e.clientA)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	stranger := Actor{ID: uuid.NewString(), Role: models.RoleClient}
	if _, err := e.svc.Cancel(ctx, b.ID, stranger); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
	otherProvider := Actor{ID: uuid.NewString(), Role: models.RoleProvider}
	if _, err := e.svc.Cancel(ctx, b.ID, otherProvider); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for unrelated provider, got %v", err)
	}

	got, err := e.svc.Cancel(ctx, b.ID, e.clientA)
	if err != nil {
		t.Fatalf("client cancel inside provider notice: %v", err)
	}
	if got.Status != models.BookingCancelled {
		t.Fatalf("expected CANCELLED, got %s", got.Status)
	}

	if _, err := e.svc.Cancel(ctx, b.ID, e.clientA); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state on second cancel, got %v", err)
	}
}

func TestClientCancelAfterStartIsInvalid(t *testing.T) {
	e := newEnv(t)
	slot := e.slotIn(t, time.Hour)
	b, err := e.svc.Claim(context.Background(), slot.ID, e.clientA)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	e.clock.Advance(90 * time.Minute)

	if _, err := e.svc.Cancel(context.Background(), b.ID, e.clientA); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestCancelCompletedIsInvalid(t *testing.T) {
	e := newEnv(t)
	slot := e.slotIn(t, 72*time.Hour)
	b := storetest.Booking(t, e.db, e.clientA.ID, slot.ID, models.BookingCompleted)

	if _, err := e.svc.Cancel(context.Background(), b.ID, e.clientA); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := e.svc.Cancel(context.Background(), uuid.NewString(), e.clientA); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	slot := e.slotIn(t, 2*time.Hour)
	b, err := e.svc.Claim(ctx, slot.ID, e.clientA)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := e.svc.Remove(ctx, b.ID, e.provider); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("provider must not remove, got %v", err)
	}
	if err := e.svc.Remove(ctx, b.ID, e.clientA); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := e.svc.Get(ctx, b.ID, e.clientA); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected removed booking gone, got %v", err)
	}
	if err := e.svc.Remove(ctx, b.ID, e.clientA); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	past := e.slotIn(t, -time.Hour)
	old := storetest.Booking(t, e.db, e.clientA.ID, past.ID, models.BookingCompleted)
	if err := e.svc.Remove(ctx, old.ID, e.clientA); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state for past booking, got %v", err)
	}
}

func TestGetVisibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	slot := e.slotIn(t, 48*time.Hour)
	b, err := e.svc.Claim(ctx, slot.ID, e.clientA)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	for _, actor := range []Actor{e.clientA, e.provider} {
		if _, err := e.svc.Get(ctx, b.ID, actor); err != nil {
			t.Fatalf("%s should see booking: %v", actor.Role, err)
		}
	}
	if _, err := e.svc.Get(ctx, b.ID, e.clientC); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestMarkReminderSentIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	slot := e.slotIn(t, 20*time.Minute)
	b, err := e.svc.Claim(ctx, slot.ID, e.clientA)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := e.svc.MarkReminderSent(ctx, b.ID); err != nil {
			t.Fatalf("mark %d: %v", i, err)
		}
	}
	got, err := e.svc.Get(ctx, b.ID, e.clientA)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.ReminderSent {
		t.Fatal("expected reminder_sent")
	}
	if err := e.svc.MarkReminderSent(ctx, uuid.NewString()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClaimCancelReclaimScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	slot := e.slotIn(t, 10*time.Hour)

	b, err := e.svc.Claim(ctx, slot.ID, e.clientA)
	if err != nil || b.Status != models.BookingConfirmed {
		t.Fatalf("claim: %v", err)
	}
	if _, err := e.svc.Claim(ctx, slot.ID, e.clientA); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := e.svc.Cancel(ctx, b.ID, e.provider); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state for provider at 10h, got %v", err)
	}

	cancelled, err := e.svc.Cancel(ctx, b.ID, e.clientA)
	if err != nil || cancelled.Status != models.BookingCancelled {
		t.Fatalf("client cancel: %v", err)
	}

	rebooked, err := e.svc.Claim(ctx, slot.ID, e.clientC)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if rebooked.ClientID != e.clientC.ID {
		t.Fatalf("expected client C, got %s", rebooked.ClientID)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.BookingStatus
		want     bool
	}{
		{models.BookingPending, models.BookingConfirmed, true},
		{models.BookingPending, models.BookingCancelled, true},
		{models.BookingPending, models.BookingCompleted, true},
		{models.BookingConfirmed, models.BookingCancelled, true},
		{models.BookingConfirmed, models.BookingCompleted, true},
		{models.BookingConfirmed, models.BookingPending, false},
		{models.BookingCancelled, models.BookingConfirmed, false},
		{models.BookingCancelled, models.BookingCompleted, false},
		{models.BookingCompleted, models.BookingCancelled, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
