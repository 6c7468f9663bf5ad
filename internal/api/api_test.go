package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slotkeeper/internal/auth"
	"github.com/friendsincode/slotkeeper/internal/booking"
	"github.com/friendsincode/slotkeeper/internal/clock"
	"github.com/friendsincode/slotkeeper/internal/events"
	"github.com/friendsincode/slotkeeper/internal/models"
	"github.com/friendsincode/slotkeeper/internal/slots"
	"github.com/friendsincode/slotkeeper/internal/store"
	"github.com/friendsincode/slotkeeper/internal/store/storetest"
)

var (
	now    = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	secret = []byte("test-secret")
)

type harness struct {
	t       *testing.T
	router  chi.Router
	clock   *clock.Manual
	tokens  map[string]string
	userIDs map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storetest.Open(t)
	repo := store.NewGorm(db)
	clk := clock.NewManual(now)
	bus := events.NewBus()

	a := New(Config{
		Bookings:  booking.NewService(repo, clk, bus, zerolog.Nop()),
		Slots:     slots.NewService(repo, clk, bus, zerolog.Nop()),
		Users:     repo,
		JWTSecret: secret,
		JWTTTL:    time.Hour,
	}, zerolog.Nop())
	r := chi.NewRouter()
	a.Routes(r)

	h := &harness{t: t, router: r, clock: clk, tokens: map[string]string{}, userIDs: map[string]string{}}
	for name, role := range map[string]models.Role{
		"provider": models.RoleProvider,
		"alex":     models.RoleClient,
		"casey":    models.RoleClient,
	} {
		u, err := auth.NewUser(name+"@example.com", name, "Test", role, "pw-"+name)
		if err != nil {
			t.Fatalf("NewUser: %v", err)
		}
		if err := repo.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		h.userIDs[name] = u.ID
		h.tokens[name] = h.login(name+"@example.com", "pw-"+name)
	}
	return h
}

func (h *harness) login(email, password string) string {
	h.t.Helper()
	rr := h.do("", http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": password})
	if rr.Code != http.StatusOK {
		h.t.Fatalf("login %s: %d %s", email, rr.Code, rr.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	decode(h.t, rr, &resp)
	return resp.AccessToken
}

func (h *harness) do(who, method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if who != "" {
		req.Header.Set("Authorization", "Bearer "+h.tokens[who])
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func (h *harness) createSlot(start time.Time, minutes int) models.TimeSlot {
	h.t.Helper()
	rr := h.do("provider", http.MethodPost, "/api/v1/slots", map[string]any{
		"starts_at":        start,
		"ends_at":          start.Add(time.Duration(minutes) * time.Minute),
		"duration_minutes": minutes,
	})
	if rr.Code != http.StatusCreated {
		h.t.Fatalf("create slot: %d %s", rr.Code, rr.Body.String())
	}
	var slot models.TimeSlot
	decode(h.t, rr, &slot)
	return slot
}

func TestClaimCancelReclaimOverHTTP(t *testing.T) {
	h := newHarness(t)
	slot := h.createSlot(now.Add(48*time.Hour), 60)

	rr := h.do("alex", http.MethodPost, "/api/v1/bookings", map[string]string{"slot_id": slot.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("claim: %d %s", rr.Code, rr.Body.String())
	}
	var first models.Booking
	decode(t, rr, &first)
	if first.Status != models.BookingConfirmed || first.Slot == nil || first.Slot.Provider == nil {
		t.Fatalf("unexpected booking %+v", first)
	}

	rr = h.do("casey", http.MethodPost, "/api/v1/bookings", map[string]string{"slot_id": slot.ID})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}

	rr = h.do("casey", http.MethodGet, "/api/v1/bookings/"+first.ID, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for stranger, got %d", rr.Code)
	}

	rr = h.do("alex", http.MethodPost, "/api/v1/bookings/"+first.ID+"/cancel", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rr.Code, rr.Body.String())
	}

	rr = h.do("casey", http.MethodPost, "/api/v1/bookings", map[string]string{"slot_id": slot.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("reclaim: %d %s", rr.Code, rr.Body.String())
	}

	rr = h.do("casey", http.MethodGet, "/api/v1/bookings", nil)
	var mine []models.Booking
	decode(t, rr, &mine)
	if len(mine) != 1 || mine[0].ClientID != h.userIDs["casey"] {
		t.Fatalf("unexpected client bookings %+v", mine)
	}
}

func TestErrorTaxonomyStatuses(t *testing.T) {
	h := newHarness(t)
	soon := h.createSlot(now.Add(10*time.Hour), 60)

	rr := h.do("alex", http.MethodPost, "/api/v1/bookings", map[string]string{"slot_id": soon.ID})
	var b models.Booking
	decode(t, rr, &b)

	tests := []struct {
		name   string
		who    string
		method string
		path   string
		body   any
		want   int
		code   string
	}{
		{"missing token", "", http.MethodGet, "/api/v1/bookings", nil, http.StatusUnauthorized, "unauthorized"},
		{"client creates slot", "alex", http.MethodPost, "/api/v1/slots", map[string]any{}, http.StatusForbidden, "forbidden"},
		{"unknown booking", "alex", http.MethodGet, "/api/v1/bookings/nope", nil, http.StatusNotFound, "not_found"},
		{"unknown slot claim", "alex", http.MethodPost, "/api/v1/bookings", map[string]string{"slot_id": "nope"}, http.StatusNotFound, "not_found"},
		{"provider cancels late", "provider", http.MethodPost, "/api/v1/bookings/" + b.ID + "/cancel", nil, http.StatusUnprocessableEntity, "invalid_state"},
		{"edit booked slot", "provider", http.MethodPatch, "/api/v1/slots/" + soon.ID, map[string]any{"duration_minutes": 60}, http.StatusUnprocessableEntity, "invalid_state"},
		{"missing slot id", "alex", http.MethodPost, "/api/v1/bookings", map[string]string{}, http.StatusBadRequest, "slot_id_required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := h.do(tt.who, tt.method, tt.path, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d body=%s", tt.want, rr.Code, rr.Body.String())
			}
			var resp map[string]string
			decode(t, rr, &resp)
			if resp["error"] != tt.code {
				t.Fatalf("expected code %q, got %q", tt.code, resp["error"])
			}
		})
	}
}

func TestSlotListingAndDelete(t *testing.T) {
	h := newHarness(t)
	later := h.createSlot(now.Add(72*time.Hour), 30)
	earlier := h.createSlot(now.Add(24*time.Hour), 45)

	rr := h.do("alex", http.MethodGet, "/api/v1/providers/"+h.userIDs["provider"]+"/slots", nil)
	var list []models.TimeSlot
	decode(t, rr, &list)
	if len(list) != 2 || list[0].ID != earlier.ID || list[1].ID != later.ID {
		t.Fatalf("expected slots ordered by start, got %+v", list)
	}

	rr = h.do("alex", http.MethodGet, "/api/v1/slots?start_date=2026-03-12&end_date=2026-03-13", nil)
	decode(t, rr, &list)
	if len(list) != 1 || list[0].ID != later.ID {
		t.Fatalf("expected date filter to keep only the later slot, got %+v", list)
	}

	rr = h.do("alex", http.MethodGet, "/api/v1/slots?start_date=yesterday", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rr.Code)
	}

	rr = h.do("provider", http.MethodDelete, "/api/v1/slots/"+later.ID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", rr.Code, rr.Body.String())
	}
	rr = h.do("provider", http.MethodGet, "/api/v1/slots/mine", nil)
	decode(t, rr, &list)
	if len(list) != 1 || list[0].ID != earlier.ID {
		t.Fatalf("unexpected remaining slots %+v", list)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newHarness(t)
	rr := h.do("", http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "alex@example.com", "password": "nope"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	r := chi.NewRouter()
	New(Config{Ping: func(context.Context) error { return errors.New("down") }}, zerolog.Nop()).Routes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	r = chi.NewRouter()
	New(Config{}, zerolog.Nop()).Routes(r)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
