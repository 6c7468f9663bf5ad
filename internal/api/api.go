/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the booking core over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slotkeeper/internal/apperr"
	"github.com/friendsincode/slotkeeper/internal/auth"
	"github.com/friendsincode/slotkeeper/internal/booking"
	"github.com/friendsincode/slotkeeper/internal/models"
	"github.com/friendsincode/slotkeeper/internal/slots"
)

// API exposes HTTP handlers.
type API struct {
	bookings  *booking.Service
	slots     *slots.Service
	users     auth.UserLookup
	jwtSecret []byte
	jwtTTL    time.Duration
	ping      func(context.Context) error
	logger    zerolog.Logger
}

// Config carries the API's collaborators.
type Config struct {
	Bookings  *booking.Service
	Slots     *slots.Service
	Users     auth.UserLookup
	JWTSecret []byte
	JWTTTL    time.Duration
	// Ping checks backing storage for /healthz. Nil reports healthy.
	Ping func(context.Context) error
}

// New creates the API router wrapper.
func New(cfg Config, logger zerolog.Logger) *API {
	if cfg.JWTTTL <= 0 {
		cfg.JWTTTL = 24 * time.Hour
	}
	return &API{
		bookings:  cfg.Bookings,
		slots:     cfg.Slots,
		users:     cfg.Users,
		jwtSecret: cfg.JWTSecret,
		jwtTTL:    cfg.JWTTTL,
		ping:      cfg.Ping,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers all endpoints on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Route("/slots", func(r chi.Router) {
				r.Get("/", a.handleSlotsList)
				r.With(a.requireRoles(models.RoleProvider)).Post("/", a.handleSlotsCreate)
				r.With(a.requireRoles(models.RoleProvider)).Get("/mine", a.handleSlotsMine)
				r.Route("/{slotID}", func(r chi.Router) {
					r.Get("/", a.handleSlotsGet)
					r.With(a.requireRoles(models.RoleProvider)).Patch("/", a.handleSlotsUpdate)
					r.With(a.requireRoles(models.RoleProvider)).Delete("/", a.handleSlotsDelete)
				})
			})

			pr.Get("/providers/{providerID}/slots", a.handleProviderSlots)

			pr.Route("/bookings", func(r chi.Router) {
				r.Get("/", a.handleBookingsMine)
				r.Post("/", a.handleBookingsCreate)
				r.Route("/{bookingID}", func(r chi.Router) {
					r.Get("/", a.handleBookingsGet)
					r.Post("/cancel", a.handleBookingsCancel)
					r.Delete("/", a.handleBookingsRemove)
				})
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ping(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "credentials_required")
		return
	}

	token, user, err := auth.Login(r.Context(), a.users, a.jwtSecret, a.jwtTTL, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		a.logger.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(a.jwtTTL.Seconds()),
		"user":         user,
	})
}

// requireRoles rejects authenticated callers whose role is not listed.
func (a *API) requireRoles(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := auth.ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

func actorFrom(r *http.Request) booking.Actor {
	actor, _ := auth.ActorFromContext(r.Context())
	return actor
}

// writeFailure translates a service error into its status and code.
func (a *API) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, apperr.Code(err))
		return
	}
	writeJSON(w, status, map[string]string{"error": apperr.Code(err), "message": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
