/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type claimRequest struct {
	SlotID string `json:"slot_id"`
}

func (a *API) handleBookingsCreate(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.SlotID == "" {
		writeError(w, http.StatusBadRequest, "slot_id_required")
		return
	}

	b, err := a.bookings.Claim(r.Context(), req.SlotID, actorFrom(r))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) handleBookingsMine(w http.ResponseWriter, r *http.Request) {
	list, err := a.bookings.ListForClient(r.Context(), actorFrom(r))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleBookingsGet(w http.ResponseWriter, r *http.Request) {
	b, err := a.bookings.Get(r.Context(), chi.URLParam(r, "bookingID"), actorFrom(r))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) handleBookingsCancel(w http.ResponseWriter, r *http.Request) {
	b, err := a.bookings.Cancel(r.Context(), chi.URLParam(r, "bookingID"), actorFrom(r))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) handleBookingsRemove(w http.ResponseWriter, r *http.Request) {
	if err := a.bookings.Remove(r.Context(), chi.URLParam(r, "bookingID"), actorFrom(r)); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
