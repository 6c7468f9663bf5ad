/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/slotkeeper/internal/slots"
	"github.com/friendsincode/slotkeeper/internal/store"
)

func (a *API) handleSlotsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SlotFilter{ProviderID: q.Get("provider_id")}

	if v := q.Get("start_date"); v != "" {
		t, err := parseDateParam(v, false)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date")
			return
		}
		filter.StartFrom = &t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := parseDateParam(v, true)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date")
			return
		}
		filter.StartTo = &t
	}

	list, err := a.slots.List(r.Context(), filter)
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleSlotsMine(w http.ResponseWriter, r *http.Request) {
	list, err := a.slots.ListForProvider(r.Context(), actorFrom(r).ID)
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleProviderSlots(w http.ResponseWriter, r *http.Request) {
	list, err := a.slots.ListForProvider(r.Context(), chi.URLParam(r, "providerID"))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleSlotsGet(w http.ResponseWriter, r *http.Request) {
	slot, err := a.slots.Get(r.Context(), chi.URLParam(r, "slotID"))
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (a *API) handleSlotsCreate(w http.ResponseWriter, r *http.Request) {
	var in slots.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	slot, err := a.slots.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (a *API) handleSlotsUpdate(w http.ResponseWriter, r *http.Request) {
	var in slots.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	slot, err := a.slots.Update(r.Context(), chi.URLParam(r, "slotID"), actorFrom(r), in)
	if err != nil {
		a.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (a *API) handleSlotsDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.slots.Delete(r.Context(), chi.URLParam(r, "slotID"), actorFrom(r)); err != nil {
		a.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseDateParam accepts RFC 3339 timestamps or plain dates. A plain end
// date covers the whole day.
func parseDateParam(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
