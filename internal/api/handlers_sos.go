// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/vigil/internal/store"
)

type sosListQuery struct {
	Status []string `json:"status" validate:"dive,oneof=active responding resolved closed"`
}

type nearbyQuery struct {
	K int `json:"k" validate:"gte=1,lte=20"`
}

// ListSOS returns recorded alerts newest first, optionally filtered by a
// comma-separated status list.
func (h *Handler) ListSOS(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.store == nil {
		rw.ServiceUnavailable("recorder disabled")
		return
	}

	q := sosListQuery{Status: parseCommaSeparated(r.URL.Query().Get("status"))}
	if !validateQuery(rw, &q) {
		return
	}

	alerts, err := h.store.ListSOS(r.Context(), q.Status...)
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.SuccessWithPagination(alerts, &PaginationMeta{Count: len(alerts)})
}

// SOSNearby ranks the patrolling patrols nearest to an alert's position.
// The originator is excluded.
func (h *Handler) SOSNearby(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.store == nil || h.nearby == nil {
		rw.ServiceUnavailable("recorder disabled")
		return
	}

	id := chi.URLParam(r, "id")
	if !validPathID(rw, id) {
		return
	}
	k, err := getIntParam(r, "k", DefaultNearbyK)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if !validateQuery(rw, &nearbyQuery{K: k}) {
		return
	}

	alert, err := h.store.GetSOS(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("sos alert not found")
			return
		}
		rw.StoreError(err)
		return
	}

	nearby, err := h.nearby.NearbyPatrols(r.Context(), alert.Latitude, alert.Longitude, k, alert.PatrolID)
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.SuccessWithPagination(nearby, &PaginationMeta{Count: len(nearby), Limit: k})
}
