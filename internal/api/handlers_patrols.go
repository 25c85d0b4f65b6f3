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

type locationsQuery struct {
	Limit int `json:"limit" validate:"gte=1,lte=1000"`
}

// OnlinePatrols lists the patrol ids the hub can route to right now.
func (h *Handler) OnlinePatrols(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.hub == nil {
		rw.ServiceUnavailable("hub not initialized")
		return
	}
	ids := h.hub.OnlinePatrols()
	rw.SuccessWithPagination(ids, &PaginationMeta{Count: len(ids)})
}

// ListPatrols returns every recorded patrol.
func (h *Handler) ListPatrols(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.store == nil {
		rw.ServiceUnavailable("recorder disabled")
		return
	}
	patrols, err := h.store.ListPatrols(r.Context())
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.SuccessWithPagination(patrols, &PaginationMeta{Count: len(patrols)})
}

// PatrolLocations returns a patrol's location history, newest first.
func (h *Handler) PatrolLocations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.store == nil {
		rw.ServiceUnavailable("recorder disabled")
		return
	}

	id := chi.URLParam(r, "id")
	if !validPathID(rw, id) {
		return
	}
	limit, err := getIntParam(r, "limit", DefaultLocationLimit)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if !validateQuery(rw, &locationsQuery{Limit: limit}) {
		return
	}

	if _, err := h.store.GetPatrol(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("patrol not found")
			return
		}
		rw.StoreError(err)
		return
	}

	// One extra row tells us whether there is more.
	locs, err := h.store.ListLocations(r.Context(), id, limit+1)
	if err != nil {
		rw.StoreError(err)
		return
	}
	hasMore := len(locs) > limit
	if hasMore {
		locs = locs[:limit]
	}
	rw.SuccessWithPagination(locs, &PaginationMeta{Count: len(locs), Limit: limit, HasMore: hasMore})
}
