// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/models"
	ws "github.com/tomtom215/vigil/internal/websocket"
)

// Hub is the part of the coordination hub the API uses. *websocket.Hub
// satisfies it.
type Hub interface {
	Stats() ws.Stats
	OnlinePatrols() []string
	Attach(ctx context.Context, conn *websocket.Conn) error
}

// Store is the read side of the recorder's store. *store.Store satisfies it.
type Store interface {
	GetPatrol(ctx context.Context, id string) (*models.PatrolState, error)
	ListPatrols(ctx context.Context) ([]models.PatrolState, error)
	ListLocations(ctx context.Context, patrolID string, limit int) ([]models.LocationRecord, error)
	GetSOS(ctx context.Context, id string) (*models.SOSRecord, error)
	ListSOS(ctx context.Context, statuses ...string) ([]models.SOSRecord, error)
}

// NearbyFinder ranks patrols around a point. *recorder.Recorder satisfies it.
type NearbyFinder interface {
	NearbyPatrols(ctx context.Context, lat, lon float64, k int, exclude ...string) ([]models.NearbyPatrol, error)
}

// HealthChecker reports whether a dependency is usable. *eventbus.Bus
// satisfies it.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// AllowedOrigins is the websocket Origin allow list. "*" allows any.
	AllowedOrigins   []string
	HandshakeTimeout time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
}

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, websocket upgrade
//   - handlers_health.go: /health endpoints
//   - handlers_patrols.go: patrol queries
//   - handlers_sos.go: SOS queries
//   - handlers_helpers.go: query parameter parsing
type Handler struct {
	hub       Hub
	store     Store
	nearby    NearbyFinder
	bus       HealthChecker
	opts      HandlerOptions
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewHandler creates a Handler. store, nearby and bus may be nil when the
// recorder is disabled; the query endpoints then answer 503.
func NewHandler(hub Hub, store Store, nearby NearbyFinder, bus HealthChecker, opts HandlerOptions) *Handler {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = 1024
	}
	if opts.WriteBufferSize <= 0 {
		opts.WriteBufferSize = 1024
	}

	h := &Handler{
		hub:       hub,
		store:     store,
		nearby:    nearby,
		bus:       bus,
		opts:      opts,
		startTime: time.Now(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   opts.ReadBufferSize,
		WriteBufferSize:  opts.WriteBufferSize,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	return h
}

// checkWebSocketOrigin validates browser origins against the allow list.
// Requests without an Origin header come from native patrol devices and
// are accepted.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// WebSocket upgrades the request and hands the connection to the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		logging.Warn().Msg("WebSocket connection rejected: hub not initialized")
		NewResponseWriter(w, r).ServiceUnavailable("WebSocket service unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	if err := h.hub.Attach(r.Context(), conn); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket connection not attached")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
}
