// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the /health payload.
type HealthStatus struct {
	Status        string  `json:"status"`
	Connections   int     `json:"connections"`
	HQObservers   int     `json:"hqObservers"`
	OnlinePatrols int     `json:"onlinePatrols"`
	EventBus      string  `json:"eventBus"`
	Uptime        float64 `json:"uptime"`
}

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// Health reports hub counts and event bus health. A broken bus degrades
// the status but still answers 200: the hub keeps relaying without it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.hub == nil {
		rw.ServiceUnavailable("hub not initialized")
		return
	}

	stats := h.hub.Stats()
	health := HealthStatus{
		Status:        statusHealthy,
		Connections:   stats.Connections,
		HQObservers:   stats.HQObservers,
		OnlinePatrols: stats.OnlinePatrols,
		EventBus:      "disabled",
		Uptime:        time.Since(h.startTime).Seconds(),
	}

	if h.bus != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if h.bus.Healthy(ctx) {
			health.EventBus = statusHealthy
		} else {
			health.EventBus = "unhealthy"
			health.Status = statusDegraded
		}
	}

	rw.Success(health)
}

// HealthLive answers 200 while the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}
