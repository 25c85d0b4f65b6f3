// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router. A nil cm uses DefaultChiMiddlewareConfig.
func NewRouter(handler *Handler, cm *ChiMiddleware) *Router {
	if cm == nil {
		cm = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		chiMiddleware: cm,
	}
}
