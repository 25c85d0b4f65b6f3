// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

/*
Package middleware provides the HTTP middleware shared by the query API.

Key Components:

  - RequestID: honours or generates X-Request-ID and puts it on the request
    context so logging.Ctx picks it up
  - PrometheusMetrics: counts requests and observes latency per chi route
    pattern, never per raw path, so /api/v1/patrols/{id}/locations stays a
    single series

Both are chi-native (func(http.Handler) http.Handler):

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Route("/api/v1", func(r chi.Router) {
	    r.Use(middleware.PrometheusMetrics)
	    r.Get("/sos", h.ListSOS)
	})

The websocket endpoint is deliberately left out of PrometheusMetrics: a
hijacked connection has no status code and lives for hours.
*/
package middleware
