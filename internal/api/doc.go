// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

/*
Package api is the HTTP surface of the Vigil server.

It serves three things from one chi router:

 1. The websocket endpoint (/ws) that upgrades connections into the hub.
 2. Operational endpoints: /health, /health/live and /metrics.
 3. A small read-only query API over what the recorder has stored:

	GET /api/v1/patrols/online             patrol ids the hub can route to now
	GET /api/v1/patrols                    recorded patrol states
	GET /api/v1/patrols/{id}/locations     newest-first history (?limit=, default 100, max 1000)
	GET /api/v1/sos                        alerts newest first (?status=active,responding)
	GET /api/v1/sos/{id}/nearby            nearest patrolling patrols (?k=, default 3, max 20)

Every JSON response uses the envelope in response.go:

	{"success": true, "data": ..., "meta": {"timestamp": ..., "request_id": ...}}
	{"success": false, "error": {"code": "NOT_FOUND", "message": ...}, "meta": {...}}

CORS and per-IP rate limiting (go-chi/cors, go-chi/httprate) wrap /api.
The hub, the store and the recorder are reached through the narrow
interfaces in handlers.go so handlers can be tested without a running
server.
*/
package api
