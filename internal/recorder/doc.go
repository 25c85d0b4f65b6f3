// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

/*
Package recorder turns hub events into durable records.

It consumes the event bus and keeps, per patrol, the current status,
position and presence, plus location history and SOS alerts. The hub
relays first and never waits on the recorder, so everything here is
eventually consistent with what HQ saw live.

Topics:

	vigil.patrol.presence   online flag and lastSeenAt
	vigil.patrol.location   history point, current position, lastLocationAt
	vigil.patrol.buffered   same per point; invalid points are skipped
	vigil.patrol.session    start: patrolling + session id, stop: idle
	vigil.sos.triggered     stored alert, nearest patrolling patrols, status sos
	vigil.sos.status        alert status change

Invalid events are counted in vigil_recorder_rejected_total and acked.
Storage failures are nacked when redelivery is enabled (JetStream) so the
event comes back; otherwise they are logged and dropped.
*/
package recorder
