// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package models defines the wire payloads exchanged with hub clients, the
// domain events the hub hands to the outbox, and the records the recorder
// persists.
//
// Every websocket frame is a JSON object {"event": <name>, "data": {...}}.
// Inbound frames are decoded as Frame (data kept raw until the event name
// selects a payload type); outbound frames are written as Envelope.
package models

import "github.com/goccy/go-json"

// Inbound event names (client -> hub).
const (
	EventHQConnect         = "hq-connect"
	EventPatrolConnect     = "patrol-connect"
	EventPatrolLocation    = "patrol-location"
	EventPatrolStart       = "patrol-start"
	EventPatrolStop        = "patrol-stop"
	EventPatrolSOS         = "patrol-sos"
	EventHQRequestSOSRoute = "hq-request-sos-route"
	EventHQSOSUpdate       = "hq-sos-update"
	EventHQCallPatrol      = "hq-call-patrol"
	EventWebRTCOffer       = "webrtc-offer"
	EventWebRTCAnswer      = "webrtc-answer"
	EventWebRTCICE         = "webrtc-ice-candidate"
	EventCallEnded         = "call-ended"
	EventPatrolCallResp    = "patrol-call-response"
	EventPatrolSyncBuffer  = "patrol-sync-buffered"
)

// Outbound event names (hub -> client). The signaling relays reuse the
// inbound names: webrtc-offer, webrtc-answer, webrtc-ice-candidate, call-ended.
const (
	EventPatrolOnline     = "patrol-online"
	EventPatrolOffline    = "patrol-offline"
	EventLocationUpdate   = "location-update"
	EventPatrolStarted    = "patrol-started"
	EventPatrolStopped    = "patrol-stopped"
	EventSOSAlert         = "sos-alert"
	EventSOSNearby        = "sos-nearby"
	EventPatrolSOSRoute   = "patrol-sos-route"
	EventSOSStatusUpdated = "sos-status-updated"
	EventCallResponse     = "call-response"
	EventIncomingCall     = "incoming-call"
	EventBufferedSync     = "buffered-sync"
)

// RoleHQ is the only role accepted by hq-connect.
const RoleHQ = "hq"

// HQTarget is the signaling target token that addresses the HQ audience.
// Any other target string is treated as a patrol identifier.
const HQTarget = "hq"

// HQSender is the from tag on relays that originate from an HQ connection.
const HQSender = "HQ"

// DefaultCallEndedReason is used when call-ended carries no reason.
const DefaultCallEndedReason = "remote ended"

// Frame is an inbound websocket frame.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Envelope is an outbound websocket frame.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}
