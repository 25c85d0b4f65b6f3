// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package models

import "time"

// Outbox topics. With NATS enabled these are JetStream subjects under the
// vigil.> wildcard.
const (
	TopicPresence     = "vigil.patrol.presence"
	TopicLocation     = "vigil.patrol.location"
	TopicSession      = "vigil.patrol.session"
	TopicBuffered     = "vigil.patrol.buffered"
	TopicSOSTriggered = "vigil.sos.triggered"
	TopicSOSStatus    = "vigil.sos.status"
)

// Session actions carried by SessionEvent.
const (
	SessionActionStart = "start"
	SessionActionStop  = "stop"
)

// Patrol statuses as recorded by the recorder.
const (
	PatrolStatusIdle       = "idle"
	PatrolStatusPatrolling = "patrolling"
	PatrolStatusSOS        = "sos"
)

// SOS alert statuses.
const (
	SOSStatusActive     = "active"
	SOSStatusResponding = "responding"
	SOSStatusResolved   = "resolved"
	SOSStatusClosed     = "closed"
)

// DefaultSOSMessage is stored when a patrol triggers SOS without a message.
const DefaultSOSMessage = "SOS - Emergency"

// PresenceEvent records a patrol going online or offline.
type PresenceEvent struct {
	PatrolID string    `json:"patrolId"`
	Online   bool      `json:"online"`
	At       time.Time `json:"at"`
}

// LocationEvent is a relayed location fix plus the hub receive time.
type LocationEvent struct {
	PatrolLocation
	ReceivedAt time.Time `json:"receivedAt"`
}

// SessionEvent records a patrol session start or stop.
type SessionEvent struct {
	PatrolID  string    `json:"patrolId" validate:"required,patrolid"`
	SessionID string    `json:"sessionId"`
	Action    string    `json:"action" validate:"oneof=start stop"`
	At        time.Time `json:"at"`
}

// BufferedEvent carries locations a patrol queued while offline.
type BufferedEvent struct {
	PatrolID   string          `json:"patrolId" validate:"required,patrolid"`
	Locations  []LocationPoint `json:"locations"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// SOSTriggeredEvent is an alert together with the patrol ids the hub
// delivered sos-nearby to.
type SOSTriggeredEvent struct {
	Alert    SOSAlert `json:"alert"`
	Notified []string `json:"notified"`
}

// SOSStatusEvent records an HQ status change.
type SOSStatusEvent struct {
	SOSID  string    `json:"sosId" validate:"required"`
	Status string    `json:"status" validate:"oneof=active responding resolved closed"`
	At     time.Time `json:"at"`
}

// PatrolState is the recorder's view of a patrol.
type PatrolState struct {
	ID              string     `json:"id"`
	Online          bool       `json:"online"`
	Status          string     `json:"status"`
	ActiveSessionID string     `json:"activeSessionId,omitempty"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	LastLocationAt  *time.Time `json:"lastLocationAt,omitempty"`
	LastSeenAt      time.Time  `json:"lastSeenAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// HasPosition reports whether a current position is known.
func (p *PatrolState) HasPosition() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// LocationRecord is one stored location history point.
type LocationRecord struct {
	PatrolID  string    `json:"patrolId"`
	SessionID string    `json:"sessionId,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SOSRecord is a stored SOS alert.
type SOSRecord struct {
	ID        string  `json:"id"`
	PatrolID  string  `json:"patrolId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Message   string  `json:"message"`
	Status    string  `json:"status"`
	// AlertedNearby is the distance-ranked set chosen at creation time.
	AlertedNearby []string `json:"alertedNearby"`
	// HubNotified is who actually received sos-nearby from the hub.
	HubNotified []string  `json:"hubNotified"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NearbyPatrol is a patrol ranked by distance from a point.
type NearbyPatrol struct {
	PatrolID   string  `json:"patrolId"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	DistanceKm float64 `json:"distanceKm"`
}
