// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// These are the typed payload shapes used by clients and by the recorder.
// Coordinates are pointers tagged omitempty, so an unset coordinate is left
// out of the JSON instead of being sent as 0 or null. The hub does not decode
// into these types; it relays values as received and the recorder validates
// them (validate tags below).

// HQConnect is the hq-connect payload.
type HQConnect struct {
	Role string `json:"role"`
}

// PatrolConnect is the patrol-connect payload.
type PatrolConnect struct {
	PatrolID string `json:"patrolId"`
}

// PatrolRef identifies a patrol in presence frames.
type PatrolRef struct {
	PatrolID string `json:"patrolId"`
}

// LocationPoint is a single GPS fix.
type LocationPoint struct {
	Latitude  *float64 `json:"latitude,omitempty" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"required,gte=-180,lte=180"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// PatrolLocation is both the patrol-location payload and the location-update
// frame relayed to HQ.
type PatrolLocation struct {
	PatrolID  string `json:"patrolId" validate:"required,patrolid"`
	SessionID string `json:"sessionId,omitempty"`
	LocationPoint
}

// SessionCommand is the patrol-start / patrol-stop payload.
type SessionCommand struct {
	PatrolID  string `json:"patrolId"`
	SessionID string `json:"sessionId"`
}

// PatrolStarted is sent to HQ when a patrol session starts.
type PatrolStarted struct {
	PatrolID  string    `json:"patrolId"`
	SessionID string    `json:"sessionId"`
	StartTime time.Time `json:"startTime"`
}

// PatrolStopped is sent to HQ when a patrol session stops.
type PatrolStopped struct {
	PatrolID  string    `json:"patrolId"`
	SessionID string    `json:"sessionId"`
	EndTime   time.Time `json:"endTime"`
}

// SOSTrigger is the patrol-sos payload.
type SOSTrigger struct {
	PatrolID  string   `json:"patrolId"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// SOSAlert is the sos-alert / sos-nearby frame.
type SOSAlert struct {
	ID        string    `json:"id" validate:"required"`
	PatrolID  string    `json:"patrolId" validate:"required,patrolid"`
	Latitude  *float64  `json:"latitude,omitempty" validate:"required,gte=-90,lte=90"`
	Longitude *float64  `json:"longitude,omitempty" validate:"required,gte=-180,lte=180"`
	Message   string    `json:"message,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// SOSRouteRequest is the hq-request-sos-route payload.
type SOSRouteRequest struct {
	PatrolID     string   `json:"patrolId"`
	SOSID        string   `json:"sosId"`
	SOSLatitude  *float64 `json:"sosLatitude,omitempty"`
	SOSLongitude *float64 `json:"sosLongitude,omitempty"`
}

// SOSRoute is the patrol-sos-route frame.
type SOSRoute struct {
	SOSID     string   `json:"sosId"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// SOSStatusUpdate is both the hq-sos-update payload and the
// sos-status-updated frame.
type SOSStatusUpdate struct {
	SOSID  string `json:"sosId"`
	Status string `json:"status"`
}

// CallPatrol is the hq-call-patrol payload.
type CallPatrol struct {
	PatrolID string `json:"patrolId"`
	CallType string `json:"callType"`
}

// IncomingCall is the incoming-call frame.
type IncomingCall struct {
	From     string `json:"from"`
	CallType string `json:"callType"`
	CallID   string `json:"callId"`
}

// Signal is the inbound shape shared by webrtc-offer, webrtc-answer,
// webrtc-ice-candidate and call-ended. Negotiation blobs are never decoded.
type Signal struct {
	CallID    string          `json:"callId"`
	Target    string          `json:"target"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	CallType  string          `json:"callType,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// SignalRelay is what the addressed endpoint receives: the signal without its
// target, tagged with the sender.
type SignalRelay struct {
	CallID    string          `json:"callId"`
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	CallType  string          `json:"callType,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// CallResponse is the patrol-call-response payload and the call-response
// frame relayed to HQ.
type CallResponse struct {
	CallID   string `json:"callId"`
	Accepted bool   `json:"accepted"`
}

// BufferedSync is the patrol-sync-buffered payload and the buffered-sync frame.
type BufferedSync struct {
	PatrolID  string          `json:"patrolId"`
	Locations []LocationPoint `json:"locations"`
}

// F64 returns a pointer to v. Handy for building coordinates.
func F64(v float64) *float64 {
	return &v
}
