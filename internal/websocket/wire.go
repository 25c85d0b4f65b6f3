// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package websocket

import (
	"bytes"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// Inbound payloads are decoded leniently. The hub reads only the keys it
// routes, tags or logs on; everything else is carried as raw JSON and
// relayed exactly as the client sent it. The recorder type-checks values
// before anything is stored.

var errNotScalar = errors.New("expected a string, number or boolean")

// flexString is an identifier or enum value. Numbers and booleans decode to
// their JSON text and null to "". Objects and arrays fail, which drops the
// frame.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errNotScalar
	}
	switch b[0] {
	case '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
	case 'n':
		*s = ""
	case '{', '[':
		return errNotScalar
	default:
		*s = flexString(b)
	}
	return nil
}

func (s flexString) String() string { return string(s) }

type hqConnectMsg struct {
	Role flexString `json:"role"`
}

type patrolConnectMsg struct {
	PatrolID flexString `json:"patrolId"`
}

// locationMsg is both the patrol-location payload and the location-update
// frame.
type locationMsg struct {
	PatrolID  flexString      `json:"patrolId"`
	SessionID flexString      `json:"sessionId,omitempty"`
	Latitude  json.RawMessage `json:"latitude,omitempty"`
	Longitude json.RawMessage `json:"longitude,omitempty"`
	Altitude  json.RawMessage `json:"altitude,omitempty"`
	Accuracy  json.RawMessage `json:"accuracy,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// locationEvent has the shape of models.LocationEvent.
type locationEvent struct {
	locationMsg
	ReceivedAt time.Time `json:"receivedAt"`
}

type sessionMsg struct {
	PatrolID  flexString `json:"patrolId"`
	SessionID flexString `json:"sessionId"`
}

type sosTriggerMsg struct {
	PatrolID  flexString      `json:"patrolId"`
	Latitude  json.RawMessage `json:"latitude"`
	Longitude json.RawMessage `json:"longitude"`
	Message   json.RawMessage `json:"message"`
}

// sosAlertFrame is the sos-alert and sos-nearby frame. It has the shape of
// models.SOSAlert.
type sosAlertFrame struct {
	ID        string          `json:"id"`
	PatrolID  string          `json:"patrolId"`
	Latitude  json.RawMessage `json:"latitude,omitempty"`
	Longitude json.RawMessage `json:"longitude,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}

// sosTriggeredEvent has the shape of models.SOSTriggeredEvent.
type sosTriggeredEvent struct {
	Alert    sosAlertFrame `json:"alert"`
	Notified []string      `json:"notified"`
}

type sosRouteMsg struct {
	PatrolID     flexString      `json:"patrolId"`
	SOSID        flexString      `json:"sosId"`
	SOSLatitude  json.RawMessage `json:"sosLatitude"`
	SOSLongitude json.RawMessage `json:"sosLongitude"`
}

type sosRouteFrame struct {
	SOSID     string          `json:"sosId"`
	Latitude  json.RawMessage `json:"latitude,omitempty"`
	Longitude json.RawMessage `json:"longitude,omitempty"`
}

type sosUpdateMsg struct {
	SOSID  flexString `json:"sosId"`
	Status flexString `json:"status"`
}

type callPatrolMsg struct {
	PatrolID flexString `json:"patrolId"`
	CallType flexString `json:"callType"`
}

type signalMsg struct {
	CallID    flexString      `json:"callId"`
	Target    flexString      `json:"target"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	CallType  flexString      `json:"callType,omitempty"`
	Reason    flexString      `json:"reason,omitempty"`
}

// callResponseMsg is both the patrol-call-response payload and the
// call-response frame.
type callResponseMsg struct {
	CallID   flexString      `json:"callId"`
	Accepted json.RawMessage `json:"accepted,omitempty"`
}

// bufferedMsg is both the patrol-sync-buffered payload and the
// buffered-sync frame.
type bufferedMsg struct {
	PatrolID  flexString      `json:"patrolId"`
	Locations json.RawMessage `json:"locations,omitempty"`
}

// bufferedEvent has the shape of models.BufferedEvent.
type bufferedEvent struct {
	bufferedMsg
	ReceivedAt time.Time `json:"receivedAt"`
}

// count returns the number of buffered points, or 0 when locations is not
// an array.
func (b *bufferedMsg) count() int {
	var pts []json.RawMessage
	if err := json.Unmarshal(b.Locations, &pts); err != nil {
		return 0
	}
	return len(pts)
}
