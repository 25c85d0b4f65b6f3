// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/models"
	"github.com/tomtom215/vigil/internal/store"
	"github.com/tomtom215/vigil/internal/validation"
)

func decode(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return reject(ReasonDecode, err)
	}
	return nil
}

func validate(v interface{}) error {
	if verr := validation.ValidateStruct(v); verr != nil {
		return reject(ReasonInvalid, verr)
	}
	return nil
}

// fixTime parses an RFC3339 client timestamp, falling back to fallback.
func fixTime(ts string, fallback time.Time) time.Time {
	if ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

func toRecord(patrolID, sessionID string, p *models.LocationPoint, at time.Time) models.LocationRecord {
	return models.LocationRecord{
		PatrolID:  patrolID,
		SessionID: sessionID,
		Latitude:  *p.Latitude,
		Longitude: *p.Longitude,
		Altitude:  p.Altitude,
		Accuracy:  p.Accuracy,
		Timestamp: at,
	}
}

func (r *Recorder) onPresence(ctx context.Context, payload []byte) error {
	var ev models.PresenceEvent
	if err := decode(payload, &ev); err != nil {
		return err
	}
	if err := validation.ValidateVar(ev.PatrolID, "required,patrolid"); err != nil {
		return reject(ReasonInvalid, err)
	}
	seen := ev.At
	if seen.IsZero() {
		seen = r.opts.Now()
	}

	_, err := r.store.UpdatePatrol(ctx, ev.PatrolID, func(p *models.PatrolState) error {
		p.Online = ev.Online
		p.LastSeenAt = seen
		p.UpdatedAt = r.opts.Now()
		return nil
	})
	return err
}

// moveTo updates the patrol's current position and returns the session the
// fix belongs to: the event's own, or the patrol's active session.
func (r *Recorder) moveTo(ctx context.Context, patrolID, sessionID string, lat, lon float64, at, seen time.Time) (string, error) {
	_, err := r.store.UpdatePatrol(ctx, patrolID, func(p *models.PatrolState) error {
		if sessionID == "" {
			sessionID = p.ActiveSessionID
		}
		p.Latitude = &lat
		p.Longitude = &lon
		fixAt := at
		p.LastLocationAt = &fixAt
		if seen.After(p.LastSeenAt) {
			p.LastSeenAt = seen
		}
		p.UpdatedAt = r.opts.Now()
		return nil
	})
	return sessionID, err
}

func (r *Recorder) onLocation(ctx context.Context, payload []byte) error {
	var ev models.LocationEvent
	if err := decode(payload, &ev); err != nil {
		return err
	}
	if err := validate(&ev.PatrolLocation); err != nil {
		return err
	}

	received := ev.ReceivedAt
	if received.IsZero() {
		received = r.opts.Now()
	}
	at := fixTime(ev.Timestamp, received)

	sessionID, err := r.moveTo(ctx, ev.PatrolID, ev.SessionID, *ev.Latitude, *ev.Longitude, at, received)
	if err != nil {
		return err
	}
	return r.store.AppendLocations(ctx, toRecord(ev.PatrolID, sessionID, &ev.LocationPoint, at))
}

// bufferedPayload keeps points raw so each one is decoded on its own and a
// mistyped point is skipped like an out-of-range one.
type bufferedPayload struct {
	PatrolID   string            `json:"patrolId" validate:"required,patrolid"`
	Locations  []json.RawMessage `json:"locations"`
	ReceivedAt time.Time         `json:"receivedAt"`
}

func (r *Recorder) onBuffered(ctx context.Context, payload []byte) error {
	var ev bufferedPayload
	if err := decode(payload, &ev); err != nil {
		return err
	}
	if err := validate(&ev); err != nil {
		return err
	}

	received := ev.ReceivedAt
	if received.IsZero() {
		received = r.opts.Now()
	}

	valid := make([]models.LocationRecord, 0, len(ev.Locations))
	skipped := 0
	for _, raw := range ev.Locations {
		var pt models.LocationPoint
		if err := json.Unmarshal(raw, &pt); err != nil || validation.ValidateStruct(&pt) != nil {
			skipped++
			metrics.RecorderRejected.WithLabelValues(models.TopicBuffered, ReasonInvalidPoint).Inc()
			continue
		}
		valid = append(valid, toRecord(ev.PatrolID, "", &pt, fixTime(pt.Timestamp, received)))
	}
	if skipped > 0 {
		r.log.Warn().
			Str("patrol_id", ev.PatrolID).
			Int("skipped", skipped).
			Int("kept", len(valid)).
			Msg("invalid buffered points skipped")
	}
	if len(valid) == 0 {
		return nil
	}

	last := valid[len(valid)-1]
	sessionID, err := r.moveTo(ctx, ev.PatrolID, "", last.Latitude, last.Longitude, last.Timestamp, received)
	if err != nil {
		return err
	}
	for i := range valid {
		valid[i].SessionID = sessionID
	}
	return r.store.AppendLocations(ctx, valid...)
}

func (r *Recorder) onSession(ctx context.Context, payload []byte) error {
	var ev models.SessionEvent
	if err := decode(payload, &ev); err != nil {
		return err
	}
	if err := validate(&ev); err != nil {
		return err
	}

	_, err := r.store.UpdatePatrol(ctx, ev.PatrolID, func(p *models.PatrolState) error {
		switch ev.Action {
		case models.SessionActionStart:
			p.Status = models.PatrolStatusPatrolling
			p.ActiveSessionID = ev.SessionID
		case models.SessionActionStop:
			p.Status = models.PatrolStatusIdle
			p.ActiveSessionID = ""
		}
		p.UpdatedAt = r.opts.Now()
		return nil
	})
	return err
}

func (r *Recorder) onSOSTriggered(ctx context.Context, payload []byte) error {
	var ev models.SOSTriggeredEvent
	if err := decode(payload, &ev); err != nil {
		return err
	}
	alert := ev.Alert
	if err := validate(&alert); err != nil {
		return err
	}

	nearby, err := r.NearbyPatrols(ctx, *alert.Latitude, *alert.Longitude, r.opts.NearbyCount, alert.PatrolID)
	if err != nil {
		return err
	}
	alerted := make([]string, len(nearby))
	for i, n := range nearby {
		alerted[i] = n.PatrolID
	}

	created := alert.Timestamp
	if created.IsZero() {
		created = r.opts.Now()
	}
	message := alert.Message
	if message == "" {
		message = models.DefaultSOSMessage
	}
	status := alert.Status
	if status == "" {
		status = models.SOSStatusActive
	}
	notified := ev.Notified
	if notified == nil {
		notified = []string{}
	}

	rec := &models.SOSRecord{
		ID:            alert.ID,
		PatrolID:      alert.PatrolID,
		Latitude:      *alert.Latitude,
		Longitude:     *alert.Longitude,
		Message:       message,
		Status:        status,
		AlertedNearby: alerted,
		HubNotified:   notified,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	if err := r.store.PutSOS(ctx, rec); err != nil {
		return err
	}

	_, err = r.store.UpdatePatrol(ctx, alert.PatrolID, func(p *models.PatrolState) error {
		p.Status = models.PatrolStatusSOS
		p.UpdatedAt = r.opts.Now()
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info().
		Str("sos_id", rec.ID).
		Str("patrol_id", rec.PatrolID).
		Strs("alerted_nearby", alerted).
		Msg("sos alert recorded")
	return nil
}

func (r *Recorder) onSOSStatus(ctx context.Context, payload []byte) error {
	var ev models.SOSStatusEvent
	if err := decode(payload, &ev); err != nil {
		return err
	}
	if err := validate(&ev); err != nil {
		return err
	}

	updated := ev.At
	if updated.IsZero() {
		updated = r.opts.Now()
	}
	_, err := r.store.UpdateSOS(ctx, ev.SOSID, func(rec *models.SOSRecord) error {
		rec.Status = ev.Status
		rec.UpdatedAt = updated
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return reject(ReasonUnknownSOS, err)
	}
	return err
}
