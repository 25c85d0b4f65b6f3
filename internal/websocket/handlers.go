// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package websocket

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/models"
)

// handleFrame runs one inbound frame to completion.
func (h *Hub) handleFrame(c *Client, f models.Frame) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}

	switch f.Event {
	case models.EventHQConnect:
		h.onHQConnect(c, f)
	case models.EventPatrolConnect:
		h.onPatrolConnect(c, f)
	case models.EventPatrolLocation:
		h.onLocation(c, f)
	case models.EventPatrolStart, models.EventPatrolStop:
		h.onSession(c, f)
	case models.EventPatrolSOS:
		h.onSOS(c, f)
	case models.EventHQRequestSOSRoute:
		h.onSOSRoute(c, f)
	case models.EventHQSOSUpdate:
		h.onSOSUpdate(c, f)
	case models.EventHQCallPatrol:
		h.onCallPatrol(c, f)
	case models.EventWebRTCOffer, models.EventWebRTCAnswer, models.EventWebRTCICE, models.EventCallEnded:
		h.onSignal(c, f)
	case models.EventPatrolCallResp:
		h.onCallResponse(c, f)
	case models.EventPatrolSyncBuffer:
		h.onBufferedSync(c, f)
	default:
		metrics.RecordFrameIn("unknown")
		metrics.RecordFrameDropped("unknown_event")
		h.log.Warn().Str("conn_id", c.id).Str("event", f.Event).Msg("unknown event, frame ignored")
		return
	}
}

// decode unmarshals the frame payload into one of the wire types. Only a
// payload that is not a JSON object, or a non-scalar key, drops the frame.
func (h *Hub) decode(c *Client, f models.Frame, v interface{}) bool {
	metrics.RecordFrameIn(f.Event)
	if err := json.Unmarshal(f.Data, v); err != nil {
		metrics.RecordFrameDropped("decode")
		h.log.Warn().Err(err).Str("conn_id", c.id).Str("event", f.Event).Msg("undecodable payload, frame dropped")
		return false
	}
	return true
}

// sender is how c is named in frames it originates: its patrol id when
// it has one, otherwise its connection id. A superseded connection keeps
// its patrol id.
func (c *Client) sender() string {
	if c.patrolID != "" {
		return c.patrolID
	}
	return c.id
}

func (h *Hub) onHQConnect(c *Client, f models.Frame) {
	var msg hqConnectMsg
	if !h.decode(c, f, &msg) {
		return
	}
	if msg.Role.String() != models.RoleHQ {
		h.log.Debug().Str("conn_id", c.id).Str("role", msg.Role.String()).Msg("hq-connect with non-hq role ignored")
		return
	}
	h.bindHQ(c)
}

func (h *Hub) onPatrolConnect(c *Client, f models.Frame) {
	var msg patrolConnectMsg
	if !h.decode(c, f, &msg) {
		return
	}
	if msg.PatrolID == "" {
		metrics.RecordFrameDropped("missing_patrol_id")
		h.log.Warn().Str("conn_id", c.id).Msg("patrol-connect without patrolId ignored")
		return
	}
	h.bindPatrol(c, msg.PatrolID.String())
}

// onLocation relays a fix to HQ unchanged. Coordinates are not checked
// here; the recorder validates before storing.
func (h *Hub) onLocation(c *Client, f models.Frame) {
	var loc locationMsg
	if !h.decode(c, f, &loc) {
		return
	}
	if loc.PatrolID == "" {
		loc.PatrolID = flexString(c.patrolID)
	}

	n := h.publishHQ(models.EventLocationUpdate, loc)
	h.outbox.Enqueue(models.TopicLocation, locationEvent{
		locationMsg: loc,
		ReceivedAt:  h.opts.Now(),
	})

	h.log.Debug().Str("patrol_id", loc.PatrolID.String()).Int("hq_delivered", n).Msg("location relayed")
}

func (h *Hub) onSession(c *Client, f models.Frame) {
	var cmd sessionMsg
	if !h.decode(c, f, &cmd) {
		return
	}
	patrolID, sessionID := cmd.PatrolID.String(), cmd.SessionID.String()
	if patrolID == "" {
		patrolID = c.patrolID
	}
	now := h.opts.Now()

	action := models.SessionActionStart
	if f.Event == models.EventPatrolStart {
		h.publishHQ(models.EventPatrolStarted, models.PatrolStarted{
			PatrolID:  patrolID,
			SessionID: sessionID,
			StartTime: now,
		})
	} else {
		action = models.SessionActionStop
		h.publishHQ(models.EventPatrolStopped, models.PatrolStopped{
			PatrolID:  patrolID,
			SessionID: sessionID,
			EndTime:   now,
		})
	}

	h.outbox.Enqueue(models.TopicSession, models.SessionEvent{
		PatrolID:  patrolID,
		SessionID: sessionID,
		Action:    action,
		At:        now,
	})

	h.log.Info().
		Str("patrol_id", patrolID).
		Str("session_id", sessionID).
		Str("action", action).
		Msg("patrol session")
}

// onSOS alerts every HQ observer and every other online patrol. The nearby
// set here is all other routable patrols; distance ranking happens in the
// recorder. Coordinates and message go out as received.
func (h *Hub) onSOS(c *Client, f models.Frame) {
	var trigger sosTriggerMsg
	if !h.decode(c, f, &trigger) {
		return
	}
	patrolID := trigger.PatrolID.String()
	if patrolID == "" {
		patrolID = c.sender()
	}

	alert := sosAlertFrame{
		ID:        h.opts.NewID("sos"),
		PatrolID:  patrolID,
		Latitude:  trigger.Latitude,
		Longitude: trigger.Longitude,
		Message:   trigger.Message,
		Status:    models.SOSStatusActive,
		Timestamp: h.opts.Now(),
	}

	hqDelivered := h.publishHQ(models.EventSOSAlert, alert)

	notified := make([]string, 0, len(h.owners))
	for _, id := range h.onlinePatrolsExcept(patrolID, c) {
		if h.publishToPatrol(id, models.EventSOSNearby, alert) {
			notified = append(notified, id)
		}
	}

	metrics.HubSOSAlerts.Inc()
	h.outbox.Enqueue(models.TopicSOSTriggered, sosTriggeredEvent{
		Alert:    alert,
		Notified: notified,
	})

	h.log.Warn().
		Str("sos_id", alert.ID).
		Str("patrol_id", patrolID).
		Int("hq_delivered", hqDelivered).
		Strs("nearby", notified).
		Msg("SOS alert raised")
}

func (h *Hub) onSOSRoute(c *Client, f models.Frame) {
	var req sosRouteMsg
	if !h.decode(c, f, &req) {
		return
	}
	delivered := h.publishToPatrol(req.PatrolID.String(), models.EventPatrolSOSRoute, sosRouteFrame{
		SOSID:     req.SOSID.String(),
		Latitude:  req.SOSLatitude,
		Longitude: req.SOSLongitude,
	})
	h.log.Info().Str("sos_id", req.SOSID.String()).Str("patrol_id", req.PatrolID.String()).Bool("delivered", delivered).Msg("SOS route requested")
}

// onSOSUpdate reaches every connection. Status strings are not checked.
func (h *Hub) onSOSUpdate(c *Client, f models.Frame) {
	var msg sosUpdateMsg
	if !h.decode(c, f, &msg) {
		return
	}
	upd := models.SOSStatusUpdate{SOSID: msg.SOSID.String(), Status: msg.Status.String()}
	n := h.broadcastAll(models.EventSOSStatusUpdated, upd)
	h.outbox.Enqueue(models.TopicSOSStatus, models.SOSStatusEvent{
		SOSID:  upd.SOSID,
		Status: upd.Status,
		At:     h.opts.Now(),
	})
	h.log.Info().Str("sos_id", upd.SOSID).Str("status", upd.Status).Int("delivered", n).Msg("SOS status updated")
}

func (h *Hub) onCallPatrol(c *Client, f models.Frame) {
	var req callPatrolMsg
	if !h.decode(c, f, &req) {
		return
	}
	call := models.IncomingCall{
		From:     models.HQSender,
		CallType: req.CallType.String(),
		CallID:   h.opts.NewID("call"),
	}
	delivered := h.publishToPatrol(req.PatrolID.String(), models.EventIncomingCall, call)
	h.log.Info().
		Str("call_id", call.CallID).
		Str("patrol_id", req.PatrolID.String()).
		Str("call_type", call.CallType).
		Bool("delivered", delivered).
		Msg("call requested")
}

// onSignal relays offer, answer, candidate and call-ended frames without
// looking inside them. Target "hq" goes to the HQ audience tagged with the
// sender; anything else is a patrol id and is tagged "HQ".
func (h *Hub) onSignal(c *Client, f models.Frame) {
	var sig signalMsg
	if !h.decode(c, f, &sig) {
		return
	}

	relay := models.SignalRelay{
		CallID:    sig.CallID.String(),
		Offer:     sig.Offer,
		Answer:    sig.Answer,
		Candidate: sig.Candidate,
		CallType:  sig.CallType.String(),
		Reason:    sig.Reason.String(),
	}
	if f.Event == models.EventCallEnded && relay.Reason == "" {
		relay.Reason = models.DefaultCallEndedReason
	}

	target := sig.Target.String()
	if target == models.HQTarget {
		relay.From = c.sender()
		h.publishHQ(f.Event, relay)
	} else {
		relay.From = models.HQSender
		h.publishToPatrol(target, f.Event, relay)
	}

	h.log.Debug().
		Str("event", f.Event).
		Str("call_id", relay.CallID).
		Str("from", relay.From).
		Str("target", target).
		Msg("signal relayed")
}

func (h *Hub) onCallResponse(c *Client, f models.Frame) {
	var resp callResponseMsg
	if !h.decode(c, f, &resp) {
		return
	}
	h.publishHQ(models.EventCallResponse, resp)
	h.log.Info().Str("call_id", resp.CallID.String()).Bytes("accepted", resp.Accepted).Str("from", c.sender()).Msg("call response")
}

func (h *Hub) onBufferedSync(c *Client, f models.Frame) {
	var buf bufferedMsg
	if !h.decode(c, f, &buf) {
		return
	}
	if buf.PatrolID == "" {
		buf.PatrolID = flexString(c.patrolID)
	}
	h.publishHQ(models.EventBufferedSync, buf)
	h.outbox.Enqueue(models.TopicBuffered, bufferedEvent{
		bufferedMsg: buf,
		ReceivedAt:  h.opts.Now(),
	})
	h.log.Info().Str("patrol_id", buf.PatrolID.String()).Int("locations", buf.count()).Msg("buffered locations synced")
}
