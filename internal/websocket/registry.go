// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package websocket

import (
	"sort"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/models"
)

// role is a connection's binding. A connection has at most one.
type role int

const (
	roleNone role = iota
	roleHQ
	rolePatrol
)

func (r role) String() string {
	switch r {
	case roleHQ:
		return "hq"
	case rolePatrol:
		return "patrol"
	default:
		return "none"
	}
}

// Registry mutations below run on the hub goroutine only. They take the
// write lock so snapshot readers see consistent maps; reads on the hub
// goroutine itself need no lock.

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.updateGaugesLocked()
	h.mu.Unlock()

	h.log.Info().Str("conn_id", c.id).Int("total_clients", len(h.clients)).Msg("websocket client connected")
}

// bindHQ joins c to the HQ audience. Repeating it is a no-op. A patrol
// binding on c is released first.
func (h *Hub) bindHQ(c *Client) {
	if c.role == roleHQ {
		return
	}
	if c.role == rolePatrol {
		h.releasePatrol(c)
	}

	h.mu.Lock()
	h.hq[c.id] = struct{}{}
	c.role = roleHQ
	h.updateGaugesLocked()
	h.mu.Unlock()

	h.log.Info().Str("conn_id", c.id).Int("hq_observers", len(h.hq)).Msg("HQ observer bound")
}

// bindPatrol makes c the owner of patrolID and announces it online. Any
// earlier owner is displaced from routing but not closed.
func (h *Hub) bindPatrol(c *Client, patrolID string) {
	if c.role == rolePatrol && c.patrolID == patrolID && h.owners[patrolID] == c.id {
		return
	}

	switch c.role {
	case roleHQ:
		h.mu.Lock()
		delete(h.hq, c.id)
		h.mu.Unlock()
	case rolePatrol:
		if c.patrolID != patrolID {
			h.releasePatrol(c)
		}
	}

	h.mu.Lock()
	previous, superseded := h.owners[patrolID]
	h.owners[patrolID] = c.id
	c.role = rolePatrol
	c.patrolID = patrolID
	h.updateGaugesLocked()
	h.mu.Unlock()

	if superseded && previous != c.id {
		h.log.Info().
			Str("patrol_id", patrolID).
			Str("conn_id", c.id).
			Str("previous_conn_id", previous).
			Msg("patrol connection superseded")
	} else {
		h.log.Info().Str("patrol_id", patrolID).Str("conn_id", c.id).Msg("patrol bound")
	}

	h.publishHQ(models.EventPatrolOnline, models.PatrolRef{PatrolID: patrolID})
	h.outbox.Enqueue(models.TopicPresence, models.PresenceEvent{
		PatrolID: patrolID,
		Online:   true,
		At:       h.opts.Now(),
	})
}

// releasePatrol drops c's patrol binding. The slot is freed, and offline
// announced, only if c still owns it.
func (h *Hub) releasePatrol(c *Client) {
	patrolID := c.patrolID

	h.mu.Lock()
	owned := h.owners[patrolID] == c.id
	if owned {
		delete(h.owners, patrolID)
	}
	c.role = roleNone
	c.patrolID = ""
	h.updateGaugesLocked()
	h.mu.Unlock()

	if !owned {
		h.log.Debug().Str("patrol_id", patrolID).Str("conn_id", c.id).Msg("stale patrol connection released")
		return
	}

	h.log.Info().Str("patrol_id", patrolID).Str("conn_id", c.id).Msg("patrol released")
	h.publishHQ(models.EventPatrolOffline, models.PatrolRef{PatrolID: patrolID})
	h.outbox.Enqueue(models.TopicPresence, models.PresenceEvent{
		PatrolID: patrolID,
		Online:   false,
		At:       h.opts.Now(),
	})
}

// unbind tears down c on disconnect. Active calls involving c are not
// signaled; the peer finds out through its own media path.
func (h *Hub) unbind(c *Client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}

	if c.role == rolePatrol {
		h.releasePatrol(c)
	}

	h.mu.Lock()
	delete(h.hq, c.id)
	delete(h.clients, c.id)
	close(c.send)
	c.role = roleNone
	h.updateGaugesLocked()
	h.mu.Unlock()

	h.log.Info().Str("conn_id", c.id).Int("total_clients", len(h.clients)).Msg("websocket client disconnected")
}

func (h *Hub) updateGaugesLocked() {
	metrics.SetHubGauges(len(h.clients), len(h.hq), len(h.owners))
}

// encode builds one outbound frame. Fan-out shares the bytes.
func (h *Hub) encode(event string, payload interface{}) ([]byte, bool) {
	data, err := json.Marshal(models.Envelope{Event: event, Data: payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return nil, false
	}
	return data, true
}

// publishHQ delivers to every HQ observer in connection id order.
func (h *Hub) publishHQ(event string, payload interface{}) int {
	if len(h.hq) == 0 {
		return 0
	}
	data, ok := h.encode(event, payload)
	if !ok {
		return 0
	}

	ids := make([]string, 0, len(h.hq))
	for id := range h.hq {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	delivered := 0
	for _, id := range ids {
		if h.enqueue(h.clients[id], event, data) {
			delivered++
		}
	}
	return delivered
}

// publishToPatrol delivers to patrolID's owning connection. An unbound
// patrol id is a silent drop.
func (h *Hub) publishToPatrol(patrolID, event string, payload interface{}) bool {
	connID, ok := h.owners[patrolID]
	if !ok {
		metrics.RecordRoutingMiss(event)
		h.log.Debug().Str("patrol_id", patrolID).Str("event", event).Msg("patrol not routable, frame dropped")
		return false
	}
	data, ok := h.encode(event, payload)
	if !ok {
		return false
	}
	return h.enqueue(h.clients[connID], event, data)
}

// broadcastAll delivers to every live connection, bound or not.
func (h *Hub) broadcastAll(event string, payload interface{}) int {
	if len(h.clients) == 0 {
		return 0
	}
	data, ok := h.encode(event, payload)
	if !ok {
		return 0
	}

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	delivered := 0
	for _, id := range ids {
		if h.enqueue(h.clients[id], event, data) {
			delivered++
		}
	}
	return delivered
}

// onlinePatrolsExcept returns owned patrol ids in sorted order, skipping
// patrolID and any slot owned by conn.
func (h *Hub) onlinePatrolsExcept(patrolID string, conn *Client) []string {
	ids := make([]string, 0, len(h.owners))
	for id, connID := range h.owners {
		if id == patrolID || connID == conn.id {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// enqueue never blocks. A full send buffer loses this frame only.
func (h *Hub) enqueue(c *Client, event string, data []byte) bool {
	if c == nil {
		return false
	}
	select {
	case c.send <- data:
		metrics.RecordFrameOut(event)
		return true
	default:
		metrics.RecordFrameDropped("send_buffer_full")
		h.log.Warn().Str("conn_id", c.id).Str("event", event).Msg("send buffer full, dropping frame")
		return false
	}
}
