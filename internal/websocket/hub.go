// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/vigil/internal/config"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/models"
)

// ErrHubStopped is returned by Attach once the hub has shut down.
var ErrHubStopped = errors.New("websocket hub stopped")

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Outbox receives domain events from the hub. Enqueue must not block; an
// implementation that cannot accept the event drops it.
type Outbox interface {
	Enqueue(topic string, payload interface{})
}

type noopOutbox struct{}

func (noopOutbox) Enqueue(string, interface{}) {}

// Options tunes a Hub. Zero fields fall back to DefaultOptions.
type Options struct {
	SendBuffer     int
	InboundBuffer  int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64

	// Now stamps startTime, endTime and alert timestamps.
	Now func() time.Time
	// NewID generates SOS and call ids as "<prefix>_<id>".
	NewID func(prefix string) string
}

// DefaultOptions returns the built-in transport limits.
func DefaultOptions() Options {
	return Options{
		SendBuffer:     256,
		InboundBuffer:  1024,
		WriteWait:      writeWait,
		PongWait:       pongWait,
		PingPeriod:     pingPeriod,
		MaxMessageSize: maxMessageSize,
		Now:            func() time.Time { return time.Now().UTC() },
		NewID:          newTimeOrderedID,
	}
}

// OptionsFromConfig maps the websocket config section onto Options.
func OptionsFromConfig(cfg *config.WebSocketConfig) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	opts.SendBuffer = cfg.SendBuffer
	opts.InboundBuffer = cfg.InboundBuffer
	opts.WriteWait = cfg.WriteWait
	opts.PongWait = cfg.PongWait
	opts.PingPeriod = cfg.PingPeriod
	opts.MaxMessageSize = cfg.MaxMessageSize
	return opts
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.InboundBuffer <= 0 {
		o.InboundBuffer = d.InboundBuffer
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	if o.NewID == nil {
		o.NewID = d.NewID
	}
	return o
}

// newTimeOrderedID returns prefix_<uuidv7>. Falls back to v4 if the v7
// generator fails.
func newTimeOrderedID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "_" + id.String()
}

// inboundFrame is a frame, or a disconnect when leave is set. Disconnects
// share the queue with frames so they are handled after everything the
// connection sent before it went away.
type inboundFrame struct {
	client *Client
	frame  models.Frame
	leave  bool
}

// Hub owns the connection registry. All mutation happens on the goroutine
// running RunWithContext; mu only lets snapshot readers (health, API) run
// alongside it.
type Hub struct {
	Register chan *Client
	inbound  chan inboundFrame

	done     chan struct{}
	doneOnce sync.Once

	opts   Options
	outbox Outbox
	log    zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client  // conn id -> client
	hq      map[string]struct{} // HQ audience, by conn id
	owners  map[string]string   // patrol id -> owning conn id
}

// NewHub creates a Hub. A nil outbox discards domain events.
func NewHub(opts Options, outbox Outbox) *Hub {
	if outbox == nil {
		outbox = noopOutbox{}
	}
	opts = opts.withDefaults()
	return &Hub{
		Register: make(chan *Client),
		inbound:  make(chan inboundFrame, opts.InboundBuffer),
		done:     make(chan struct{}),
		opts:     opts,
		outbox:   outbox,
		log:      logging.WithComponent("hub"),
		clients:  make(map[string]*Client),
		hq:       make(map[string]struct{}),
		owners:   make(map[string]string),
	}
}

// RunWithContext runs the hub until ctx is canceled, then closes every
// client and returns ctx.Err().
//
// Selection is priority based: shutdown first, then registrations, then
// inbound frames and disconnects, so a frame from a connection is never
// handled before that connection's registration.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: shutdown
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: registrations
		select {
		case client := <-h.Register:
			h.register(client)
			continue
		default:
		}

		// Priority 3: frames, or block on anything
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case in := <-h.inbound:
			if in.leave {
				h.unbind(in.client)
				continue
			}
			h.handleFrame(in.client, in.frame)
		}
	}
}

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Attach registers conn with the hub and starts its pumps. It fails without
// touching conn when the hub has stopped or ctx ends first; the caller then
// owns conn and must close it.
func (h *Hub) Attach(ctx context.Context, conn *websocket.Conn) error {
	client := NewClient(h, conn)
	select {
	case h.Register <- client:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	client.Start()
	return nil
}

func (h *Hub) shutdown(ctx context.Context) {
	count := h.ConnectionCount()
	h.closeAllClients()
	h.doneOnce.Do(func() { close(h.done) })

	h.log.Info().
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients closes every send channel in connection id order.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		close(h.clients[id].send)
	}
	h.clients = make(map[string]*Client)
	h.hq = make(map[string]struct{})
	h.owners = make(map[string]string)
	h.updateGaugesLocked()
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Connections   int `json:"connections"`
	HQObservers   int `json:"hqObservers"`
	OnlinePatrols int `json:"onlinePatrols"`
}

// Stats returns current registry counts.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Connections:   len(h.clients),
		HQObservers:   len(h.hq),
		OnlinePatrols: len(h.owners),
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnlinePatrols returns the routable patrol ids, sorted.
func (h *Hub) OnlinePatrols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.owners))
	for id := range h.owners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsOnline reports whether patrolID currently has an owning connection.
func (h *Hub) IsOnline(patrolID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.owners[patrolID]
	return ok
}
