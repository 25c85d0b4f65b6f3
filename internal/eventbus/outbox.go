// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package eventbus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
)

const (
	// MetadataTopic carries the event topic. The recorder reads it instead
	// of the transport subject so gochannel and NATS look the same.
	MetadataTopic = "vigil_topic"

	// MetadataPublishedAt is the RFC3339Nano time the outbox published.
	MetadataPublishedAt = "vigil_published_at"
)

type outboxItem struct {
	topic   string
	payload interface{}
}

// Outbox buffers hub events and publishes them from its own goroutine.
// Enqueue never blocks: when the buffer is full the event is dropped,
// counted and logged.
type Outbox struct {
	publisher *Publisher
	queue     chan outboxItem
	closed    atomic.Bool
	log       zerolog.Logger

	publishTimeout time.Duration
}

// NewOutbox creates an Outbox with room for buffer pending events.
func NewOutbox(publisher *Publisher, buffer int) *Outbox {
	if buffer <= 0 {
		buffer = 4096
	}
	return &Outbox{
		publisher:      publisher,
		queue:          make(chan outboxItem, buffer),
		log:            logging.WithComponent("outbox"),
		publishTimeout: 5 * time.Second,
	}
}

// Enqueue implements websocket.Outbox.
func (o *Outbox) Enqueue(topic string, payload interface{}) {
	if o.closed.Load() {
		metrics.RecordOutbox(topic, "dropped")
		return
	}
	select {
	case o.queue <- outboxItem{topic: topic, payload: payload}:
		metrics.OutboxQueueDepth.Set(float64(len(o.queue)))
	default:
		metrics.RecordOutbox(topic, "dropped")
		o.log.Warn().Str("topic", topic).Int("capacity", cap(o.queue)).Msg("outbox full, event dropped")
	}
}

// Pending returns the number of queued events.
func (o *Outbox) Pending() int {
	return len(o.queue)
}

// Serve implements suture.Service. It publishes queued events until ctx is
// canceled, then publishes whatever is still queued and returns.
func (o *Outbox) Serve(ctx context.Context) error {
	if o.closed.Load() {
		return ErrOutboxClosed
	}
	for {
		select {
		case <-ctx.Done():
			o.drain()
			return ctx.Err()
		case item := <-o.queue:
			metrics.OutboxQueueDepth.Set(float64(len(o.queue)))
			o.deliver(ctx, item)
		}
	}
}

// drain publishes everything already queued without waiting for more.
func (o *Outbox) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), o.publishTimeout)
	defer cancel()
	n := 0
	for {
		select {
		case item := <-o.queue:
			o.deliver(ctx, item)
			n++
		default:
			metrics.OutboxQueueDepth.Set(0)
			if n > 0 {
				o.log.Info().Int("events", n).Msg("outbox drained")
			}
			return
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, item outboxItem) {
	if err := o.publish(ctx, item.topic, item.payload); err != nil {
		metrics.RecordOutbox(item.topic, "failed")
		o.log.Warn().Err(err).Str("topic", item.topic).Msg("failed to publish event")
		return
	}
	metrics.RecordOutbox(item.topic, "published")
}

// Publish encodes payload and publishes it to topic synchronously.
func (o *Outbox) Publish(ctx context.Context, topic string, payload interface{}) error {
	if o.closed.Load() {
		return ErrOutboxClosed
	}
	return o.publish(ctx, topic, payload)
}

func (o *Outbox) publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetadataTopic, topic)
	msg.Metadata.Set(MetadataPublishedAt, time.Now().UTC().Format(time.RFC3339Nano))

	if err := o.publisher.Publish(ctx, topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close stops accepting events. Events still queued are published by a
// running Serve when its context ends.
func (o *Outbox) Close() {
	o.closed.Store(true)
}

// String implements fmt.Stringer for suture logging.
func (o *Outbox) String() string {
	return "event-outbox"
}
