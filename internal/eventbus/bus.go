// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/vigil/internal/logging"
)

// channelTopic carries every event when the bus runs on gochannel. The
// real topic travels in MetadataTopic, as it does on NATS.
const channelTopic = "vigil.events"

// channelPublisher publishes every topic to channelTopic so a single
// subscription sees events in publish order.
type channelPublisher struct {
	*gochannel.GoChannel
}

func (p channelPublisher) Publish(_ string, msgs ...*message.Message) error {
	return p.GoChannel.Publish(channelTopic, msgs...)
}

// Bus owns the transport behind the outbox and the recorder's subscription.
type Bus struct {
	settings   Settings
	server     *EmbeddedServer
	publisher  *Publisher
	subscriber message.Subscriber
	stream     *StreamInitializer
	nc         *natsgo.Conn
	logger     watermill.LoggerAdapter

	closeOnce sync.Once
	closeErr  error
}

// NewWatermillLogger returns a Watermill logger that writes through the
// global zerolog logger.
func NewWatermillLogger() watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logging.NewSlogLoggerForComponent("eventbus"))
}

// Open builds the bus described by s. With NATS disabled it runs on an
// in-process gochannel; otherwise it optionally starts an embedded server,
// makes sure the stream exists and connects a publisher and a durable
// subscriber.
func Open(ctx context.Context, s Settings) (*Bus, error) {
	b := &Bus{settings: s, logger: NewWatermillLogger()}

	if !s.Enabled {
		// Blocking until the subscriber acks keeps the recorder's view in
		// publish order across topics.
		gc := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            s.ChannelBuffer,
			BlockPublishUntilSubscriberAck: true,
		}, b.logger)
		b.publisher = WrapPublisher(channelPublisher{gc})
		b.subscriber = gc
		b.attachBreaker()
		logging.Info().Msg("event bus running on in-process channels")
		return b, nil
	}

	if err := b.openNATS(ctx); err != nil {
		_ = b.Close(context.Background())
		return nil, err
	}
	b.attachBreaker()
	return b, nil
}

func (b *Bus) openNATS(ctx context.Context) error {
	s := b.settings
	url := s.Publisher.URL

	if s.EmbeddedServer {
		srv, err := NewEmbeddedServer(&s.Server)
		if err != nil {
			return fmt.Errorf("start embedded NATS: %w", err)
		}
		b.server = srv
		url = srv.ClientURL()
		logging.Info().Str("url", url).Msg("embedded NATS server started")
	}

	nc, err := natsgo.Connect(url, natsgo.Name("vigil-admin"))
	if err != nil {
		return fmt.Errorf("connect NATS %s: %w", url, err)
	}
	b.nc = nc

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	b.stream, err = NewStreamInitializer(js, &s.Stream)
	if err != nil {
		return err
	}
	if _, err := b.stream.EnsureStream(ctx); err != nil {
		return err
	}

	pubCfg := s.Publisher
	pubCfg.URL = url
	b.publisher, err = NewNATSPublisher(pubCfg, b.logger)
	if err != nil {
		return err
	}

	subCfg := s.Subscriber
	subCfg.URL = url
	b.subscriber, err = NewNATSSubscriber(&subCfg, b.logger)
	if err != nil {
		return err
	}

	logging.Info().
		Str("url", url).
		Str("stream", s.Stream.Name).
		Str("durable", subCfg.DurableName).
		Msg("event bus connected to NATS JetStream")
	return nil
}

func (b *Bus) attachBreaker() {
	b.publisher.SetCircuitBreaker(NewCircuitBreaker(b.settings.Breaker))
}

// Publisher returns the breaker-wrapped publisher.
func (b *Bus) Publisher() *Publisher {
	return b.publisher
}

// NewOutbox creates an outbox on this bus sized from settings.
func (b *Bus) NewOutbox() *Outbox {
	return NewOutbox(b.publisher, b.settings.OutboxBuffer)
}

// EmbeddedServer returns the embedded NATS server, or nil.
func (b *Bus) EmbeddedServer() *EmbeddedServer {
	return b.server
}

// Events subscribes to every hub topic. On NATS this is a single durable
// subscription to the stream's wildcard subject; on gochannel it is the one
// channel topic. The channel closes when ctx ends or the bus is closed.
func (b *Bus) Events(ctx context.Context) (<-chan *message.Message, error) {
	topic := StreamSubjects
	if !b.settings.Enabled {
		topic = channelTopic
	}
	msgs, err := b.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	return msgs, nil
}

// Healthy reports whether the transport is usable.
func (b *Bus) Healthy(ctx context.Context) bool {
	if !b.settings.Enabled {
		return true
	}
	if b.nc == nil || !b.nc.IsConnected() {
		return false
	}
	return b.stream != nil && b.stream.IsHealthy(ctx)
}

// Close closes the publisher, the subscriber and the admin connection, and
// shuts the embedded server down if it is still running.
func (b *Bus) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		var errs []error
		if b.publisher != nil {
			if err := b.publisher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close publisher: %w", err))
			}
		}
		// gochannel is both publisher and subscriber.
		if b.subscriber != nil && b.settings.Enabled {
			if err := b.subscriber.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close subscriber: %w", err))
			}
		}
		if b.nc != nil {
			b.nc.Close()
		}
		if b.server != nil && b.server.IsRunning() {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := b.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown NATS server: %w", err))
			}
		}
		b.closeErr = errors.Join(errs...)
	})
	return b.closeErr
}
