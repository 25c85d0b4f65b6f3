// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/vigil/internal/config"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

// channelSettings returns gochannel settings with a small outbox.
func channelSettings(t *testing.T) Settings {
	t.Helper()
	s, err := SettingsFromConfig(&config.NATSConfig{OutboxBuffer: 16})
	if err != nil {
		t.Fatalf("SettingsFromConfig: %v", err)
	}
	return s
}

func openChannelBus(t *testing.T) *Bus {
	t.Helper()
	b, err := Open(context.Background(), channelSettings(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

func receive(t *testing.T, msgs <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg, ok := <-msgs:
		if !ok {
			t.Fatal("event channel closed")
		}
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

// failingPublisher fails every publish.
type failingPublisher struct {
	mu    sync.Mutex
	calls int
}

func (f *failingPublisher) Publish(string, ...*message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("broker unavailable")
}

func (f *failingPublisher) Close() error { return nil }

// capturingPublisher records every message.
type capturingPublisher struct {
	mu     sync.Mutex
	topics []string
	msgs   []*message.Message
}

func (c *capturingPublisher) Publish(topic string, msgs ...*message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.topics = append(c.topics, topic)
		c.msgs = append(c.msgs, m)
	}
	return nil
}

func (c *capturingPublisher) Close() error { return nil }

func (c *capturingPublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.NATSConfig{
		Enabled:            true,
		URL:                "nats://10.0.0.5:4333",
		EmbeddedServer:     true,
		StoreDir:           "/tmp/js",
		MaxMemory:          1 << 20,
		StreamName:         "TEST_EVENTS",
		RetentionDays:      2,
		DurableName:        "rec",
		QueueGroup:         "qg",
		OutboxBuffer:       10,
		BreakerMaxFailures: 7,
		BreakerTimeout:     time.Second,
	}
	s, err := SettingsFromConfig(cfg)
	if err != nil {
		t.Fatalf("SettingsFromConfig: %v", err)
	}

	if s.Server.Host != "10.0.0.5" || s.Server.Port != 4333 {
		t.Errorf("server addr = %s:%d", s.Server.Host, s.Server.Port)
	}
	if s.Server.StoreDir != "/tmp/js" || s.Server.JetStreamMaxMem != 1<<20 {
		t.Errorf("server limits not applied: %+v", s.Server)
	}
	if s.Stream.Name != "TEST_EVENTS" || s.Subscriber.StreamName != "TEST_EVENTS" {
		t.Errorf("stream name not applied: %q %q", s.Stream.Name, s.Subscriber.StreamName)
	}
	if s.Stream.MaxAge != 48*time.Hour {
		t.Errorf("MaxAge = %v, want 48h", s.Stream.MaxAge)
	}
	if s.Stream.Subjects[0] != "vigil.>" {
		t.Errorf("subjects = %v", s.Stream.Subjects)
	}
	if s.Subscriber.DurableName != "rec" || s.Subscriber.QueueGroup != "qg" {
		t.Errorf("subscriber = %+v", s.Subscriber)
	}
	if s.Breaker.FailureThreshold != 7 || s.Breaker.Timeout != time.Second {
		t.Errorf("breaker = %+v", s.Breaker)
	}
	if s.OutboxBuffer != 10 {
		t.Errorf("OutboxBuffer = %d", s.OutboxBuffer)
	}
}

func TestSettingsFromConfig_BadURL(t *testing.T) {
	tests := []string{"nats://no-port", "://bad", "nats://host:abc"}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := SettingsFromConfig(&config.NATSConfig{Enabled: true, EmbeddedServer: true, URL: raw})
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}

	// The URL is only parsed for the embedded server.
	if _, err := SettingsFromConfig(&config.NATSConfig{Enabled: true, URL: "nats://no-port"}); err != nil {
		t.Errorf("external server should not need a port: %v", err)
	}
}

func TestCircuitBreaker_OpensAndRecords(t *testing.T) {
	cfg := CircuitBreakerConfig{
		Name:             "test-open",
		MaxRequests:      1,
		Interval:         time.Second,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	}
	cb := NewCircuitBreaker(cfg)
	if got := CircuitBreakerState(cb); got != "closed" {
		t.Fatalf("initial state = %s", got)
	}

	pub := WrapPublisher(&failingPublisher{})
	pub.SetCircuitBreaker(cb)
	for i := 0; i < 2; i++ {
		_ = pub.Publish(context.Background(), "t", message.NewMessage("id", nil))
	}

	if got := CircuitBreakerState(cb); got != "open" {
		t.Fatalf("state after failures = %s, want open", got)
	}
	if v := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("test-open")); v != 2 {
		t.Errorf("state gauge = %v, want 2", v)
	}
	if v := testutil.ToFloat64(metrics.CircuitBreakerTransitions.WithLabelValues("test-open", "closed", "open")); v != 1 {
		t.Errorf("transition counter = %v, want 1", v)
	}
}

func TestPublisher_SetsMsgIDAndRejectsAfterClose(t *testing.T) {
	capture := &capturingPublisher{}
	pub := WrapPublisher(capture)

	msg := message.NewMessage("uuid-1", []byte("{}"))
	if err := pub.Publish(context.Background(), "vigil.sos.status", msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := msg.Metadata.Get(natsgo.MsgIdHdr); got != "uuid-1" {
		t.Errorf("Nats-Msg-Id = %q, want uuid-1", got)
	}

	preset := message.NewMessage("uuid-2", nil)
	preset.Metadata.Set(natsgo.MsgIdHdr, "custom")
	_ = pub.Publish(context.Background(), "t", preset)
	if got := preset.Metadata.Get(natsgo.MsgIdHdr); got != "custom" {
		t.Errorf("preset Nats-Msg-Id overwritten: %q", got)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := pub.Publish(context.Background(), "t", message.NewMessage("x", nil)); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("Publish after Close = %v, want ErrPublisherClosed", err)
	}
}

func TestOutbox_PublishesWithMetadata(t *testing.T) {
	capture := &capturingPublisher{}
	o := NewOutbox(WrapPublisher(capture), 8)

	before := testutil.ToFloat64(metrics.OutboxPublished.WithLabelValues(models.TopicSOSStatus))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Serve(ctx) }()

	o.Enqueue(models.TopicSOSStatus, models.SOSStatusEvent{SOSID: "sos_1", Status: models.SOSStatusResolved})

	deadline := time.Now().Add(2 * time.Second)
	for capture.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v", err)
	}

	if capture.count() != 1 {
		t.Fatalf("published %d messages, want 1", capture.count())
	}
	msg := capture.msgs[0]
	if capture.topics[0] != models.TopicSOSStatus {
		t.Errorf("topic = %q", capture.topics[0])
	}
	if msg.Metadata.Get(MetadataTopic) != models.TopicSOSStatus {
		t.Errorf("topic metadata = %q", msg.Metadata.Get(MetadataTopic))
	}
	if msg.Metadata.Get(natsgo.MsgIdHdr) != msg.UUID {
		t.Errorf("Nats-Msg-Id = %q, want %q", msg.Metadata.Get(natsgo.MsgIdHdr), msg.UUID)
	}
	if _, err := time.Parse(time.RFC3339Nano, msg.Metadata.Get(MetadataPublishedAt)); err != nil {
		t.Errorf("published_at: %v", err)
	}

	var ev models.SOSStatusEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if ev.SOSID != "sos_1" || ev.Status != models.SOSStatusResolved {
		t.Errorf("payload = %+v", ev)
	}

	after := testutil.ToFloat64(metrics.OutboxPublished.WithLabelValues(models.TopicSOSStatus))
	if after-before != 1 {
		t.Errorf("published counter delta = %v, want 1", after-before)
	}
}

func TestOutbox_FullBufferDrops(t *testing.T) {
	o := NewOutbox(WrapPublisher(&capturingPublisher{}), 2)
	before := testutil.ToFloat64(metrics.OutboxDropped.WithLabelValues(models.TopicLocation))

	// Not serving, so the buffer fills up.
	for i := 0; i < 5; i++ {
		o.Enqueue(models.TopicLocation, map[string]int{"i": i})
	}

	if o.Pending() != 2 {
		t.Errorf("Pending = %d, want 2", o.Pending())
	}
	if d := testutil.ToFloat64(metrics.OutboxDropped.WithLabelValues(models.TopicLocation)) - before; d != 3 {
		t.Errorf("dropped delta = %v, want 3", d)
	}
}

func TestOutbox_FailedPublishIsCounted(t *testing.T) {
	o := NewOutbox(WrapPublisher(&failingPublisher{}), 4)
	before := testutil.ToFloat64(metrics.OutboxFailed.WithLabelValues(models.TopicSession))

	o.Enqueue(models.TopicSession, models.SessionEvent{PatrolID: "P1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// A canceled context still drains what is queued.
	_ = o.Serve(ctx)

	if d := testutil.ToFloat64(metrics.OutboxFailed.WithLabelValues(models.TopicSession)) - before; d != 1 {
		t.Errorf("failed delta = %v, want 1", d)
	}
	if o.Pending() != 0 {
		t.Errorf("Pending = %d after drain", o.Pending())
	}
}

func TestOutbox_Closed(t *testing.T) {
	capture := &capturingPublisher{}
	o := NewOutbox(WrapPublisher(capture), 4)
	o.Enqueue(models.TopicPresence, models.PresenceEvent{PatrolID: "P1", Online: true})
	o.Close()

	if err := o.Publish(context.Background(), models.TopicPresence, nil); !errors.Is(err, ErrOutboxClosed) {
		t.Errorf("Publish after Close = %v, want ErrOutboxClosed", err)
	}
	if err := o.Serve(context.Background()); !errors.Is(err, ErrOutboxClosed) {
		t.Errorf("Serve after Close = %v, want ErrOutboxClosed", err)
	}

	before := testutil.ToFloat64(metrics.OutboxDropped.WithLabelValues(models.TopicPresence))
	o.Enqueue(models.TopicPresence, models.PresenceEvent{PatrolID: "P1"})
	if d := testutil.ToFloat64(metrics.OutboxDropped.WithLabelValues(models.TopicPresence)) - before; d != 1 {
		t.Errorf("Enqueue after Close should drop, delta = %v", d)
	}
	if o.Pending() != 1 {
		t.Errorf("Pending = %d, want the one event queued before Close", o.Pending())
	}
}

func TestBus_ChannelEvents(t *testing.T) {
	b := openChannelBus(t)
	if !b.Healthy(context.Background()) {
		t.Error("channel bus should be healthy")
	}
	if b.EmbeddedServer() != nil {
		t.Error("channel bus has no embedded server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := b.Events(ctx)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}

	// Publishes block until the subscriber acks, so they run beside the
	// reader. Order holds across topics.
	topics := []string{
		models.TopicPresence,
		models.TopicLocation,
		models.TopicSOSTriggered,
		models.TopicLocation,
		models.TopicSession,
	}
	o := b.NewOutbox()
	published := make(chan error, 1)
	go func() {
		for i, topic := range topics {
			if err := o.Publish(ctx, topic, map[string]int{"seq": i}); err != nil {
				published <- fmt.Errorf("publish %s: %w", topic, err)
				return
			}
		}
		published <- nil
	}()

	for i, want := range topics {
		msg := receive(t, msgs)
		var body map[string]int
		if err := json.Unmarshal(msg.Payload, &body); err != nil {
			t.Fatal(err)
		}
		if got := msg.Metadata.Get(MetadataTopic); got != want || body["seq"] != i {
			t.Errorf("message %d = %s seq %d, want %s seq %d", i, got, body["seq"], want, i)
		}
	}
	if err := <-published; err != nil {
		t.Fatal(err)
	}

	cancel()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Error("expected channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Error("event channel did not close after cancel")
	}
}

func TestBus_CloseIdempotent(t *testing.T) {
	b, err := Open(context.Background(), channelSettings(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.Close(context.Background()); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := b.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := b.Publisher().Publish(context.Background(), "t", message.NewMessage("x", nil)); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("publish after Close = %v", err)
	}
}

// mockJetStream implements JetStreamContext.
type mockJetStream struct {
	exists    bool
	streamErr error
	created   []jetstream.StreamConfig
	updated   []jetstream.StreamConfig
}

func (m *mockJetStream) Stream(context.Context, string) (jetstream.Stream, error) {
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	if !m.exists {
		return nil, jetstream.ErrStreamNotFound
	}
	return nil, nil
}

func (m *mockJetStream) CreateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	m.created = append(m.created, cfg)
	m.exists = true
	return nil, nil
}

func (m *mockJetStream) UpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	m.updated = append(m.updated, cfg)
	return nil, nil
}

func TestStreamInitializer(t *testing.T) {
	cfg := DefaultStreamConfig()

	t.Run("creates then updates", func(t *testing.T) {
		js := &mockJetStream{}
		si, err := NewStreamInitializer(js, &cfg)
		if err != nil {
			t.Fatalf("NewStreamInitializer: %v", err)
		}
		if si.IsHealthy(context.Background()) {
			t.Error("missing stream should not be healthy")
		}
		if _, err := si.EnsureStream(context.Background()); err != nil {
			t.Fatalf("EnsureStream: %v", err)
		}
		if _, err := si.EnsureStream(context.Background()); err != nil {
			t.Fatalf("second EnsureStream: %v", err)
		}
		if len(js.created) != 1 || len(js.updated) != 1 {
			t.Fatalf("created=%d updated=%d, want 1 and 1", len(js.created), len(js.updated))
		}
		got := js.created[0]
		if got.Name != "VIGIL_EVENTS" || got.Subjects[0] != "vigil.>" {
			t.Errorf("stream config = %+v", got)
		}
		if got.Storage != jetstream.FileStorage || got.Duplicates != 2*time.Minute {
			t.Errorf("storage=%v duplicates=%v", got.Storage, got.Duplicates)
		}
		if !si.IsHealthy(context.Background()) {
			t.Error("stream should be healthy after creation")
		}
	})

	t.Run("lookup error", func(t *testing.T) {
		boom := errors.New("boom")
		si, _ := NewStreamInitializer(&mockJetStream{streamErr: boom}, &cfg)
		if _, err := si.EnsureStream(context.Background()); !errors.Is(err, boom) {
			t.Errorf("err = %v, want wrapped boom", err)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if _, err := NewStreamInitializer(nil, &cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("nil js: %v", err)
		}
		if _, err := NewStreamInitializer(&mockJetStream{}, nil); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("nil cfg: %v", err)
		}
		if _, err := NewStreamInitializer(&mockJetStream{}, &StreamConfig{Name: "X"}); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("no subjects: %v", err)
		}
	})
}
