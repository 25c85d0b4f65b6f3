// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package eventbus

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/vigil/internal/config"
)

// StreamSubjects covers every topic the hub publishes.
const StreamSubjects = "vigil.>"

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultServerConfig returns defaults for the embedded NATS server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          "/data/nats/jetstream",
		JetStreamMaxMem:   256 << 20, // 256MB
		JetStreamMaxStore: 2 << 30,   // 2GB
	}
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool // nolint:revive // ID is correct per Go conventions
}

// DefaultPublisherConfig returns production defaults for publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		MaxReconnects:    -1, // Unlimited
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024, // 8MB
		EnableTrackMsgID: true,
	}
}

// SubscriberConfig holds durable subscriber configuration.
type SubscriberConfig struct {
	URL              string
	DurableName      string
	QueueGroup       string
	StreamName       string
	SubscribersCount int
	MaxDeliver       int
	MaxAckPending    int
	AckWaitTimeout   time.Duration
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration
}

// DefaultSubscriberConfig returns production defaults for the recorder's
// subscriber. A single processor keeps per-patrol events in order.
func DefaultSubscriberConfig(url string) SubscriberConfig {
	return SubscriberConfig{
		URL:              url,
		DurableName:      "vigil-recorder",
		QueueGroup:       "recorders",
		StreamName:       "VIGIL_EVENTS",
		SubscribersCount: 1,
		MaxDeliver:       5,
		MaxAckPending:    1000,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     30 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
	}
}

// StreamConfig holds JetStream stream configuration.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns the VIGIL_EVENTS stream definition.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:            "VIGIL_EVENTS",
		Subjects:        []string{StreamSubjects},
		MaxAge:          7 * 24 * time.Hour,
		MaxBytes:        -1,
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultCircuitBreakerConfig returns production defaults for circuit breaker.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Settings is the resolved bus configuration.
type Settings struct {
	Enabled        bool
	EmbeddedServer bool
	Server         ServerConfig
	Publisher      PublisherConfig
	Subscriber     SubscriberConfig
	Stream         StreamConfig
	Breaker        CircuitBreakerConfig
	OutboxBuffer   int

	// ChannelBuffer sizes the gochannel output buffers.
	ChannelBuffer int64
}

// SettingsFromConfig maps the nats config section onto bus settings. The
// embedded server listens on the host and port of nats.url.
func SettingsFromConfig(cfg *config.NATSConfig) (Settings, error) {
	s := Settings{
		Server:        DefaultServerConfig(),
		Publisher:     DefaultPublisherConfig(cfg.URL),
		Subscriber:    DefaultSubscriberConfig(cfg.URL),
		Stream:        DefaultStreamConfig(),
		Breaker:       DefaultCircuitBreakerConfig("nats-publisher"),
		OutboxBuffer:  cfg.OutboxBuffer,
		ChannelBuffer: 256,
	}
	s.Enabled = cfg.Enabled
	s.EmbeddedServer = cfg.EmbeddedServer

	if cfg.StreamName != "" {
		s.Stream.Name = cfg.StreamName
		s.Subscriber.StreamName = cfg.StreamName
	}
	if cfg.RetentionDays > 0 {
		s.Stream.MaxAge = time.Duration(cfg.RetentionDays) * 24 * time.Hour
	}
	if cfg.DurableName != "" {
		s.Subscriber.DurableName = cfg.DurableName
	}
	if cfg.QueueGroup != "" {
		s.Subscriber.QueueGroup = cfg.QueueGroup
	}
	if cfg.BreakerMaxFailures > 0 {
		s.Breaker.FailureThreshold = cfg.BreakerMaxFailures
	}
	if cfg.BreakerTimeout > 0 {
		s.Breaker.Timeout = cfg.BreakerTimeout
	}
	if cfg.BreakerInterval > 0 {
		s.Breaker.Interval = cfg.BreakerInterval
	}
	if s.OutboxBuffer <= 0 {
		s.OutboxBuffer = 4096
	}

	if cfg.StoreDir != "" {
		s.Server.StoreDir = cfg.StoreDir
	}
	if cfg.MaxMemory > 0 {
		s.Server.JetStreamMaxMem = cfg.MaxMemory
	}
	if cfg.MaxStore > 0 {
		s.Server.JetStreamMaxStore = cfg.MaxStore
	}

	if s.Enabled && s.EmbeddedServer {
		host, port, err := hostPort(cfg.URL)
		if err != nil {
			return Settings{}, err
		}
		s.Server.Host = host
		s.Server.Port = port
	}
	return s, nil
}

func hostPort(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, fmt.Errorf("%w: nats url %q: %v", ErrInvalidConfig, raw, err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", 0, fmt.Errorf("%w: nats url %q: %v", ErrInvalidConfig, raw, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: nats url port %q", ErrInvalidConfig, portStr)
	}
	return host, port, nil
}
