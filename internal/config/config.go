// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package config loads Vigil's configuration.
//
// Loading order (koanf v2):
//  1. Defaults from defaultConfig()
//  2. Optional YAML file (CONFIG_PATH, config.yaml, /etc/vigil/config.yaml)
//  3. Environment variables mapped through envTransformFunc
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	WebSocket WebSocketConfig `koanf:"websocket"`
	NATS      NATSConfig      `koanf:"nats"`
	Store     StoreConfig     `koanf:"store"`
	Recorder  RecorderConfig  `koanf:"recorder"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// WebSocketConfig tunes the hub transport.
//
// Environment Variables:
//   - WS_SEND_BUFFER: per-connection outbound queue length (default: 256)
//   - WS_INBOUND_BUFFER: hub inbound frame queue length (default: 1024)
//   - WS_PING_PERIOD / WS_PONG_WAIT / WS_WRITE_WAIT: keepalive timings
//   - WS_MAX_MESSAGE_SIZE: largest accepted inbound frame in bytes
//   - WS_ALLOWED_ORIGINS: comma-separated Origin allow list ("*" allows all)
type WebSocketConfig struct {
	SendBuffer       int           `koanf:"send_buffer"`
	InboundBuffer    int           `koanf:"inbound_buffer"`
	WriteWait        time.Duration `koanf:"write_wait"`
	PongWait         time.Duration `koanf:"pong_wait"`
	PingPeriod       time.Duration `koanf:"ping_period"`
	MaxMessageSize   int64         `koanf:"max_message_size"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	AllowedOrigins   []string      `koanf:"allowed_origins"`
}

// NATSConfig holds event bus settings. When Enabled is false the outbox
// falls back to an in-process watermill gochannel.
//
// Environment Variables:
//   - NATS_ENABLED: publish hub events to NATS JetStream (default: false)
//   - NATS_URL: server URL (default: nats://127.0.0.1:4222)
//   - NATS_EMBEDDED: run an embedded nats-server (default: true)
//   - NATS_STORE_DIR: JetStream storage directory for the embedded server
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`
	StreamName     string `koanf:"stream_name"`
	RetentionDays  int    `koanf:"stream_retention_days"`
	DurableName    string `koanf:"durable_name"`
	QueueGroup     string `koanf:"queue_group"`

	// OutboxBuffer bounds the hub-side queue of events awaiting publish.
	OutboxBuffer int `koanf:"outbox_buffer"`

	// Circuit breaker around publishes.
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
	BreakerInterval    time.Duration `koanf:"breaker_interval"`
}

// StoreConfig holds badger settings for the recorder.
type StoreConfig struct {
	Path       string `koanf:"path"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`
	// LocationRetention drops location history older than this via badger TTL.
	// Zero keeps history forever.
	LocationRetention time.Duration `koanf:"location_retention"`
	GCInterval        time.Duration `koanf:"gc_interval"`
}

// RecorderConfig controls the persistence collaborator.
type RecorderConfig struct {
	Enabled bool `koanf:"enabled"`
	// NearbyCount is how many patrols are attached to a stored SOS alert.
	NearbyCount int `koanf:"nearby_count"`
}

// SecurityConfig holds HTTP edge settings. Authentication is out of scope.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}

// Load reads configuration from defaults, an optional config file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// IsProduction reports whether ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
