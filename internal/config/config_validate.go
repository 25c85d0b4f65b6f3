// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package config

import (
	"fmt"
	"net/url"
	"time"
)

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateWebSocket(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateRecorder(); err != nil {
		return err
	}
	if err := c.validateRateLimits(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

// validateWebSocket enforces the keepalive relationship gorilla relies on:
// pings must go out before the peer's read deadline expires.
func (c *Config) validateWebSocket() error {
	ws := c.WebSocket
	if ws.SendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be at least 1")
	}
	if ws.InboundBuffer < 1 {
		return fmt.Errorf("WS_INBOUND_BUFFER must be at least 1")
	}
	if ws.WriteWait <= 0 || ws.PongWait <= 0 || ws.PingPeriod <= 0 {
		return fmt.Errorf("WS_WRITE_WAIT, WS_PONG_WAIT and WS_PING_PERIOD must be positive")
	}
	if ws.PingPeriod >= ws.PongWait {
		return fmt.Errorf("WS_PING_PERIOD (%s) must be shorter than WS_PONG_WAIT (%s)", ws.PingPeriod, ws.PongWait)
	}
	if ws.MaxMessageSize < 1024 {
		return fmt.Errorf("WS_MAX_MESSAGE_SIZE must be at least 1024 bytes")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if c.NATS.OutboxBuffer < 1 {
		return fmt.Errorf("OUTBOX_BUFFER must be at least 1")
	}
	if c.NATS.BreakerMaxFailures == 0 {
		return fmt.Errorf("OUTBOX_BREAKER_FAILURES must be at least 1")
	}
	if !c.NATS.Enabled {
		return nil
	}

	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	if c.NATS.StreamName == "" {
		return fmt.Errorf("NATS_STREAM is required when NATS_ENABLED=true")
	}
	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
	}
	if c.NATS.RetentionDays < 1 || c.NATS.RetentionDays > 3650 {
		return fmt.Errorf("NATS_RETENTION_DAYS must be between 1 and 3650")
	}
	return nil
}

func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsedURL.Scheme] {
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222)")
	}
	return nil
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required unless STORE_IN_MEMORY=true")
	}
	if c.Store.LocationRetention < 0 {
		return fmt.Errorf("STORE_LOCATION_RETENTION must not be negative")
	}
	if c.Store.LocationRetention > 0 && c.Store.LocationRetention < time.Minute {
		return fmt.Errorf("STORE_LOCATION_RETENTION must be at least 1m when set")
	}
	return nil
}

func (c *Config) validateRecorder() error {
	if c.Recorder.NearbyCount < 0 || c.Recorder.NearbyCount > 20 {
		return fmt.Errorf("RECORDER_NEARBY_COUNT must be between 0 and 20")
	}
	return nil
}

func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
	}
	if c.Security.RateLimitWindow < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}
