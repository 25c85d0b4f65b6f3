// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/vigil/config.yaml",
	"/etc/vigil/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        3870,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		WebSocket: WebSocketConfig{
			SendBuffer:       256,
			InboundBuffer:    1024,
			WriteWait:        10 * time.Second,
			PongWait:         60 * time.Second,
			PingPeriod:       54 * time.Second,
			MaxMessageSize:   512 * 1024,
			HandshakeTimeout: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		NATS: NATSConfig{
			Enabled:            false,
			URL:                "nats://127.0.0.1:4222",
			EmbeddedServer:     true,
			StoreDir:           "/data/nats/jetstream",
			MaxMemory:          256 << 20,
			MaxStore:           2 << 30,
			StreamName:         "VIGIL_EVENTS",
			RetentionDays:      7,
			DurableName:        "vigil-recorder",
			QueueGroup:         "recorders",
			OutboxBuffer:       4096,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
			BreakerInterval:    time.Minute,
		},
		Store: StoreConfig{
			Path:              "/data/vigil",
			InMemory:          false,
			SyncWrites:        false,
			LocationRetention: 0,
			GCInterval:        10 * time.Minute,
		},
		Recorder: RecorderConfig{
			Enabled:     true,
			NearbyCount: 3,
		},
		Security: SecurityConfig{
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf layers defaults, the config file and environment variables.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// HTTP_PORT -> server.port, NATS_ENABLED -> nats.enabled, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when they arrive as strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"websocket.allowed_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unmapped variables are ignored so unrelated environment does not leak in.
var envMappings = map[string]string{
	// Server
	"http_port":    "server.port",
	"http_host":    "server.host",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	// WebSocket hub
	"ws_send_buffer":       "websocket.send_buffer",
	"ws_inbound_buffer":    "websocket.inbound_buffer",
	"ws_write_wait":        "websocket.write_wait",
	"ws_pong_wait":         "websocket.pong_wait",
	"ws_ping_period":       "websocket.ping_period",
	"ws_max_message_size":  "websocket.max_message_size",
	"ws_handshake_timeout": "websocket.handshake_timeout",
	"ws_allowed_origins":   "websocket.allowed_origins",

	// NATS
	"nats_enabled":            "nats.enabled",
	"nats_url":                "nats.url",
	"nats_embedded":           "nats.embedded_server",
	"nats_store_dir":          "nats.store_dir",
	"nats_max_memory":         "nats.max_memory",
	"nats_max_store":          "nats.max_store",
	"nats_stream":             "nats.stream_name",
	"nats_retention_days":     "nats.stream_retention_days",
	"nats_durable_name":       "nats.durable_name",
	"nats_queue_group":        "nats.queue_group",
	"outbox_buffer":           "nats.outbox_buffer",
	"outbox_breaker_failures": "nats.breaker_max_failures",
	"outbox_breaker_timeout":  "nats.breaker_timeout",
	"outbox_breaker_interval": "nats.breaker_interval",

	// Store
	"store_path":               "store.path",
	"store_in_memory":          "store.in_memory",
	"store_sync_writes":        "store.sync_writes",
	"store_location_retention": "store.location_retention",
	"store_gc_interval":        "store.gc_interval",

	// Recorder
	"recorder_enabled":      "recorder.enabled",
	"recorder_nearby_count": "recorder.nearby_count",

	// Security
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf paths.
//
//   - HTTP_PORT -> server.port
//   - NATS_ENABLED -> nats.enabled
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
