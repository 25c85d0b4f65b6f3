// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/config"
	"github.com/tomtom215/vigil/internal/logging"
)

// Errors
var (
	// ErrNotFound is returned when a patrol or alert does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

const (
	prefixPatrol   = "patrol:"
	prefixLocation = "loc:"
	prefixSOS      = "sos:"
)

// Config holds BadgerDB settings.
type Config struct {
	Path              string
	InMemory          bool
	SyncWrites        bool
	Compression       bool
	LocationRetention time.Duration
	GCInterval        time.Duration
	GCRatio           float64
	CloseTimeout      time.Duration
}

// ConfigFromSettings maps the store config section onto Config.
func ConfigFromSettings(cfg *config.StoreConfig) Config {
	return Config{
		Path:              cfg.Path,
		InMemory:          cfg.InMemory,
		SyncWrites:        cfg.SyncWrites,
		Compression:       true,
		LocationRetention: cfg.LocationRetention,
		GCInterval:        cfg.GCInterval,
	}
}

func (c *Config) applyDefaults() {
	if c.GCInterval <= 0 {
		c.GCInterval = 10 * time.Minute
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		c.GCRatio = 0.5
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 30 * time.Second
	}
}

// Store is a BadgerDB-backed record store. It is safe for concurrent use.
type Store struct {
	db     *badger.DB
	config Config

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	cfg.applyDefaults()
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("store path required unless in_memory is set")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.Compression {
		opts.Compression = options.Snappy
	}

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Dur("location_retention", cfg.LocationRetention).
		Msg("store opened")

	return &Store{db: db, config: cfg}, nil
}

// OpenInMemory opens a throwaway in-memory store.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Config returns the store configuration.
func (s *Store) Config() Config {
	return s.config
}

// RunGC runs value log garbage collection until nothing is left to rewrite.
func (s *Store) RunGC() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.config.InMemory {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(s.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes the database. Repeated calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.config.CloseTimeout
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("store closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}

// getJSON loads key into v inside txn, mapping a missing key to ErrNotFound.
func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	e := badger.NewEntry(key, data)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return txn.SetEntry(e)
}
