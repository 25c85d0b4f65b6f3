// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/models"
)

func patrolKey(id string) []byte { return []byte(prefixPatrol + id) }

func sosKey(id string) []byte { return []byte(prefixSOS + id) }

func locationPrefix(patrolID string) []byte {
	return []byte(prefixLocation + patrolID + ":")
}

func locationKey(patrolID string, nanos int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixLocation, patrolID, nanos))
}

// update runs fn in a read-write transaction, retrying on conflicts with
// concurrent writers.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// GetPatrol returns the stored state for id.
func (s *Store) GetPatrol(_ context.Context, id string) (*models.PatrolState, error) {
	var state models.PatrolState
	err := s.view(func(txn *badger.Txn) error {
		return getJSON(txn, patrolKey(id), &state)
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// UpdatePatrol applies fn to the stored state for id inside one
// transaction. A missing patrol starts from an idle, offline state.
func (s *Store) UpdatePatrol(_ context.Context, id string, fn func(*models.PatrolState) error) (*models.PatrolState, error) {
	var state models.PatrolState
	err := s.update(func(txn *badger.Txn) error {
		state = models.PatrolState{}
		err := getJSON(txn, patrolKey(id), &state)
		if errors.Is(err, ErrNotFound) {
			state = models.PatrolState{ID: id, Status: models.PatrolStatusIdle}
		} else if err != nil {
			return err
		}
		if err := fn(&state); err != nil {
			return err
		}
		return setJSON(txn, patrolKey(id), &state, 0)
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// ListPatrols returns every stored patrol ordered by id.
func (s *Store) ListPatrols(ctx context.Context) ([]models.PatrolState, error) {
	out := []models.PatrolState{}
	err := s.view(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixPatrol)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var state models.PatrolState
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &state)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("skipping unreadable patrol record")
				continue
			}
			out = append(out, state)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list patrols: %w", err)
	}
	return out, nil
}

// AppendLocations stores location fixes. Two fixes for the same patrol at
// the same instant are both kept.
func (s *Store) AppendLocations(_ context.Context, records ...models.LocationRecord) error {
	if len(records) == 0 {
		return nil
	}
	ttl := s.config.LocationRetention
	return s.update(func(txn *badger.Txn) error {
		for i := range records {
			rec := &records[i]
			nanos := rec.Timestamp.UnixNano()
			key := locationKey(rec.PatrolID, nanos)
			for {
				_, err := txn.Get(key)
				if errors.Is(err, badger.ErrKeyNotFound) {
					break
				}
				if err != nil {
					return err
				}
				nanos++
				key = locationKey(rec.PatrolID, nanos)
			}
			if err := setJSON(txn, key, rec, ttl); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListLocations returns up to limit fixes for patrolID, newest first.
// limit <= 0 returns everything.
func (s *Store) ListLocations(ctx context.Context, patrolID string, limit int) ([]models.LocationRecord, error) {
	out := []models.LocationRecord{}
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		prefix := locationPrefix(patrolID)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seeking in reverse needs a key past every entry under the prefix.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec models.LocationRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("skipping unreadable location record")
				continue
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list locations for %s: %w", patrolID, err)
	}
	return out, nil
}

// PutSOS stores an alert, replacing any existing alert with the same id.
func (s *Store) PutSOS(_ context.Context, rec *models.SOSRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("sos record requires an id")
	}
	return s.update(func(txn *badger.Txn) error {
		return setJSON(txn, sosKey(rec.ID), rec, 0)
	})
}

// GetSOS returns the alert with id.
func (s *Store) GetSOS(_ context.Context, id string) (*models.SOSRecord, error) {
	var rec models.SOSRecord
	err := s.view(func(txn *badger.Txn) error {
		return getJSON(txn, sosKey(id), &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateSOS applies fn to an existing alert. Returns ErrNotFound when id is
// unknown.
func (s *Store) UpdateSOS(_ context.Context, id string, fn func(*models.SOSRecord) error) (*models.SOSRecord, error) {
	var rec models.SOSRecord
	err := s.update(func(txn *badger.Txn) error {
		rec = models.SOSRecord{}
		if err := getJSON(txn, sosKey(id), &rec); err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		return setJSON(txn, sosKey(id), &rec, 0)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListSOS returns alerts newest first. When statuses is non-empty only
// alerts in one of those statuses are returned.
func (s *Store) ListSOS(ctx context.Context, statuses ...string) ([]models.SOSRecord, error) {
	want := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	out := []models.SOSRecord{}
	err := s.view(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixSOS)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec models.SOSRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("skipping unreadable sos record")
				continue
			}
			if len(want) > 0 && !want[rec.Status] {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sos: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// GCService runs value log garbage collection on the configured interval.
// It implements suture.Service.
type GCService struct {
	store *Store
}

// NewGCService creates a GC loop for s.
func NewGCService(s *Store) *GCService {
	return &GCService{store: s}
}

// Serve runs GC until ctx is canceled.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.store.config.GCInterval)
	defer ticker.Stop()

	log := logging.WithComponent("store-gc")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := g.store.RunGC(); err != nil {
				if errors.Is(err, ErrClosed) {
					return err
				}
				log.Error().Err(err).Msg("value log GC failed")
				continue
			}
			log.Debug().Dur("duration", time.Since(start)).Msg("value log GC complete")
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (g *GCService) String() string {
	return "store-gc"
}
