// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/vigil/internal/config"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("expected error without path or in-memory")
	}
}

func TestOpen_OnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{Path: dir, Compression: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := s.PutSOS(ctx, &models.SOSRecord{ID: "sos_1", PatrolID: "P1", Status: models.SOSStatusActive}); err != nil {
		t.Fatalf("PutSOS: %v", err)
	}
	if err := s.RunGC(); err != nil {
		t.Errorf("RunGC: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.GetSOS(ctx, "sos_1"); err != nil {
		t.Errorf("alert lost across reopen: %v", err)
	}
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings(&config.StoreConfig{
		Path:              "/data/vigil",
		SyncWrites:        true,
		LocationRetention: time.Hour,
		GCInterval:        time.Minute,
	})
	if cfg.Path != "/data/vigil" || !cfg.SyncWrites || cfg.LocationRetention != time.Hour || cfg.GCInterval != time.Minute {
		t.Errorf("ConfigFromSettings = %+v", cfg)
	}
}

func TestPatrols(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetPatrol(ctx, "P1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetPatrol missing = %v, want ErrNotFound", err)
	}

	state, err := s.UpdatePatrol(ctx, "P1", func(p *models.PatrolState) error {
		if p.Status != models.PatrolStatusIdle || p.ID != "P1" {
			t.Errorf("new patrol should start idle, got %+v", p)
		}
		p.Online = true
		p.LastSeenAt = base
		return nil
	})
	if err != nil {
		t.Fatalf("UpdatePatrol: %v", err)
	}
	if !state.Online {
		t.Error("returned state should reflect the update")
	}

	if _, err := s.UpdatePatrol(ctx, "P1", func(p *models.PatrolState) error {
		p.Status = models.PatrolStatusPatrolling
		p.Latitude = models.F64(23.8)
		p.Longitude = models.F64(90.4)
		return nil
	}); err != nil {
		t.Fatalf("UpdatePatrol: %v", err)
	}

	got, err := s.GetPatrol(ctx, "P1")
	if err != nil {
		t.Fatalf("GetPatrol: %v", err)
	}
	if !got.Online || got.Status != models.PatrolStatusPatrolling || !got.HasPosition() {
		t.Errorf("GetPatrol = %+v", got)
	}
	if !got.LastSeenAt.Equal(base) {
		t.Errorf("LastSeenAt = %v", got.LastSeenAt)
	}

	boom := errors.New("boom")
	if _, err := s.UpdatePatrol(ctx, "P1", func(p *models.PatrolState) error {
		p.Online = false
		return boom
	}); !errors.Is(err, boom) {
		t.Errorf("UpdatePatrol error = %v", err)
	}
	if got, _ := s.GetPatrol(ctx, "P1"); !got.Online {
		t.Error("failed update must not be written")
	}

	if _, err := s.UpdatePatrol(ctx, "A9", func(*models.PatrolState) error { return nil }); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListPatrols(ctx)
	if err != nil {
		t.Fatalf("ListPatrols: %v", err)
	}
	if len(list) != 2 || list[0].ID != "A9" || list[1].ID != "P1" {
		t.Errorf("ListPatrols = %+v", list)
	}
}

func TestLocations_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var recs []models.LocationRecord
	for i := 0; i < 5; i++ {
		recs = append(recs, models.LocationRecord{
			PatrolID:  "P1",
			Latitude:  float64(i),
			Longitude: float64(i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
	// A prefix neighbour that must not leak into P1's history.
	recs = append(recs, models.LocationRecord{PatrolID: "P10", Timestamp: base})
	if err := s.AppendLocations(ctx, recs...); err != nil {
		t.Fatalf("AppendLocations: %v", err)
	}

	all, err := s.ListLocations(ctx, "P1", 0)
	if err != nil {
		t.Fatalf("ListLocations: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("got %d locations, want 5", len(all))
	}
	for i, rec := range all {
		want := float64(4 - i)
		if rec.Latitude != want {
			t.Errorf("all[%d].Latitude = %v, want %v", i, rec.Latitude, want)
		}
	}

	limited, err := s.ListLocations(ctx, "P1", 2)
	if err != nil {
		t.Fatalf("ListLocations: %v", err)
	}
	if len(limited) != 2 || limited[0].Latitude != 4 || limited[1].Latitude != 3 {
		t.Errorf("limited = %+v", limited)
	}

	none, err := s.ListLocations(ctx, "ghost", 10)
	if err != nil || len(none) != 0 {
		t.Errorf("unknown patrol = %v, %v", none, err)
	}
}

func TestLocations_SameInstantKeepsBoth(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := models.LocationRecord{PatrolID: "P1", Latitude: 1, Timestamp: base}
	b := models.LocationRecord{PatrolID: "P1", Latitude: 2, Timestamp: base}
	if err := s.AppendLocations(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendLocations(ctx, b); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListLocations(ctx, "P1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d locations, want 2", len(got))
	}
	if got[0].Latitude != 2 {
		t.Errorf("later append should sort first, got %+v", got)
	}
}

func TestSOS(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutSOS(ctx, &models.SOSRecord{}); err == nil {
		t.Error("PutSOS without id should fail")
	}

	alerts := []models.SOSRecord{
		{ID: "sos_a", PatrolID: "P1", Status: models.SOSStatusActive, CreatedAt: base},
		{ID: "sos_b", PatrolID: "P2", Status: models.SOSStatusResolved, CreatedAt: base.Add(time.Minute)},
		{ID: "sos_c", PatrolID: "P3", Status: models.SOSStatusActive, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range alerts {
		if err := s.PutSOS(ctx, &alerts[i]); err != nil {
			t.Fatalf("PutSOS: %v", err)
		}
	}

	all, err := s.ListSOS(ctx)
	if err != nil {
		t.Fatalf("ListSOS: %v", err)
	}
	if len(all) != 3 || all[0].ID != "sos_c" || all[2].ID != "sos_a" {
		t.Errorf("ListSOS order = %v", ids(all))
	}

	active, err := s.ListSOS(ctx, models.SOSStatusActive)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 || active[0].ID != "sos_c" || active[1].ID != "sos_a" {
		t.Errorf("active = %v", ids(active))
	}

	updated, err := s.UpdateSOS(ctx, "sos_a", func(r *models.SOSRecord) error {
		r.Status = models.SOSStatusResponding
		r.UpdatedAt = base.Add(time.Hour)
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateSOS: %v", err)
	}
	if updated.Status != models.SOSStatusResponding {
		t.Errorf("updated = %+v", updated)
	}
	got, _ := s.GetSOS(ctx, "sos_a")
	if got.Status != models.SOSStatusResponding || !got.UpdatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("GetSOS = %+v", got)
	}

	if _, err := s.UpdateSOS(ctx, "sos_missing", func(*models.SOSRecord) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateSOS missing = %v, want ErrNotFound", err)
	}
	if _, err := s.GetSOS(ctx, "sos_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSOS missing = %v, want ErrNotFound", err)
	}
}

func TestClosedStore(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	ctx := context.Background()
	if _, err := s.GetPatrol(ctx, "P1"); !errors.Is(err, ErrClosed) {
		t.Errorf("GetPatrol after Close = %v", err)
	}
	if err := s.AppendLocations(ctx, models.LocationRecord{PatrolID: "P1"}); !errors.Is(err, ErrClosed) {
		t.Errorf("AppendLocations after Close = %v", err)
	}
	if err := s.RunGC(); !errors.Is(err, ErrClosed) {
		t.Errorf("RunGC after Close = %v", err)
	}
}

func TestGCService_StopsOnCancel(t *testing.T) {
	s, err := Open(Config{InMemory: true, GCInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	svc := NewGCService(s)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GC service did not stop")
	}
	if svc.String() != "store-gc" {
		t.Errorf("String() = %q", svc.String())
	}
}

func ids(recs []models.SOSRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
