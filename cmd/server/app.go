// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/vigil/internal/api"
	"github.com/tomtom215/vigil/internal/config"
	"github.com/tomtom215/vigil/internal/eventbus"
	"github.com/tomtom215/vigil/internal/recorder"
	"github.com/tomtom215/vigil/internal/store"
	"github.com/tomtom215/vigil/internal/supervisor"
	"github.com/tomtom215/vigil/internal/supervisor/services"
	ws "github.com/tomtom215/vigil/internal/websocket"
)

// app holds the wired server. Every field except store and recorder is
// always set; those two are nil when the recorder is disabled.
type app struct {
	cfg      *config.Config
	store    *store.Store
	bus      *eventbus.Bus
	outbox   *eventbus.Outbox
	hub      *ws.Hub
	recorder *recorder.Recorder
	server   *http.Server
}

// newApp opens the store and the bus and wires the hub, the recorder and
// the HTTP surface. On error everything opened so far is closed.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	if cfg.Recorder.Enabled {
		a.store, err = store.Open(store.ConfigFromSettings(&cfg.Store))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	settings, err := eventbus.SettingsFromConfig(&cfg.NATS)
	if err != nil {
		return nil, fmt.Errorf("event bus settings: %w", err)
	}
	a.bus, err = eventbus.Open(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("open event bus: %w", err)
	}
	a.outbox = a.bus.NewOutbox()
	a.hub = ws.NewHub(ws.OptionsFromConfig(&cfg.WebSocket), a.outbox)

	// Typed nils would defeat the handler's nil checks.
	var (
		st     api.Store
		nearby api.NearbyFinder
	)
	if a.store != nil {
		a.recorder = recorder.New(a.store, a.bus, recorder.Options{
			NearbyCount: cfg.Recorder.NearbyCount,
			Redeliver:   cfg.NATS.Enabled,
		})
		st, nearby = a.store, a.recorder
	}

	handler := api.NewHandler(a.hub, st, nearby, a.bus, api.HandlerOptions{
		AllowedOrigins:   cfg.WebSocket.AllowedOrigins,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
	})
	router := api.NewRouter(handler, api.NewChiMiddlewareFromConfig(&cfg.Security))

	// No WriteTimeout: it would also cap hijacked websocket connections'
	// handshake writes on slow links, and the API responses are small.
	a.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

// components lists the supervised services. Nil interface values are left
// out rather than wrapping nil pointers.
func (a *app) components() supervisor.Components {
	c := supervisor.Components{
		Outbox: a.outbox,
		Hub:    services.NewHubService(a.hub),
		HTTP:   services.NewHTTPServerService(a.server, 10*time.Second),
	}
	if a.store != nil {
		c.StoreGC = store.NewGCService(a.store)
	}
	if a.recorder != nil {
		c.Recorder = a.recorder
	}
	if srv := a.bus.EmbeddedServer(); srv != nil {
		c.EmbeddedNATS = srv
	}
	return c
}

// close releases the outbox, the bus and the store, in that order, after the
// supervisor tree has stopped.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.outbox != nil {
		a.outbox.Close()
	}
	if a.bus != nil {
		if err := a.bus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
