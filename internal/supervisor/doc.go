// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

/*
Package supervisor runs Vigil's long-lived components under suture v4.

# Tree

	vigil
	├── data-layer
	│   └── store-gc              (badger value log GC)
	├── messaging-layer
	│   ├── nats-embedded-server  (when nats.embedded_server is set)
	│   ├── event-outbox
	│   ├── websocket-hub
	│   └── recorder              (when recorder.enabled)
	└── api-layer
	    └── http-server

Each layer restarts independently. A recorder crash, for example a store
write panic, restarts only the recorder; patrols keep relaying through the
hub while it comes back. The hub itself is never restarted once stopped.

# Usage

	tree, err := supervisor.NewSupervisorTree(nil, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddComponents(supervisor.Components{
	    StoreGC:  store.NewGCService(st),
	    Outbox:   outbox,
	    Hub:      services.NewHubService(hub),
	    Recorder: rec,
	    HTTP:     services.NewHTTPServerService(srv, 10*time.Second),
	})
	err = tree.Serve(ctx)

A nil logger routes suture events through the zerolog slog bridge.

# Shutdown

Cancelling the context stops every service, each bounded by
TreeConfig.ShutdownTimeout. UnstoppedServiceReport lists stragglers.
The event bus and the store are closed by the caller after Serve returns,
so the outbox can still flush while the tree winds down.
*/
package supervisor
