// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

/*
Package websocket implements the Vigil coordination hub.

Patrols and HQ dashboards hold one websocket each. Every frame in either
direction is a JSON object {"event": "...", "data": {...}}. The hub keeps
track of who is connected, relays location and session events to HQ, fans
out SOS alerts and relays call signaling between HQ and a single patrol.

Key Components:

  - Hub: owns the registry and handles every inbound frame on one goroutine
  - Client: one websocket connection with a read and a write goroutine
  - Outbox: where the hub drops domain events for the recorder

Audiences:

	         ┌──────────────┐
	         │     Hub      │
	         └──────┬───────┘
	    ┌───────────┼──────────────┐
	    │           │              │
	┌───┴───┐   ┌───┴───┐    ┌─────┴─────┐
	│  HQ   │   │ P1    │    │ P2        │
	│ (n)   │   │ owner │    │ owner     │
	└───────┘   └───────┘    └───────────┘

The HQ audience has any number of members. Each patrol id has at most one
owning connection; a newer patrol-connect for the same id takes the slot
and the older connection stops receiving that patrol's frames. Only the
owner's disconnect reports the patrol offline.

Ordering:

Frames from all connections are handled one at a time, each to completion,
so fan-out for one frame is enqueued before the next frame is looked at.
Frames to one connection arrive in the order the hub enqueued them.
Delivery is fire-and-forget: a connection whose send buffer is full loses
that frame and stays connected.

The hub never replies with errors. Frames that do not decode, unknown
events and frames addressed to offline patrols are dropped and counted in
vigil_hub_frames_dropped_total or vigil_hub_routing_misses_total.

Usage:

	hub := websocket.NewHub(websocket.OptionsFromConfig(&cfg.WebSocket), outbox)
	go hub.RunWithContext(ctx)

	conn, _ := upgrader.Upgrade(w, r, nil)
	client := websocket.NewClient(hub, conn)
	hub.Register <- client
	client.Start()
*/
package websocket
