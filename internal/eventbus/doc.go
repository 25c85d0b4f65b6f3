// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

/*
Package eventbus carries domain events from the hub to the recorder.

The hub never talks to the bus directly. It drops events into an Outbox,
which publishes them from its own goroutine through a circuit breaker, so
a slow or unavailable broker can never stall frame routing.

Transports:

  - NATS JetStream (nats.enabled): Watermill's NATS publisher and a durable
    subscriber bound to the VIGIL_EVENTS stream (subjects vigil.>). An
    embedded nats-server is started when nats.embedded_server is set.
  - Go channels (default): Watermill's gochannel pub/sub, for single-binary
    deployments and tests.

Message Flow:

	Hub ──Enqueue──▶ Outbox ──▶ Publisher (breaker) ──▶ NATS / gochannel
	                                                        │
	Recorder ◀────────────── Bus.Events ◀───────────────────┘

Every message carries its topic in the "vigil_topic" metadata key, and its
Watermill UUID doubles as the Nats-Msg-Id for JetStream de-duplication.
*/
package eventbus
