// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

/*
Command server runs the Vigil coordination hub.

Patrol devices and HQ dashboards connect to /ws. The hub relays location
updates, call signalling and SOS alerts between them and hands every
domain event to an outbox. The outbox publishes to NATS JetStream, or to
in-process channels when NATS is disabled, and the recorder persists those
events to badger for the /api/v1 query endpoints.

# Startup

 1. Configuration: koanf (defaults, config.yaml, environment)
 2. Logging: zerolog
 3. Store: badger, skipped when RECORDER_ENABLED=false
 4. Event bus: embedded or external NATS, or gochannel
 5. Hub, recorder and chi router
 6. Supervisor tree (suture v4)

# Shutdown

SIGINT or SIGTERM cancels the tree. The HTTP server stops accepting, the
hub closes every connection, the outbox publishes what is still queued,
and only then are the bus and the store closed.

# Examples

Single node with in-process events:

	HTTP_PORT=3870 STORE_PATH=/var/lib/vigil ./server

JetStream with the embedded server:

	NATS_ENABLED=true NATS_EMBEDDED=true NATS_STORE_DIR=/var/lib/vigil/nats ./server

Relay only, nothing persisted:

	RECORDER_ENABLED=false ./server
*/
package main
