// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package services adapts components whose lifecycle is not already a
// suture.Service.
//
// HTTPServerService turns ListenAndServe/Shutdown into Serve. HubService
// wraps the relay hub's RunWithContext and refuses restarts. The recorder,
// event outbox, embedded NATS server and store GC implement Serve directly
// and need no wrapper.
package services
