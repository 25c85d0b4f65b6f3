// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package cli holds the hub client used by vigilctl: a gorilla websocket
// connection speaking the frame protocol, a rate-paced patrol simulator and
// frame printers. The cobra commands live in internal/cli/cmd.
package cli
