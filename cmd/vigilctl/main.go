// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Command vigilctl simulates patrol devices and tails HQ traffic against a
// running Vigil hub.
package main

import "github.com/tomtom215/vigil/internal/cli/cmd"

func main() {
	cmd.Execute()
}
