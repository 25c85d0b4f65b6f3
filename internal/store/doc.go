// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

/*
Package store persists the recorder's view of the field in BadgerDB.

Key Layout:

	patrol:<patrolId>                  current PatrolState (JSON)
	loc:<patrolId>:<unixnano, 20 wide> one LocationRecord per fix
	sos:<sosId>                        SOSRecord

Patrol ids never contain ':' (the validator rejects them), so prefix scans
cannot bleed from one patrol into another. Location keys are zero padded so
byte order equals time order, which lets ListLocations walk backwards from
the newest fix.

When store.location_retention is set, location keys are written with a
Badger TTL and expire on their own. GCService runs value log garbage
collection on an interval.
*/
package store
