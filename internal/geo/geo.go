// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package geo provides great-circle distance and nearest-patrol ranking.
package geo

import (
	"math"
	"sort"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// Destination returns the point reached from (lat, lon) after distKm along
// the initial bearing bearingDeg (clockwise from north). Longitude is
// normalized to [-180, 180).
func Destination(lat, lon, bearingDeg, distKm float64) (float64, float64) {
	phi1 := lat * math.Pi / 180
	lambda1 := lon * math.Pi / 180
	theta := bearingDeg * math.Pi / 180
	delta := distKm / EarthRadiusKm

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) +
		math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2))

	lon2 := math.Mod(lambda2*180/math.Pi+540, 360) - 180
	return phi2 * 180 / math.Pi, lon2
}

// Point is a candidate position keyed by an identifier.
type Point struct {
	ID  string
	Lat float64
	Lon float64
}

// Ranked is a Point with its distance from the query origin.
type Ranked struct {
	Point
	DistanceKm float64
}

// Nearest ranks candidates by distance from (lat, lon) and returns at most k
// of them, closest first. Equal distances are ordered by ID so the result is
// stable across calls. Candidates whose ID is in exclude are skipped.
// k <= 0 returns nil.
func Nearest(lat, lon float64, candidates []Point, k int, exclude ...string) []Ranked {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := skip[c.ID]; ok {
			continue
		}
		ranked = append(ranked, Ranked{Point: c, DistanceKm: HaversineKm(lat, lon, c.Lat, c.Lon)})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].DistanceKm != ranked[j].DistanceKm {
			return ranked[i].DistanceKm < ranked[j].DistanceKm
		}
		return ranked[i].ID < ranked[j].ID
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
