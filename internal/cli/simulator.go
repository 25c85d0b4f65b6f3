// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomtom215/vigil/internal/geo"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/models"
	"github.com/tomtom215/vigil/internal/validation"
)

// Sender writes frames to the hub. *Client satisfies it.
type Sender interface {
	Send(event string, data interface{}) error
}

// SimulatorConfig describes a simulated patrol walk.
type SimulatorConfig struct {
	PatrolID  string  `json:"patrol-id" validate:"required,patrolid"`
	SessionID string  `json:"session-id"`
	Latitude  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"lon" validate:"gte=-180,lte=180"`
	// Bearing is the walking direction in degrees clockwise from north.
	Bearing float64 `json:"bearing" validate:"gte=0,lt=360"`
	// Speed in metres per second.
	Speed    float64       `json:"speed" validate:"gte=0,lte=100"`
	Interval time.Duration `json:"interval" validate:"gt=0"`
	// Fixes is the number of locations to send; 0 runs until canceled.
	Fixes int `json:"fixes" validate:"gte=0"`
	// SOSAfter raises an SOS after that many fixes; 0 never.
	SOSAfter   int    `json:"sos-after" validate:"gte=0"`
	SOSMessage string `json:"sos-message"`
}

// SimulatorResult summarizes a run.
type SimulatorResult struct {
	SessionID string
	Fixes     int
	SOSSent   bool
	Latitude  float64
	Longitude float64
}

// Simulator streams a patrol's session to the hub at a fixed pace:
// patrol-connect, patrol-start, one patrol-location per interval, an
// optional patrol-sos, and patrol-stop on the way out.
type Simulator struct {
	cfg     SimulatorConfig
	limiter *rate.Limiter
	now     func() time.Time
}

// NewSimulator validates cfg. An empty SessionID gets a generated one.
func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if verr := validation.ValidateStruct(cfg); verr != nil {
		return nil, verr
	}
	if cfg.SessionID == "" {
		cfg.SessionID = "sess_" + uuid.Must(uuid.NewV7()).String()
	}
	return &Simulator{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run streams the session through sender until the configured fixes are
// sent or ctx ends. A canceled ctx is a normal stop and returns nil after
// patrol-stop is sent.
func (s *Simulator) Run(ctx context.Context, sender Sender) (SimulatorResult, error) {
	log := logging.WithComponent("simulator")
	res := SimulatorResult{
		SessionID: s.cfg.SessionID,
		Latitude:  s.cfg.Latitude,
		Longitude: s.cfg.Longitude,
	}

	if err := sender.Send(models.EventPatrolConnect, models.PatrolConnect{PatrolID: s.cfg.PatrolID}); err != nil {
		return res, err
	}
	if err := sender.Send(models.EventPatrolStart, models.SessionCommand{
		PatrolID:  s.cfg.PatrolID,
		SessionID: s.cfg.SessionID,
	}); err != nil {
		return res, err
	}
	log.Info().Str("patrol_id", s.cfg.PatrolID).Str("session_id", s.cfg.SessionID).Msg("Patrol started")

	stepKm := s.cfg.Speed * s.cfg.Interval.Seconds() / 1000
	for s.cfg.Fixes == 0 || res.Fixes < s.cfg.Fixes {
		// Wait fails only when ctx ends, or would end before the next
		// token; both are a normal stop.
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		if res.Fixes > 0 {
			res.Latitude, res.Longitude = geo.Destination(res.Latitude, res.Longitude, s.cfg.Bearing, stepKm)
		}

		fix := models.PatrolLocation{
			PatrolID:  s.cfg.PatrolID,
			SessionID: s.cfg.SessionID,
			LocationPoint: models.LocationPoint{
				Latitude:  models.F64(res.Latitude),
				Longitude: models.F64(res.Longitude),
				Accuracy:  models.F64(5),
				Timestamp: s.now().Format(time.RFC3339),
			},
		}
		if err := sender.Send(models.EventPatrolLocation, fix); err != nil {
			return res, err
		}
		res.Fixes++
		log.Debug().Int("fix", res.Fixes).Float64("lat", res.Latitude).Float64("lon", res.Longitude).Msg("Location sent")

		if s.cfg.SOSAfter > 0 && res.Fixes == s.cfg.SOSAfter {
			if err := sender.Send(models.EventPatrolSOS, models.SOSTrigger{
				PatrolID:  s.cfg.PatrolID,
				Latitude:  models.F64(res.Latitude),
				Longitude: models.F64(res.Longitude),
				Message:   s.cfg.SOSMessage,
			}); err != nil {
				return res, err
			}
			res.SOSSent = true
			log.Warn().Str("patrol_id", s.cfg.PatrolID).Msg("SOS raised")
		}
	}

	if err := sender.Send(models.EventPatrolStop, models.SessionCommand{
		PatrolID:  s.cfg.PatrolID,
		SessionID: s.cfg.SessionID,
	}); err != nil {
		return res, fmt.Errorf("stop session: %w", err)
	}
	return res, nil
}
