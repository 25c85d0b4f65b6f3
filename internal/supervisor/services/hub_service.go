// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package services

import (
	"context"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/vigil/internal/logging"
	ws "github.com/tomtom215/vigil/internal/websocket"
)

// Hub is satisfied by *websocket.Hub.
type Hub interface {
	RunWithContext(ctx context.Context) error
	Stats() ws.Stats
}

// HubService supervises the relay hub.
//
// A stopped hub has closed every client and its Done channel, so it is never
// restarted: a return while ctx is still live is reported as
// suture.ErrDoNotRestart.
type HubService struct {
	hub Hub
}

// NewHubService wraps hub.
func NewHubService(hub Hub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	err := s.hub.RunWithContext(ctx)
	logger := logging.WithComponent("websocket")
	if ctx.Err() == nil {
		logger.Error().Err(err).Msg("Relay hub exited unexpectedly")
		return suture.ErrDoNotRestart
	}
	st := s.hub.Stats()
	logger.Debug().
		Int("connections", st.Connections).
		Int("online_patrols", st.OnlinePatrols).
		Msg("Relay hub final stats")
	return err
}

func (s *HubService) String() string {
	return "websocket-hub"
}
