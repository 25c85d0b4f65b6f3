// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/vigil/internal/config"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("recorder_enabled", cfg.Recorder.Enabled).
		Str("environment", cfg.Server.Environment).
		Msg("Starting Vigil")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("Vigil stopped with error")
		os.Exit(1)
	}
	logging.Info().Msg("Vigil stopped gracefully")
}

// run wires the server and blocks until ctx is canceled or the tree fails.
func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	tree, err := supervisor.NewSupervisorTree(nil, supervisor.DefaultTreeConfig())
	if err != nil {
		_ = a.close(context.Background())
		return err
	}
	tree.AddComponents(a.components())

	logging.Info().Msg("Starting supervisor tree")
	treeErr := tree.Serve(ctx)
	if errors.Is(treeErr, context.Canceled) {
		treeErr = nil
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return errors.Join(treeErr, a.close(closeCtx))
}
