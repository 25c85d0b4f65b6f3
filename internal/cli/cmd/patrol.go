// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/vigil/internal/cli"
)

func newPatrolCommand(g *globalOptions) *cobra.Command {
	cfg := cli.SimulatorConfig{}

	c := &cobra.Command{
		Use:   "patrol <patrol-id>",
		Short: "Simulate a patrol device",
		Long: `Connect as a patrol, start a session and walk in a straight line,
sending one location fix per interval.

Examples:
  vigilctl patrol ALPHA-1 --lat 23.8103 --lon 90.4125
  vigilctl patrol ALPHA-1 --lat 51.5 --lon -0.12 --bearing 90 --speed 1.4 --fixes 20
  vigilctl patrol BRAVO-2 --lat 51.5 --lon -0.12 --fixes 5 --sos-after 3 --sos-message "Officer down"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.PatrolID = args[0]
			ctx := cmd.Context()

			sim, err := cli.NewSimulator(cfg)
			if err != nil {
				return err
			}

			client, err := g.dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := sim.Run(ctx, client)
			if err != nil {
				return err
			}
			return cli.NewPrinter(cmd.OutOrStdout(), g.jsonOutput).Result(cfg.PatrolID, res)
		},
	}

	f := c.Flags()
	f.StringVar(&cfg.SessionID, "session", "", "session id (default: generated)")
	f.Float64Var(&cfg.Latitude, "lat", 0, "starting latitude")
	f.Float64Var(&cfg.Longitude, "lon", 0, "starting longitude")
	f.Float64Var(&cfg.Bearing, "bearing", 0, "walking direction in degrees from north")
	f.Float64Var(&cfg.Speed, "speed", 1.4, "walking speed in m/s")
	f.DurationVar(&cfg.Interval, "interval", 5*time.Second, "time between location fixes")
	f.IntVar(&cfg.Fixes, "fixes", 0, "number of fixes to send (0: until interrupted)")
	f.IntVar(&cfg.SOSAfter, "sos-after", 0, "raise an SOS after this many fixes (0: never)")
	f.StringVar(&cfg.SOSMessage, "sos-message", "", "SOS message (hub default when empty)")
	return c
}
