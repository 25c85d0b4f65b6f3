// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package cmd defines the vigilctl cobra commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/vigil/internal/cli"
	"github.com/tomtom215/vigil/internal/logging"
)

// ServerEnvVar overrides the default hub address.
const ServerEnvVar = "VIGIL_SERVER"

type globalOptions struct {
	server     string
	origin     string
	jsonOutput bool
	verbose    bool
}

// NewRootCommand builds the vigilctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "vigilctl",
		Short: "Drive and observe a Vigil hub",
		Long: `vigilctl talks to a Vigil hub over its websocket endpoint.

It can impersonate a patrol device (streaming a walk and optionally raising
an SOS) or an HQ dashboard (tailing relayed events, updating SOS status).`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			logging.Init(logging.Config{
				Level:     level,
				Format:    "console",
				Timestamp: true,
				Output:    cmd.ErrOrStderr(),
			})
			if opts.server == "" {
				opts.server = os.Getenv(ServerEnvVar)
			}
			if opts.server == "" {
				opts.server = cli.DefaultServer
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.server, "server", "", "hub address (default $"+ServerEnvVar+" or "+cli.DefaultServer+")")
	root.PersistentFlags().StringVar(&opts.origin, "origin", "", "Origin header to present (browser HQ dashboards)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output as JSON lines")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(newPatrolCommand(opts))
	root.AddCommand(newHQCommand(opts))
	root.AddCommand(newVersionCommand())

	root.Version = VersionString()
	root.SetVersionTemplate("{{.Version}}\n")
	return root
}

// Execute runs vigilctl until it finishes or is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func (o *globalOptions) dial(ctx context.Context) (*cli.Client, error) {
	return cli.Dial(ctx, o.server, o.origin)
}
