// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/vigil/internal/cli"
	"github.com/tomtom215/vigil/internal/models"
	"github.com/tomtom215/vigil/internal/validation"
)

func newHQCommand(g *globalOptions) *cobra.Command {
	c := &cobra.Command{
		Use:   "hq",
		Short: "Act as an HQ dashboard",
	}
	c.AddCommand(newHQTailCommand(g))
	c.AddCommand(newHQSOSUpdateCommand(g))
	return c
}

type tailOptions struct {
	events  []string
	count   int
	timeout time.Duration
}

func newHQTailCommand(g *globalOptions) *cobra.Command {
	opts := &tailOptions{}

	c := &cobra.Command{
		Use:   "tail",
		Short: "Print events relayed to HQ",
		Long: `Join the HQ audience and print every frame the hub sends to it.

Examples:
  vigilctl hq tail
  vigilctl hq tail --events sos-alert,sos-status-updated
  vigilctl hq tail --events location-update --count 10 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}

			client, err := g.dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Send(models.EventHQConnect, models.HQConnect{Role: models.RoleHQ}); err != nil {
				return err
			}
			return tail(ctx, client, cli.NewPrinter(cmd.OutOrStdout(), g.jsonOutput), opts)
		},
	}

	c.Flags().StringSliceVar(&opts.events, "events", nil, "only print these event names")
	c.Flags().IntVar(&opts.count, "count", 0, "exit after N printed events")
	c.Flags().DurationVar(&opts.timeout, "timeout", 0, "exit with an error if nothing arrives in time")
	return c
}

type readResult struct {
	frame models.Frame
	err   error
}

func tail(ctx context.Context, client *cli.Client, p *cli.Printer, opts *tailOptions) error {
	want := make(map[string]bool, len(opts.events))
	for _, e := range opts.events {
		want[e] = true
	}

	frames := make(chan readResult)
	go func() {
		for {
			f, err := client.ReadFrame()
			select {
			case frames <- readResult{frame: f, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	printed := 0
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("timed out after %d events", printed)
			}
			return nil
		case r := <-frames:
			if r.err != nil {
				if errors.Is(r.err, cli.ErrClosed) {
					return nil
				}
				return fmt.Errorf("read: %w", r.err)
			}
			if len(want) > 0 && !want[r.frame.Event] {
				continue
			}
			if err := p.Frame(r.frame, time.Now()); err != nil {
				return err
			}
			printed++
			if opts.count > 0 && printed >= opts.count {
				return nil
			}
		}
	}
}

type sosUpdateArgs struct {
	SOSID  string `json:"sosId" validate:"required"`
	Status string `json:"status" validate:"required,oneof=active responding resolved closed"`
}

func newHQSOSUpdateCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sos-update <sos-id> <status>",
		Short: "Broadcast an SOS status change",
		Long: `Send hq-sos-update. The hub broadcasts sos-status-updated to every
connection and the recorder stores the new status.

Status is one of: active, responding, resolved, closed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := sosUpdateArgs{SOSID: args[0], Status: args[1]}
			if verr := validation.ValidateStruct(a); verr != nil {
				return verr
			}

			client, err := g.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Send(models.EventHQConnect, models.HQConnect{Role: models.RoleHQ}); err != nil {
				return err
			}
			if err := client.Send(models.EventHQSOSUpdate, models.SOSStatusUpdate{SOSID: a.SOSID, Status: a.Status}); err != nil {
				return err
			}
			if !g.jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", a.SOSID, a.Status)
			}
			return nil
		},
	}
}
