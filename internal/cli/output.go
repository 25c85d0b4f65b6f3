// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package cli

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/models"
)

// Printer renders hub frames for a terminal or for a pipe.
type Printer struct {
	w    io.Writer
	json bool
}

// NewPrinter returns a Printer. With asJSON every frame is one JSON line.
func NewPrinter(w io.Writer, asJSON bool) *Printer {
	return &Printer{w: w, json: asJSON}
}

type jsonLine struct {
	At    time.Time       `json:"at"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Frame prints f as received at at.
func (p *Printer) Frame(f models.Frame, at time.Time) error {
	if p.json {
		line, err := json.Marshal(jsonLine{At: at.UTC(), Event: f.Event, Data: f.Data})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.w, string(line))
		return err
	}

	var compact bytes.Buffer
	data := f.Data
	if len(data) > 0 && json.Compact(&compact, data) == nil {
		data = compact.Bytes()
	}
	_, err := fmt.Fprintf(p.w, "%s  %-22s %s\n", at.Format("15:04:05.000"), f.Event, data)
	return err
}

// Result prints a simulator summary.
func (p *Printer) Result(patrolID string, r SimulatorResult) error {
	if p.json {
		line, err := json.Marshal(map[string]interface{}{
			"patrolId":  patrolID,
			"sessionId": r.SessionID,
			"fixes":     r.Fixes,
			"sosSent":   r.SOSSent,
			"latitude":  r.Latitude,
			"longitude": r.Longitude,
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.w, string(line))
		return err
	}
	_, err := fmt.Fprintf(p.w, "%s session %s: %d fixes, last position %.6f,%.6f, sos=%t\n",
		patrolID, r.SessionID, r.Fixes, r.Latitude, r.Longitude, r.SOSSent)
	return err
}
