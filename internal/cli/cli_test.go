// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/vigil/internal/geo"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/models"
	"github.com/tomtom215/vigil/internal/validation"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:3870", "ws://localhost:3870/ws", false},
		{"https://vigil.example.org", "wss://vigil.example.org/ws", false},
		{"localhost:3870", "ws://localhost:3870/ws", false},
		{"ws://10.0.0.5:3870/ws", "ws://10.0.0.5:3870/ws", false},
		{"wss://vigil.example.org/hub", "wss://vigil.example.org/hub", false},
		{"ftp://vigil.example.org", "", true},
		{"http://", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := WebSocketURL(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("WebSocketURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("WebSocketURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

type sent struct {
	event string
	data  interface{}
}

type recordingSender struct {
	mu     sync.Mutex
	frames []sent
	failOn string
}

func (r *recordingSender) Send(event string, data interface{}) error {
	if event == r.failOn {
		return errors.New("broken pipe")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, sent{event, data})
	return nil
}

func (r *recordingSender) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.frames))
	for i, f := range r.frames {
		out[i] = f.event
	}
	return out
}

func baseConfig() SimulatorConfig {
	return SimulatorConfig{
		PatrolID:  "ALPHA-1",
		Latitude:  51.5074,
		Longitude: -0.1278,
		Bearing:   90,
		Speed:     10,
		Interval:  time.Millisecond,
		Fixes:     3,
	}
}

func TestNewSimulator_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SimulatorConfig)
		field  string
	}{
		{"missing patrol id", func(c *SimulatorConfig) { c.PatrolID = "" }, "patrol-id"},
		{"patrol id with colon", func(c *SimulatorConfig) { c.PatrolID = "A:1" }, "patrol-id"},
		{"latitude out of range", func(c *SimulatorConfig) { c.Latitude = 91 }, "lat"},
		{"longitude out of range", func(c *SimulatorConfig) { c.Longitude = -181 }, "lon"},
		{"bearing 360", func(c *SimulatorConfig) { c.Bearing = 360 }, "bearing"},
		{"zero interval", func(c *SimulatorConfig) { c.Interval = 0 }, "interval"},
		{"negative fixes", func(c *SimulatorConfig) { c.Fixes = -1 }, "fixes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			_, err := NewSimulator(cfg)
			var verr *validation.RequestValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want validation error", err)
			}
			fields := verr.Fields()
			if len(fields) != 1 || fields[0] != tt.field {
				t.Errorf("fields = %v, want [%s]", fields, tt.field)
			}
		})
	}
}

func TestSimulator_Run(t *testing.T) {
	cfg := baseConfig()
	cfg.SOSAfter = 2
	cfg.SOSMessage = "Officer down"
	rec := &recordingSender{}

	sim, err := NewSimulator(cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := sim.Run(context.Background(), rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		models.EventPatrolConnect,
		models.EventPatrolStart,
		models.EventPatrolLocation,
		models.EventPatrolLocation,
		models.EventPatrolSOS,
		models.EventPatrolLocation,
		models.EventPatrolStop,
	}
	if got := rec.events(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}

	if res.Fixes != 3 || !res.SOSSent || !strings.HasPrefix(res.SessionID, "sess_") {
		t.Errorf("result = %+v", res)
	}

	// Two steps of 10 m/s * 1 ms east.
	moved := geo.HaversineKm(cfg.Latitude, cfg.Longitude, res.Latitude, res.Longitude)
	if math.Abs(moved-0.00002) > 1e-9 {
		t.Errorf("moved %.9f km, want 0.00002", moved)
	}

	first := rec.frames[2].data.(models.PatrolLocation)
	if *first.Latitude != cfg.Latitude || first.SessionID != res.SessionID {
		t.Errorf("first fix = %+v", first)
	}
	sos := rec.frames[4].data.(models.SOSTrigger)
	if sos.Message != "Officer down" || sos.PatrolID != "ALPHA-1" {
		t.Errorf("sos = %+v", sos)
	}
}

func TestSimulator_CancelStopsSession(t *testing.T) {
	cfg := baseConfig()
	cfg.Fixes = 0
	cfg.Interval = 10 * time.Millisecond
	cfg.SessionID = "sess-fixed"
	rec := &recordingSender{}

	sim, err := NewSimulator(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	res, err := sim.Run(ctx, rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Fixes == 0 || res.SessionID != "sess-fixed" {
		t.Errorf("result = %+v", res)
	}
	events := rec.events()
	if events[len(events)-1] != models.EventPatrolStop {
		t.Errorf("last event = %s, want patrol-stop", events[len(events)-1])
	}
}

func TestSimulator_SendFailure(t *testing.T) {
	sim, err := NewSimulator(baseConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sim.Run(context.Background(), &recordingSender{failOn: models.EventPatrolLocation}); err == nil {
		t.Error("expected send failure")
	}
}

func TestClient_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan models.Frame, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var f models.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		received <- f
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"patrol-online","data":{"patrolId":"ALPHA-1"}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c, err := Dial(context.Background(), srv.URL, "https://hq.example.org")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := c.Send(models.EventPatrolConnect, models.PatrolConnect{PatrolID: "ALPHA-1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case f := <-received:
		var pc models.PatrolConnect
		if err := json.Unmarshal(f.Data, &pc); err != nil || f.Event != models.EventPatrolConnect || pc.PatrolID != "ALPHA-1" {
			t.Errorf("server got %s %s", f.Event, f.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received frame")
	}

	f, err := c.ReadFrame()
	if err != nil || f.Event != models.EventPatrolOnline {
		t.Fatalf("ReadFrame = %+v, %v", f, err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := c.Send(models.EventPatrolStop, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestDial_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), srv.URL, "https://evil.example.com")
	if err == nil || !strings.Contains(err.Error(), "HTTP 403") {
		t.Errorf("Dial error = %v, want HTTP 403", err)
	}
}

func TestPrinter(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	f := models.Frame{Event: models.EventSOSAlert, Data: json.RawMessage(`{ "id": "sos_1",  "status": "active" }`)}

	var text bytes.Buffer
	if err := NewPrinter(&text, false).Frame(f, at); err != nil {
		t.Fatal(err)
	}
	if got := text.String(); !strings.Contains(got, "09:30:00.000") || !strings.Contains(got, `{"id":"sos_1","status":"active"}`) {
		t.Errorf("text output = %q", got)
	}

	var js bytes.Buffer
	if err := NewPrinter(&js, true).Frame(f, at); err != nil {
		t.Fatal(err)
	}
	var line struct {
		At    time.Time       `json:"at"`
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(js.Bytes(), &line); err != nil {
		t.Fatalf("json output %q: %v", js.String(), err)
	}
	if !line.At.Equal(at) || line.Event != models.EventSOSAlert {
		t.Errorf("json line = %+v", line)
	}

	var res bytes.Buffer
	_ = NewPrinter(&res, false).Result("ALPHA-1", SimulatorResult{SessionID: "s1", Fixes: 4, Latitude: 1, Longitude: 2})
	if !strings.Contains(res.String(), "ALPHA-1 session s1: 4 fixes") {
		t.Errorf("result output = %q", res.String())
	}
}
