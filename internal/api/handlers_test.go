// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/models"
	"github.com/tomtom215/vigil/internal/recorder"
	"github.com/tomtom215/vigil/internal/store"
	ws "github.com/tomtom215/vigil/internal/websocket"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

type testEnv struct {
	hub      *ws.Hub
	store    *store.Store
	recorder *recorder.Recorder
	handler  http.Handler
}

type fakeBus struct{ healthy bool }

func (f fakeBus) Healthy(context.Context) bool { return f.healthy }

func newTestEnv(t *testing.T, bus HealthChecker) *testEnv {
	t.Helper()
	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	hub := ws.NewHub(ws.DefaultOptions(), nil)
	rec := recorder.New(st, nil, recorder.Options{})
	h := NewHandler(hub, st, rec, bus, HandlerOptions{AllowedOrigins: []string{"https://hq.example.org"}})
	cm := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true})
	return &testEnv{
		hub:      hub,
		store:    st,
		recorder: rec,
		handler:  NewRouter(h, cm).SetupChi(),
	}
}

func (e *testEnv) record(t *testing.T, topic string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.recorder.Handle(context.Background(), topic, data); err != nil {
		t.Fatalf("record %s: %v", topic, err)
	}
}

func (e *testEnv) seedPatrol(t *testing.T, id string, lat, lon float64) {
	t.Helper()
	e.record(t, models.TopicSession, models.SessionEvent{PatrolID: id, SessionID: "S-" + id, Action: models.SessionActionStart})
	e.record(t, models.TopicLocation, models.LocationEvent{PatrolLocation: models.PatrolLocation{
		PatrolID:      id,
		LocationPoint: models.LocationPoint{Latitude: models.F64(lat), Longitude: models.F64(lon)},
	}})
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func (e *testEnv) get(t *testing.T, path string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: decode %q: %v", path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		bus        HealthChecker
		wantStatus string
		wantBus    string
	}{
		{"no bus", nil, "healthy", "disabled"},
		{"healthy bus", fakeBus{healthy: true}, "healthy", "healthy"},
		{"broken bus", fakeBus{healthy: false}, "degraded", "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, tt.bus)
			code, env := e.get(t, "/health")
			if code != http.StatusOK || !env.Success {
				t.Fatalf("code = %d, success = %v", code, env.Success)
			}
			var hs HealthStatus
			if err := json.Unmarshal(env.Data, &hs); err != nil {
				t.Fatal(err)
			}
			if hs.Status != tt.wantStatus || hs.EventBus != tt.wantBus {
				t.Errorf("health = %+v", hs)
			}
			if hs.Connections != 0 || hs.OnlinePatrols != 0 {
				t.Errorf("idle hub reported %+v", hs)
			}
		})
	}
}

func TestListPatrolsAndLocations(t *testing.T) {
	e := newTestEnv(t, nil)
	e.seedPatrol(t, "P1", 23.81, 90.41)
	for i := 0; i < 4; i++ {
		e.record(t, models.TopicLocation, models.LocationEvent{PatrolLocation: models.PatrolLocation{
			PatrolID: "P1",
			LocationPoint: models.LocationPoint{
				Latitude:  models.F64(23.81 + float64(i)/100),
				Longitude: models.F64(90.41),
				Timestamp: time.Date(2026, 3, 14, 10, i, 0, 0, time.UTC).Format(time.RFC3339),
			},
		}})
	}

	code, env := e.get(t, "/api/v1/patrols")
	if code != http.StatusOK {
		t.Fatalf("patrols code = %d", code)
	}
	var patrols []models.PatrolState
	if err := json.Unmarshal(env.Data, &patrols); err != nil {
		t.Fatal(err)
	}
	if len(patrols) != 1 || patrols[0].ID != "P1" || patrols[0].Status != models.PatrolStatusPatrolling {
		t.Errorf("patrols = %+v", patrols)
	}

	code, env = e.get(t, "/api/v1/patrols/P1/locations?limit=2")
	if code != http.StatusOK {
		t.Fatalf("locations code = %d", code)
	}
	var locs []models.LocationRecord
	if err := json.Unmarshal(env.Data, &locs); err != nil {
		t.Fatal(err)
	}
	if len(locs) != 2 {
		t.Fatalf("len = %d, want 2", len(locs))
	}
	if !locs[0].Timestamp.After(locs[1].Timestamp) {
		t.Errorf("not newest first: %v then %v", locs[0].Timestamp, locs[1].Timestamp)
	}
	if p := env.Meta.Pagination; p == nil || !p.HasMore || p.Limit != 2 {
		t.Errorf("pagination = %+v", env.Meta.Pagination)
	}
}

func TestPatrolLocations_Errors(t *testing.T) {
	e := newTestEnv(t, nil)
	e.seedPatrol(t, "P1", 1, 1)

	tests := []struct {
		path     string
		wantCode int
		wantErr  string
	}{
		{"/api/v1/patrols/P9/locations", http.StatusNotFound, ErrCodeNotFound},
		{"/api/v1/patrols/P1/locations?limit=abc", http.StatusBadRequest, ErrCodeBadRequest},
		{"/api/v1/patrols/P1/locations?limit=0", http.StatusBadRequest, ErrCodeValidationFailed},
		{"/api/v1/patrols/P1/locations?limit=1001", http.StatusBadRequest, ErrCodeValidationFailed},
		{"/api/v1/patrols/a:b/locations", http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, env := e.get(t, tt.path)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if env.Success || env.Error == nil || env.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantErr)
			}
		})
	}
}

func TestListSOS(t *testing.T) {
	e := newTestEnv(t, nil)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"sos_a", "sos_b", "sos_c"} {
		e.record(t, models.TopicSOSTriggered, models.SOSTriggeredEvent{Alert: models.SOSAlert{
			ID: id, PatrolID: "P1", Latitude: models.F64(1), Longitude: models.F64(1),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}})
	}
	e.record(t, models.TopicSOSStatus, models.SOSStatusEvent{SOSID: "sos_b", Status: models.SOSStatusResolved})

	code, env := e.get(t, "/api/v1/sos")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var all []models.SOSRecord
	if err := json.Unmarshal(env.Data, &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "sos_c" || all[2].ID != "sos_a" {
		t.Errorf("order = %v", all)
	}

	_, env = e.get(t, "/api/v1/sos?status=active")
	var active []models.SOSRecord
	if err := json.Unmarshal(env.Data, &active); err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Errorf("active = %d alerts, want 2", len(active))
	}

	code, env = e.get(t, "/api/v1/sos?status=active,escalated")
	if code != http.StatusBadRequest || env.Error.Code != ErrCodeValidationFailed {
		t.Errorf("bad status filter: code %d, error %+v", code, env.Error)
	}
}

func TestSOSNearby(t *testing.T) {
	e := newTestEnv(t, nil)
	e.seedPatrol(t, "ORIGIN", 0, 0)
	e.seedPatrol(t, "NEAR", 0.01, 0)
	e.seedPatrol(t, "FAR", 0.5, 0)
	e.record(t, models.TopicSOSTriggered, models.SOSTriggeredEvent{Alert: models.SOSAlert{
		ID: "sos_1", PatrolID: "ORIGIN", Latitude: models.F64(0), Longitude: models.F64(0),
	}})

	code, env := e.get(t, "/api/v1/sos/sos_1/nearby?k=1")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var nearby []models.NearbyPatrol
	if err := json.Unmarshal(env.Data, &nearby); err != nil {
		t.Fatal(err)
	}
	if len(nearby) != 1 || nearby[0].PatrolID != "NEAR" {
		t.Errorf("nearby = %+v", nearby)
	}

	if code, _ := e.get(t, "/api/v1/sos/sos_missing/nearby"); code != http.StatusNotFound {
		t.Errorf("missing alert code = %d", code)
	}
	if code, _ := e.get(t, "/api/v1/sos/sos_1/nearby?k=21"); code != http.StatusBadRequest {
		t.Errorf("k=21 code = %d", code)
	}
}

func TestQueryEndpoints_RecorderDisabled(t *testing.T) {
	h := NewHandler(ws.NewHub(ws.DefaultOptions(), nil), nil, nil, nil, HandlerOptions{})
	handler := NewRouter(h, NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true})).SetupChi()

	for _, path := range []string{"/api/v1/patrols", "/api/v1/sos", "/api/v1/sos/x/nearby", "/api/v1/patrols/P1/locations"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: code %d, want 503", path, rec.Code)
		}
	}
}

func TestNotFoundUsesEnvelope(t *testing.T) {
	e := newTestEnv(t, nil)
	code, env := e.get(t, "/api/v2/nothing")
	if code != http.StatusNotFound || env.Error == nil || env.Error.Code != ErrCodeNotFound {
		t.Errorf("code %d, error %+v", code, env.Error)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "vigil_hub_connections") {
		t.Errorf("metrics code %d, body missing vigil_hub_connections", rec.Code)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestWebSocket_PatrolBecomesOnline(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.hub.RunWithContext(ctx) }()

	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frame := `{"event":"patrol-connect","data":{"patrolId":"P1"}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, env := e.get(t, "/api/v1/patrols/online")
		var ids []string
		if err := json.Unmarshal(env.Data, &ids); err != nil {
			t.Fatal(err)
		}
		if len(ids) == 1 && ids[0] == "P1" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("P1 never came online, got %v", ids)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocket_OriginPolicy(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.hub.RunWithContext(ctx) }()

	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	tests := []struct {
		origin string
		ok     bool
	}{
		{"", true},
		{"https://hq.example.org", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
			if tt.ok {
				if err != nil {
					t.Fatalf("dial: %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				conn.Close()
				t.Fatal("dial from foreign origin should fail")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("response = %v, want 403", resp)
			}
		})
	}
}

func TestWebSocket_HubStopped(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = e.hub.RunWithContext(ctx) }()
	cancel()
	<-e.hub.Done()

	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read error = %v, want close 1001", err)
	}
}
