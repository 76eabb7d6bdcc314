package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/spimrig/internal/backend/sim"
	"github.com/nerrad567/spimrig/internal/device"
	"github.com/nerrad567/spimrig/internal/history"
	"github.com/nerrad567/spimrig/internal/infrastructure/config"
	"github.com/nerrad567/spimrig/internal/infrastructure/database"
	"github.com/nerrad567/spimrig/internal/infrastructure/logging"
	"github.com/nerrad567/spimrig/internal/setup"
	"github.com/nerrad567/spimrig/internal/telemetry"
	"github.com/nerrad567/spimrig/migrations"
)

type testOptions struct {
	simOpts   []sim.Option
	setupOpts []setup.Option
	rateLimit config.RateLimitConfig
	noHistory bool
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Host: "127.0.0.1",
		Port: 0,
		Timeouts: config.APITimeoutConfig{
			Read:  5,
			Write: 5,
			Idle:  5,
		},
	}
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		MaxMessageSize: 8192,
		PingInterval:   30,
		PongTimeout:    10,
	}
}

// testServer creates a Server over the simulated demo rig with an in-memory
// event journal.
func testServer(t *testing.T, opts testOptions) (*Server, *sim.Backend) {
	t.Helper()

	backend := sim.New(sim.DemoDevices(), opts.simOpts...)
	metrics := telemetry.NewMetrics()
	reg := device.MustNewRegistry(backend, device.DefaultFactories(), device.WithFailureSink(metrics))
	disc := setup.NewBackendDiscovery(backend, setup.Defaults{
		XYStage: sim.DemoXYStage,
		Focus:   sim.DemoFocus,
		Shutter: sim.DemoLaser,
		Camera:  sim.DemoCamera,
	}, metrics)
	rig := setup.NewDefault(reg, disc, append(opts.setupOpts, setup.WithObserver(metrics))...)

	deps := Deps{
		Config:  testAPIConfig(),
		WS:      testWSConfig(),
		Logger:  testLogger(),
		Rig:     rig,
		Metrics: metrics.Handler(),
		Version: "test",
	}
	deps.Config.RateLimit = opts.rateLimit

	if !opts.noHistory {
		ctx := context.Background()
		db, err := database.Open(ctx, database.Config{Path: database.MemoryPath, Migrations: migrations.FS})
		if err != nil {
			t.Fatalf("database.Open() error = %v", err)
		}
		t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}
		repo := history.NewSQLiteRepository(db.DB)
		rig.Subscribe(history.NewRecorder(repo, nil))
		deps.History = repo
		deps.DB = db
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	backend.ResetCalls()
	return srv, backend
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	w := doRequest(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	resp := decodeJSON[map[string]any](t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Deps{Rig: &setup.Setup{}}); err == nil {
		t.Error("New() without logger: error = nil")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without rig: error = nil")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	w := doRequest(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t, testOptions{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t, testOptions{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/snap", nil)
	req.Header.Set("Origin", "http://lab-pc:3000")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://lab-pc:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	srv.cfg.CORS.AllowedOrigins = []string{"http://allowed"}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://other")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	w := doRequest(t, srv.buildRouter(), http.MethodGet, "/api/v1/nonexistent", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if resp := decodeJSON[Error](t, w); resp.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeNotFound)
	}
}

func TestRecovery(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := doRequest(t, h, http.MethodGet, "/", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := testServer(t, testOptions{
		rateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, Burst: 2},
	})
	router := srv.buildRouter()

	for i := range 2 {
		if w := doRequest(t, router, http.MethodPost, "/api/v1/snap", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}

	w := doRequest(t, router, http.MethodPost, "/api/v1/snap", "")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}

	// Reads are not limited.
	if w := doRequest(t, router, http.MethodGet, "/api/v1/setup", ""); w.Code != http.StatusOK {
		t.Errorf("GET /setup status = %d, want 200", w.Code)
	}
}

func TestKeyedLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := newKeyedLimiter(1, 1, time.Minute)

	if !l.Allow("10.0.0.1", now) {
		t.Fatal("first request denied")
	}
	if l.Allow("10.0.0.1", now) {
		t.Error("second request within the same instant allowed")
	}
	if !l.Allow("10.0.0.2", now) {
		t.Error("other client denied")
	}
	if !l.Allow("10.0.0.1", now.Add(time.Second)) {
		t.Error("request after refill denied")
	}

	var disabled *keyedLimiter
	if !disabled.Allow("x", now) {
		t.Error("nil limiter denied a request")
	}
	if newKeyedLimiter(0, 1, 0) != nil {
		t.Error("newKeyedLimiter(0, ...) != nil")
	}
}

// ─── Setup Tests ───────────────────────────────────────────────────

func TestGetSetup(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	w := doRequest(t, srv.buildRouter(), http.MethodGet, "/api/v1/setup", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeJSON[SetupResponse](t, w)
	if len(resp.Slots) != len(device.AllSlots()) {
		t.Errorf("slots = %d, want %d", len(resp.Slots), len(device.AllSlots()))
	}
	if !resp.Capabilities.Stage3D {
		t.Error("capabilities.stage_3d = false for the demo rig")
	}

	byName := map[device.Slot]setup.SlotStatus{}
	for _, st := range resp.Slots {
		byName[st.Slot] = st
	}
	if z := byName[device.SlotStageZ]; z.Label != sim.DemoFocus || !z.Connected {
		t.Errorf("stage_z = %+v, want connected %s", z, sim.DemoFocus)
	}
}

func TestBindAndUnbindSlot(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodDelete, "/api/v1/setup/slots/laser1", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("unbind status = %d, want 204", w.Code)
	}
	if srv.rig.Device(device.SlotLaser1) != nil {
		t.Fatal("laser1 still bound after DELETE")
	}

	w = doRequest(t, router, http.MethodPut, "/api/v1/setup/slots/laser1", `{"label":"Laser0"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("bind status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if d := srv.rig.Device(device.SlotLaser1); d == nil || d.Label() != sim.DemoLaser {
		t.Errorf("laser1 = %v, want %s", d, sim.DemoLaser)
	}
}

func TestBindSlot_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"unknown slot", "/api/v1/setup/slots/laser9", `{"label":"Laser0"}`, http.StatusBadRequest},
		{"missing label", "/api/v1/setup/slots/laser1", `{}`, http.StatusBadRequest},
		{"invalid JSON", "/api/v1/setup/slots/laser1", `{`, http.StatusBadRequest},
		{"unknown field", "/api/v1/setup/slots/laser1", `{"name":"x"}`, http.StatusBadRequest},
		{"unloaded label", "/api/v1/setup/slots/laser1", `{"label":"Nope"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, testOptions{})
			w := doRequest(t, srv.buildRouter(), http.MethodPut, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

// ─── Stage Tests ───────────────────────────────────────────────────

func TestSetAndGetPosition(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodPut, "/api/v1/stage/position", `{"x":100,"y":200,"z":300,"wait":true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("PUT status = %d, want 202: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/stage/position", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", w.Code)
	}
	pos := decodeJSON[PositionResponse](t, w)
	if pos.X == nil || pos.Y == nil || pos.Z == nil {
		t.Fatalf("position = %+v, want all axes", pos)
	}
	if *pos.X != 100 || *pos.Y != 200 || *pos.Z != 300 {
		t.Errorf("position = (%v, %v, %v), want (100, 200, 300)", *pos.X, *pos.Y, *pos.Z)
	}
}

func TestGetPosition_FailedReadIsNull(t *testing.T) {
	srv, backend := testServer(t, testOptions{})
	backend.Fail(sim.OpGetPosition, nil)

	w := doRequest(t, srv.buildRouter(), http.MethodGet, "/api/v1/stage/position", "")
	pos := decodeJSON[map[string]any](t, w)
	if v, ok := pos["z"]; !ok || v != nil {
		t.Errorf("z = %v, want null", v)
	}
}

func TestSetPosition_SingleAxis(t *testing.T) {
	srv, backend := testServer(t, testOptions{})

	w := doRequest(t, srv.buildRouter(), http.MethodPut, "/api/v1/stage/position", `{"z":55}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if z, _ := backend.Position(sim.DemoFocus); z != 55 {
		t.Errorf("z = %v, want 55", z)
	}
	if calls := backend.CallStrings(sim.OpSetXYPosition); len(calls) != 0 {
		t.Errorf("XY stage moved: %v", calls)
	}
}

func TestSetPosition_Errors(t *testing.T) {
	tests := []struct {
		name       string
		opts       testOptions
		body       string
		wantStatus int
	}{
		{"no axes", testOptions{}, `{}`, http.StatusBadRequest},
		{"invalid JSON", testOptions{}, `{"x":`, http.StatusBadRequest},
		{
			name:       "origin protection",
			opts:       testOptions{setupOpts: []setup.Option{setup.WithOriginMoveProtection(true)}},
			body:       `{"x":0,"y":0,"z":0}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, backend := testServer(t, tt.opts)
			w := doRequest(t, srv.buildRouter(), http.MethodPut, "/api/v1/stage/position", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if calls := backend.CallStrings(sim.OpSetXYPosition, sim.OpSetPosition); len(calls) != 0 {
				t.Errorf("hardware moved: %v", calls)
			}
		})
	}
}

func TestSetPosition_No3DStage(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	srv.rig.Unbind(device.SlotStageX)

	w := doRequest(t, srv.buildRouter(), http.MethodPut, "/api/v1/stage/position", `{"x":1,"y":2,"z":3}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestHome(t *testing.T) {
	srv, backend := testServer(t, testOptions{})
	router := srv.buildRouter()

	if err := backend.SetPosition(sim.DemoFocus, 120); err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}

	w := doRequest(t, router, http.MethodPost, "/api/v1/stage/stage_z/home", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	if v, _ := backend.Property(sim.DemoFocus, "GoHome"); v != "1" {
		t.Errorf("GoHome = %q, want 1", v)
	}
	if z, _ := backend.Position(sim.DemoFocus); z != 0 {
		t.Errorf("z after home = %v, want 0", z)
	}

	w = doRequest(t, router, http.MethodPost, "/api/v1/stage/synchronizer/home", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("home of unbound slot status = %d, want 404", w.Code)
	}
}

func TestSetVelocity(t *testing.T) {
	srv, backend := testServer(t, testOptions{})
	router := srv.buildRouter()

	w := doRequest(t, router, http.MethodPut, "/api/v1/stage/stage_z/velocity", `{"velocity":4}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", w.Code, w.Body.String())
	}
	if v, _ := backend.Property(sim.DemoFocus, "Velocity"); v != "4" {
		t.Errorf("Velocity = %q, want 4", v)
	}

	w = doRequest(t, router, http.MethodPut, "/api/v1/stage/stage_z/velocity", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing velocity status = %d, want 400", w.Code)
	}
}

// ─── Laser and Acquisition Tests ───────────────────────────────────

func TestSetLaser(t *testing.T) {
	srv, backend := testServer(t, testOptions{})

	w := doRequest(t, srv.buildRouter(), http.MethodPut, "/api/v1/lasers/laser1", `{"watts":0.05,"on":true}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", w.Code, w.Body.String())
	}
	if on, _ := backend.PoweredOn(sim.DemoLaser); !on {
		t.Error("laser not switched on")
	}
}

func TestSetLaser_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"no fields", "/api/v1/lasers/laser1", `{}`, http.StatusBadRequest},
		{"not a laser", "/api/v1/lasers/stage_z", `{"on":true}`, http.StatusUnprocessableEntity},
		{"unknown slot", "/api/v1/lasers/laser7", `{"on":true}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, testOptions{})
			w := doRequest(t, srv.buildRouter(), http.MethodPut, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestSnap(t *testing.T) {
	srv, _ := testServer(t, testOptions{simOpts: []sim.Option{sim.WithFrameSize(8, 4)}})

	w := doRequest(t, srv.buildRouter(), http.MethodPost, "/api/v1/snap", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	resp := decodeJSON[SnapResponse](t, w)
	if resp.Width != 8 || resp.Height != 4 {
		t.Errorf("frame = %dx%d, want 8x4", resp.Width, resp.Height)
	}
}

func TestSnap_Errors(t *testing.T) {
	t.Run("no camera", func(t *testing.T) {
		srv, _ := testServer(t, testOptions{})
		srv.rig.Unbind(device.SlotCamera1)
		w := doRequest(t, srv.buildRouter(), http.MethodPost, "/api/v1/snap", "")
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		srv, backend := testServer(t, testOptions{})
		backend.Fail(sim.OpSnap, nil)
		w := doRequest(t, srv.buildRouter(), http.MethodPost, "/api/v1/snap", "")
		if w.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
		}
	})
}

// ─── History Tests ─────────────────────────────────────────────────

func TestListHistory(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	router := srv.buildRouter()

	doRequest(t, router, http.MethodPut, "/api/v1/stage/stage_z/velocity", `{"velocity":2}`)
	doRequest(t, router, http.MethodPost, "/api/v1/snap", "")

	w := doRequest(t, router, http.MethodGet, "/api/v1/history?type=snap", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	resp := decodeJSON[history.ListResult](t, w)
	if resp.Total != 1 || len(resp.Events) != 1 {
		t.Fatalf("history = %+v, want one snap", resp)
	}
	if resp.Events[0].Type != setup.EventSnap {
		t.Errorf("event type = %s, want snap", resp.Events[0].Type)
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/history?slot=stage_z&limit=10", "")
	resp = decodeJSON[history.ListResult](t, w)
	if resp.Total != 1 || resp.Limit != 10 {
		t.Errorf("stage_z history total = %d limit = %d, want 1 and 10", resp.Total, resp.Limit)
	}
}

func TestListHistory_Errors(t *testing.T) {
	tests := []struct {
		name       string
		opts       testOptions
		query      string
		wantStatus int
	}{
		{"bad slot", testOptions{}, "?slot=stage_q", http.StatusBadRequest},
		{"bad since", testOptions{}, "?since=yesterday", http.StatusBadRequest},
		{"negative limit", testOptions{}, "?limit=-1", http.StatusBadRequest},
		{"bad offset", testOptions{}, "?offset=abc", http.StatusBadRequest},
		{"no journal", testOptions{noHistory: true}, "", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, tt.opts)
			w := doRequest(t, srv.buildRouter(), http.MethodGet, "/api/v1/history"+tt.query, "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

// ─── Metrics and System Tests ──────────────────────────────────────

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	router := srv.buildRouter()

	doRequest(t, router, http.MethodPost, "/api/v1/snap", "")
	w := doRequest(t, router, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `spimrig_events_total{ok="true",type="snap"} 1`) {
		t.Errorf("snap counter missing from exposition:\n%s", w.Body.String())
	}
}

type fakeStatus bool

func (f fakeStatus) IsConnected() bool { return bool(f) }

func TestSystem(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	srv.mqtt = fakeStatus(true)

	w := doRequest(t, srv.buildRouter(), http.MethodGet, "/api/v1/system", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeJSON[SystemMetrics](t, w)
	if !resp.MQTT.Configured || !resp.MQTT.Connected {
		t.Errorf("mqtt = %+v, want configured and connected", resp.MQTT)
	}
	if resp.InfluxDB.Configured {
		t.Error("influxdb reported configured")
	}
	if resp.Rig.BoundSlots == 0 {
		t.Error("rig.bound_slots = 0")
	}
	if resp.Version != "test" {
		t.Errorf("version = %q, want test", resp.Version)
	}
}

// ─── Hub Tests ─────────────────────────────────────────────────────

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testWSConfig(), testLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

// subscribedClient registers a connectionless client with the filter p.
func subscribedClient(t *testing.T, hub *Hub, p WSSubscribePayload) *WSClient {
	t.Helper()
	f, err := newEventFilter(p)
	if err != nil {
		t.Fatalf("newEventFilter() error = %v", err)
	}
	client := hub.newClient(nil)
	client.filter = f
	hub.Register(client)
	return client
}

func TestHub_NotifyFilters(t *testing.T) {
	tests := []struct {
		name  string
		sub   WSSubscribePayload
		event setup.Event
		want  bool
	}{
		{"all events", WSSubscribePayload{}, setup.Event{Type: setup.EventSnap, Slot: device.SlotCamera1}, true},
		{"matching type", WSSubscribePayload{Events: []setup.EventType{setup.EventMove}}, setup.Event{Type: setup.EventMove, Slot: device.SlotStageZ}, true},
		{"other type", WSSubscribePayload{Events: []setup.EventType{setup.EventSnap}}, setup.Event{Type: setup.EventLaser, Slot: device.SlotLaser1}, false},
		{"matching slot", WSSubscribePayload{Slots: []device.Slot{device.SlotLaser2}}, setup.Event{Type: setup.EventLaser, Slot: device.SlotLaser2}, true},
		{"other slot", WSSubscribePayload{Slots: []device.Slot{device.SlotLaser2}}, setup.Event{Type: setup.EventLaser, Slot: device.SlotLaser1}, false},
		{
			"type and slot",
			WSSubscribePayload{Events: []setup.EventType{setup.EventHome}, Slots: []device.Slot{device.SlotStageZ}},
			setup.Event{Type: setup.EventMove, Slot: device.SlotStageZ},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newTestHub(t)
			client := subscribedClient(t, hub, tt.sub)

			hub.Notify(tt.event)

			if got := len(client.send) == 1; got != tt.want {
				t.Fatalf("delivered = %v, want %v", got, tt.want)
			}
			if !tt.want {
				return
			}
			var msg WSMessage
			if err := json.Unmarshal(<-client.send, &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if msg.Type != WSTypeEvent || msg.EventType != tt.event.Type {
				t.Errorf("message = %+v, want %s event", msg, tt.event.Type)
			}
		})
	}
}

func TestHub_ClientWithoutFilterReceivesNothing(t *testing.T) {
	hub := newTestHub(t)
	client := hub.newClient(nil)
	hub.Register(client)

	hub.Notify(setup.Event{Type: setup.EventSnap, Slot: device.SlotCamera1})

	if got := len(client.send); got != 0 {
		t.Errorf("messages = %d, want 0", got)
	}
}

func TestNewEventFilter_Rejects(t *testing.T) {
	tests := []struct {
		name string
		sub  WSSubscribePayload
	}{
		{"unknown event type", WSSubscribePayload{Events: []setup.EventType{"dance"}}},
		{"unknown slot", WSSubscribePayload{Slots: []device.Slot{"laser9"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newEventFilter(tt.sub); err == nil {
				t.Error("newEventFilter() error = nil, want error")
			}
		})
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := newTestHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := hub.newClient(nil)
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
	hub.Unregister(client)
}

// ─── WebSocket Tests ───────────────────────────────────────────────

func connectWebSocket(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

// decodePayload re-decodes a generic message payload into v.
func decodePayload(t *testing.T, payload, v any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
}

func subscribeWS(t *testing.T, ws *websocket.Conn, id string, p WSSubscribePayload) WSSubscribeResponse {
	t.Helper()
	if err := ws.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: id, Payload: p}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	msg := readWS(t, ws)
	if msg.Type != WSTypeResponse || msg.ID != id {
		t.Fatalf("response = %+v, want response to %s", msg, id)
	}
	var resp WSSubscribeResponse
	decodePayload(t, msg.Payload, &resp)
	return resp
}

func TestWebSocket_SubscribeAndReceiveEvent(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	ws := connectWebSocket(t, srv)

	resp := subscribeWS(t, ws, "sub-1", WSSubscribePayload{Events: []setup.EventType{setup.EventSnap}})
	if len(resp.Status) != len(device.AllSlots()) {
		t.Errorf("status entries = %d, want %d", len(resp.Status), len(device.AllSlots()))
	}

	if _, err := srv.rig.SnapImage(); err != nil {
		t.Fatalf("SnapImage() error = %v", err)
	}

	msg := readWS(t, ws)
	if msg.Type != WSTypeEvent || msg.EventType != setup.EventSnap {
		t.Fatalf("message = %+v, want snap event", msg)
	}
	var ev setup.Event
	decodePayload(t, msg.Payload, &ev)
	if ev.Slot != device.SlotCamera1 || ev.Label != sim.DemoCamera || ev.ID == "" {
		t.Errorf("event = %+v, want snap of %s", ev, sim.DemoCamera)
	}
}

func TestWebSocket_SlotFilter(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	ws := connectWebSocket(t, srv)

	resp := subscribeWS(t, ws, "sub-z", WSSubscribePayload{Slots: []device.Slot{device.SlotStageZ}})
	if len(resp.Status) != 1 || resp.Status[0].Slot != device.SlotStageZ || resp.Status[0].Label != sim.DemoFocus {
		t.Errorf("status = %+v, want only stage_z", resp.Status)
	}

	theta, z := 90.0, 12.0
	srv.rig.SetPosition(nil, nil, nil, &theta)
	srv.rig.SetPosition(nil, nil, &z, nil)

	msg := readWS(t, ws)
	var ev setup.Event
	decodePayload(t, msg.Payload, &ev)
	if ev.Type != setup.EventMove || ev.Slot != device.SlotStageZ {
		t.Errorf("first event = %+v, want stage_z move", ev)
	}
	if ev.Value == nil || *ev.Value != z {
		t.Errorf("event value = %v, want %v", ev.Value, z)
	}
}

func TestWebSocket_Unsubscribe(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	ws := connectWebSocket(t, srv)

	subscribeWS(t, ws, "sub-1", WSSubscribePayload{})

	if err := ws.WriteJSON(WSMessage{Type: WSTypeUnsubscribe, ID: "unsub-1"}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeResponse || resp.ID != "unsub-1" {
		t.Fatalf("unsubscribe response = %+v", resp)
	}

	if _, err := srv.rig.SnapImage(); err != nil {
		t.Fatalf("SnapImage() error = %v", err)
	}
	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypePong {
		t.Errorf("message after unsubscribe = %+v, want pong", resp)
	}
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	ws := connectWebSocket(t, srv)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypePong || resp.ID != "ping-1" {
		t.Errorf("ping response = %+v, want pong", resp)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write invalid: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeError {
		t.Errorf("invalid message response type = %s, want error", resp.Type)
	}

	if err := ws.WriteJSON(WSMessage{Type: "dance", ID: "x"}); err != nil {
		t.Fatalf("write unknown: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeError {
		t.Errorf("unknown type response = %s, want error", resp.Type)
	}

	bad := WSSubscribePayload{Slots: []device.Slot{"laser9"}}
	if err := ws.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "bad", Payload: bad}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeError || resp.ID != "bad" {
		t.Errorf("bad subscribe response = %+v, want error", resp)
	}
}

// ─── Lifecycle Tests ───────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	port := 19180
	srv.cfg.Port = port

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after Start error = %v", err)
	}

	addr := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	var resp *http.Response
	var err error
	for range 20 {
		if resp, err = http.Get(addr); err == nil {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := http.Get(addr); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServer_HealthCheckBeforeStart(t *testing.T) {
	srv, _ := testServer(t, testOptions{})
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
}
