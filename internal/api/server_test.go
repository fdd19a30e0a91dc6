package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/starterkit-core/internal/audit"
	"github.com/nerrad567/starterkit-core/internal/infrastructure/config"
	"github.com/nerrad567/starterkit-core/internal/infrastructure/database"
	"github.com/nerrad567/starterkit-core/internal/infrastructure/logging"
	"github.com/nerrad567/starterkit-core/internal/settings"
	_ "github.com/nerrad567/starterkit-core/migrations" // registers embedded migrations
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Host:    "127.0.0.1",
		Port:    0,
		Timeouts: config.APITimeoutConfig{
			Read:  5,
			Write: 5,
			Idle:  5,
		},
	}
}

// testServer creates a Server backed by a migrated SQLite database.
func testServer(t *testing.T) (*Server, *database.DB) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	auditRepo := audit.NewSQLRepository(db)
	store, err := settings.NewStore(db, auditRepo, config.SettingsConfig{})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	srv, err := New(Deps{
		Config:   testAPIConfig(),
		Logger:   testLogger(),
		DB:       db,
		Settings: store,
		Audit:    auditRepo,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, db
}

// do sends a request through the router and returns the recorder.
func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_MissingDeps(t *testing.T) {
	srv, db := testServer(t)
	store := srv.settings

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{DB: db, Settings: store}},
		{"no database", Deps{Logger: testLogger(), Settings: store}},
		{"no settings", Deps{Logger: testLogger(), DB: db}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode[HealthResponse](t, w)
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v, want ok/test", resp)
	}
	if resp.Database.Status != "ok" || resp.Database.Driver != database.DriverSQLite {
		t.Errorf("database = %+v, want ok/sqlite3", resp.Database)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	srv, db := testServer(t)
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	resp := decode[HealthResponse](t, w)
	if resp.Status != "degraded" || resp.Database.Status != "error" || resp.Database.Error == "" {
		t.Errorf("health = %+v, want degraded with error", resp)
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	m := decode[SystemMetrics](t, w)
	if m.Version != "test" || m.Runtime.Goroutines == 0 {
		t.Errorf("metrics = %+v", m)
	}
	if m.MQTT.Enabled || m.MQTT.Connected || m.InfluxDB.Enabled {
		t.Errorf("integrations = %+v / %+v, want disabled", m.MQTT, m.InfluxDB)
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/settings", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	srv, _ := testServer(t)
	srv.cfg.CORS.AllowedOrigins = []string{"http://app.local"}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.local")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := do(t, h, http.MethodGet, "/", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if e := decode[Error](t, w); e.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeInternal)
	}
}

func TestBodySizeLimit(t *testing.T) {
	srv, _ := testServer(t)

	body := `{"value":"` + strings.Repeat("a", maxRequestBodySize) + `"}`
	w := do(t, srv.Handler(), http.MethodPut, "/api/v1/settings/last_view", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if e := decode[Error](t, w); e.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeNotFound)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.Handler(), http.MethodPost, "/api/v1/health", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
	if e := decode[Error](t, w); e.Code != ErrCodeMethodNotAllowed || e.Status != http.StatusMethodNotAllowed {
		t.Errorf("body = %+v, want code %q", e, ErrCodeMethodNotAllowed)
	}
}

// ─── Settings Endpoint Tests ───────────────────────────────────────

func TestListSettings_Defaults(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/settings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[struct {
		Settings []settings.Value `json:"settings"`
	}](t, w)
	if len(resp.Settings) != len(settings.AllKeys()) {
		t.Fatalf("len(settings) = %d, want %d", len(resp.Settings), len(settings.AllKeys()))
	}
	for _, v := range resp.Settings {
		if !v.Default {
			t.Errorf("%s.Default = false on a fresh database", v.Key)
		}
	}
}

func TestSetAndGetSetting(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	w := do(t, h, http.MethodPut, "/api/v1/settings/theme", `{"value":"dark"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", w.Code, w.Body.String())
	}
	if st := decode[settings.Setting](t, w); st.Key != settings.KeyTheme || st.Value != "dark" {
		t.Errorf("PUT response = %+v", st)
	}

	w = do(t, h, http.MethodGet, "/api/v1/settings/theme", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d", w.Code)
	}
	if v := decode[settings.Value](t, w); v.Value != "dark" || v.Default {
		t.Errorf("GET response = %+v, want stored dark", v)
	}

	w = do(t, h, http.MethodGet, "/api/v1/settings/stored", "")
	stored := decode[struct {
		Settings []settings.Setting `json:"settings"`
	}](t, w)
	if len(stored.Settings) != 1 {
		t.Errorf("stored = %+v, want one", stored.Settings)
	}
}

func TestSetSetting_Errors(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown key", "/api/v1/settings/font", `{"value":"mono"}`, http.StatusNotFound, ErrCodeNotFound},
		{"invalid value", "/api/v1/settings/theme", `{"value":"neon"}`, http.StatusBadRequest, ErrCodeValidation},
		{"missing value", "/api/v1/settings/theme", `{}`, http.StatusBadRequest, ErrCodeValidation},
		{"bad json", "/api/v1/settings/theme", `{`, http.StatusBadRequest, ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv.Handler(), http.MethodPut, tt.target, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			e := decode[Error](t, w)
			if e.Code != tt.wantCode || e.Status != tt.wantStatus {
				t.Errorf("error = %+v, want code %q", e, tt.wantCode)
			}
		})
	}
}

func TestGetSetting_UnknownKey(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/settings/font", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateSettings(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	w := do(t, h, http.MethodPut, "/api/v1/settings",
		`{"values":{"window_width":"1600","window_height":"900","window_maximized":"true"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	ws, err := srv.settings.WindowSize(context.Background())
	if err != nil {
		t.Fatalf("WindowSize() error = %v", err)
	}
	if ws != (settings.WindowSize{Width: 1600, Height: 900, Maximized: true}) {
		t.Errorf("WindowSize() = %+v", ws)
	}
}

func TestUpdateSettings_Atomic(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	w := do(t, h, http.MethodPut, "/api/v1/settings", `{"values":{"theme":"dark","window_width":"10"}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	theme, err := srv.settings.Theme(context.Background())
	if err != nil {
		t.Fatalf("Theme() error = %v", err)
	}
	if theme != settings.ThemeSystem {
		t.Errorf("Theme() = %q after rejected batch, want system", theme)
	}

	w = do(t, h, http.MethodPut, "/api/v1/settings", `{"values":{"colour":"red"}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown key status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = do(t, h, http.MethodPut, "/api/v1/settings", `{"values":{}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty batch status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestResetSetting(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	do(t, h, http.MethodPut, "/api/v1/settings/language", `{"value":"de"}`)

	w := do(t, h, http.MethodDelete, "/api/v1/settings/language", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[ResetSettingResponse](t, w)
	if !resp.Removed || resp.Value != "en" {
		t.Errorf("reset = %+v, want removed with default en", resp)
	}

	w = do(t, h, http.MethodDelete, "/api/v1/settings/language", "")
	if resp := decode[ResetSettingResponse](t, w); resp.Removed {
		t.Errorf("second reset = %+v, want removed=false", resp)
	}
}

// ─── Audit Endpoint Tests ──────────────────────────────────────────

func TestListAuditLogs(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	do(t, h, http.MethodPut, "/api/v1/settings/theme", `{"value":"dark"}`)
	do(t, h, http.MethodPut, "/api/v1/settings/theme", `{"value":"light"}`)
	do(t, h, http.MethodDelete, "/api/v1/settings/theme", "")

	w := do(t, h, http.MethodGet, "/api/v1/audit?entity_id=theme&limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	res := decode[audit.ListResult](t, w)
	if res.Total != 3 || len(res.Logs) != 2 || res.Limit != 2 {
		t.Errorf("audit = total %d, logs %d, limit %d; want 3, 2, 2", res.Total, len(res.Logs), res.Limit)
	}
	for _, l := range res.Logs {
		if l.Source != sourceAPI {
			t.Errorf("source = %q, want %q", l.Source, sourceAPI)
		}
	}

	w = do(t, h, http.MethodGet, "/api/v1/audit?action=reset", "")
	if res := decode[audit.ListResult](t, w); res.Total != 1 {
		t.Errorf("reset entries = %d, want 1", res.Total)
	}
}

func TestListAuditLogs_BadParams(t *testing.T) {
	srv, _ := testServer(t)

	for _, q := range []string{"limit=ten", "offset=x"} {
		w := do(t, srv.Handler(), http.MethodGet, "/api/v1/audit?"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", q, w.Code, http.StatusBadRequest)
		}
	}
}

func TestListAuditLogs_NotConfigured(t *testing.T) {
	srv, _ := testServer(t)
	srv.auditRepo = nil

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/audit", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// ─── Lifecycle Tests ───────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() error = nil, want error")
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	addr := srv.Addr()
	if !strings.HasPrefix(addr, "127.0.0.1:") {
		t.Fatalf("Addr() = %q", addr)
	}

	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
