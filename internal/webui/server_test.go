package webui

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/skybridge-io/skybridge/internal/agent"
	"github.com/skybridge-io/skybridge/internal/config"
	"github.com/skybridge-io/skybridge/internal/journal"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	srv *Server
	cfg *config.AgentConfig
	jnl *journal.Journal
	ag  *agent.Agent
}

func newTestServer(t *testing.T, password string, ready bool) *testServer {
	t.Helper()
	dir := t.TempDir()

	jnl, err := journal.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	ag := agent.New(agent.Config{
		TenantID: "tenant-1",
		AgentID:  "agent-1",
		Endpoint: "cloud.example.com:8443",
		Version:  "1.0.0",
		DataDir:  dir,
	}, jnl)

	cfg := config.Default()
	cfg.Token = "tok"
	cfg.TenantID = "tenant-1"
	cfg.AgentID = "agent-1"
	cfg.UI.Password = password
	cfg.UI.JWTSecret = "test-secret"
	configPath := filepath.Join(dir, "agent.yaml")
	if err := config.Save(configPath, cfg); err != nil {
		t.Fatal(err)
	}

	srv := New(cfg, Options{
		ConfigPath: configPath,
		Agent:      ag,
		Journal:    jnl,
		Ready:      func() bool { return ready },
		Version:    "1.0.0",
	})
	return &testServer{srv: srv, cfg: cfg, jnl: jnl, ag: ag}
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, req)
	return w
}

func (ts *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w := ts.do("POST", "/api/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Token
}

func TestHealthz_NotReady(t *testing.T) {
	ts := newTestServer(t, "", false)
	w := ts.do("GET", "/healthz", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestHealthz_ReadyButDisconnected(t *testing.T) {
	// a ready agent in reconnect backoff is still healthy
	ts := newTestServer(t, "", true)
	w := ts.do("GET", "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Status    string `json:"status"`
		Connected bool   `json:"connected"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Connected {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestLogin_NotConfigured(t *testing.T) {
	ts := newTestServer(t, "", true)
	w := ts.do("POST", "/api/login", "", map[string]string{"username": "admin", "password": "x"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	ts := newTestServer(t, "s3cret", true)
	w := ts.do("POST", "/api/login", "", map[string]string{"username": "admin", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuth_GuardsAPI(t *testing.T) {
	ts := newTestServer(t, "s3cret", true)

	if w := ts.do("GET", "/api/status", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", w.Code)
	}
	if w := ts.do("GET", "/api/status", "bogus", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", w.Code)
	}

	token := ts.login(t, "admin", "s3cret")
	w := ts.do("GET", "/api/status", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", w.Code)
	}
	var snap agent.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.AgentID != "agent-1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestAuth_OpenWhenNoPassword(t *testing.T) {
	ts := newTestServer(t, "", true)
	if w := ts.do("GET", "/api/status", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestEvents(t *testing.T) {
	ts := newTestServer(t, "", true)
	for i := 0; i < 3; i++ {
		if err := ts.jnl.Append("cycle", []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
	}

	w := ts.do("GET", "/api/events?limit=2", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Events []journal.Event `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(resp.Events))
	}
}

func TestGetConfig_RedactsSecrets(t *testing.T) {
	ts := newTestServer(t, "s3cret", true)
	token := ts.login(t, "admin", "s3cret")

	w := ts.do("GET", "/api/config", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc["token"] != "REDACTED" {
		t.Fatalf("token = %v, want REDACTED", doc["token"])
	}
	if ui, ok := doc["ui"].(map[string]any); ok {
		if _, leaked := ui["password"]; leaked {
			t.Fatal("ui password leaked")
		}
		if _, leaked := ui["jwt_secret"]; leaked {
			t.Fatal("jwt secret leaked")
		}
	}
}

func TestPutConfig(t *testing.T) {
	ts := newTestServer(t, "s3cret", true)
	token := ts.login(t, "admin", "s3cret")

	w := ts.do("PUT", "/api/config", token, map[string]any{
		"log_level":         "debug",
		"heartbeat_seconds": 10,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	cfg, err := config.Load(ts.srv.opts.ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" || cfg.HeartbeatSeconds != 10 {
		t.Fatalf("config not persisted: %+v", cfg)
	}
}

func TestPutConfig_HeartbeatTooLow(t *testing.T) {
	ts := newTestServer(t, "s3cret", true)
	token := ts.login(t, "admin", "s3cret")

	w := ts.do("PUT", "/api/config", token, map[string]any{"heartbeat_seconds": 1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPutConfig_RequiresAuthConfigured(t *testing.T) {
	ts := newTestServer(t, "", true)
	w := ts.do("PUT", "/api/config", "", map[string]any{"log_level": "debug"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestIndexServed(t *testing.T) {
	ts := newTestServer(t, "", true)
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "identity")
	w := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("content type = %s", w.Header().Get("Content-Type"))
	}
}
