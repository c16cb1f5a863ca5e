package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/sprocketd/sprocket/config"
	"github.com/sprocketd/sprocket/contract"
	"github.com/sprocketd/sprocket/engine"
	"github.com/sprocketd/sprocket/events"
	"github.com/sprocketd/sprocket/task"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AdminUser = "admin"
	cfg.Auth.AdminPass = string(hash)

	store, err := task.NewSQLiteStore(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(engine.Options{
		Store:    store,
		Registry: contract.Default(),
		Bus:      events.NewInMemoryBus(),
		Logger:   logger,
	})

	srv := New(*cfg, "test", logger)
	srv.SetEngine(eng)
	srv.registerRoutes()

	ts := httptest.NewServer(srv.mux)
	t.Cleanup(ts.Close)
	return srv, ts
}

func login(t *testing.T, ts *httptest.Server, user, pass string) (*http.Response, string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": user, "password": pass})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp, ""
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp, out.Token
}

func TestLogin(t *testing.T) {
	_, ts := newTestServer(t)

	resp, token := login(t, ts, "admin", "hunter2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	if token == "" {
		t.Fatal("login returned an empty token")
	}
}

func TestLogin_BadPassword(t *testing.T) {
	_, ts := newTestServer(t)

	resp, _ := login(t, ts, "admin", "wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("login status = %d, want 401", resp.StatusCode)
	}
}

func TestProtectedRoute_RequiresToken(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/tasks")
	if err != nil {
		t.Fatalf("GET tasks: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a token", resp.StatusCode)
	}
}

func TestProtectedRoute_WithToken(t *testing.T) {
	_, ts := newTestServer(t)
	_, token := login(t, ts, "admin", "hunter2")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET tasks: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 with a valid token", resp.StatusCode)
	}
}

func TestStatusIsPublic(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status endpoint = %d, want 200 without auth", resp.StatusCode)
	}
}

func TestVerifyToken_RejectsForgedToken(t *testing.T) {
	srv, _ := newTestServer(t)

	forged, err := signToken("other-secret", "admin")
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	if _, err := srv.verifyToken(forged); err == nil {
		t.Error("token signed with a different secret was accepted")
	}
}
