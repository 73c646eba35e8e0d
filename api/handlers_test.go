package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/tomyedwab/wifigrid/auth"
	"github.com/tomyedwab/wifigrid/database"
	"github.com/tomyedwab/wifigrid/state"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func setupTestServer(t *testing.T, config Config) (*Server, *state.WifiDatabase) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wdb, err := state.Open(context.Background(), database.Config{
		Path:   path.Join(t.TempDir(), "api.db"),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("state.Open failed: %v", err)
	}
	t.Cleanup(func() {
		wdb.Close()
	})

	config.Database = wdb
	config.Logger = logger
	if config.SecretKey == nil {
		config.SecretKey = testSecret
	}
	server, err := NewServer(config)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return server, wdb
}

func doRequest(t *testing.T, server *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.IssueToken(testSecret, "test", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var ret T
	if err := json.Unmarshal(rec.Body.Bytes(), &ret); err != nil {
		t.Fatalf("Failed to decode %q: %v", rec.Body.String(), err)
	}
	return ret
}

func TestNewServerRequiresSecret(t *testing.T) {
	wdb, err := state.Open(context.Background(), database.Config{Path: path.Join(t.TempDir(), "x.db")})
	if err != nil {
		t.Fatalf("state.Open failed: %v", err)
	}
	defer wdb.Close()

	if _, err := NewServer(Config{Database: wdb}); err == nil {
		t.Error("Expected error without a secret key")
	}
	if _, err := NewServer(Config{Database: wdb, DisableAuth: true}); err != nil {
		t.Errorf("Expected no error with auth disabled, got %v", err)
	}
}

func TestStatusIsPublic(t *testing.T) {
	server, _ := setupTestServer(t, Config{})
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("Unexpected status response %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/networks", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rec.Code)
	}
}

func TestNetworksRoutes(t *testing.T) {
	server, _ := setupTestServer(t, Config{})

	rec := doRequest(t, server, http.MethodPut, "/api/networks", `{"ssid":"home","password":"abc","isEnabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT failed: %d %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, server, http.MethodPut, "/api/networks", `{"password":"abc"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without ssid, got %d", rec.Code)
	}

	networks := decode[[]state.SelectedNetwork](t, doRequest(t, server, http.MethodGet, "/api/networks", ""))
	if len(networks) != 1 || networks[0].Ssid != "home" || !networks[0].IsEnabled {
		t.Fatalf("Unexpected networks %+v", networks)
	}

	rec = doRequest(t, server, http.MethodDelete, "/api/networks/home", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE failed: %d", rec.Code)
	}
	networks = decode[[]state.SelectedNetwork](t, doRequest(t, server, http.MethodGet, "/api/networks", ""))
	if len(networks) != 0 {
		t.Errorf("Expected no networks, got %+v", networks)
	}
}

func TestVaultPasswordRoute(t *testing.T) {
	server, _ := setupTestServer(t, Config{})

	doRequest(t, server, http.MethodPut, "/api/vault", `{"ssid":"home","password":"abc"}`)
	doRequest(t, server, http.MethodPut, "/api/vault", `{"ssid":"guest","password":null}`)

	rec := doRequest(t, server, http.MethodGet, "/api/vault/home/password", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec); got["password"] != "abc" {
		t.Errorf("Expected abc, got %v", got)
	}

	for _, ssid := range []string{"guest", "missing"} {
		rec := doRequest(t, server, http.MethodGet, "/api/vault/"+ssid+"/password", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", ssid, rec.Code)
		}
	}

	doRequest(t, server, http.MethodDelete, "/api/vault/home", "")
	entries := decode[[]state.VaultEntry](t, doRequest(t, server, http.MethodGet, "/api/vault", ""))
	if len(entries) != 1 || entries[0].Ssid != "guest" {
		t.Errorf("Expected only guest to remain, got %+v", entries)
	}
}

func TestResultsRoutes(t *testing.T) {
	server, _ := setupTestServer(t, Config{})

	rec := doRequest(t, server, http.MethodPost, "/api/results", `{"ssid":"home","timestamp":1000,"downloadMbps":50}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	created := decode[map[string]interface{}](t, rec)
	id := int64(created["id"].(float64))
	if id <= 0 {
		t.Fatalf("Expected positive id, got %v", created["id"])
	}

	doRequest(t, server, http.MethodPost, "/api/results", `{"ssid":"home","timestamp":3000}`)
	doRequest(t, server, http.MethodPost, "/api/results", `{"ssid":"office","timestamp":2000}`)

	rec = doRequest(t, server, http.MethodPost, "/api/results", `{"id":`+jsonNumber(id)+`,"ssid":"home","timestamp":4000}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate id, got %d", rec.Code)
	}

	ranked := decode[[]state.TestResult](t, doRequest(t, server, http.MethodGet, "/api/results", ""))
	if len(ranked) != 3 || ranked[0].Timestamp != 3000 || ranked[2].Timestamp != 1000 {
		t.Errorf("Unexpected ranking %+v", ranked)
	}

	home := decode[[]state.TestResult](t, doRequest(t, server, http.MethodGet, "/api/results?ssid=home&limit=1", ""))
	if len(home) != 1 || home[0].Timestamp != 3000 {
		t.Errorf("Expected newest home result, got %+v", home)
	}

	rec = doRequest(t, server, http.MethodGet, "/api/results?ssid=home&limit=x", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", rec.Code)
	}
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestClearRoute(t *testing.T) {
	server, _ := setupTestServer(t, Config{})
	doRequest(t, server, http.MethodPut, "/api/vault", `{"ssid":"home","password":"abc"}`)

	rec := doRequest(t, server, http.MethodPost, "/api/clear", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Clear failed: %d %s", rec.Code, rec.Body.String())
	}
	entries := decode[[]state.VaultEntry](t, doRequest(t, server, http.MethodGet, "/api/vault", ""))
	if len(entries) != 0 {
		t.Errorf("Expected empty vault, got %+v", entries)
	}
}

func TestPollRoute(t *testing.T) {
	server, wdb := setupTestServer(t, Config{PollTimeout: 100 * time.Millisecond})

	rec := doRequest(t, server, http.MethodGet, "/api/poll?t=wifi_vault&v=0", "")
	if rec.Code != http.StatusNotModified {
		t.Errorf("Expected 304 with no changes, got %d", rec.Code)
	}

	rec = doRequest(t, server, http.MethodGet, "/api/poll?t=nope&v=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown table, got %d", rec.Code)
	}
	rec = doRequest(t, server, http.MethodGet, "/api/poll?t=wifi_vault&v=x", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad version, got %d", rec.Code)
	}

	if err := wdb.Dao().InsertVault(context.Background(), state.VaultEntry{Ssid: "home"}); err != nil {
		t.Fatalf("InsertVault failed: %v", err)
	}
	rec = doRequest(t, server, http.MethodGet, "/api/poll?t=wifi_vault&v=0", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 after a write, got %d", rec.Code)
	}
	got := decode[map[string]interface{}](t, rec)
	if got["table"] != "wifi_vault" || got["version"] != float64(1) {
		t.Errorf("Unexpected poll response %v", got)
	}
}

func TestDisableAuth(t *testing.T) {
	server, _ := setupTestServer(t, Config{DisableAuth: true})
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/vault", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with auth disabled, got %d", rec.Code)
	}
}

func TestResultsCsvRoute(t *testing.T) {
	server, _ := setupTestServer(t, Config{})
	doRequest(t, server, http.MethodPost, "/api/results", `{"ssid":"home","timestamp":1000,"qualityLabel":"Good"}`)
	doRequest(t, server, http.MethodPost, "/api/results", `{"ssid":"office","timestamp":2000,"qualityLabel":"Poor"}`)

	rec := doRequest(t, server, http.MethodGet, "/api/results.csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "Wifi_Tests_") {
		t.Errorf("Unexpected content disposition %q", cd)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 rows, got %q", rec.Body.String())
	}
	if !strings.HasPrefix(lines[0], "Timestamp,SSID,BSSID") {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], ",office,") || !strings.HasSuffix(lines[1], ",Poor") {
		t.Errorf("Expected newest result first, got %q", lines[1])
	}

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results.csv", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rec.Code)
	}
}
