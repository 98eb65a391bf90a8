package core

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"nexora/internal/config"
	"nexora/internal/types"
)

const testServiceKey = "test-service-key-0123456789abcdef"

func newTestServerForAuth(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{Environment: "local"}
	cfg.Security.ServiceAPIKey = testServiceKey

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	srv, err := NewServer(cfg, logger)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func authProtectedHandler(srv *Server) http.Handler {
	return srv.ServiceAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok || actor.Type != types.ActorTypeService {
			http.Error(w, "no actor", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestServiceAuth_ValidKey(t *testing.T) {
	srv := newTestServerForAuth(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/billing/subscription", nil)
	req.Header.Set("Authorization", "Bearer "+testServiceKey)
	rec := httptest.NewRecorder()

	authProtectedHandler(srv).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServiceAuth_MissingHeader(t *testing.T) {
	srv := newTestServerForAuth(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/billing/subscription", nil)
	rec := httptest.NewRecorder()

	authProtectedHandler(srv).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeAuthTokenMissing) {
		t.Errorf("expected code %s, got %s", types.ErrCodeAuthTokenMissing, resp.Error.Code)
	}
}

func TestServiceAuth_WrongKey(t *testing.T) {
	srv := newTestServerForAuth(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/billing/subscription", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec := httptest.NewRecorder()

	authProtectedHandler(srv).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeAuthTokenInvalid) {
		t.Errorf("expected code %s, got %s", types.ErrCodeAuthTokenInvalid, resp.Error.Code)
	}
}

func TestServiceAuth_NonBearerScheme(t *testing.T) {
	srv := newTestServerForAuth(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/billing/subscription", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()

	authProtectedHandler(srv).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Bearer  abc123 ", "abc123"},
		{"Bearer ", ""},
		{"Basic abc123", ""},
		{"", ""},
		{"abc123", ""},
	}

	for _, tc := range tests {
		if got := extractBearerToken(tc.header); got != tc.want {
			t.Errorf("extractBearerToken(%q): got %q, want %q", tc.header, got, tc.want)
		}
	}
}
