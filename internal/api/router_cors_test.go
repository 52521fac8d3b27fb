package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(t *testing.T, allowed []string, method, origin string, preflight bool) (*httptest.ResponseRecorder, bool) {
	t.Helper()

	called := false
	handler := corsMiddleware(allowed)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/api/v1/server/info", nil)
	req.Header.Set("Origin", origin)
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, called
}

func TestCORSMiddlewareAllowsConfiguredOrigin(t *testing.T) {
	rr, called := serveCORS(t, []string{"https://example.com"}, http.MethodGet, "https://example.com", false)

	if !called {
		t.Fatal("expected next handler to be called")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want %q", got, "https://example.com")
	}
}

func TestCORSMiddlewareAllowsLoopbackOrigin(t *testing.T) {
	rr, called := serveCORS(t, nil, http.MethodGet, "http://127.0.0.1:5173", false)

	if !called {
		t.Fatal("expected loopback request to reach next handler")
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://127.0.0.1:5173" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want loopback origin", got)
	}
}

func TestCORSMiddlewareWildcardAllowsAnyOrigin(t *testing.T) {
	rr, _ := serveCORS(t, []string{"*"}, http.MethodGet, "https://anywhere.example", false)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://anywhere.example" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want echoed origin", got)
	}
}

func TestCORSMiddlewareOmitsHeadersForDisallowedOrigin(t *testing.T) {
	rr, _ := serveCORS(t, []string{"https://example.com"}, http.MethodGet, "https://evil.com", false)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want empty", got)
	}
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	rr, called := serveCORS(t, []string{"https://example.com"}, http.MethodOptions, "https://example.com", true)

	if called {
		t.Fatal("expected preflight request not to reach next handler")
	}
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want %q", got, "https://example.com")
	}
}
