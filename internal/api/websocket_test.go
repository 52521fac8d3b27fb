package api

import (
	"net/http/httptest"
	"testing"
)

func TestOriginMatchesAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed string
		want    bool
	}{
		{name: "exact_match", origin: "https://example.com", allowed: "https://example.com", want: true},
		{name: "any", origin: "https://example.com", allowed: "*", want: true},
		{name: "wildcard_prefix_match", origin: "app://desktop/main", allowed: "app://*", want: true},
		{name: "wildcard_prefix_miss", origin: "https://example.com", allowed: "app://*", want: false},
		{name: "exact_miss", origin: "https://evil.com", allowed: "https://example.com", want: false},
		{name: "empty_allowed", origin: "https://example.com", allowed: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := originMatchesAllowed(tt.origin, tt.allowed); got != tt.want {
				t.Fatalf("originMatchesAllowed(%q, %q) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}

func TestCheckOriginAllowsLoopbackAndConfiguredOrigins(t *testing.T) {
	handler := NewWebSocketHandler(nil, []string{"https://example.com", "app://*"})

	tests := []struct {
		origin string
		want   bool
	}{
		{origin: "", want: true},
		{origin: "http://127.0.0.1:5173", want: true},
		{origin: "http://localhost:3000", want: true},
		{origin: "https://example.com", want: true},
		{origin: "app://desktop", want: true},
		{origin: "https://evil.com", want: false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "http://localhost/api/v1/sessions/x/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := handler.checkOrigin(req); got != tt.want {
			t.Fatalf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
