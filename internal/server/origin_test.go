package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCheckOrigin(t *testing.T) {
	tests := []struct {
		name          string
		appURL        string
		isDevelopment bool
		origin        string
		expected      bool
	}{
		{"empty origin allowed (non-browser client)", "https://relay.example.com", false, "", true},
		{"app origin allowed", "https://relay.example.com", false, "https://relay.example.com", true},
		{"foreign origin rejected", "https://relay.example.com", false, "https://evil.example.com", false},
		{"subdomain is not the app origin", "https://relay.example.com", false, "https://sub.relay.example.com", false},
		{"scheme mismatch rejected", "https://relay.example.com", false, "http://relay.example.com", false},
		{"localhost rejected in production", "https://relay.example.com", false, "http://localhost:3000", false},
		{"localhost allowed in development", "https://relay.example.com", true, "http://localhost:3000", true},
		{"127.0.0.1 allowed in development", "https://relay.example.com", true, "http://127.0.0.1:5173", true},
		{"foreign origin rejected in development", "https://relay.example.com", true, "https://evil.example.com", false},
		{"no app URL configured, foreign origin rejected", "", false, "https://anything.example.com", false},
		{"garbage origin rejected", "https://relay.example.com", true, "::not-a-url::", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkOrigin := NewCheckOrigin(tt.appURL, tt.isDevelopment)

			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			assert.Equal(t, tt.expected, checkOrigin(req))
		})
	}
}

func TestExtractOrigin(t *testing.T) {
	assert.Equal(t, "https://relay.example.com", extractOrigin("https://relay.example.com"))
	assert.Equal(t, "https://relay.example.com:8443", extractOrigin("https://relay.example.com:8443/path"))
	assert.Equal(t, "", extractOrigin(""))
	assert.Equal(t, "", extractOrigin("not a url"))
}
