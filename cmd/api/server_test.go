package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedirectHandler(t *testing.T) {
	h := redirectHandler([]string{"ledger.example.com"})

	tests := []struct {
		name     string
		host     string
		target   string
		wantCode int
		wantLoc  string
	}{
		{"allowed host", "ledger.example.com", "/api/accounts?active=true", http.StatusMovedPermanently, "https://ledger.example.com/api/accounts?active=true"},
		{"port is dropped", "ledger.example.com:80", "/health", http.StatusMovedPermanently, "https://ledger.example.com/health"},
		{"unknown host", "evil.example.net", "/", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.Host = tt.host
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantLoc, rec.Header().Get("Location"))
		})
	}
}

func TestCanonicalHost(t *testing.T) {
	assert.Equal(t, "example.com", canonicalHost("example.com:8080"))
	assert.Equal(t, "example.com", canonicalHost("example.com"))
}
