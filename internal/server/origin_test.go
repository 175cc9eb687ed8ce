package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "exact match", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:8080", want: true},
		{name: "case-insensitive", allowed: []string{"http://example.com"}, origin: "HTTP://Example.COM", want: true},
		{name: "configured with trailing path", allowed: []string{"https://example.com/app"}, origin: "https://example.com", want: true},
		{name: "different port", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:9090", want: false},
		{name: "different scheme", allowed: []string{"http://example.com"}, origin: "https://example.com", want: false},
		{name: "missing origin", allowed: []string{"http://example.com"}, origin: "", want: false},
		{name: "malformed origin", allowed: []string{"http://example.com"}, origin: "://missing-scheme", want: false},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://anything.test", want: true},
		{name: "wildcard still needs a header", allowed: []string{"*"}, origin: "", want: false},
		{name: "invalid config entries ignored", allowed: []string{"not-a-url", " "}, origin: "not-a-url", want: false},
		{name: "nothing configured", allowed: nil, origin: "http://localhost:8080", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewOriginPolicy(tt.allowed)
			r := httptest.NewRequest(http.MethodGet, "/ws/notifications", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, p.Allowed(r))
			assert.Equal(t, tt.want, p.CheckOrigin(r))
		})
	}
}
