package api

import (
	"net/http"
	"testing"

	"github.com/thiagoooop/morada-de-praia/internal/config"

	"github.com/stretchr/testify/assert"
)

func authConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "front-desk", Extra: "fd-extra", Name: "front desk", Permissions: []string{permReadBookings}},
				{Key: "admin", Extra: "admin-extra", Name: "admin"},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 200},
	}
}

func TestHTTPAuth(t *testing.T) {
	env := newTestEnv(t, authConfig())

	tests := []struct {
		name    string
		headers map[string]string
		method  string
		path    string
		want    int
	}{
		{"health needs no key", nil, http.MethodGet, "/healthz", http.StatusOK},
		{"missing headers", nil, http.MethodGet, "/api/v1/apartments", http.StatusUnauthorized},
		{"unknown key", map[string]string{"x-api-key": "nope", "x-api-extra": "fd-extra"}, http.MethodGet, "/api/v1/apartments", http.StatusUnauthorized},
		{"wrong extra", map[string]string{"x-api-key": "front-desk", "x-api-extra": "bad"}, http.MethodGet, "/api/v1/apartments", http.StatusUnauthorized},
		{"allowed read", map[string]string{"x-api-key": "front-desk", "x-api-extra": "fd-extra"}, http.MethodGet, "/api/v1/apartments", http.StatusOK},
		{"missing permission", map[string]string{"x-api-key": "front-desk", "x-api-extra": "fd-extra"}, http.MethodGet, "/api/v1/dashboard", http.StatusForbidden},
		{"empty permission list allows all", map[string]string{"x-api-key": "admin", "x-api-extra": "admin-extra"}, http.MethodGet, "/api/v1/dashboard", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.headers = tt.headers
			resp, _ := env.do(t, tt.method, tt.path, nil)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHTTPRateLimit(t *testing.T) {
	cfg := authConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 2}
	env := newTestEnv(t, cfg)
	env.headers = map[string]string{"x-api-key": "admin", "x-api-extra": "admin-extra"}

	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, http.MethodGet, "/api/v1/apartments", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := env.do(t, http.MethodGet, "/api/v1/apartments", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// limits are per key
	env.headers = map[string]string{"x-api-key": "front-desk", "x-api-extra": "fd-extra"}
	resp, _ = env.do(t, http.MethodGet, "/api/v1/apartments", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCheckPermissions(t *testing.T) {
	client := config.APIClientKey{Permissions: []string{" " + permReadReports + " "}}
	assert.NoError(t, checkPermissions(client, ""))
	assert.NoError(t, checkPermissions(client, permReadReports))
	assert.ErrorIs(t, checkPermissions(client, permWriteSync), errPermissionDenied)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
