package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avdispatch/internal/config"
	"github.com/vyrodovalexey/avdispatch/internal/dispatch"
	"github.com/vyrodovalexey/avdispatch/internal/observability"
)

func TestInsightHandler(t *testing.T) {
	req := &dispatch.Request{
		Endpoint: "/secure_ai",
		Method:   "POST",
		Payload:  map[string]any{"data": "sensitive user input"},
	}

	out, err := insightHandler(context.Background(), req)
	require.NoError(t, err)

	result, ok := out.(map[string]any)
	require.True(t, ok)

	insights, ok := result["insights"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(insights, "Actionable Insight: "))
}

func TestInsightHandler_MissingData(t *testing.T) {
	req := &dispatch.Request{
		Endpoint: "/secure_ai",
		Method:   "POST",
		Payload:  map[string]any{},
	}

	_, err := insightHandler(context.Background(), req)
	require.Error(t, err)
}

func TestNewApplication(t *testing.T) {
	t.Setenv("AVDISPATCH_ADMIN_TOKEN", "test-admin-token")

	cfg := config.DefaultConfig()
	cfg.Endpoints = []config.EndpointConfig{
		{Route: "/extra", Methods: []string{"POST"}, RateLimit: 10},
	}

	app, err := newApplication(cfg, observability.NopLogger())
	require.NoError(t, err)
	defer func() { _ = app.Shutdown() }()

	routes := app.registry.Routes()
	assert.Contains(t, routes, "/secure_ai")
	assert.Contains(t, routes, "/extra")
}

func TestApplication_EndToEnd(t *testing.T) {
	t.Setenv("AVDISPATCH_ADMIN_TOKEN", "test-admin-token")

	app, err := newApplication(config.DefaultConfig(), observability.NopLogger())
	require.NoError(t, err)
	defer func() { _ = app.Shutdown() }()

	do := func(headers map[string]string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/secure_ai",
			strings.NewReader(`{"data":"payload"}`))
		r.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			r.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		app.server.Engine().ServeHTTP(w, r)
		return w
	}

	t.Run("without token", func(t *testing.T) {
		w := do(nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("with token", func(t *testing.T) {
		w := do(map[string]string{"Authorization": "Bearer test-admin-token"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Actionable Insight: ")
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadConfig("/nonexistent/path.yaml", observability.NopLogger())
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("AVDISPATCH_TEST_KEY", "set")
	assert.Equal(t, "set", getEnvOrDefault("AVDISPATCH_TEST_KEY", "def"))
	assert.Equal(t, "def", getEnvOrDefault("AVDISPATCH_TEST_MISSING", "def"))
}
