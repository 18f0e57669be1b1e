package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avdispatch/internal/auth"
	"github.com/vyrodovalexey/avdispatch/internal/config"
	"github.com/vyrodovalexey/avdispatch/internal/dispatch"
)

func newTestServer(t *testing.T, cfg config.ServerConfig, endpoints ...*dispatch.Endpoint) *Server {
	t.Helper()

	registry := dispatch.NewRegistry()
	t.Cleanup(func() { _ = registry.Close() })
	for _, ep := range endpoints {
		require.NoError(t, registry.Register(ep))
	}

	validator := auth.NewStaticValidator()
	validator.Register("tok-alice", &auth.Principal{ID: "alice", Active: true, Roles: []string{"admin"}})

	gate := auth.NewGate(validator, auth.DefaultGateConfig(),
		auth.WithGateMetrics(auth.NewMetricsWithRegisterer("test", prometheus.NewRegistry())))

	pipeline := dispatch.NewPipeline(registry,
		dispatch.WithGate(gate),
		dispatch.WithMetrics(dispatch.NewMetricsWithRegisterer("test", prometheus.NewRegistry())),
	)

	return NewServer(cfg, registry, pipeline)
}

func echoEndpoint(route string) *dispatch.Endpoint {
	return &dispatch.Endpoint{
		Route:   route,
		Methods: []string{http.MethodPost},
		Handler: func(ctx context.Context, req *dispatch.Request) (any, error) {
			return map[string]any{"echo": req.Payload}, nil
		},
	}
}

func do(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{Address: ":0"})

	w := do(s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{Address: ":0"})

	w := do(s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_DispatchSuccess(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{Address: ":0"}, echoEndpoint("/echo"))

	w := do(s, http.MethodPost, "/echo", `{"msg":"hi"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status int            `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, map[string]any{"echo": map[string]any{"msg": "hi"}}, resp.Data)
}

func TestServer_RequestIDHeader(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{Address: ":0"}, echoEndpoint("/echo"))

	w := do(s, http.MethodPost, "/echo", `{}`, nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = do(s, http.MethodPost, "/echo", `{}`, map[string]string{RequestIDHeader: "fixed-id"})
	assert.Equal(t, "fixed-id", w.Header().Get(RequestIDHeader))
}

func TestServer_MalformedBody(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{Address: ":0"}, echoEndpoint("/echo"))

	w := do(s, http.MethodPost, "/echo", `{not json`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ERR_422", resp.Error.Code)
}

func TestServer_AuthRequired(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{Address: ":0"}, &dispatch.Endpoint{
		Route:         "/secure",
		Methods:       []string{http.MethodPost},
		AuthRequired:  true,
		RequiredRoles: []string{"admin"},
		Handler: func(ctx context.Context, req *dispatch.Request) (any, error) {
			return map[string]any{"ok": true}, nil
		},
	})

	t.Run("no token", func(t *testing.T) {
		w := do(s, http.MethodPost, "/secure", `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		w := do(s, http.MethodPost, "/secure", `{}`, map[string]string{
			"Authorization": "Bearer tok-alice",
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestServer_SecondFactorHeader(t *testing.T) {
	registry := dispatch.NewRegistry()
	t.Cleanup(func() { _ = registry.Close() })
	require.NoError(t, registry.Register(&dispatch.Endpoint{
		Route:        "/mfa",
		Methods:      []string{http.MethodPost},
		AuthRequired: true,
		SecondFactor: true,
		Handler: func(ctx context.Context, req *dispatch.Request) (any, error) {
			return map[string]any{"ok": true}, nil
		},
	}))

	validator := auth.NewStaticValidator()
	validator.Register("tok-alice", &auth.Principal{ID: "alice", Active: true})

	verifier := auth.NewBcryptSecondFactor(auth.ContextSecretSource)
	require.NoError(t, verifier.Enroll("alice", "123456"))

	gate := auth.NewGate(validator, auth.DefaultGateConfig(),
		auth.WithSecondFactor(verifier),
		auth.WithGateMetrics(auth.NewMetricsWithRegisterer("test", prometheus.NewRegistry())))

	pipeline := dispatch.NewPipeline(registry,
		dispatch.WithGate(gate),
		dispatch.WithMetrics(dispatch.NewMetricsWithRegisterer("test", prometheus.NewRegistry())),
	)
	s := NewServer(config.ServerConfig{Address: ":0"}, registry, pipeline)

	t.Run("with correct secret", func(t *testing.T) {
		w := do(s, http.MethodPost, "/mfa", `{}`, map[string]string{
			"Authorization":   "Bearer tok-alice",
			"X-Second-Factor": "123456",
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("with wrong secret", func(t *testing.T) {
		w := do(s, http.MethodPost, "/mfa", `{}`, map[string]string{
			"Authorization":   "Bearer tok-alice",
			"X-Second-Factor": "000000",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("without secret", func(t *testing.T) {
		w := do(s, http.MethodPost, "/mfa", `{}`, map[string]string{
			"Authorization": "Bearer tok-alice",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestServer_GlobalRateLimit(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{
		Address:         ":0",
		GlobalRateLimit: 1,
		GlobalBurst:     2,
	}, echoEndpoint("/echo"))

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		w := do(s, http.MethodPost, "/echo", `{}`, nil)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Contains(t, codes, http.StatusTooManyRequests)
}

func TestServer_UnknownRoute(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{Address: ":0"})

	w := do(s, http.MethodPost, "/missing", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
