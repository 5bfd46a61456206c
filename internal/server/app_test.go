package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/auditsnap/internal/auth"
	"github.com/JakeFAU/auditsnap/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		Server:    config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5},
		Auth:      config.AuthConfig{JWTSecret: "secret", CallbackAPIKey: "cb"},
		Store:     config.StoreConfig{Driver: "memory"},
		Quota:     config.QuotaConfig{Driver: "memory", AutoProvision: true, StarterAudits: 2},
		Dispatch:  config.DispatchConfig{Driver: "local", QueueDepth: 4, Concurrency: 2, EnqueueTimeoutMs: 50, CallbackMaxAttempts: 2},
		Generator: config.GeneratorConfig{Driver: "heuristic", TimeoutSeconds: 5, UserAgent: "test", FetchTimeoutSec: 1},
		Archive:   config.ArchiveConfig{Driver: "memory"},
		Watch:     config.WatchConfig{IntervalMs: 10, MaxWaitSeconds: 1},
	}
}

func buildApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	require.NoError(t, cfg.Validate())
	app, err := build(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close(context.Background())) })
	return app
}

func TestBuildWiresLocalDispatch(t *testing.T) {
	t.Parallel()

	app := buildApp(t, testConfig())
	require.NotNil(t, app.local)
	require.NotNil(t, app.queue)
	require.NotNil(t, app.hub)
	require.Nil(t, app.pool)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	tokens, err := auth.NewTokens("secret", time.Hour)
	require.NoError(t, err)
	token, err := tokens.Issue("user-1", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/reports", bytes.NewBufferString(`{"url":"https://example.com"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"audits_remaining":1`)
	require.Equal(t, 1, app.queue.Len())
}

func TestBuildWithRedisQuota(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Quota.Driver = "redis"
	cfg.Redis.Addr = mr.Addr()
	cfg.Generator.Driver = "llm"
	cfg.LLM = config.LLMConfig{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1", Model: "gpt-4o-mini"}
	cfg.Archive.Driver = "local"
	cfg.Archive.BaseDir = t.TempDir()

	app := buildApp(t, cfg)
	require.NotNil(t, app.redis)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	mr.Close()
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBuildFailsOnUnreachablePostgres(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Store.Driver = "postgres"
	cfg.DB.DSN = "postgres://nobody@127.0.0.1:1/none?connect_timeout=1"
	_, err := build(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry())
	require.ErrorContains(t, err, "postgres init failed")
}
