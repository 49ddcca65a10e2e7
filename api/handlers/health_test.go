package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/transform/style"
)

func readiness(t *testing.T, h *HealthHandler) (int, ServiceHealthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var status ServiceHealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return w.Code, status
}

func providerStatuses(configured ...bool) func() []transform.ProviderStatus {
	names := []string{"nano-banana", "replicate"}
	return func() []transform.ProviderStatus {
		out := make([]transform.ProviderStatus, len(configured))
		for i, c := range configured {
			out[i] = transform.ProviderStatus{Name: names[i], Configured: c, Priority: i}
		}
		return out
	}
}

// =============================================================================
// 💓 存活探针
// =============================================================================

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	// 存活探针不运行检查
	h.RegisterCheck(NewCatalogHealthCheck(nil))

	for path, fn := range map[string]http.HandlerFunc{
		"/health":  h.HandleHealth,
		"/healthz": h.HandleHealthz,
	} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			fn(w, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			var status ServiceHealthResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, "healthy", status.Status)
			assert.Empty(t, status.Checks)
			assert.WithinDuration(t, time.Now(), status.Timestamp, time.Minute)
		})
	}
}

// =============================================================================
// ✅ 就绪探针
// =============================================================================

func TestHealthHandler_Readiness(t *testing.T) {
	redisDown := func(context.Context) error { return errors.New("dial tcp 127.0.0.1:6379: connection refused") }
	redisUp := func(context.Context) error { return nil }

	tests := []struct {
		name       string
		catalog    *style.Catalog
		providers  func() []transform.ProviderStatus
		ping       func(context.Context) error
		wantCode   int
		wantStatus string
		wantFailed []string
	}{
		{
			name:       "all pass",
			catalog:    style.Default(),
			providers:  providerStatuses(true, false),
			ping:       redisUp,
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "no backend configured degrades",
			catalog:    style.Default(),
			providers:  providerStatuses(false, false),
			ping:       redisUp,
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantFailed: []string{"providers"},
		},
		{
			name:       "redis down degrades",
			catalog:    style.Default(),
			providers:  providerStatuses(false, true),
			ping:       redisDown,
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantFailed: []string{"redis"},
		},
		{
			name:       "empty catalog is unready",
			catalog:    nil,
			providers:  providerStatuses(true, true),
			ping:       redisDown,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantFailed: []string{"catalog", "redis"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(zap.NewNop())
			h.RegisterCheck(NewCatalogHealthCheck(tt.catalog))
			h.RegisterOptionalCheck(NewProvidersHealthCheck(tt.providers))
			h.RegisterOptionalCheck(NewRedisHealthCheck(tt.ping))

			code, status := readiness(t, h)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, status.Status)
			require.Len(t, status.Checks, 3)

			var failed []string
			for _, name := range []string{"catalog", "providers", "redis"} {
				res := status.Checks[name]
				assert.NotEmpty(t, res.Latency, name)
				if res.Status == "fail" {
					failed = append(failed, name)
					assert.NotEmpty(t, res.Message, name)
				}
			}
			assert.Equal(t, tt.wantFailed, failed)
			assert.False(t, status.Checks["catalog"].Optional)
			assert.True(t, status.Checks["redis"].Optional)
		})
	}
}

func TestHealthHandler_RedisCheckWithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := NewHealthHandler(zap.NewNop())
	h.RegisterOptionalCheck(NewRedisHealthCheck(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))

	_, status := readiness(t, h)
	assert.Equal(t, "healthy", status.Status)

	mr.Close()
	_, status = readiness(t, h)
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "fail", status.Checks["redis"].Status)
}

func TestHealthHandler_ReadyHonoursTimeout(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.timeout = 20 * time.Millisecond
	h.RegisterCheck(NewFuncCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	code, status := readiness(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
}

func TestHealthHandler_ConcurrentReady(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(NewCatalogHealthCheck(style.Default()))
	h.RegisterOptionalCheck(NewProvidersHealthCheck(providerStatuses(true, true)))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()
}

// =============================================================================
// 🏷️ 版本
// =============================================================================

func TestHealthHandler_HandleVersion(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleVersion("0.4.2", "2026-03-01T00:00:00Z", "9f1c2ab")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"version":    "0.4.2",
		"build_time": "2026-03-01T00:00:00Z",
		"git_commit": "9f1c2ab",
	}, data)
}

func TestProvidersHealthCheck(t *testing.T) {
	ctx := context.Background()

	check := NewProvidersHealthCheck(providerStatuses(false, false))
	assert.Equal(t, "providers", check.Name())
	assert.EqualError(t, check.Check(ctx), "no image backend configured")

	assert.NoError(t, NewProvidersHealthCheck(providerStatuses(false, true)).Check(ctx))
	assert.Error(t, NewProvidersHealthCheck(providerStatuses()).Check(ctx))
}

func TestCatalogHealthCheck(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, NewCatalogHealthCheck(style.Default()).Check(ctx))
	assert.EqualError(t, NewCatalogHealthCheck(nil).Check(ctx), "style catalog is empty")
}
