package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/api"
	"github.com/footprint-studio/styleflow/api/handlers"
	"github.com/footprint-studio/styleflow/config"
	"github.com/footprint-studio/styleflow/internal/metrics"
	"github.com/footprint-studio/styleflow/internal/telemetry"
	"github.com/footprint-studio/styleflow/testutil"
	"github.com/footprint-studio/styleflow/transform/style"
)

// promauto 注册到全局 registry，整个包只创建一次
var testCollector = metrics.NewCollector("styleflow_cmd_test", zap.NewNop())

const geminiImageResponse = `{
  "candidates": [{"content": {"parts": [
    {"inlineData": {"mimeType": "image/png", "data": "b3V0cHV0"}}
  ]}}],
  "usageMetadata": {"totalTokenCount": 1290}
}`

type serverFixture struct {
	cfg        *config.Config
	env        testutil.Env
	mr         *miniredis.Miniredis
	geminiHits atomic.Int32
	geminiBody atomic.Value
	refHits    atomic.Int32
	cutoutHits atomic.Int32
	gemini     *httptest.Server
	srv        *Server
	http       *httptest.Server
}

func newServerFixture(t *testing.T, modify func(*config.Config)) *serverFixture {
	t.Helper()
	f := &serverFixture{env: testutil.Env{"GOOGLE_AI_API_KEY": "test-key"}}

	mux := http.NewServeMux()
	mux.HandleFunc("/models/", func(w http.ResponseWriter, r *http.Request) {
		f.geminiHits.Add(1)
		body, _ := io.ReadAll(r.Body)
		f.geminiBody.Store(string(body))
		_, _ = w.Write([]byte(geminiImageResponse))
	})
	mux.HandleFunc("/style-references/", func(w http.ResponseWriter, _ *http.Request) {
		f.refHits.Add(1)
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("ref"))
	})
	mux.HandleFunc("POST /v1.0/removebg", func(w http.ResponseWriter, r *http.Request) {
		f.cutoutHits.Add(1)
		if r.Header.Get("X-Api-Key") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("cutout"))
	})
	f.gemini = httptest.NewServer(mux)
	t.Cleanup(f.gemini.Close)

	f.mr = miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.Server.ReferenceDir = ""
	cfg.Gemini.BaseURL = f.gemini.URL
	cfg.Gemini.ReferenceBaseURL = f.gemini.URL
	cfg.RemoveBG.BaseURL = f.gemini.URL + "/v1.0"
	cfg.Redis.Addr = f.mr.Addr()
	cfg.Redis.HealthCheckInterval = 0
	cfg.Cache.Enabled = true
	if modify != nil {
		modify(cfg)
	}
	f.cfg = cfg

	srv, err := NewServer(cfg, zap.NewNop(), &telemetry.Providers{}, testCollector, WithEnvLookup(f.env.Lookup))
	require.NoError(t, err)
	f.srv = srv
	t.Cleanup(func() {
		if srv.cacheManager != nil {
			_ = srv.cacheManager.Close()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.http = httptest.NewServer(srv.Handler(ctx))
	t.Cleanup(f.http.Close)
	return f
}

func (f *serverFixture) do(t *testing.T, method, path string, body any, header http.Header) (*http.Response, handlers.Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader([]byte(testutil.MustJSON(body)))
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out handlers.Response
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// =============================================================================
// 🎬 端到端
// =============================================================================

func TestServer_TransformEndToEnd(t *testing.T) {
	f := newServerFixture(t, nil)
	req := api.TransformRequest{Image: testutil.TinyPNGDataURI(), Style: style.Watercolor}

	resp, body := f.do(t, http.MethodPost, "/api/v1/transform", req, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "%+v", body.Error)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, resp.Header.Get("X-Request-ID"), body.RequestID)

	out := testutil.MustParseJSON[api.TransformResponse](testutil.MustJSON(body.Data))
	assert.Equal(t, "nano-banana", out.Provider)
	assert.Equal(t, "data:image/png;base64,b3V0cHV0", out.Image)
	assert.False(t, out.Cached)

	// 第二次命中 Redis 缓存
	_, body = f.do(t, http.MethodPost, "/api/v1/transform", req, nil)
	cached := testutil.MustParseJSON[api.TransformResponse](testutil.MustJSON(body.Data))
	assert.True(t, cached.Cached)
	assert.Equal(t, int32(1), f.geminiHits.Load())
}

func TestServer_NoBackendConfigured(t *testing.T) {
	f := newServerFixture(t, nil)
	delete(f.env, "GOOGLE_AI_API_KEY")

	resp, body := f.do(t, http.MethodPost, "/api/v1/transform",
		api.TransformRequest{Image: testutil.TinyPNGDataURI(), Style: style.Watercolor}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "NOT_CONFIGURED", body.Error.Code)
	assert.Zero(t, f.geminiHits.Load())
}

func TestServer_StylesAndProviders(t *testing.T) {
	f := newServerFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/v1/styles?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := testutil.MustParseJSON[api.StyleListResponse](testutil.MustJSON(body.Data))
	assert.Len(t, list.Styles, 2)
	assert.Equal(t, style.Default().Len(), list.Total)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/styles/"+style.PopArt, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/api/v1/providers", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	providers := testutil.MustParseJSON[api.ProvidersResponse](testutil.MustJSON(body.Data))
	assert.Equal(t, "nano-banana", providers.Current)
	assert.True(t, providers.Available)
	require.Len(t, providers.Providers, 2)
	assert.True(t, providers.Providers[0].Configured)
	assert.False(t, providers.Providers[1].Configured)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newServerFixture(t, nil)
	resp, _ := f.do(t, http.MethodGet, "/api/v1/transform", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_Readiness(t *testing.T) {
	f := newServerFixture(t, nil)

	resp, err := f.http.Client().Get(f.http.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status handlers.ServiceHealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.Contains(t, status.Checks, "redis")
	assert.Contains(t, status.Checks, "catalog")
	assert.Contains(t, status.Checks, "providers")
}

func TestServer_RedisDownStillServes(t *testing.T) {
	f := newServerFixture(t, func(c *config.Config) {
		c.Redis.Addr = "127.0.0.1:1"
	})
	assert.Nil(t, f.srv.cacheManager)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/transform",
		api.TransformRequest{Image: testutil.TinyPNGDataURI(), Style: style.Watercolor}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_APIKeyAuth(t *testing.T) {
	f := newServerFixture(t, func(c *config.Config) {
		c.Server.APIKeys = []string{"secret-key"}
	})

	resp, body := f.do(t, http.MethodGet, "/api/v1/styles", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/styles", nil, http.Header{"X-Api-Key": {"secret-key"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// 探针不需要认证
	resp, _ = f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ServesReferenceImages(t *testing.T) {
	dir := testutil.ReferenceDir(t, map[string]string{"pop_art/1.jpg": "jpeg"})

	f := newServerFixture(t, func(c *config.Config) {
		c.Server.ReferenceDir = dir
		c.Server.APIKeys = []string{"secret-key"}
	})

	resp, err := f.http.Client().Get(f.http.URL + "/style-references/pop_art/1.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Cache-Control"))
}

func TestServer_LocalReferencesUnderTLS(t *testing.T) {
	files := map[string]string{}
	for i := 1; i <= 6; i++ {
		files[fmt.Sprintf("line_art_watercolor/ref%d.webp", i)] = fmt.Sprintf("local-ref-%d", i)
	}
	dir := testutil.ReferenceDir(t, files)

	f := newServerFixture(t, func(c *config.Config) {
		c.Server.ReferenceDir = dir
		// API 端口走 HTTPS；参考图不能依赖回环 HTTP 请求
		c.Server.TLSCertFile = "testdata/cert.pem"
		c.Server.TLSKeyFile = "testdata/key.pem"
		c.Gemini.ReferenceBaseURL = ""
		// 令牌桶只够转换请求本身
		c.Server.RateLimitRPS = 1
		c.Server.RateLimitBurst = 1
		c.Cache.Enabled = false
	})

	req := api.TransformRequest{Image: testutil.TinyPNGDataURI(), Style: style.LineArtWatercolor}
	resp, body := f.do(t, http.MethodPost, "/api/v1/transform", req, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "%+v", body.Error)

	sent, _ := f.geminiBody.Load().(string)
	for i := 1; i <= 6; i++ {
		encoded := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("local-ref-%d", i)))
		assert.Contains(t, sent, encoded, "reference %d", i)
	}
	assert.Equal(t, int32(0), f.refHits.Load())
}

func TestNewServer_RequiresCollector(t *testing.T) {
	_, err := NewServer(config.DefaultConfig(), zap.NewNop(), &telemetry.Providers{}, nil)
	assert.Error(t, err)
}

// =============================================================================
// ✏️ 编辑端点
// =============================================================================

func TestServer_TweakEndToEnd(t *testing.T) {
	f := newServerFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/api/v1/tweak",
		api.TweakRequest{Image: testutil.TinyPNGDataURI(), Prompt: "make the sky purple"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "%+v", body.Error)

	out := testutil.MustParseJSON[api.EditResponse](testutil.MustJSON(body.Data))
	assert.Equal(t, "data:image/png;base64,b3V0cHV0", out.Image)
	assert.Equal(t, "nano-banana", out.Provider)

	sent, _ := f.geminiBody.Load().(string)
	assert.Contains(t, sent, "Edit this image according to the following instructions")
	assert.Contains(t, sent, "make the sky purple")
	assert.Zero(t, f.cutoutHits.Load())
}

func TestServer_RemoveBackgroundEndToEnd(t *testing.T) {
	f := newServerFixture(t, nil)
	req := api.RemoveBackgroundRequest{ImageURL: "https://images.example.com/uploads/me.jpg"}

	// 凭证缺失
	resp, body := f.do(t, http.MethodPost, "/api/v1/remove-bg", req, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "NOT_CONFIGURED", body.Error.Code)
	assert.Zero(t, f.cutoutHits.Load())

	f = newServerFixture(t, func(cfg *config.Config) { cfg.RemoveBG.APIKey = "rbg-key" })
	resp, body = f.do(t, http.MethodPost, "/api/v1/remove-bg", req, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "%+v", body.Error)
	out := testutil.MustParseJSON[api.EditResponse](testutil.MustJSON(body.Data))
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("cutout")), out.Image)
	assert.Equal(t, "remove-bg", out.Provider)

	// tweak 指令要求去背景时同样走 Remove.bg
	resp, _ = f.do(t, http.MethodPost, "/api/v1/tweak",
		api.TweakRequest{ImageURL: req.ImageURL, Prompt: "remove the background"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), f.cutoutHits.Load())
	assert.Zero(t, f.geminiHits.Load())
}
