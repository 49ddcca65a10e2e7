package reference

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/transform/codec"
)

func newTestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/ok/"):
			w.Header().Set("Content-Type", "image/webp")
			_, _ = w.Write([]byte(r.URL.Path))
		case strings.HasPrefix(r.URL.Path, "/plain/"):
			// 不声明 Content-Type，避免 net/http 自动嗅探
			w.Header()["Content-Type"] = nil
			_, _ = w.Write([]byte("raw"))
		case strings.HasPrefix(r.URL.Path, "/slow/"):
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte("late"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestLoader(srv *httptest.Server, cfg Config) *Loader {
	return NewLoader(cfg, zap.NewNop(), WithHTTPClient(srv.Client()))
}

func TestLoad_EmptyInput(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	l := newTestLoader(srv, DefaultConfig())

	got := l.Load(context.Background(), nil, srv.URL)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, int32(0), hits.Load())
}

func TestLoad_PreservesOrderAndSkipsFailures(t *testing.T) {
	srv := newTestServer(t, nil)
	l := newTestLoader(srv, DefaultConfig())

	paths := []string{
		"/ok/1.webp",
		"/missing/2.webp",
		srv.URL + "/ok/3.webp", // 绝对 URL 原样使用
		"ok/4.webp",
		"/missing/5.webp",
	}
	got := l.Load(context.Background(), paths, srv.URL+"/")

	require.Len(t, got, 3)
	wantBodies := []string{"/ok/1.webp", "/ok/3.webp", "/ok/4.webp"}
	for i, img := range got {
		assert.Equal(t, "image/webp", img.MimeType)
		raw, err := base64.StdEncoding.DecodeString(img.Data)
		require.NoError(t, err)
		assert.Equal(t, wantBodies[i], string(raw))
	}
}

func TestLoad_NMinusMProperty(t *testing.T) {
	srv := newTestServer(t, nil)
	l := newTestLoader(srv, DefaultConfig())

	for n := 0; n <= 6; n++ {
		for m := 0; m <= n; m++ {
			paths := make([]string, 0, n)
			for i := 0; i < n; i++ {
				if i < m {
					paths = append(paths, "/missing/x")
				} else {
					paths = append(paths, "/ok/x")
				}
			}
			got := l.Load(context.Background(), paths, srv.URL)
			assert.Len(t, got, n-m, "n=%d m=%d", n, m)
		}
	}
}

func TestLoad_TimeoutSkipsSlowReference(t *testing.T) {
	srv := newTestServer(t, nil)
	l := newTestLoader(srv, Config{Timeout: 50 * time.Millisecond})

	got := l.Load(context.Background(), []string{"/slow/a", "/ok/b"}, srv.URL)
	require.Len(t, got, 1)
	assert.Equal(t, "image/webp", got[0].MimeType)
}

func TestFetch_DefaultMimeType(t *testing.T) {
	srv := newTestServer(t, nil)
	l := newTestLoader(srv, DefaultConfig())

	img, err := l.Fetch(context.Background(), srv.URL+"/plain/x")
	require.NoError(t, err)
	assert.Equal(t, codec.DefaultMimeType, img.MimeType)
}

func TestFetch_BodyLimitAndObserver(t *testing.T) {
	srv := newTestServer(t, nil)

	var ok, failed int
	l := NewLoader(Config{MaxBytes: 4}, zap.NewNop(),
		WithHTTPClient(srv.Client()),
		WithObserver(func(success bool, _ time.Duration) {
			if success {
				ok++
			} else {
				failed++
			}
		}))

	_, err := l.Fetch(context.Background(), srv.URL+"/ok/too-long")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	_, err = l.Fetch(context.Background(), srv.URL+"/plain/x")
	require.NoError(t, err)

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		path, base, want string
	}{
		{"/style-references/a.webp", "https://cdn.example.com", "https://cdn.example.com/style-references/a.webp"},
		{"style-references/a.webp", "https://cdn.example.com/", "https://cdn.example.com/style-references/a.webp"},
		{"https://other.example.com/a.webp", "https://cdn.example.com", "https://other.example.com/a.webp"},
		{"/a.webp", "", "/a.webp"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve(tt.path, tt.base))
	}
}

// =============================================================================
// 📁 本地参考图
// =============================================================================

func referenceFS() fstest.MapFS {
	return fstest.MapFS{
		"line_art_watercolor/ref1.webp": {Data: []byte("ref-one")},
		"line_art_watercolor/ref2.webp": {Data: []byte("ref-two")},
		"pop_art/sample.jpg":            {Data: []byte("jpeg")},
		// 无扩展名时按内容嗅探
		"pop_art/noext": {Data: []byte("\x89PNG\r\n\x1a\n....")},
	}
}

func TestLoad_ReadsRootPathsFromFS(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)

	var observed atomic.Int32
	l := NewLoader(DefaultConfig(), zap.NewNop(),
		WithHTTPClient(srv.Client()),
		WithFS(referenceFS(), "/style-references/"),
		WithObserver(func(bool, time.Duration) { observed.Add(1) }))

	got := l.Load(context.Background(), []string{
		"/style-references/line_art_watercolor/ref1.webp",
		"/style-references/missing.webp",
		"/ok/remote",
		"/style-references/line_art_watercolor/ref2.webp",
	}, srv.URL)

	require.Len(t, got, 3)
	assert.Equal(t, codec.FromBytes([]byte("ref-one"), "image/webp"), got[0])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("/ok/remote")), got[1].Data)
	assert.Equal(t, codec.FromBytes([]byte("ref-two"), "image/webp"), got[2])

	// 只有非 root 路径走 HTTP
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int32(4), observed.Load())
}

func TestLoader_LocalName(t *testing.T) {
	l := NewLoader(DefaultConfig(), nil, WithFS(referenceFS(), "style-references"))

	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{"/style-references/pop_art/sample.jpg", "pop_art/sample.jpg", true},
		{"style-references/pop_art/sample.jpg", "pop_art/sample.jpg", true},
		{"/style-references/../etc/passwd", "", false},
		{"/style-references", "", false},
		{"/elsewhere/a.webp", "", false},
		{"https://cdn.example.com/style-references/a.webp", "", false},
	}
	for _, tt := range tests {
		got, ok := l.localName(tt.path)
		assert.Equal(t, tt.wantOK, ok, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, ok := NewLoader(DefaultConfig(), nil).localName("/style-references/pop_art/sample.jpg")
	assert.False(t, ok, "no file system mounted")
}

func TestOpen_MimeTypeAndLimit(t *testing.T) {
	l := NewLoader(Config{MaxBytes: 16}, nil, WithFS(referenceFS(), "/style-references"))

	img, err := l.Open("pop_art/sample.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MimeType)

	img, err = l.Open("pop_art/noext")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)

	_, err = l.Open("nope.webp")
	assert.ErrorContains(t, err, "open nope.webp")

	small := NewLoader(Config{MaxBytes: 3}, nil, WithFS(referenceFS(), "/style-references"))
	_, err = small.Open("pop_art/sample.jpg")
	assert.ErrorContains(t, err, "exceeds")
}
