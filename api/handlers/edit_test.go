package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/api"
	"github.com/footprint-studio/styleflow/internal/limiter"
	"github.com/footprint-studio/styleflow/testutil"
	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/transform/providers/removebg"
	"github.com/footprint-studio/styleflow/transform/retry"
	"github.com/footprint-studio/styleflow/types"
)

// =============================================================================
// 🧪 测试夹具
// =============================================================================

type fakeEditor struct {
	mu         sync.Mutex
	configured bool
	errs       []error
	calls      []string // instructions
	sources    []string
}

func (f *fakeEditor) IsConfigured() bool { return f.configured }

func (f *fakeEditor) Edit(_ context.Context, source, instructions string) (*transform.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, instructions)
	f.sources = append(f.sources, source)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &transform.Result{Provider: "nano-banana", ImageBase64: "ZWRpdGVk", MimeType: "image/png"}, nil
}

type fakeRemover struct {
	configured bool
	err        error
	calls      int
}

func (f *fakeRemover) IsConfigured() bool { return f.configured }

func (f *fakeRemover) RemoveBackground(context.Context, string) (*transform.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &transform.Result{Provider: removebg.Name, ImageBase64: "Y3V0b3V0", MimeType: "image/png"}, nil
}

func newEditHandler(editor ImageEditor, remover BackgroundRemover, opts ...EditHandlerOption) *EditHandler {
	policy := *retry.DefaultRetryPolicy()
	opts = append([]EditHandlerOption{WithEditRetry(policy, retry.WithSleeper(testutil.NoSleep))}, opts...)
	return NewEditHandler(editor, remover, zap.NewNop(), opts...)
}

func postJSON(t *testing.T, handle http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(testutil.MustJSON(body)))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handle(w, r)
	return w
}

func decodeEdit(t *testing.T, w *httptest.ResponseRecorder) api.EditResponse {
	t.Helper()
	resp := decodeResponse(t, w)
	require.True(t, resp.Success, "unexpected error: %+v", resp.Error)
	return testutil.MustParseJSON[api.EditResponse](testutil.MustJSON(resp.Data))
}

const editSource = "https://images.example.com/results/abc.png"

// =============================================================================
// ✏️ 自由编辑
// =============================================================================

func TestEditHandler_Tweak(t *testing.T) {
	editor := &fakeEditor{configured: true}
	h := newEditHandler(editor, nil)

	w := postJSON(t, h.HandleTweak, "/api/v1/tweak", api.TweakRequest{ImageURL: editSource, Prompt: "add a party hat"})
	require.Equal(t, http.StatusOK, w.Code)

	out := decodeEdit(t, w)
	assert.Equal(t, "data:image/png;base64,ZWRpdGVk", out.Image)
	assert.Equal(t, "nano-banana", out.Provider)
	assert.Equal(t, []string{"add a party hat"}, editor.calls)
	assert.Equal(t, []string{editSource}, editor.sources)
}

func TestEditHandler_TweakRoutesBackgroundRemoval(t *testing.T) {
	tests := []struct {
		name        string
		prompt      string
		remover     *fakeRemover
		wantRemover int
		wantEditor  int
	}{
		{"remove background", "Please REMOVE the Background", &fakeRemover{configured: true}, 1, 0},
		{"remover not configured", "remove background", &fakeRemover{}, 0, 1},
		{"only one keyword", "remove the hat", &fakeRemover{configured: true}, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			editor := &fakeEditor{configured: true}
			h := newEditHandler(editor, tt.remover)

			w := postJSON(t, h.HandleTweak, "/api/v1/tweak", api.TweakRequest{ImageURL: editSource, Prompt: tt.prompt})
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantRemover, tt.remover.calls)
			assert.Len(t, editor.calls, tt.wantEditor)
		})
	}
}

func TestEditHandler_TweakRetriesTransientFailures(t *testing.T) {
	editor := &fakeEditor{configured: true, errs: []error{
		types.NewProviderError("nano-banana", "overloaded", 503),
	}}
	h := newEditHandler(editor, nil)

	w := postJSON(t, h.HandleTweak, "/api/v1/tweak", api.TweakRequest{ImageURL: editSource, Prompt: "brighter"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, editor.calls, 2)
}

func TestEditHandler_TweakErrors(t *testing.T) {
	tests := []struct {
		name       string
		editor     *fakeEditor
		req        api.TweakRequest
		wantStatus int
		wantCode   types.ErrorCode
		wantCalls  int
	}{
		{
			name:       "missing image",
			editor:     &fakeEditor{configured: true},
			req:        api.TweakRequest{Prompt: "x"},
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
		{
			name:       "blank prompt",
			editor:     &fakeEditor{configured: true},
			req:        api.TweakRequest{ImageURL: editSource, Prompt: "   "},
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
		{
			name:       "prompt too long",
			editor:     &fakeEditor{configured: true},
			req:        api.TweakRequest{ImageURL: editSource, Prompt: strings.Repeat("a", api.MaxInstructionsLength+1)},
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
		{
			name:       "not a url",
			editor:     &fakeEditor{configured: true},
			req:        api.TweakRequest{ImageURL: "ftp://example.com/a.png", Prompt: "x"},
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
		{
			name:       "editor not configured",
			editor:     &fakeEditor{},
			req:        api.TweakRequest{ImageURL: editSource, Prompt: "x"},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   types.ErrNotConfigured,
		},
		{
			name: "upstream rejects",
			editor: &fakeEditor{configured: true, errs: []error{
				types.NewProviderError("nano-banana", "bad image", 400).WithRetryable(false),
			}},
			req:        api.TweakRequest{ImageURL: editSource, Prompt: "x"},
			wantStatus: http.StatusBadGateway,
			wantCode:   types.ErrProviderError,
			wantCalls:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newEditHandler(tt.editor, nil)
			w := postJSON(t, h.HandleTweak, "/api/v1/tweak", tt.req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, string(tt.wantCode), errorCode(t, w))
			assert.Len(t, tt.editor.calls, tt.wantCalls)
		})
	}
}

func TestEditHandler_TweakAcceptsDataURI(t *testing.T) {
	editor := &fakeEditor{configured: true}
	h := newEditHandler(editor, nil)

	w := postJSON(t, h.HandleTweak, "/api/v1/tweak", api.TweakRequest{Image: testutil.TinyPNGDataURI(), Prompt: "sepia"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{testutil.TinyPNGDataURI()}, editor.sources)
}

// =============================================================================
// 🧽 去背景
// =============================================================================

func TestEditHandler_RemoveBackground(t *testing.T) {
	remover := &fakeRemover{configured: true}
	h := newEditHandler(&fakeEditor{}, remover)

	w := postJSON(t, h.HandleRemoveBackground, "/api/v1/remove-bg", api.RemoveBackgroundRequest{ImageURL: editSource})
	require.Equal(t, http.StatusOK, w.Code)

	out := decodeEdit(t, w)
	assert.Equal(t, "data:image/png;base64,Y3V0b3V0", out.Image)
	assert.Equal(t, removebg.Name, out.Provider)
	assert.Equal(t, 1, remover.calls)
}

func TestEditHandler_RemoveBackgroundErrors(t *testing.T) {
	tests := []struct {
		name       string
		remover    BackgroundRemover
		req        api.RemoveBackgroundRequest
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"no remover", nil, api.RemoveBackgroundRequest{ImageURL: editSource}, http.StatusServiceUnavailable, types.ErrNotConfigured},
		{"not configured", &fakeRemover{}, api.RemoveBackgroundRequest{ImageURL: editSource}, http.StatusServiceUnavailable, types.ErrNotConfigured},
		{"missing image", &fakeRemover{configured: true}, api.RemoveBackgroundRequest{}, http.StatusBadRequest, types.ErrInvalidRequest},
		{
			name: "foreground not found",
			remover: &fakeRemover{configured: true, err: types.NewProviderError(removebg.Name,
				"Remove.bg API error: Could not identify foreground in image", 400).WithRetryable(false)},
			req:        api.RemoveBackgroundRequest{ImageURL: editSource},
			wantStatus: http.StatusBadGateway,
			wantCode:   types.ErrProviderError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newEditHandler(&fakeEditor{}, tt.remover)
			w := postJSON(t, h.HandleRemoveBackground, "/api/v1/remove-bg", tt.req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, string(tt.wantCode), errorCode(t, w))
		})
	}
}

func TestEditHandler_RemoveBackgroundAgainstRemoveBG(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	t.Cleanup(srv.Close)

	cfg := removebg.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "rbg-key"
	client := removebg.New(cfg, zap.NewNop(), removebg.WithHTTPClient(srv.Client()))
	h := newEditHandler(&fakeEditor{}, client)

	w := postJSON(t, h.HandleRemoveBackground, "/api/v1/remove-bg", api.RemoveBackgroundRequest{ImageURL: editSource})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "data:image/png;base64,cG5n", decodeEdit(t, w).Image)
	assert.Equal(t, "rbg-key", gotKey)
}

func TestEditHandler_SharesConcurrencyLimit(t *testing.T) {
	remover := &fakeRemover{configured: true}
	lim := &stubLimiter{result: limiter.Result{Allowed: false, Current: 2}}
	h := newEditHandler(&fakeEditor{}, remover, WithEditLimiter(lim))

	w := postJSON(t, h.HandleRemoveBackground, "/api/v1/remove-bg", api.RemoveBackgroundRequest{ImageURL: editSource})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, string(types.ErrConcurrencyLimit), errorCode(t, w))
	assert.Zero(t, remover.calls)

	lim.result = limiter.Result{Allowed: true, Current: 1, Held: true}
	w = postJSON(t, h.HandleRemoveBackground, "/api/v1/remove-bg", api.RemoveBackgroundRequest{ImageURL: editSource})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, lim.released)
}
