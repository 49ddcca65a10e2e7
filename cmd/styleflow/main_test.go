package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/footprint-studio/styleflow/config"
	"github.com/footprint-studio/styleflow/testutil"
	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/transform/style"
)

func TestRunStyles(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runStyles(nil, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, style.Default().Len()+1)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, out.String(), style.Watercolor)
}

func TestRunStyles_JSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runStyles([]string{"--json"}, &out))

	var defs []style.Definition
	require.NoError(t, json.Unmarshal(out.Bytes(), &defs))
	assert.Len(t, defs, style.Default().Len())
	assert.NotEmpty(t, defs[0].Prompt)
}

func TestReadSource(t *testing.T) {
	url := "https://images.example.com/me.jpg"
	got, err := readSource(url)
	require.NoError(t, err)
	assert.Equal(t, url, got)

	got, err = readSource(testutil.TinyPNGDataURI())
	require.NoError(t, err)
	assert.Equal(t, testutil.TinyPNGDataURI(), got)

	path := filepath.Join(t.TempDir(), "me.png")
	require.NoError(t, os.WriteFile(path, testutil.TinyPNG, 0o644))
	got, err = readSource(path)
	require.NoError(t, err)
	assert.Equal(t, testutil.TinyPNGDataURI(), got)

	_, err = readSource(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestWriteResult(t *testing.T) {
	dir := t.TempDir()

	inline := filepath.Join(dir, "inline.png")
	require.NoError(t, writeResult(testutil.TestContext(t),
		&transform.Result{ImageBase64: "b3V0cHV0", MimeType: "image/png"}, inline))
	data, err := os.ReadFile(inline)
	require.NoError(t, err)
	assert.Equal(t, "output", string(data))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("remote"))
	}))
	defer srv.Close()
	remote := filepath.Join(dir, "remote.png")
	require.NoError(t, writeResult(testutil.TestContext(t), &transform.Result{ImageURL: srv.URL + "/out.png"}, remote))
	data, err = os.ReadFile(remote)
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))

	assert.Error(t, writeResult(testutil.TestContext(t), &transform.Result{}, filepath.Join(dir, "none.png")))
}

func TestRunHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, runHealthCheck([]string{"--addr", srv.URL}, &out))
	assert.Equal(t, "OK\n", out.String())

	err := runHealthCheck([]string{"--addr", srv.URL, "--ready"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestPrintVersion(t *testing.T) {
	var out bytes.Buffer
	printVersion(&out)
	assert.Contains(t, out.String(), "Styleflow "+Version)
	assert.Contains(t, out.String(), GitCommit)
}

func TestInitLogger(t *testing.T) {
	for _, cfg := range []config.LogConfig{
		{Level: "debug", Format: "console"},
		{Level: "bogus", Format: "json", OutputPaths: []string{"stderr"}},
	} {
		logger := initLogger(cfg)
		require.NotNil(t, logger)
		logger.Info("hello")
	}
}
