package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnv(t *testing.T, baseURL string) {
	t.Helper()
	t.Setenv("FETCHER_BASE_URL", baseURL)
	t.Setenv("FETCHER_MAX_RETRIES", "1")
	t.Setenv("RATE_LIMIT_STRATEGY", "jitter")
	t.Setenv("RATE_LIMIT_MIN_DELAY", "1ms")
	t.Setenv("RATE_LIMIT_MAX_DELAY", "2ms")
	t.Setenv("LOG_LEVEL", "error")
}

func TestRunWithoutOffers(t *testing.T) {
	testEnv(t, "http://127.0.0.1:1/")
	var stderr bytes.Buffer

	code := run([]string{"-env", filepath.Join(t.TempDir(), "missing.env")}, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "No offers to process")
}

func TestRunUnknownFormat(t *testing.T) {
	testEnv(t, "http://127.0.0.1:1/")
	var stderr bytes.Buffer

	code := run([]string{
		"-env", filepath.Join(t.TempDir(), "missing.env"),
		"-ids", "610947572360",
		"-format", "parquet",
	}, &stderr)
	assert.Equal(t, 1, code)
}

func TestRunNothingSucceededStillFlushes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	testEnv(t, srv.URL+"/")

	dir := t.TempDir()
	out := filepath.Join(dir, "offers.xlsx")
	var stderr bytes.Buffer

	code := run([]string{
		"-env", filepath.Join(dir, "missing.env"),
		"-ids", "610947572360",
		"-output", out,
	}, &stderr)

	assert.Equal(t, 1, code)
	require.FileExists(t, out)
	assert.Contains(t, stderr.String(), "saved: 0")
	assert.Contains(t, stderr.String(), "failed: 1")
}
