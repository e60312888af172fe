package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CaseyRo/readwise-mcp-http-server/internal/config"
	"github.com/CaseyRo/readwise-mcp-http-server/internal/mcp"
	"github.com/CaseyRo/readwise-mcp-http-server/internal/readwise"
)

// testService builds a Service wired to a fake remote highlight API.
func testService(t *testing.T) *Service {
	t.Helper()

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"id":1}]}`))
	}))
	t.Cleanup(remote.Close)

	cfg := config.Default()
	cfg.AccessToken = "test-token"
	cfg.BaseURL = remote.URL
	cfg.StreamDelay = 0
	cfg.RetryDelay = 0

	client := readwise.NewClient(readwise.Config{
		BaseURL:     cfg.BaseURL,
		AccessToken: cfg.AccessToken,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
	})
	mcpServer := mcp.NewServer(client, "test-version", cfg.StreamDelay)

	return NewService(cfg, mcp.NewHandler(mcpServer), "test-version")
}

func TestHealthEndpoint(t *testing.T) {
	svc := testService(t)

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
		Server    struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"server"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, mcp.ServerName, body.Server.Name)
	assert.Equal(t, "test-version", body.Server.Version)

	_, err := time.Parse(time.RFC3339, body.Timestamp)
	assert.NoError(t, err)
}

func TestMCPRouteMounted(t *testing.T) {
	svc := testService(t)

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "search_readwise_highlights")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStreamRouteMounted(t *testing.T) {
	svc := testService(t)

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp/stream",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call",
			"params":{"name":"search_readwise_highlights","arguments":{"vector_search_term":"go"}}}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	assert.Len(t, lines, 3) // started, one result, completed
}

func TestInfoRouteMounted(t *testing.T) {
	svc := testService(t)

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp/info", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":null`)
}

func TestRequestIDMiddleware(t *testing.T) {
	svc := testService(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, "caller-supplied", rec.Header().Get("X-Request-ID"))
}

func TestMaxBodySize(t *testing.T) {
	svc := testService(t)

	big := strings.Repeat("x", MaxRequestBody+1)
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(big))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestShutdownWithoutStart(t *testing.T) {
	svc := testService(t)
	require.NoError(t, svc.Shutdown(context.Background()))
}
