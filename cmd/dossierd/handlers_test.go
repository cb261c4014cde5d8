package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/myrjola/dossier/internal/e2etest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_application_mcp(t *testing.T) {
	server := startTestServer(t, io.Discard, testLookupEnv)
	client := server.Client()
	ctx := context.Background()

	created, err := client.CallTool(ctx, "dossier_create", map[string]any{
		"dossier_id":  "p1",
		"player_name": "Ada",
		"data":        map[string]any{"hands": 12, "notes": []string{"3-bets light"}},
	})
	require.NoError(t, err)
	require.Equal(t, "p1", created["dossier"].(map[string]any)["id"])

	updated, err := client.CallTool(ctx, "dossier_update", map[string]any{
		"dossier_id": "p1",
		"patch":      map[string]any{"hands": 13, "notes": nil},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"hands": float64(13)}, updated["dossier"].(map[string]any)["data"])

	status, read, err := client.Call(ctx, "resources/read", map[string]any{"uri": "dossier://p1"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, updated["dossier"], read["dossier"])

	listed, err := client.CallTool(ctx, "dossier_list", nil)
	require.NoError(t, err)
	require.InDelta(t, 1, listed["count"], 0)

	_, err = client.CallTool(ctx, "dossier_delete", map[string]any{"dossier_id": "p1"})
	require.NoError(t, err)

	// Dispatcher errors are still 200 responses.
	status, missing, err := client.Call(ctx, "tools/call",
		map[string]any{"name": "dossier_get", "arguments": map[string]any{"dossier_id": "p1"}})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, e2etest.Result{"error": "dossier not found: p1"}, missing)

	_, err = client.CallTool(ctx, "dossier_create", map[string]any{"dossier_id": "p2"})
	require.ErrorIs(t, err, e2etest.ErrCallFailed)
	_, err = client.CallTool(ctx, "dossier_get", map[string]any{"dossier_id": "p2"})
	require.ErrorIs(t, err, e2etest.ErrCallFailed, "failed validation must not persist anything")
}

func Test_application_mcp_catalogue(t *testing.T) {
	server := startTestServer(t, io.Discard, testLookupEnv)
	ctx := context.Background()

	status, tools, err := server.Client().Call(ctx, "tools/list", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, tools["tools"], 5)

	status, unknown, err := server.Client().Call(ctx, "bogus", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, e2etest.Result{"error": "unknown method: bogus"}, unknown)
}

func Test_application_mcp_badRequests(t *testing.T) {
	server := startTestServer(t, io.Discard, testLookupEnv)
	client := server.Client()
	ctx := context.Background()

	status, body, err := client.Post(ctx, []byte(`{"method":`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, status)
	var parseErr map[string]string
	require.NoError(t, json.Unmarshal(body, &parseErr))
	require.True(t, strings.HasPrefix(parseErr["error"], "parse error: "), parseErr["error"])

	resp, err := client.Get(ctx, "/mcp")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func Test_application_headers(t *testing.T) {
	server := startTestServer(t, io.Discard, testLookupEnv)
	ctx := context.Background()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL()+"/mcp",
		strings.NewReader(`{"method":"tools/list"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, resp.Body.Close())
	}()

	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	require.Equal(t, "deny", resp.Header.Get("X-Frame-Options"))
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func Test_application_metrics(t *testing.T) {
	server := startTestServer(t, io.Discard, testLookupEnv)
	client := server.Client()
	ctx := context.Background()

	_, err := client.CallTool(ctx, "dossier_create", map[string]any{"dossier_id": "p1", "player_name": "Ada"})
	require.NoError(t, err)

	resp, err := client.Get(ctx, "/metrics")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, resp.Body.Close())
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Contains(t, string(body),
		`dossier_requests_total{method="tools/call",outcome="success",tool="dossier_create"} 1`)
	require.Contains(t, string(body), `dossier_http_requests_total{code="200"}`)
	require.Contains(t, string(body), "dossier_stored 1")
}

func Test_timeoutHandler(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := jsonContentType(timeoutHandler(slow, 600*time.Millisecond))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, timeoutBody, rec.Body.String())
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
