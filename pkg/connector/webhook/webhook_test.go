package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kd17290/workflow-automation/internal/models"
	"github.com/kd17290/workflow-automation/pkg/connector"
)

func webhookStep(t *testing.T, cfg Config) models.Step {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	return models.Step{Name: "call", Type: connector.TypeWebhook, Config: raw}
}

func TestWebhookPost(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	conn, err := connector.Get(connector.TypeWebhook)
	require.NoError(t, err)

	step := webhookStep(t, Config{
		URL:    server.URL,
		Method: "POST",
		Body:   map[string]any{"u": "${user}", "fixed": "x"},
	})
	output, err := conn.Execute(context.Background(), step, map[string]any{"user": "u42"})
	require.NoError(t, err)

	out := output.(Output)
	assert.Equal(t, connector.TypeWebhook, out.Type)
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Equal(t, server.URL, out.URL)
	assert.Equal(t, "POST", out.Method)
	assert.Equal(t, map[string]any{"ok": true}, out.ResponseData)

	assert.Equal(t, "u42", received["u"])
	assert.Equal(t, "x", received["fixed"])
}

func TestWebhookGetTextResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("pong"))
	}))
	defer server.Close()

	conn, err := connector.Get(connector.TypeWebhook)
	require.NoError(t, err)

	output, err := conn.Execute(context.Background(), webhookStep(t, Config{URL: server.URL, Method: "get"}), nil)
	require.NoError(t, err)
	out := output.(Output)
	assert.Equal(t, "pong", out.ResponseData)
	assert.Equal(t, "GET", out.Method)
}

func TestWebhookNon2xxIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	conn, err := connector.Get(connector.TypeWebhook)
	require.NoError(t, err)

	output, err := conn.Execute(context.Background(), webhookStep(t, Config{URL: server.URL, Method: "GET"}), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, output.(Output).StatusCode)
}

func TestWebhookTransportError(t *testing.T) {
	conn, err := connector.Get(connector.TypeWebhook)
	require.NoError(t, err)

	step := webhookStep(t, Config{URL: "http://127.0.0.1:1", Method: "GET"})
	_, err = conn.Execute(context.Background(), step, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook request")
}

func TestWebhookUnsupportedMethod(t *testing.T) {
	conn, err := connector.Get(connector.TypeWebhook)
	require.NoError(t, err)

	_, err = conn.Execute(context.Background(), webhookStep(t, Config{URL: "http://example.test", Method: "PATCH"}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported HTTP method")
}

func TestWebhookValidateConfig(t *testing.T) {
	conn, err := connector.Get(connector.TypeWebhook)
	require.NoError(t, err)

	assert.NoError(t, conn.ValidateConfig(json.RawMessage(`{"url":"http://example.test","method":"POST"}`)))
	assert.Error(t, conn.ValidateConfig(json.RawMessage(`{"url":"","method":"POST"}`)))
	assert.Error(t, conn.ValidateConfig(json.RawMessage(`{"url":"http://example.test","method":"TRACE"}`)))
	assert.Error(t, conn.ValidateConfig(json.RawMessage(`{"url":`)))
}

func TestResolvePlaceholders(t *testing.T) {
	execCtx := map[string]any{
		"payload": map[string]any{"user_id": "u42"},
		"fetch":   map[string]any{"status_code": 200},
	}

	tests := []struct {
		name string
		in   any
		want any
	}{
		{
			name: "top-level key resolves",
			in:   map[string]any{"p": "${payload}"},
			want: map[string]any{"p": map[string]any{"user_id": "u42"}},
		},
		{
			name: "dotted path stays literal",
			in:   map[string]any{"u": "${payload.user_id}"},
			want: map[string]any{"u": "${payload.user_id}"},
		},
		{
			name: "unknown key stays literal",
			in:   map[string]any{"x": "${missing}"},
			want: map[string]any{"x": "${missing}"},
		},
		{
			name: "nested structures walked",
			in:   map[string]any{"list": []any{"${fetch}", "plain"}},
			want: map[string]any{"list": []any{map[string]any{"status_code": 200}, "plain"}},
		},
		{
			name: "non-placeholder strings untouched",
			in:   map[string]any{"s": "hello ${payload}"},
			want: map[string]any{"s": "hello ${payload}"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolvePlaceholders(tt.in, execCtx))
		})
	}
}
