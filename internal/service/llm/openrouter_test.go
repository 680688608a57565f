package llm

import (
	"coach-app/internal/config"
	"coach-app/internal/logger"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *OpenRouterClient {
	logger.Silence()
	return NewOpenRouterClient(config.LLMConfig{
		OpenRouterAPIKey: "test-key",
		BaseURL:          url,
		Model:            config.DefaultModel,
		SiteURL:          "http://localhost:3000",
		AppName:          "Coach App",
	})
}

func TestOpenRouterClient_OpenStream(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "http://localhost:3000", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "Coach App", r.Header.Get("X-Title"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hola\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	body, err := client.OpenStream(context.Background(), []Message{{Role: "user", Content: "hola"}}, CompletionOptions{Temperature: 0.7, MaxTokens: 1500})
	require.NoError(t, err)
	defer body.Close()

	deltas, err := collect(t, body)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hola"}, deltas)

	assert.True(t, got.Stream)
	assert.Equal(t, config.DefaultModel, got.Model)
	assert.Equal(t, 1500, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.7, *got.Temperature, 1e-9)
	assert.Len(t, got.Messages, 1)
}

func TestOpenRouterClient_OpenStream_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":"rate limited"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.OpenStream(context.Background(), nil, CompletionOptions{})

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, "completion", upstream.Service)
	assert.Equal(t, http.StatusTooManyRequests, upstream.Status)
	assert.Contains(t, upstream.Body, "rate limited")
}

func TestOpenRouterClient_MissingAPIKey(t *testing.T) {
	client := NewOpenRouterClient(config.LLMConfig{BaseURL: "http://unused"})
	_, err := client.OpenStream(context.Background(), nil, CompletionOptions{})
	assert.Error(t, err)
}
