package llm

import (
	"bytes"
	"coach-app/internal/config"
	"coach-app/internal/logger"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Message is one chat-completion turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions are the sampling parameters of one completion request
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// Completer opens a streamed completion. The returned body yields raw SSE bytes
// and must be closed by the caller.
type Completer interface {
	OpenStream(ctx context.Context, messages []Message, opts CompletionOptions) (io.ReadCloser, error)
}

// UpstreamError reports a non-success response from the completion gateway
type UpstreamError struct {
	Service string
	Status  int
	Body    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Service, e.Status, e.Body)
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// OpenRouterClient implements Completer against an OpenRouter-compatible chat-completions endpoint
type OpenRouterClient struct {
	config     config.LLMConfig
	httpClient *http.Client
}

var _ Completer = (*OpenRouterClient)(nil)

// NewOpenRouterClient creates a new client. The HTTP client has no timeout,
// the request context bounds the call.
func NewOpenRouterClient(llmConfig config.LLMConfig) *OpenRouterClient {
	return &OpenRouterClient{
		config:     llmConfig,
		httpClient: &http.Client{},
	}
}

// OpenStream sends a streaming chat request and returns the response body once the
// gateway answered 200. Nothing is retried.
func (c *OpenRouterClient) OpenStream(ctx context.Context, messages []Message, opts CompletionOptions) (io.ReadCloser, error) {
	if c.config.OpenRouterAPIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY not configured")
	}

	temperature := opts.Temperature
	reqBody := chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Stream:      true,
		Temperature: &temperature,
		MaxTokens:   opts.MaxTokens,
	}

	logger.Log.WithFields(logrus.Fields{
		"model":         reqBody.Model,
		"temperature":   fmt.Sprintf("%.2f", temperature),
		"max_tokens":    opts.MaxTokens,
		"message_count": len(messages),
	}).Info("Calling OpenRouter API (streaming)")

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.config.OpenRouterAPIKey)
	req.Header.Set("HTTP-Referer", c.config.SiteURL)
	req.Header.Set("X-Title", c.config.AppName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, &UpstreamError{Service: "completion", Status: resp.StatusCode, Body: string(body)}
	}

	return resp.Body, nil
}
