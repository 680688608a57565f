package embedding

import (
	"coach-app/internal/config"
	"coach-app/internal/logger"
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
)

// MaxInputRunes caps the text sent for one embedding
const MaxInputRunes = 8000

// UpstreamError reports a failed or empty embeddings response
type UpstreamError struct {
	Service string
	Status  int
	Body    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Service, e.Status, e.Body)
}

// Client turns text into embedding vectors through an OpenAI-compatible endpoint
type Client struct {
	api        openai.Client
	model      string
	dimensions int
}

// NewClient creates a client. Retries are disabled, callers treat any failure as final.
func NewClient(cfg config.EmbeddingConfig, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL + "/"),
		option.WithMaxRetries(0),
	}
	return &Client{
		api:        openai.NewClient(append(base, opts...)...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// Embed returns the embedding of text, truncated to MaxInputRunes
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	input := truncateRunes(text, MaxInputRunes)

	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(input)},
		Model:          openai.EmbeddingModel(c.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if c.dimensions > 0 {
		params.Dimensions = openai.Int(int64(c.dimensions))
	}

	resp, err := c.api.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &UpstreamError{Service: "embeddings", Status: apiErr.StatusCode, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("error calling embeddings API: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &UpstreamError{Service: "embeddings", Status: 200, Body: "response contained no embedding data"}
	}

	vector := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float32(v)
	}

	logger.Log.WithFields(logrus.Fields{
		"model":       c.model,
		"input_runes": len([]rune(input)),
		"dimensions":  len(vector),
	}).Debug("Generated embedding")

	return vector, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
