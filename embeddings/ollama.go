package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fabfab/design-eval/provider"
)

type ollamaEmbedder struct {
	host      string
	model     string
	dimension int
	client    *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error"`
}

func newOllamaEmbedder(opts Options) (Embedder, error) {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	return &ollamaEmbedder{
		host:      host,
		model:     opts.Model,
		dimension: opts.Dimension,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (e *ollamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	endpoint := e.host + "/api/embeddings"

	for _, text := range texts {
		vec, err := e.embedOne(ctx, endpoint, text)
		if err != nil {
			return nil, err
		}
		results = append(results, vec)
	}

	return results, nil
}

func (e *ollamaEmbedder) embedOne(ctx context.Context, endpoint, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, provider.ClassifyDialError(endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewTransportError(provider.KindBadResponse, endpoint,
			fmt.Errorf("read embedding response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return nil, provider.NewTransportError(provider.KindBadResponse, endpoint,
			fmt.Errorf("embedding request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var payload ollamaEmbedResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, provider.NewTransportError(provider.KindBadResponse, endpoint,
			fmt.Errorf("decode embedding response: %w", err))
	}
	if payload.Error != "" {
		return nil, provider.NewTransportError(provider.KindBadResponse, endpoint,
			fmt.Errorf("ollama error: %s", payload.Error))
	}

	vec := make([]float32, len(payload.Embedding))
	for i, value := range payload.Embedding {
		vec[i] = float32(value)
	}

	if e.dimension > 0 && len(vec) != e.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch for model %s: expected %d, got %d", e.model, e.dimension, len(vec))
	}

	return vec, nil
}

var _ Embedder = (*ollamaEmbedder)(nil)
