package embeddings

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fabfab/design-eval/provider"
)

type openAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

func newOpenAIEmbedder(opts Options) (Embedder, error) {
	if opts.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai embedding provider selected but OPENAI_API_KEY not set")
	}

	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	return &openAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		dimension: opts.Dimension,
	}, nil
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, classifyOpenAIEmbedError(err)
	}

	results := make([][]float32, len(resp.Data))
	for i, datum := range resp.Data {
		if e.dimension > 0 && len(datum.Embedding) != e.dimension {
			return nil, fmt.Errorf("embedding dimension mismatch for model %s: expected %d, got %d", e.model, e.dimension, len(datum.Embedding))
		}
		results[i] = datum.Embedding
	}

	return results, nil
}

// classifyOpenAIEmbedError folds SDK errors into the shared transport
// taxonomy: API-level failures are bad responses, anything else is a dial
// problem.
func classifyOpenAIEmbedError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return provider.NewTransportError(provider.KindBadResponse, "openai", err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return provider.NewTransportError(provider.KindBadResponse, "openai", err)
	}
	return provider.ClassifyDialError("openai", err)
}

var _ Embedder = (*openAIEmbedder)(nil)
