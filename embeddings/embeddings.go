// Package embeddings turns text into fixed-dimension vectors for the
// retrieval indexes. Backends share the provider transport taxonomy so an
// embedding failure maps to the same outward statuses as a generation
// failure.
package embeddings

import (
	"context"
	"fmt"

	"github.com/fabfab/design-eval/config"
)

// Embedder converts a batch of texts into one vector per text, in input
// order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Options carries backend-specific settings resolved from configuration.
type Options struct {
	Model     string
	Dimension int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

type Factory func(Options) (Embedder, error)

var registry = map[string]Factory{
	config.ProviderOllama: newOllamaEmbedder,
	config.ProviderOpenAI: newOpenAIEmbedder,
}

// Register adds an embedding backend to the lookup table.
func Register(name string, factory Factory) {
	registry[name] = factory
}

func NewEmbedder(cfg config.Config) (Embedder, error) {
	factory, ok := registry[cfg.Embeddings.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embeddings.Provider)
	}

	return factory(Options{
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	})
}
