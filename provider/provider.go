// Package provider wraps the model backend behind a prompt-in/text-out
// contract. Backends are registered in a lookup table and selected at
// construction time, so swapping a local model for a remote API never
// touches call sites.
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fabfab/design-eval/config"
)

// Request is a single generation call. Images are raw bytes; backends
// encode them as required by their wire format.
type Request struct {
	Prompt string
	Model  string
	Images [][]byte
}

// Response carries the generated text plus the full raw payload for the
// evidence ledger, including the model identifier the backend reported.
type Response struct {
	Response string `json:"response"`
	Model    string `json:"model"`

	// Raw is the untouched provider payload, kept for audit logging.
	Raw json.RawMessage `json:"-"`
}

type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Options carries backend-specific settings resolved from configuration.
type Options struct {
	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

type Factory func(Options) (Provider, error)

var registry = map[string]Factory{
	config.ProviderOllama: newOllamaProvider,
	config.ProviderOpenAI: newOpenAIProvider,
}

// Register adds a backend to the lookup table. Intended for wiring
// additional backends (vllm, tgi) without modifying this package.
func Register(name string, factory Factory) {
	registry[name] = factory
}

func New(cfg config.Config) (Provider, error) {
	factory, ok := registry[cfg.Model.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown model provider: %s", cfg.Model.Provider)
	}

	return factory(Options{
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	})
}
