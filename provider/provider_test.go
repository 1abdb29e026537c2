package provider_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fabfab/design-eval/config"
	"github.com/fabfab/design-eval/provider"
)

func TestNewSelectsRegisteredBackend(t *testing.T) {
	cfg := config.Config{
		OllamaHost: "http://localhost:11434",
		Model:      config.ModelConfig{Provider: config.ProviderOllama, Model: "llama3.1:8b"},
	}

	p, err := provider.New(cfg)
	if err != nil {
		t.Fatalf("expected provider, got error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestNewUnknownBackend(t *testing.T) {
	cfg := config.Config{Model: config.ModelConfig{Provider: "vllm"}}
	if _, err := provider.New(cfg); err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}

func TestNewOpenAIRequiresAPIKey(t *testing.T) {
	cfg := config.Config{Model: config.ModelConfig{Provider: config.ProviderOpenAI, Model: "gpt-4o"}}
	if _, err := provider.New(cfg); err == nil {
		t.Fatal("expected error for missing OPENAI_API_KEY")
	}
}

func ollamaProvider(t *testing.T, host string) provider.Provider {
	t.Helper()
	p, err := provider.New(config.Config{
		OllamaHost: host,
		Model:      config.ModelConfig{Provider: config.ProviderOllama},
	})
	if err != nil {
		t.Fatalf("construct provider: %v", err)
	}
	return p
}

func TestOllamaGenerateReturnsRawPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llava:7b","response":"looks fine","done":true}`))
	}))
	defer server.Close()

	resp, err := ollamaProvider(t, server.URL).Generate(context.Background(), provider.Request{
		Prompt: "describe",
		Model:  "llava:7b",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Response != "looks fine" {
		t.Fatalf("unexpected response text: %q", resp.Response)
	}
	if resp.Model != "llava:7b" {
		t.Fatalf("expected model identifier in response, got %q", resp.Model)
	}
	if len(resp.Raw) == 0 {
		t.Fatal("expected raw payload for audit logging")
	}
}

func TestOllamaGenerateUnreachable(t *testing.T) {
	// Closed server: connection refused.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := ollamaProvider(t, server.URL).Generate(context.Background(), provider.Request{Prompt: "p", Model: "m"})

	var transport *provider.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transport.Kind != provider.KindUnreachable {
		t.Fatalf("expected unreachable kind, got %q", transport.Kind)
	}
}

func TestOllamaGenerateTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect and
		// cancels the request context; otherwise Close deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ollamaProvider(t, server.URL).Generate(ctx, provider.Request{Prompt: "p", Model: "m"})

	var transport *provider.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transport.Kind != provider.KindTimeout {
		t.Fatalf("expected timeout kind, got %q", transport.Kind)
	}
}

func TestOllamaGenerateBadResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := ollamaProvider(t, server.URL).Generate(context.Background(), provider.Request{Prompt: "p", Model: "m"})

	var transport *provider.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transport.Kind != provider.KindBadResponse {
		t.Fatalf("expected bad_response kind, got %q", transport.Kind)
	}
}

func TestOllamaGenerateMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := ollamaProvider(t, server.URL).Generate(context.Background(), provider.Request{Prompt: "p", Model: "m"})

	var transport *provider.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transport.Kind != provider.KindBadResponse {
		t.Fatalf("expected bad_response kind, got %q", transport.Kind)
	}
}
