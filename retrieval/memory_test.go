package retrieval_test

import (
	"context"
	"strings"
	"testing"

	"github.com/fabfab/design-eval/embeddings"
	"github.com/fabfab/design-eval/provider"
	"github.com/fabfab/design-eval/retrieval"
)

type keywordEmbedder struct{}

// Embed maps each text onto a 3-dimensional keyword indicator vector so
// similarity is predictable in tests.
func (keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 3)
		lowered := strings.ToLower(text)
		if strings.Contains(lowered, "contrast") {
			vec[0] = 1
		}
		if strings.Contains(lowered, "layout") {
			vec[1] = 1
		}
		if strings.Contains(lowered, "color") {
			vec[2] = 1
		}
		vectors[i] = vec
	}
	return vectors, nil
}

var _ embeddings.Embedder = keywordEmbedder{}

type echoProvider struct{}

func (echoProvider) Generate(ctx context.Context, req provider.Request) (provider.Response, error) {
	return provider.Response{Response: "synthesized", Model: req.Model}, nil
}

var _ provider.Provider = echoProvider{}

func TestMemoryIndexRanksByRelevance(t *testing.T) {
	builder := retrieval.NewMemoryBuilder(keywordEmbedder{}, echoProvider{}, "m", 1)

	index, err := builder.Build(context.Background(), "expert", []retrieval.Document{
		{DocID: "layout-doc", Text: "All about layout grids."},
		{DocID: "contrast-doc", Text: "Contrast ratios for text."},
		{DocID: "color-doc", Text: "Color palette rules."},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	answer, sources, err := index.Query(context.Background(), "what about contrast?")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if answer != "synthesized" {
		t.Fatalf("unexpected answer: %q", answer)
	}
	if len(sources) != 1 || sources[0].DocID != "contrast-doc" {
		t.Fatalf("expected contrast-doc as top source, got %+v", sources)
	}
}

func TestMemoryBuilderRejectsEmptyCollection(t *testing.T) {
	builder := retrieval.NewMemoryBuilder(keywordEmbedder{}, echoProvider{}, "m", 3)
	if _, err := builder.Build(context.Background(), "expert", nil); err == nil {
		t.Fatal("expected error for empty collection")
	}
}
