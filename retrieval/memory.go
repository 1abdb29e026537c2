package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/fabfab/design-eval/embeddings"
	"github.com/fabfab/design-eval/provider"
)

// MemoryBuilder builds fully in-memory vector indexes. Each build embeds
// the whole collection up front; queries embed only the question.
type MemoryBuilder struct {
	embedder embeddings.Embedder
	provider provider.Provider
	model    string
	topK     int
}

func NewMemoryBuilder(embedder embeddings.Embedder, p provider.Provider, model string, topK int) *MemoryBuilder {
	if topK <= 0 {
		topK = 3
	}
	return &MemoryBuilder{
		embedder: embedder,
		provider: p,
		model:    model,
		topK:     topK,
	}
}

func (b *MemoryBuilder) Build(ctx context.Context, collection string, docs []Document) (Index, error) {
	if b.embedder == nil {
		return nil, fmt.Errorf("embedder is not configured")
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("collection %s has no documents", collection)
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}

	vectors, err := b.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed collection %s: %w", collection, err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedding count mismatch: have %d documents, %d vectors", len(docs), len(vectors))
	}

	return &memoryIndex{
		embedder: b.embedder,
		provider: b.provider,
		model:    b.model,
		topK:     b.topK,
		docs:     docs,
		vectors:  vectors,
	}, nil
}

type memoryIndex struct {
	embedder embeddings.Embedder
	provider provider.Provider
	model    string
	topK     int
	docs     []Document
	vectors  [][]float32
}

func (idx *memoryIndex) Query(ctx context.Context, question string) (string, []Source, error) {
	queryVectors, err := idx.embedder.Embed(ctx, []string{question})
	if err != nil {
		return "", nil, fmt.Errorf("embed question: %w", err)
	}
	if len(queryVectors) == 0 {
		return "", nil, fmt.Errorf("embedder returned no vectors")
	}

	type scored struct {
		score float64
		doc   Document
	}

	ranked := make([]scored, 0, len(idx.docs))
	for i := range idx.docs {
		ranked = append(ranked, scored{
			score: cosineSimilarity(queryVectors[0], idx.vectors[i]),
			doc:   idx.docs[i],
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	limit := idx.topK
	if limit > len(ranked) {
		limit = len(ranked)
	}

	sources := make([]Source, 0, limit)
	for _, entry := range ranked[:limit] {
		sources = append(sources, Source{DocID: entry.doc.DocID, Text: entry.doc.Text})
	}

	answer, err := synthesize(ctx, idx.provider, idx.model, question, sources)
	if err != nil {
		return "", nil, err
	}

	return answer, sources, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var (
	_ Builder = (*MemoryBuilder)(nil)
	_ Index   = (*memoryIndex)(nil)
)
