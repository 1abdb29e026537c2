package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabfab/design-eval/provider"
)

// Index answers a question from one built document collection. Indexes are
// rebuilt wholesale on refresh, never mutated incrementally.
type Index interface {
	Query(ctx context.Context, question string) (string, []Source, error)
}

// Builder constructs an index from a fetched document collection. The
// collection name distinguishes the expert and evaluation builds for
// backends that persist their vectors.
type Builder interface {
	Build(ctx context.Context, collection string, docs []Document) (Index, error)
}

// Cleaner is implemented by indexes that hold external resources which can
// be released once the index has been replaced.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// synthesize asks the model to answer the question grounded in the ranked
// passages.
func synthesize(ctx context.Context, p provider.Provider, model, question string, sources []Source) (string, error) {
	if len(sources) == 0 {
		return "No relevant passages found.", nil
	}

	var sb strings.Builder
	sb.WriteString("Answer the question using only the passages below. Be concise.\n\n")
	for i, source := range sources {
		sb.WriteString(fmt.Sprintf("Passage %d (%s):\n%s\n\n", i+1, source.DocID, strings.TrimSpace(source.Text)))
	}
	sb.WriteString("Question:\n")
	sb.WriteString(question)

	resp, err := p.Generate(ctx, provider.Request{Prompt: sb.String(), Model: model})
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}

	return strings.TrimSpace(resp.Response), nil
}
