package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/design-eval/embeddings"
	"github.com/fabfab/design-eval/provider"
)

// PgVectorBuilder persists collection vectors in Postgres. Every build
// writes under a fresh build id, so the rows backing a replaced index stay
// intact until the service releases them.
type PgVectorBuilder struct {
	pool      *pgxpool.Pool
	embedder  embeddings.Embedder
	provider  provider.Provider
	model     string
	topK      int
	dimension int
}

func NewPgVectorBuilder(pool *pgxpool.Pool, embedder embeddings.Embedder, p provider.Provider, model string, topK, dimension int) *PgVectorBuilder {
	if topK <= 0 {
		topK = 3
	}
	return &PgVectorBuilder{
		pool:      pool,
		embedder:  embedder,
		provider:  p,
		model:     model,
		topK:      topK,
		dimension: dimension,
	}
}

// EnsureSchema creates the retrieval vector table.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS retrieval_chunks (
			id UUID PRIMARY KEY,
			collection TEXT NOT NULL,
			build_id UUID NOT NULL,
			doc_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_retrieval_chunks_build ON retrieval_chunks(collection, build_id)",
		"CREATE INDEX IF NOT EXISTS idx_retrieval_chunks_embedding ON retrieval_chunks USING ivfflat (embedding vector_l2_ops)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}

func (b *PgVectorBuilder) Build(ctx context.Context, collection string, docs []Document) (Index, error) {
	if b.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if b.embedder == nil {
		return nil, fmt.Errorf("embedder is not configured")
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("collection %s has no documents", collection)
	}

	if err := EnsureSchema(ctx, b.pool, b.dimension); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
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

	buildID := uuid.New()

	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for i, doc := range docs {
		if _, err = tx.Exec(ctx, `
			INSERT INTO retrieval_chunks (id, collection, build_id, doc_id, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), collection, buildID, doc.DocID, doc.Text, pgvector.NewVector(vectors[i])); err != nil {
			return nil, fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &pgIndex{
		pool:       b.pool,
		embedder:   b.embedder,
		provider:   b.provider,
		model:      b.model,
		topK:       b.topK,
		collection: collection,
		buildID:    buildID,
	}, nil
}

type pgIndex struct {
	pool       *pgxpool.Pool
	embedder   embeddings.Embedder
	provider   provider.Provider
	model      string
	topK       int
	collection string
	buildID    uuid.UUID
}

func (idx *pgIndex) Query(ctx context.Context, question string) (string, []Source, error) {
	queryVectors, err := idx.embedder.Embed(ctx, []string{question})
	if err != nil {
		return "", nil, fmt.Errorf("embed question: %w", err)
	}
	if len(queryVectors) == 0 {
		return "", nil, fmt.Errorf("embedder returned no vectors")
	}

	rows, err := idx.pool.Query(ctx, `
		SELECT doc_id, content
		FROM retrieval_chunks
		WHERE collection = $1 AND build_id = $2
		ORDER BY embedding <-> $3::vector
		LIMIT $4
	`, idx.collection, idx.buildID, pgvector.NewVector(queryVectors[0]), idx.topK)
	if err != nil {
		return "", nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	sources := make([]Source, 0, idx.topK)
	for rows.Next() {
		var source Source
		if err := rows.Scan(&source.DocID, &source.Text); err != nil {
			return "", nil, fmt.Errorf("scan similar chunk: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return "", nil, err
	}

	answer, err := synthesize(ctx, idx.provider, idx.model, question, sources)
	if err != nil {
		return "", nil, err
	}

	return answer, sources, nil
}

// Cleanup drops the rows backing this build once it has been replaced.
func (idx *pgIndex) Cleanup(ctx context.Context) error {
	_, err := idx.pool.Exec(ctx,
		"DELETE FROM retrieval_chunks WHERE collection = $1 AND build_id = $2",
		idx.collection, idx.buildID)
	if err != nil {
		return fmt.Errorf("cleanup build %s: %w", idx.buildID, err)
	}
	return nil
}

var (
	_ Builder = (*PgVectorBuilder)(nil)
	_ Index   = (*pgIndex)(nil)
	_ Cleaner = (*pgIndex)(nil)
)
