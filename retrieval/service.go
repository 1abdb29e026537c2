package retrieval

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

const (
	collectionExpert     = "expert"
	collectionEvaluation = "evaluation"
)

// Service owns the live expert/evaluation index pair. Refresh replaces the
// pair only when both builds succeed; queries in flight during a refresh
// observe either the old pair or the new one, never a mix.
type Service struct {
	expertURL     string
	evaluationURL string
	fetcher       Fetcher
	builder       Builder
	logger        *log.Logger

	mu         sync.RWMutex
	expert     Index
	evaluation Index
}

func NewService(expertURL, evaluationURL string, fetcher Fetcher, builder Builder, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		expertURL:     expertURL,
		evaluationURL: evaluationURL,
		fetcher:       fetcher,
		builder:       builder,
		logger:        logger,
	}
}

// Refresh fetches both collections and rebuilds both indexes. On any fetch
// or build failure the previous pair stays live and the error is returned.
func (s *Service) Refresh(ctx context.Context) error {
	if s.fetcher == nil || s.builder == nil {
		return fmt.Errorf("retrieval service is not configured")
	}

	expert, err := s.buildCollection(ctx, collectionExpert, s.expertURL)
	if err != nil {
		return err
	}

	evaluation, err := s.buildCollection(ctx, collectionEvaluation, s.evaluationURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	oldExpert, oldEvaluation := s.expert, s.evaluation
	s.expert, s.evaluation = expert, evaluation
	s.mu.Unlock()

	s.releaseIndex(ctx, oldExpert)
	s.releaseIndex(ctx, oldEvaluation)

	s.logger.Printf("retrieval indexes refreshed")
	return nil
}

func (s *Service) buildCollection(ctx context.Context, collection, url string) (Index, error) {
	docs, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("refresh %s collection: %w", collection, err)
	}

	index, err := s.builder.Build(ctx, collection, docs)
	if err != nil {
		return nil, fmt.Errorf("build %s index: %w", collection, err)
	}

	return index, nil
}

func (s *Service) releaseIndex(ctx context.Context, index Index) {
	cleaner, ok := index.(Cleaner)
	if !ok {
		return
	}
	if err := cleaner.Cleanup(ctx); err != nil {
		s.logger.Printf("release replaced index: %v", err)
	}
}

// Ready reports whether both indexes have been built at least once.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expert != nil && s.evaluation != nil
}

// Query runs the question against both indexes, joins their answers with a
// newline, and unions their sources without deduplication.
func (s *Service) Query(ctx context.Context, question string) (Result, error) {
	s.mu.RLock()
	expert, evaluation := s.expert, s.evaluation
	s.mu.RUnlock()

	if expert == nil || evaluation == nil {
		return Result{}, ErrNotReady
	}

	expertAnswer, expertSources, err := expert.Query(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("query expert index: %w", err)
	}

	evaluationAnswer, evaluationSources, err := evaluation.Query(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("query evaluation index: %w", err)
	}

	sources := make([]Source, 0, len(expertSources)+len(evaluationSources))
	sources = append(sources, expertSources...)
	sources = append(sources, evaluationSources...)

	return Result{
		Answer:  strings.TrimSpace(expertAnswer + "\n" + evaluationAnswer),
		Sources: sources,
	}, nil
}
