package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps the ledger in process memory. Used by tests and
// single-node development runs; the ordering contract matches the Postgres
// store exactly.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(ctx context.Context, event Event) (int64, error) {
	if event.SubmissionID == "" {
		return 0, fmt.Errorf("submission id is required")
	}
	if event.Kind == "" {
		return 0, fmt.Errorf("event kind is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event.ID = s.nextID
	s.nextID++
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	s.events = append(s.events, event)

	return event.ID, nil
}

func (s *MemoryStore) Read(ctx context.Context, submissionID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Event, 0)
	for _, event := range s.events {
		if event.SubmissionID == submissionID {
			result = append(result, event)
		}
	}
	return result, nil
}

func (s *MemoryStore) ExportDataset(ctx context.Context) ([]DatasetRow, error) {
	s.mu.Lock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.Unlock()

	return buildDataset(events), nil
}

var _ Store = (*MemoryStore)(nil)
