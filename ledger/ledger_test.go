package ledger_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fabfab/design-eval/ledger"
)

func appendEvent(t *testing.T, store ledger.Store, kind ledger.Kind, submissionID string, payload string, image []byte) int64 {
	t.Helper()
	id, err := store.Append(context.Background(), ledger.Event{
		Kind:         kind,
		SubmissionID: submissionID,
		Payload:      json.RawMessage(payload),
		Image:        image,
	})
	if err != nil {
		t.Fatalf("append %s event: %v", kind, err)
	}
	return id
}

func TestMemoryStoreOrderingAndIsolation(t *testing.T) {
	store := ledger.NewMemoryStore()

	first := appendEvent(t, store, ledger.KindUpload, "sub-s", `{"title":"a"}`, nil)
	appendEvent(t, store, ledger.KindUpload, "sub-t", `{"title":"other"}`, nil)
	second := appendEvent(t, store, ledger.KindAnalyze, "sub-s", `{"findings":[]}`, nil)
	third := appendEvent(t, store, ledger.KindChat, "sub-s", `{"message":"hi"}`, nil)

	if !(first < second && second < third) {
		t.Fatalf("ids are not monotonic: %d %d %d", first, second, third)
	}

	events, err := store.Read(context.Background(), "sub-s")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events for sub-s, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].ID <= events[i-1].ID {
			t.Fatalf("events out of insertion order: %d after %d", events[i].ID, events[i-1].ID)
		}
	}
	for _, event := range events {
		if event.SubmissionID != "sub-s" {
			t.Fatalf("event for %s leaked into sub-s read", event.SubmissionID)
		}
	}

	kinds := []ledger.Kind{events[0].Kind, events[1].Kind, events[2].Kind}
	want := []ledger.Kind{ledger.KindUpload, ledger.KindAnalyze, ledger.KindChat}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("unexpected kind order: %v", kinds)
		}
	}
}

func TestMemoryStoreRequiresSubmissionID(t *testing.T) {
	store := ledger.NewMemoryStore()
	if _, err := store.Append(context.Background(), ledger.Event{Kind: ledger.KindChat}); err == nil {
		t.Fatal("expected error for missing submission id")
	}
}

func TestExportDatasetCompletesTriplesOnly(t *testing.T) {
	store := ledger.NewMemoryStore()
	image := []byte{0x89, 0x50, 0x4E, 0x47}

	// Complete triple.
	appendEvent(t, store, ledger.KindUpload, "sub-full", `{"title":"full"}`, image)
	appendEvent(t, store, ledger.KindAnalyze, "sub-full", `{"findings":[{"label":"Low Contrast"}]}`, nil)
	appendEvent(t, store, ledger.KindEvaluate, "sub-full", `{"scores":[{"criteria_id":"c1","score":4}]}`, nil)

	// Upload + analyze, no evaluate: excluded.
	appendEvent(t, store, ledger.KindUpload, "sub-partial", `{"title":"partial"}`, image)
	appendEvent(t, store, ledger.KindAnalyze, "sub-partial", `{"findings":[]}`, nil)

	// Upload without image: excluded even with the other two present.
	appendEvent(t, store, ledger.KindUpload, "sub-noimage", `{"title":"noimage"}`, nil)
	appendEvent(t, store, ledger.KindAnalyze, "sub-noimage", `{"findings":[]}`, nil)
	appendEvent(t, store, ledger.KindEvaluate, "sub-noimage", `{"scores":[]}`, nil)

	rows, err := store.ExportDataset(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 complete triple, got %d", len(rows))
	}
	if rows[0].SubmissionID != "sub-full" {
		t.Fatalf("unexpected submission exported: %s", rows[0].SubmissionID)
	}
	if string(rows[0].Image) != string(image) {
		t.Fatal("exported image does not match upload")
	}
}

func TestExportDatasetUsesMostRecentEvents(t *testing.T) {
	store := ledger.NewMemoryStore()

	appendEvent(t, store, ledger.KindUpload, "sub-r", `{"title":"r"}`, []byte{1})
	appendEvent(t, store, ledger.KindAnalyze, "sub-r", `{"findings":["old"]}`, nil)
	appendEvent(t, store, ledger.KindAnalyze, "sub-r", `{"findings":["new"]}`, nil)
	appendEvent(t, store, ledger.KindEvaluate, "sub-r", `{"scores":["old"]}`, nil)
	appendEvent(t, store, ledger.KindEvaluate, "sub-r", `{"scores":["new"]}`, nil)

	rows, err := store.ExportDataset(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if string(rows[0].Findings) != `{"findings":["new"]}` {
		t.Fatalf("expected most recent findings, got %s", rows[0].Findings)
	}
	if string(rows[0].Corrections) != `{"scores":["new"]}` {
		t.Fatalf("expected most recent corrections, got %s", rows[0].Corrections)
	}
}
