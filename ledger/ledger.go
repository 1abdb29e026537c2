// Package ledger is the append-only evidence trail. Every action taken
// against a submission becomes one immutable event; ordering by id within a
// submission is the audit trail and is preserved by every storage engine.
package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// Kind enumerates the recorded event kinds.
type Kind string

const (
	KindUpload   Kind = "upload"
	KindAnalyze  Kind = "analyze"
	KindChat     Kind = "chat"
	KindEvaluate Kind = "evaluate"
)

// Event is one immutable ledger row. ID is server-assigned and monotonic;
// events are never updated or deleted.
type Event struct {
	ID           int64           `json:"id"`
	Kind         Kind            `json:"kind"`
	SubmissionID string          `json:"submission_id"`
	UserID       string          `json:"user_id,omitempty"`
	At           time.Time       `json:"at"`
	Payload      json.RawMessage `json:"payload"`
	RawOutput    []byte          `json:"-"`
	Image        []byte          `json:"-"`
}

// DatasetRow is one complete training triple: the uploaded image, the model
// findings, and the judge corrections.
type DatasetRow struct {
	SubmissionID string          `json:"submission_id"`
	Image        []byte          `json:"image"`
	Findings     json.RawMessage `json:"findings"`
	Corrections  json.RawMessage `json:"corrections"`
}

// Store is the persistence contract. Append must be a single atomic insert;
// Read returns a submission's events in insertion order.
type Store interface {
	Append(ctx context.Context, event Event) (int64, error)
	Read(ctx context.Context, submissionID string) ([]Event, error)
	ExportDataset(ctx context.Context) ([]DatasetRow, error)
}

// buildDataset joins events into complete triples. Only submissions holding
// an upload image, analyze findings, and an evaluate payload are exported;
// anything incomplete is silently excluded.
func buildDataset(events []Event) []DatasetRow {
	type parts struct {
		image       []byte
		findings    json.RawMessage
		corrections json.RawMessage
	}

	bySubmission := make(map[string]*parts)
	order := make([]string, 0)

	for _, event := range events {
		p, ok := bySubmission[event.SubmissionID]
		if !ok {
			p = &parts{}
			bySubmission[event.SubmissionID] = p
			order = append(order, event.SubmissionID)
		}

		// Events arrive in id order, so later assignments win and each
		// part reflects the most recent event of its kind.
		switch event.Kind {
		case KindUpload:
			if len(event.Image) > 0 {
				p.image = event.Image
			}
		case KindAnalyze:
			if len(event.Payload) > 0 {
				p.findings = event.Payload
			}
		case KindEvaluate:
			if len(event.Payload) > 0 {
				p.corrections = event.Payload
			}
		}
	}

	sort.Strings(order)

	rows := make([]DatasetRow, 0, len(order))
	for _, submissionID := range order {
		p := bySubmission[submissionID]
		if len(p.image) == 0 || len(p.findings) == 0 || len(p.corrections) == 0 {
			continue
		}
		rows = append(rows, DatasetRow{
			SubmissionID: submissionID,
			Image:        p.image,
			Findings:     p.findings,
			Corrections:  p.corrections,
		})
	}

	return rows
}
