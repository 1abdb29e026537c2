package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the ledger in an append-only table keyed by a
// BIGSERIAL id. Schema changes must stay backward compatible: new nullable
// columns only.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the evidence table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS evidence_events (
			id BIGSERIAL PRIMARY KEY,
			kind TEXT NOT NULL,
			submission_id TEXT NOT NULL,
			user_id TEXT,
			at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			payload_json JSONB NOT NULL,
			raw_output BYTEA,
			image BYTEA
		)`,
		"CREATE INDEX IF NOT EXISTS idx_evidence_events_submission ON evidence_events(submission_id, id)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) Append(ctx context.Context, event Event) (int64, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if event.SubmissionID == "" {
		return 0, fmt.Errorf("submission id is required")
	}
	if event.Kind == "" {
		return 0, fmt.Errorf("event kind is required")
	}

	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var userID *string
	if event.UserID != "" {
		userID = &event.UserID
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO evidence_events (kind, submission_id, user_id, at, payload_json, raw_output, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, string(event.Kind), event.SubmissionID, userID, at, event.Payload, event.RawOutput, event.Image).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert evidence event: %w", err)
	}

	return id, nil
}

func (s *PostgresStore) Read(ctx context.Context, submissionID string) ([]Event, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, submission_id, user_id, at, payload_json, raw_output, image
		FROM evidence_events
		WHERE submission_id = $1
		ORDER BY id ASC
	`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("query evidence events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) ExportDataset(ctx context.Context) ([]DatasetRow, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, submission_id, user_id, at, payload_json, raw_output, image
		FROM evidence_events
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query evidence events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	return buildDataset(events), nil
}

type pgRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEvents(rows pgRows) ([]Event, error) {
	events := make([]Event, 0)
	for rows.Next() {
		var (
			event  Event
			kind   string
			userID *string
		)
		if err := rows.Scan(&event.ID, &kind, &event.SubmissionID, &userID, &event.At,
			&event.Payload, &event.RawOutput, &event.Image); err != nil {
			return nil, fmt.Errorf("scan evidence event: %w", err)
		}
		event.Kind = Kind(kind)
		if userID != nil {
			event.UserID = *userID
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

var _ Store = (*PostgresStore)(nil)
