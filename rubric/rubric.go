// Package rubric serves the scoring rubric document, looked up by exact
// {award_id, version} match.
package rubric

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNotFound reports that no rubric matches the requested award/version.
var ErrNotFound = errors.New("rubric not found")

// Document is the raw rubric payload plus the key fields it is served by.
type Document struct {
	AwardID string
	Version string
	Body    json.RawMessage
}

type Store struct {
	doc Document
}

// Load reads the rubric JSON file once. A UTF-8 BOM is tolerated because
// rubric files are frequently exported from spreadsheet tools.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric file: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	var key struct {
		AwardID string `json:"award_id"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("parse rubric file: %w", err)
	}
	if key.AwardID == "" || key.Version == "" {
		return nil, fmt.Errorf("rubric file %s is missing award_id or version", path)
	}

	return &Store{doc: Document{
		AwardID: key.AwardID,
		Version: key.Version,
		Body:    json.RawMessage(data),
	}}, nil
}

func NewStore(doc Document) *Store {
	return &Store{doc: doc}
}

// Lookup returns the rubric body on an exact key match.
func (s *Store) Lookup(awardID, version string) (json.RawMessage, error) {
	if s.doc.AwardID != awardID || s.doc.Version != version {
		return nil, ErrNotFound
	}
	return s.doc.Body, nil
}
