// Package retrieval builds semantic indexes over two external document
// collections (expert guides and evaluation interpretations) and answers
// questions with synthesized text plus source passages.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrNotReady reports a query against a service whose indexes have never
// been successfully built. Callers must be able to tell this apart from an
// upstream fetch failure.
var ErrNotReady = errors.New("retrieval indexes not initialized")

// Document is one fetched text owned by the service for the lifetime of a
// single index build.
type Document struct {
	DocID string
	Text  string
}

// Source is a supporting passage attached to an answer.
type Source struct {
	DocID string `json:"doc_id"`
	Text  string `json:"text"`
}

// Result aggregates both indexes' answers and their sources.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// FetchError wraps any HTTP-layer failure while pulling documents from a
// collection endpoint.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch documents from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher pulls a document collection from an external endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]Document, error)
}

// HTTPFetcher fetches a JSON array of {id, text} objects.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var items []struct {
		ID   any    `json:"id"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("decode response: %w", err)}
	}

	docs := make([]Document, 0, len(items))
	for i, item := range items {
		docID := strconv.Itoa(i)
		switch id := item.ID.(type) {
		case string:
			if id != "" {
				docID = id
			}
		case float64:
			docID = strconv.FormatFloat(id, 'f', -1, 64)
		}
		docs = append(docs, Document{DocID: docID, Text: item.Text})
	}

	return docs, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
