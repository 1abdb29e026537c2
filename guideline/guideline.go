// Package guideline holds the citable guideline corpus: it is parsed once at
// process startup, assigns stable citation ids, and answers lexical searches
// used to attach provenance to generated answers.
package guideline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Chunk is a section-bounded slice of the guideline document. Chunks are
// immutable after startup.
type Chunk struct {
	SectionPath string
	Text        string
	DocID       string
	Version     string
	CitationID  string
}

// SearchHit is a read-only projection of a chunk plus a relevance score.
// It is never persisted.
type SearchHit struct {
	CitationID  string  `json:"citation_id"`
	DocID       string  `json:"doc_id"`
	SectionPath string  `json:"section_path"`
	Excerpt     string  `json:"excerpt"`
	Score       float64 `json:"score"`
	Version     string  `json:"version"`
}

const (
	defaultTopK   = 3
	excerptLength = 240
)

var sectionNumberPattern = regexp.MustCompile(`§([\d.]+)`)

// Options identify the source document for citation purposes. Citation ids
// stay stable across restarts as long as the document itself is unchanged.
type Options struct {
	DocID   string
	Version string
	Tag     string
}

// Parse splits the guideline text into chunks. A line opening with a section
// marker ("§") or a top-level heading ("# ") starts a new chunk; following
// lines accumulate into that chunk's body.
func Parse(content string, opts Options) []Chunk {
	if opts.Tag == "" {
		opts.Tag = "doc"
	}

	type rawChunk struct {
		sectionPath string
		body        strings.Builder
	}

	current := &rawChunk{sectionPath: "Doc"}
	raw := make([]*rawChunk, 0)

	flush := func() {
		if strings.TrimSpace(current.body.String()) != "" {
			raw = append(raw, current)
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(line, "§") || strings.HasPrefix(line, "# ") {
			flush()
			current = &rawChunk{sectionPath: strings.TrimSpace(line)}
			continue
		}
		current.body.WriteString(line)
		current.body.WriteString("\n")
	}
	flush()

	chunks := make([]Chunk, 0, len(raw))
	for i, rc := range raw {
		section := fmt.Sprintf("0_%d", i)
		if match := sectionNumberPattern.FindStringSubmatch(rc.sectionPath); match != nil {
			section = strings.ReplaceAll(match[1], ".", "_")
		}
		chunks = append(chunks, Chunk{
			SectionPath: rc.sectionPath,
			Text:        rc.body.String(),
			DocID:       opts.DocID,
			Version:     opts.Version,
			CitationID:  fmt.Sprintf("cit_%s_%s_%03d", opts.Tag, section, i),
		})
	}

	return chunks
}

// truncateRunes caps text at limit characters. Counting runes rather than
// bytes keeps multi-byte text (the guideline corpus is Korean) valid UTF-8
// after the cut.
func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// Index is the in-memory searchable view over the parsed chunks. It is
// read-only after construction and safe for concurrent use.
type Index struct {
	chunks []Chunk
}

func NewIndex(chunks []Chunk) *Index {
	return &Index{chunks: chunks}
}

func (idx *Index) Chunks() []Chunk {
	return idx.chunks
}

// Search scores each chunk by the number of case-insensitive occurrences of
// the query in its body plus its section path. Zero-score chunks are
// excluded, ties keep document order, and results are truncated to topK.
func (idx *Index) Search(query string, topK int) []SearchHit {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	type scored struct {
		score int
		chunk *Chunk
	}

	matches := make([]scored, 0)
	for i := range idx.chunks {
		chunk := &idx.chunks[i]
		score := strings.Count(strings.ToLower(chunk.Text), query) +
			strings.Count(strings.ToLower(chunk.SectionPath), query)
		if score > 0 {
			matches = append(matches, scored{score: score, chunk: chunk})
		}
	}

	// Insertion order is document order, so a stable sort preserves it
	// between equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}

	hits := make([]SearchHit, 0, len(matches))
	for _, m := range matches {
		excerpt := truncateRunes(strings.TrimSpace(m.chunk.Text), excerptLength)
		hits = append(hits, SearchHit{
			CitationID:  m.chunk.CitationID,
			DocID:       m.chunk.DocID,
			SectionPath: m.chunk.SectionPath,
			Excerpt:     excerpt,
			Score:       float64(m.score),
			Version:     m.chunk.Version,
		})
	}

	return hits
}
