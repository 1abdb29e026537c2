package guideline

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// SourceFormat enumerates supported guideline document formats.
type SourceFormat string

const (
	FormatUnknown  SourceFormat = ""
	FormatMarkdown SourceFormat = "markdown"
	FormatText     SourceFormat = "text"
	FormatPDF      SourceFormat = "pdf"
)

// DetectFormat infers the guideline source format from the path's extension.
func DetectFormat(path string) SourceFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt":
		return FormatText
	case ".pdf":
		return FormatPDF
	default:
		return FormatUnknown
	}
}

// Load reads the guideline source document, extracts its plain text, and
// parses it into chunks. The document format is re-parsed only at startup;
// changes require a restart.
func Load(path string, opts Options) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guideline file: %w", err)
	}

	var content string
	switch format := DetectFormat(path); format {
	case FormatMarkdown, FormatText:
		content = string(data)
	case FormatPDF:
		content, err = extractPDFText(data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported guideline format for %s", path)
	}

	chunks := Parse(content, opts)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("guideline document %s produced no chunks", path)
	}

	return NewIndex(chunks), nil
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	return normalizePlainText(buf.String()), nil
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
