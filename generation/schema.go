package generation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Schema describes a structured output target: format instructions appended
// to the prompt plus a parse-and-validate step over the raw model text.
type Schema[T any] struct {
	// Example is marshaled into the format instructions so the model sees
	// the exact shape it must emit.
	Example T
	// Validate rejects values that decoded but violate schema constraints.
	// Optional.
	Validate func(T) error
}

// Instructions renders machine-readable format instructions derived from the
// example value.
func (s Schema[T]) Instructions() string {
	example, err := json.MarshalIndent(s.Example, "", "  ")
	if err != nil {
		example = []byte("{}")
	}
	return "Respond with JSON only, matching this structure exactly:\n" +
		string(example) +
		"\nDo not include any text outside the JSON."
}

// Parse extracts the JSON value from the model text and decodes it into T.
// Surrounding prose and markdown fences are tolerated; anything that fails
// to decode or validate is a retriable schema failure.
func (s Schema[T]) Parse(text string) (T, error) {
	var value T

	payload, err := extractJSON(text)
	if err != nil {
		return value, err
	}

	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return value, fmt.Errorf("decode model output: %w", err)
	}

	if s.Validate != nil {
		if err := s.Validate(value); err != nil {
			return value, fmt.Errorf("validate model output: %w", err)
		}
	}

	return value, nil
}

// extractJSON returns the outermost JSON object or array embedded in text.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("model output is empty")
	}

	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')

	start := objStart
	end := strings.LastIndexByte(text, '}')
	if start == -1 || (arrStart != -1 && arrStart < objStart) {
		start = arrStart
		end = strings.LastIndexByte(text, ']')
	}

	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("model output contains no JSON value")
	}

	return text[start : end+1], nil
}
