package generation

import "fmt"

// StructuredAnswer is the schema every chat-style generation must satisfy:
// an answer plus the citation ids supporting it, in order.
type StructuredAnswer struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
}

// AnswerSchema builds the schema for StructuredAnswer outputs.
func AnswerSchema() Schema[StructuredAnswer] {
	return Schema[StructuredAnswer]{
		Example: StructuredAnswer{
			Answer:    "Concise answer to the question.",
			Citations: []string{"cit_example_1_1_000"},
		},
		Validate: func(a StructuredAnswer) error {
			if a.Answer == "" {
				return fmt.Errorf("answer is required")
			}
			return nil
		},
	}
}

// Region locates a finding on the submitted image in normalized 0-1
// coordinates.
type Region struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Finding is one issue the vision model identified on a design submission.
type Finding struct {
	Region      Region   `json:"region"`
	Label       string   `json:"label"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Citations   []string `json:"citations"`
}

// FindingsSchema builds the schema for image-analysis outputs: a JSON array
// of findings.
func FindingsSchema() Schema[[]Finding] {
	return Schema[[]Finding]{
		Example: []Finding{{
			Region:      Region{X: 0.18, Y: 0.22, W: 0.42, H: 0.28},
			Label:       "Low Contrast",
			Confidence:  0.82,
			Explanation: "Text/background contrast may be below the recommended ratio.",
			Citations:   []string{"cit_example_1_1_000"},
		}},
		Validate: func(findings []Finding) error {
			if len(findings) == 0 {
				return fmt.Errorf("at least one finding is required")
			}
			for i, f := range findings {
				if f.Label == "" {
					return fmt.Errorf("finding %d: label is required", i)
				}
				if f.Confidence < 0 || f.Confidence > 1 {
					return fmt.Errorf("finding %d: confidence %f out of range", i, f.Confidence)
				}
				for _, v := range []float64{f.Region.X, f.Region.Y, f.Region.W, f.Region.H} {
					if v < 0 || v > 1 {
						return fmt.Errorf("finding %d: region coordinate %f out of range", i, v)
					}
				}
			}
			return nil
		},
	}
}
