package api

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateStruct runs the tag validator and flattens failures into a
// field -> message map for the error envelope.
func validateStruct(v any) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"request": err.Error()}
	}

	fields := make(map[string]string, len(errs))
	for _, e := range errs {
		fields[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return fields
}

type UploadParams struct {
	Title       string         `json:"title" validate:"required"`
	AuthorID    string         `json:"author_id" validate:"required"`
	AssetURL    string         `json:"asset_url" validate:"omitempty,url"`
	Meta        map[string]any `json:"meta"`
	ImageBase64 string         `json:"image_base64"`
}

type AnalyzeParams struct {
	SubmissionID string `json:"submission_id" validate:"required"`
	ImageBase64  string `json:"image_base64"`
}

type ChatParams struct {
	SubmissionID string `json:"submission_id" validate:"required"`
	UserID       string `json:"user_id" validate:"required"`
	Message      string `json:"message" validate:"required"`
}

type SearchGuidelineParams struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"top_k" validate:"omitempty,gte=1,lte=20"`
}

type EvaluateParams struct {
	SubmissionID string             `json:"submission_id" validate:"required"`
	JudgeID      string             `json:"judge_id" validate:"required"`
	Scores       map[string]float64 `json:"scores" validate:"required,min=1,dive,gte=0,lte=5"`
	Comment      string             `json:"comment"`
	Corrections  []FindingParams    `json:"corrections" validate:"omitempty,dive"`
}

type FindingParams struct {
	Region      RegionParams `json:"region"`
	Label       string       `json:"label" validate:"required"`
	Confidence  float64      `json:"confidence" validate:"gte=0,lte=1"`
	Explanation string       `json:"explanation"`
	Citations   []string     `json:"citations"`
}

type RegionParams struct {
	X float64 `json:"x" validate:"gte=0,lte=1"`
	Y float64 `json:"y" validate:"gte=0,lte=1"`
	W float64 `json:"w" validate:"gte=0,lte=1"`
	H float64 `json:"h" validate:"gte=0,lte=1"`
}

type RagQueryParams struct {
	Question string `json:"question" validate:"required"`
}
