// Package eval orchestrates the submission workflows: every operation runs
// the safety gate around the model call and records its evidence event only
// after the response has been computed.
package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fabfab/design-eval/config"
	"github.com/fabfab/design-eval/generation"
	"github.com/fabfab/design-eval/guideline"
	"github.com/fabfab/design-eval/ledger"
	"github.com/fabfab/design-eval/provider"
	"github.com/fabfab/design-eval/retrieval"
	"github.com/fabfab/design-eval/safety"
)

var (
	// ErrInjection reports a rejected inbound message; nothing is logged
	// and no model call is made.
	ErrInjection = errors.New("prompt injection detected")
	// ErrBlockedContent reports a model answer withheld by the output
	// filter. The blocked attempt is logged with a blocked flag.
	ErrBlockedContent = errors.New("disallowed content in model output")
	// ErrSubmissionNotFound reports a chat or analyze request against a
	// submission with no ledger history.
	ErrSubmissionNotFound = errors.New("submission not found")
)

const analyzePrompt = "Analyze the design image and return a JSON array of findings. " +
	"Each item must contain region {x,y,w,h} (0-1 float), label, confidence (0-1), " +
	"explanation and citations (array)."

const chatPrompt = "You are a design evaluation assistant. Answer the judge's question about the submission. " +
	"When guideline passages are supplied, ground your answer in them and cite their citation ids."

// Service wires the core components together, one method per endpoint.
type Service struct {
	store     ledger.Store
	guideline *guideline.Index
	engine    *generation.Engine
	rag       *retrieval.Service
	models    config.ModelConfig
	topK      int
	logger    *log.Logger
}

func NewService(store ledger.Store, gidx *guideline.Index, engine *generation.Engine, rag *retrieval.Service, models config.ModelConfig, topK int, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if topK <= 0 {
		topK = 3
	}

	return &Service{
		store:     store,
		guideline: gidx,
		engine:    engine,
		rag:       rag,
		models:    models,
		topK:      topK,
		logger:    logger,
	}
}

// UploadInput is the validated submission metadata plus the design image.
type UploadInput struct {
	Title    string
	AuthorID string
	AssetURL string
	Meta     map[string]any
	Image    []byte
}

type UploadResult struct {
	SubmissionID string    `json:"submission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Service) Upload(ctx context.Context, input UploadInput) (UploadResult, error) {
	submissionID := "sub_" + uuid.NewString()
	createdAt := time.Now().UTC()

	payload, err := json.Marshal(map[string]any{
		"title":     safety.MaskPII(input.Title),
		"author_id": input.AuthorID,
		"asset_url": input.AssetURL,
		"meta":      input.Meta,
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("marshal upload payload: %w", err)
	}

	if _, err := s.store.Append(ctx, ledger.Event{
		Kind:         ledger.KindUpload,
		SubmissionID: submissionID,
		UserID:       input.AuthorID,
		At:           createdAt,
		Payload:      payload,
		Image:        input.Image,
	}); err != nil {
		return UploadResult{}, fmt.Errorf("record upload: %w", err)
	}

	return UploadResult{SubmissionID: submissionID, CreatedAt: createdAt}, nil
}

type AnalyzeResult struct {
	Findings       []generation.Finding `json:"findings"`
	ModelVersion   string               `json:"model_version"`
	PromptSnapshot string               `json:"prompt_snapshot"`
}

// Analyze runs the vision model over the submission image and records the
// findings. The image may be supplied inline or fall back to the uploaded
// one.
func (s *Service) Analyze(ctx context.Context, submissionID string, image []byte) (AnalyzeResult, error) {
	if len(image) == 0 {
		uploaded, err := s.uploadedImage(ctx, submissionID)
		if err != nil {
			return AnalyzeResult{}, err
		}
		image = uploaded
	}

	req := generationRequest(analyzePrompt, s.models.VisionModel, image)
	findings, raw, err := generation.Generate(ctx, s.engine, req, generation.FindingsSchema())
	if err != nil {
		return AnalyzeResult{}, err
	}

	if blocked, blockErr := s.blockIfBanned(ctx, ledger.KindAnalyze, submissionID, "", raw.Raw, raw.Response); blocked {
		return AnalyzeResult{}, blockErr
	}

	for i := range findings {
		findings[i].Explanation = safety.MaskPII(findings[i].Explanation)
	}

	result := AnalyzeResult{
		Findings:       findings,
		ModelVersion:   raw.Model,
		PromptSnapshot: analyzePrompt,
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return AnalyzeResult{}, fmt.Errorf("marshal analyze payload: %w", err)
	}

	if _, err := s.store.Append(ctx, ledger.Event{
		Kind:         ledger.KindAnalyze,
		SubmissionID: submissionID,
		Payload:      payload,
		RawOutput:    raw.Raw,
	}); err != nil {
		return AnalyzeResult{}, fmt.Errorf("record analysis: %w", err)
	}

	return result, nil
}

type ChatResult struct {
	Answer         string                `json:"answer"`
	Citations      []string              `json:"citations"`
	Hits           []guideline.SearchHit `json:"-"`
	ModelVersion   string                `json:"model_version"`
	PromptSnapshot string                `json:"prompt_snapshot"`
}

// Chat answers a follow-up question about a submission. Inbound text passes
// the injection gate and is PII-masked before it reaches the model; the
// answer passes the output filter before it reaches the ledger or the
// caller.
func (s *Service) Chat(ctx context.Context, submissionID, userID, message string) (ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatResult{}, fmt.Errorf("message cannot be empty")
	}

	if safety.DetectPromptInjection(message) {
		return ChatResult{}, ErrInjection
	}
	message = safety.MaskPII(message)

	if _, err := s.submissionEvents(ctx, submissionID); err != nil {
		return ChatResult{}, err
	}

	hits := s.guideline.Search(message, s.topK)

	prompt := buildChatPrompt(message, hits)
	req := generationRequest(prompt, s.models.Model, nil)

	answer, raw, err := generation.Generate(ctx, s.engine, req, generation.AnswerSchema())
	if err != nil {
		return ChatResult{}, err
	}

	if blocked, blockErr := s.blockIfBanned(ctx, ledger.KindChat, submissionID, userID, raw.Raw, answer.Answer); blocked {
		return ChatResult{}, blockErr
	}

	result := ChatResult{
		Answer:         safety.MaskPII(answer.Answer),
		Citations:      answer.Citations,
		Hits:           hits,
		ModelVersion:   raw.Model,
		PromptSnapshot: prompt,
	}
	if result.Citations == nil {
		result.Citations = knownCitations(hits)
	}

	payload, err := json.Marshal(map[string]any{
		"message":         message,
		"answer":          result.Answer,
		"citations":       result.Citations,
		"model_version":   result.ModelVersion,
		"prompt_snapshot": result.PromptSnapshot,
	})
	if err != nil {
		return ChatResult{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	if _, err := s.store.Append(ctx, ledger.Event{
		Kind:         ledger.KindChat,
		SubmissionID: submissionID,
		UserID:       userID,
		Payload:      payload,
		RawOutput:    raw.Raw,
	}); err != nil {
		return ChatResult{}, fmt.Errorf("record chat: %w", err)
	}

	return result, nil
}

// SearchGuideline exposes the lexical guideline search. Read-only, so no
// ledger event is written.
func (s *Service) SearchGuideline(query string, topK int) []guideline.SearchHit {
	if topK <= 0 {
		topK = s.topK
	}
	return s.guideline.Search(query, topK)
}

// Evaluate records a judge's score sheet for a submission.
func (s *Service) Evaluate(ctx context.Context, submissionID, judgeID string, record json.RawMessage) error {
	if _, err := s.submissionEvents(ctx, submissionID); err != nil {
		return err
	}

	if _, err := s.store.Append(ctx, ledger.Event{
		Kind:         ledger.KindEvaluate,
		SubmissionID: submissionID,
		UserID:       judgeID,
		Payload:      record,
	}); err != nil {
		return fmt.Errorf("record evaluation: %w", err)
	}

	return nil
}

// Report returns a submission's full audit trail in insertion order.
func (s *Service) Report(ctx context.Context, submissionID string) ([]ledger.Event, error) {
	return s.submissionEvents(ctx, submissionID)
}

// ExportDataset returns every complete image/findings/corrections triple.
func (s *Service) ExportDataset(ctx context.Context) ([]ledger.DatasetRow, error) {
	return s.store.ExportDataset(ctx)
}

// RagQuery answers a question from the retrieval indexes.
func (s *Service) RagQuery(ctx context.Context, question string) (retrieval.Result, error) {
	if s.rag == nil {
		return retrieval.Result{}, retrieval.ErrNotReady
	}
	if safety.DetectPromptInjection(question) {
		return retrieval.Result{}, ErrInjection
	}
	return s.rag.Query(ctx, safety.MaskPII(question))
}

// RagRefresh rebuilds the retrieval indexes.
func (s *Service) RagRefresh(ctx context.Context) error {
	if s.rag == nil {
		return fmt.Errorf("retrieval service is not configured")
	}
	return s.rag.Refresh(ctx)
}

func (s *Service) submissionEvents(ctx context.Context, submissionID string) ([]ledger.Event, error) {
	events, err := s.store.Read(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("read submission events: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrSubmissionNotFound
	}
	return events, nil
}

func (s *Service) uploadedImage(ctx context.Context, submissionID string) ([]byte, error) {
	events, err := s.submissionEvents(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == ledger.KindUpload && len(events[i].Image) > 0 {
			return events[i].Image, nil
		}
	}
	return nil, ErrSubmissionNotFound
}

// blockIfBanned applies the output filter; a banned answer is logged with a
// blocked flag and never stored as a clean event.
func (s *Service) blockIfBanned(ctx context.Context, kind ledger.Kind, submissionID, userID string, raw []byte, text string) (bool, error) {
	if !safety.FilterOutput(text) {
		return false, nil
	}

	payload, err := json.Marshal(map[string]any{"blocked": true, "reason": "banned content in model output"})
	if err != nil {
		return true, ErrBlockedContent
	}
	if _, err := s.store.Append(ctx, ledger.Event{
		Kind:         kind,
		SubmissionID: submissionID,
		UserID:       userID,
		Payload:      payload,
		RawOutput:    raw,
	}); err != nil {
		s.logger.Printf("record blocked %s event: %v", kind, err)
	}

	return true, ErrBlockedContent
}

func buildChatPrompt(message string, hits []guideline.SearchHit) string {
	var sb strings.Builder
	sb.WriteString(chatPrompt)
	sb.WriteString("\n\n")
	if len(hits) > 0 {
		sb.WriteString("Guideline passages:\n")
		for _, hit := range hits {
			sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", hit.CitationID, hit.SectionPath, hit.Excerpt))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Question:\n")
	sb.WriteString(message)
	return sb.String()
}

func knownCitations(hits []guideline.SearchHit) []string {
	citations := make([]string, 0, len(hits))
	for _, hit := range hits {
		citations = append(citations, hit.CitationID)
	}
	return citations
}

func generationRequest(prompt, model string, image []byte) provider.Request {
	req := provider.Request{Prompt: prompt, Model: model}
	if len(image) > 0 {
		req.Images = [][]byte{image}
	}
	return req
}
