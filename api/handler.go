package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/fabfab/design-eval/eval"
	"github.com/fabfab/design-eval/rubric"
)

type CheckHandler struct{}

func NewCheckHandler() *CheckHandler {
	return &CheckHandler{}
}

func (h *CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

// EvalHandler exposes the orchestration service over HTTP. Handlers parse
// and validate the request, call the service, and return domain errors
// unwrapped for the central error handler.
type EvalHandler struct {
	service *eval.Service
	rubrics *rubric.Store
}

func NewEvalHandler(service *eval.Service, rubrics *rubric.Store) *EvalHandler {
	return &EvalHandler{service: service, rubrics: rubrics}
}

func (h *EvalHandler) HandleUpload(c *fiber.Ctx) error {
	var params UploadParams
	if err := c.BodyParser(&params); err != nil {
		return ErrBadRequest("invalid JSON request")
	}
	if fields := validateStruct(&params); len(fields) > 0 {
		return NewValidationError(fields)
	}

	image, err := decodeImage(params.ImageBase64)
	if err != nil {
		return err
	}

	result, err := h.service.Upload(c.Context(), eval.UploadInput{
		Title:    params.Title,
		AuthorID: params.AuthorID,
		AssetURL: params.AssetURL,
		Meta:     params.Meta,
		Image:    image,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *EvalHandler) HandleAnalyze(c *fiber.Ctx) error {
	var params AnalyzeParams
	if err := c.BodyParser(&params); err != nil {
		return ErrBadRequest("invalid JSON request")
	}
	if fields := validateStruct(&params); len(fields) > 0 {
		return NewValidationError(fields)
	}

	image, err := decodeImage(params.ImageBase64)
	if err != nil {
		return err
	}

	result, err := h.service.Analyze(c.Context(), params.SubmissionID, image)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

func (h *EvalHandler) HandleChat(c *fiber.Ctx) error {
	var params ChatParams
	if err := c.BodyParser(&params); err != nil {
		return ErrBadRequest("invalid JSON request")
	}
	if fields := validateStruct(&params); len(fields) > 0 {
		return NewValidationError(fields)
	}

	result, err := h.service.Chat(c.Context(), params.SubmissionID, params.UserID, params.Message)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

func (h *EvalHandler) HandleSearchGuideline(c *fiber.Ctx) error {
	var params SearchGuidelineParams
	if err := c.BodyParser(&params); err != nil {
		return ErrBadRequest("invalid JSON request")
	}
	if fields := validateStruct(&params); len(fields) > 0 {
		return NewValidationError(fields)
	}

	hits := h.service.SearchGuideline(params.Query, params.TopK)
	return c.JSON(fiber.Map{"hits": hits})
}

func (h *EvalHandler) HandleRubric(c *fiber.Ctx) error {
	award := c.Params("award")
	version := c.Params("version")

	body, err := h.rubrics.Lookup(award, version)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

func (h *EvalHandler) HandleEvaluate(c *fiber.Ctx) error {
	var params EvaluateParams
	if err := c.BodyParser(&params); err != nil {
		return ErrBadRequest("invalid JSON request")
	}
	if fields := validateStruct(&params); len(fields) > 0 {
		return NewValidationError(fields)
	}

	record, err := json.Marshal(params)
	if err != nil {
		return ErrBadRequest("invalid evaluation record")
	}

	if err := h.service.Evaluate(c.Context(), params.SubmissionID, params.JudgeID, record); err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"result": "recorded"})
}

func (h *EvalHandler) HandleReport(c *fiber.Ctx) error {
	submissionID := c.Params("submission_id")
	if submissionID == "" {
		return ErrBadRequest("submission_id is required")
	}

	events, err := h.service.Report(c.Context(), submissionID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"submission_id": submissionID, "events": events})
}

func (h *EvalHandler) HandleExportDataset(c *fiber.Ctx) error {
	rows, err := h.service.ExportDataset(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"rows": rows, "count": len(rows)})
}

func (h *EvalHandler) HandleRagRefresh(c *fiber.Ctx) error {
	if err := h.service.RagRefresh(c.Context()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "refreshed"})
}

func (h *EvalHandler) HandleRagQuery(c *fiber.Ctx) error {
	var params RagQueryParams
	if err := c.BodyParser(&params); err != nil {
		return ErrBadRequest("invalid JSON request")
	}
	if fields := validateStruct(&params); len(fields) > 0 {
		return NewValidationError(fields)
	}

	result, err := h.service.RagQuery(c.Context(), params.Question)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

var allowedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
}

func decodeImage(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrBadRequest("image_base64 is not valid base64")
	}
	if _, ok := allowedImageTypes[http.DetectContentType(image)]; !ok {
		return nil, ErrBadRequest("unsupported image type, expected png, jpeg or webp")
	}
	return image, nil
}
