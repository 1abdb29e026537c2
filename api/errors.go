package api

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/fabfab/design-eval/eval"
	"github.com/fabfab/design-eval/generation"
	"github.com/fabfab/design-eval/provider"
	"github.com/fabfab/design-eval/retrieval"
	"github.com/fabfab/design-eval/rubric"
)

// Error is the JSON error envelope. Reason carries a machine-readable code
// for clients that need to tell blocked output apart from other 422s.
type Error struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"error"`
}

func (e Error) Error() string {
	return e.Message
}

func NewError(code int, msg string) Error {
	return Error{Code: code, Message: msg}
}

func ErrBadRequest(msg string) Error {
	return Error{Code: fiber.StatusBadRequest, Message: msg}
}

func ErrNotFound(resource, id string) Error {
	return Error{Code: fiber.StatusNotFound, Message: fmt.Sprintf("%s %s not found", resource, id)}
}

// ValidationError reports per-field failures from the request validator.
type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(fields map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: fields,
	}
}

// ErrorHandler is fiber's central error handler. Domain errors are mapped
// onto the HTTP taxonomy here so handlers can return them unwrapped.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiErr Error
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.Code).JSON(apiErr)
	}

	var valErr ValidationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}

	mapped := mapDomainError(err)
	if mapped.Code >= fiber.StatusInternalServerError {
		log.Printf("request %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(mapped.Code).JSON(mapped)
}

func mapDomainError(err error) Error {
	switch {
	case errors.Is(err, eval.ErrInjection):
		return Error{Code: fiber.StatusBadRequest, Reason: "prompt_injection", Message: err.Error()}
	case errors.Is(err, eval.ErrBlockedContent):
		return Error{Code: fiber.StatusUnprocessableEntity, Reason: "blocked_content", Message: err.Error()}
	case errors.Is(err, eval.ErrSubmissionNotFound):
		return Error{Code: fiber.StatusNotFound, Message: err.Error()}
	case errors.Is(err, rubric.ErrNotFound):
		return Error{Code: fiber.StatusNotFound, Message: err.Error()}
	case errors.Is(err, retrieval.ErrNotReady):
		return Error{Code: fiber.StatusConflict, Reason: "rag_not_ready", Message: err.Error()}
	}

	var genErr *generation.ValidationError
	if errors.As(err, &genErr) {
		return Error{Code: fiber.StatusBadGateway, Reason: "generation_validation", Message: genErr.Error()}
	}

	var transportErr *provider.TransportError
	if errors.As(err, &transportErr) {
		switch transportErr.Kind {
		case provider.KindUnreachable:
			return Error{Code: fiber.StatusServiceUnavailable, Message: transportErr.Error()}
		case provider.KindTimeout:
			return Error{Code: fiber.StatusGatewayTimeout, Message: transportErr.Error()}
		default:
			return Error{Code: fiber.StatusBadGateway, Message: transportErr.Error()}
		}
	}

	var fetchErr *retrieval.FetchError
	if errors.As(err, &fetchErr) {
		return Error{Code: fiber.StatusBadGateway, Reason: "rag_fetch", Message: fetchErr.Error()}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return Error{Code: fiberErr.Code, Message: fiberErr.Message}
	}

	return Error{Code: fiber.StatusInternalServerError, Message: "internal server error"}
}
