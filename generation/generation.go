// Package generation turns free-text model output into validated structured
// values. Only schema failures are retried; transport failures from the
// provider pass through untouched so a broken backend is never mistaken for
// a transient parse issue.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fabfab/design-eval/config"
	"github.com/fabfab/design-eval/provider"
)

const (
	defaultRetries = 3
	defaultDelay   = time.Second
)

// ValidationError reports that the model never produced output matching the
// target schema within the retry budget.
type ValidationError struct {
	Attempts int
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("generation validation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Engine drives the parse-validate-retry loop against one provider. The
// retry policy is explicit state so tests can pin attempt counts.
type Engine struct {
	provider provider.Provider
	retries  int
	delay    time.Duration
	logger   *log.Logger
}

func NewEngine(p provider.Provider, cfg config.GenerationConfig, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}

	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	delay := cfg.Delay
	if delay < 0 {
		delay = defaultDelay
	}

	return &Engine{
		provider: p,
		retries:  retries,
		delay:    delay,
		logger:   logger,
	}
}

// Generate appends the schema's format instructions to the prompt, calls the
// provider, and parses the response text into T. The same prompt is resent
// unchanged on every attempt. On success it returns the typed value together
// with the full raw provider response for audit logging.
func Generate[T any](ctx context.Context, e *Engine, req provider.Request, schema Schema[T]) (T, provider.Response, error) {
	var zero T

	if e.provider == nil {
		return zero, provider.Response{}, fmt.Errorf("provider is not configured")
	}

	req.Prompt = strings.TrimRight(req.Prompt, "\n") + "\n" + schema.Instructions()

	var lastErr error
	for attempt := 1; attempt <= e.retries; attempt++ {
		resp, err := e.provider.Generate(ctx, req)
		if err != nil {
			var transport *provider.TransportError
			if errors.As(err, &transport) {
				return zero, provider.Response{}, err
			}
			return zero, provider.Response{}, fmt.Errorf("provider generate: %w", err)
		}

		parsed, parseErr := schema.Parse(resp.Response)
		if parseErr == nil {
			return parsed, resp, nil
		}

		lastErr = parseErr
		e.logger.Printf("structured generation attempt %d/%d failed: %v", attempt, e.retries, parseErr)

		if attempt < e.retries {
			if err := sleep(ctx, e.delay); err != nil {
				return zero, provider.Response{}, err
			}
		}
	}

	return zero, provider.Response{}, &ValidationError{Attempts: e.retries, Err: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
