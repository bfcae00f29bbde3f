package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAnalysis marks unparseable or unsupported input; never retried.
	ErrAnalysis = errors.New("analysis failed")
	// ErrAuth marks credential or permission failures; never retried.
	ErrAuth = errors.New("authentication error")
	// ErrTransient marks timeouts, rate limits, and 5xx-equivalents.
	ErrTransient = errors.New("transient service error")
	// ErrUnavailable marks the absence of any eligible backend.
	ErrUnavailable = errors.New("service unavailable")
	// ErrSynthesis marks a failure assembling or rendering the final artifact.
	ErrSynthesis = errors.New("synthesis error")
	// ErrCacheIO marks cache persistence failures; callers degrade to miss.
	ErrCacheIO = errors.New("cache io error")
	// ErrValidation marks malformed requests; never retried.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks unusable configuration; never retried.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the orchestrator may re-attempt the failed
// operation. Terminal classifications and context cancellation are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrUnavailable)
}

// Code maps an error to the stable code surfaced in error responses.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAnalysis):
		return "ANALYSIS_FAILED"
	case errors.Is(err, ErrAuth):
		return "AUTH_ERROR"
	case errors.Is(err, ErrUnavailable):
		return "SERVICE_UNAVAILABLE"
	case errors.Is(err, ErrTransient):
		return "TRANSIENT_SERVICE_ERROR"
	case errors.Is(err, ErrSynthesis):
		return "SYNTHESIS_ERROR"
	case errors.Is(err, ErrCacheIO):
		return "CACHE_IO_ERROR"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrConfiguration):
		return "CONFIGURATION_ERROR"
	case errors.Is(err, context.Canceled):
		return "CANCELLED"
	default:
		return "INTERNAL_ERROR"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
