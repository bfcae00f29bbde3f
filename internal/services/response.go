package services

import (
	"errors"
	"strings"
)

// Response is the error payload surfaced to external callers (editor
// adapters, CLI --json output).
type Response struct {
	Code              string   `json:"code"`
	Message           string   `json:"message"`
	Details           string   `json:"details,omitempty"`
	Suggestions       []string `json:"suggestions"`
	Retryable         bool     `json:"retryable"`
	FallbackAvailable bool     `json:"fallback_available"`
}

// Respond converts a pipeline error into the external response shape.
// fallbackAvailable reflects whether a degraded path (hybrid local fallback)
// exists for the caller to try.
func Respond(err error, fallbackAvailable bool) Response {
	if err == nil {
		return Response{}
	}
	resp := Response{
		Code:              Code(err),
		Message:           topMessage(err),
		Details:           err.Error(),
		Suggestions:       suggestions(err),
		Retryable:         Retryable(err),
		FallbackAvailable: fallbackAvailable,
	}
	return resp
}

func topMessage(err error) string {
	msg := err.Error()
	// Strip the sentinel prefix so callers see the contextual detail first.
	for _, marker := range []error{ErrAnalysis, ErrAuth, ErrTransient, ErrUnavailable, ErrSynthesis, ErrCacheIO, ErrValidation, ErrConfiguration} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func suggestions(err error) []string {
	switch {
	case errors.Is(err, ErrAuth):
		return []string{
			"verify the configured API key",
			"run 'codecast config show' to inspect the active backend settings",
		}
	case errors.Is(err, ErrUnavailable):
		return []string{
			"check network connectivity to the configured cloud backends",
			"switch [ai] mode to \"hybrid\" or \"local\" to allow offline generation",
		}
	case errors.Is(err, ErrTransient):
		return []string{"retry the request; the backend reported a temporary failure"}
	case errors.Is(err, ErrAnalysis):
		return []string{
			"confirm the source language matches the selected code",
			"check the selection for syntax errors",
		}
	case errors.Is(err, ErrConfiguration):
		return []string{"run 'codecast config init' and edit the generated file"}
	case errors.Is(err, ErrCacheIO):
		return []string{"inspect the cache directory permissions; generation continues without caching"}
	default:
		return []string{"check the logs for details"}
	}
}
