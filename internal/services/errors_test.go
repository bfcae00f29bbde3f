package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestWrapTagsAndFormats(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(ErrTransient, "router", "script", "backend call failed", cause)

	if !errors.Is(err, ErrTransient) {
		t.Error("wrapped error lost its marker")
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error lost its cause")
	}
	want := "transient service error: router: script: backend call failed: dial tcp: connection refused"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestWrapWithoutCauseOrMarker(t *testing.T) {
	err := Wrap(nil, "cache", "put", "nil explanation", nil)
	if !errors.Is(err, ErrTransient) {
		t.Error("nil marker should default to transient")
	}
	if strings.Contains(err.Error(), "%!") {
		t.Errorf("bad formatting: %q", err.Error())
	}

	if got := Wrap(ErrValidation, "", "", "", nil).Error(); got != "validation error: service failure" {
		t.Errorf("empty detail = %q", got)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{Wrap(ErrTransient, "a", "b", "c", nil), true},
		{Wrap(ErrUnavailable, "a", "b", "c", nil), true},
		{Wrap(ErrAuth, "a", "b", "c", nil), false},
		{Wrap(ErrValidation, "a", "b", "c", nil), false},
		{Wrap(ErrAnalysis, "a", "b", "c", nil), false},
		{fmt.Errorf("%w: gave up waiting", context.DeadlineExceeded), false},
		{Wrap(ErrTransient, "a", "b", "c", context.Canceled), false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Wrap(ErrAnalysis, "", "", "", nil), "ANALYSIS_FAILED"},
		{Wrap(ErrAuth, "", "", "", nil), "AUTH_ERROR"},
		{Wrap(ErrUnavailable, "", "", "", nil), "SERVICE_UNAVAILABLE"},
		{Wrap(ErrTransient, "", "", "", nil), "TRANSIENT_SERVICE_ERROR"},
		{Wrap(ErrSynthesis, "", "", "", nil), "SYNTHESIS_ERROR"},
		{Wrap(ErrCacheIO, "", "", "", nil), "CACHE_IO_ERROR"},
		{Wrap(ErrValidation, "", "", "", nil), "VALIDATION_ERROR"},
		{Wrap(ErrConfiguration, "", "", "", nil), "CONFIGURATION_ERROR"},
		{context.Canceled, "CANCELLED"},
		{errors.New("mystery"), "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRespondShapesTheExternalError(t *testing.T) {
	err := Wrap(ErrAuth, "openrouter", "script", "request rejected", errors.New("401 unauthorized"))
	resp := Respond(err, true)

	if resp.Code != "AUTH_ERROR" {
		t.Errorf("code = %q", resp.Code)
	}
	if resp.Retryable {
		t.Error("auth failures are not retryable")
	}
	if !resp.FallbackAvailable {
		t.Error("fallback flag should pass through")
	}
	if strings.HasPrefix(resp.Message, ErrAuth.Error()) {
		t.Errorf("message should drop the sentinel prefix: %q", resp.Message)
	}
	if resp.Details != err.Error() {
		t.Errorf("details = %q", resp.Details)
	}
	if len(resp.Suggestions) == 0 {
		t.Error("auth errors should carry suggestions")
	}
}

func TestRespondNil(t *testing.T) {
	if resp := Respond(nil, false); resp.Code != "" || resp.Message != "" {
		t.Errorf("Respond(nil) = %+v", resp)
	}
}
