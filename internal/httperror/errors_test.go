package httperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/entitlement"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/gemini"
)

func TestFromErrorMapping(t *testing.T) {
	apiErr := FromError(fmt.Errorf("%w: %w", entitlement.ErrQuotaRead, errors.New("dial tcp")))
	if apiErr == nil || apiErr.Code != ErrorCodeQuotaUnavailable || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected quota unavailable with 503, got %+v", apiErr)
	}

	apiErr = FromError(fmt.Errorf("%w: nope", entitlement.ErrUnknownFeature))
	if apiErr == nil || apiErr.Code != ErrorCodeInvalidInput || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected invalid input for unknown feature, got %+v", apiErr)
	}

	apiErr = FromError(entitlement.ErrInvalidCaller)
	if apiErr == nil || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for empty caller, got %+v", apiErr)
	}

	apiErr = FromError(fmt.Errorf("decode: %w", gemini.ErrMalformedResponse))
	if apiErr == nil || apiErr.Code != ErrorCodeLLMParsing || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("expected llm parsing error, got %+v", apiErr)
	}

	apiErr = FromError(gemini.ErrMissingAPIKey)
	if apiErr == nil || apiErr.Code != ErrorCodeLLM {
		t.Fatalf("expected llm error")
	}

	apiErr = FromError(context.DeadlineExceeded)
	if apiErr == nil || apiErr.Code != ErrorCodeLLMTimeout {
		t.Fatalf("expected timeout error")
	}
}

func TestResponseIncludesRequestID(t *testing.T) {
	status, payload := Response(NewMissingField("id"), "req-1")
	if status != 400 {
		t.Fatalf("unexpected status: %d", status)
	}
	if payload.RequestID == nil || *payload.RequestID != "req-1" {
		t.Fatalf("expected request id")
	}
}

func TestNewMissingField(t *testing.T) {
	err := NewMissingField("username")
	if err == nil {
		t.Fatalf("expected non-nil error")
	}
	if err.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 status, got: %d", err.Status)
	}
	if err.Code != ErrorCodeMissingField {
		t.Fatalf("expected missing field error code")
	}
}

func TestNewInvalidInput(t *testing.T) {
	err := NewInvalidInput("must be positive")
	if err == nil {
		t.Fatalf("expected non-nil error")
	}
	if err.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 status, got: %d", err.Status)
	}
}

func TestNewValidationError(t *testing.T) {
	originalErr := errors.New("field validation failed")
	err := NewValidationError(originalErr)
	if err == nil {
		t.Fatalf("expected non-nil error")
	}
	// NewValidationError 는 422 Unprocessable Entity 반환
	if err.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 status, got: %d", err.Status)
	}
}

func TestNewInternalError(t *testing.T) {
	err := NewInternalError("something went wrong")
	if err == nil {
		t.Fatalf("expected non-nil error")
	}
	if err.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got: %d", err.Status)
	}
	if err.Code != ErrorCodeInternal {
		t.Fatalf("expected internal error code")
	}
}

func TestAPIErrorError(t *testing.T) {
	err := NewMissingField("test")
	msg := err.Error()
	if msg == "" {
		t.Fatalf("expected non-empty error message")
	}
}

func TestFromErrorNil(t *testing.T) {
	apiErr := FromError(nil)
	if apiErr != nil {
		t.Fatalf("expected nil for nil input")
	}
}

func TestFromErrorGeneric(t *testing.T) {
	genericErr := errors.New("some generic error")
	apiErr := FromError(genericErr)
	if apiErr == nil {
		t.Fatalf("expected non-nil error")
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 for generic error")
	}
}

func TestResponseWithEmptyRequestID(t *testing.T) {
	status, payload := Response(NewInternalError("test"), "")
	if status != 500 {
		t.Fatalf("unexpected status: %d", status)
	}
	if payload.RequestID != nil {
		t.Fatalf("expected nil request id for empty string")
	}
}

func TestNewQuotaExceeded(t *testing.T) {
	err := NewQuotaExceeded(entitlement.Result{Feature: "studio_generate", Tier: "free", Limit: 3, CurrentUsage: 3})
	if err.Status != http.StatusPaymentRequired || err.Code != ErrorCodeQuotaExceeded {
		t.Fatalf("expected 402 quota exceeded, got %+v", err)
	}
	if err.Details["current_usage"] != int64(3) || err.Details["remaining"] != int64(0) {
		t.Fatalf("unexpected details: %+v", err.Details)
	}
}
