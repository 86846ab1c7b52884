package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/entitlement"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/generation"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/httperror"
)

type sampleRequest struct {
	Name string `json:"name" binding:"required"`
}

func TestBindJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("invalid"))
	c.Request.Header.Set("Content-Type", "application/json")

	var req sampleRequest
	if bindJSON(c, &req) {
		t.Fatalf("expected bindJSON to fail")
	}
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestBindJSONAllowEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.Header.Set("Content-Type", "application/json")

	var req sampleRequest
	if !bindJSONAllowEmpty(c, &req) {
		t.Fatalf("expected bindJSONAllowEmpty to succeed")
	}
}

func TestMapGenerationError(t *testing.T) {
	quota := &generation.QuotaExceededError{Result: entitlement.Result{Feature: "studio_generate", Tier: "free", Limit: 3, CurrentUsage: 3}}

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"quota exceeded", fmt.Errorf("studio: %w", quota), http.StatusPaymentRequired, "QUOTA_EXCEEDED"},
		{"quota read", fmt.Errorf("gate: %w", entitlement.ErrQuotaRead), http.StatusServiceUnavailable, "QUOTA_UNAVAILABLE"},
		{"unauthenticated", generation.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"invalid request", fmt.Errorf("%w: prompt is empty", generation.ErrInvalidRequest), http.StatusBadRequest, "INVALID_INPUT"},
		{"malformed", fmt.Errorf("%w: bad shape", generation.ErrMalformedOutput), http.StatusBadGateway, "LLM_PARSING_ERROR"},
		{"model failure", fmt.Errorf("%w: %w", generation.ErrModelFailure, errors.New("upstream 500")), http.StatusBadGateway, "LLM_ERROR"},
		{"model timeout", fmt.Errorf("%w: %w", generation.ErrModelFailure, context.DeadlineExceeded), http.StatusGatewayTimeout, "LLM_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := httperror.Response(mapGenerationError(tt.err), "")
			if status != tt.status || payload.ErrorCode != tt.code {
				t.Fatalf("expected %d/%s, got %d/%s", tt.status, tt.code, status, payload.ErrorCode)
			}
		})
	}
}
