package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/gemini"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/generation"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/handler/shared"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/httperror"
)

// writeError: 에러 응답을 작성합니다 (shared.WriteError 위임).
func writeError(c *gin.Context, err error) {
	shared.WriteError(c, mapGenerationError(err))
}

// bindJSON: 요청 본문을 JSON으로 파싱합니다 (shared.BindJSON 위임).
func bindJSON(c *gin.Context, out any) bool {
	return shared.BindJSON(c, out)
}

// bindJSONAllowEmpty: 빈 본문도 허용합니다 (shared.BindJSONAllowEmpty 위임).
func bindJSONAllowEmpty(c *gin.Context, out any) bool {
	return shared.BindJSONAllowEmpty(c, out)
}

// mapGenerationError: 생성 오류를 API 오류로 변환합니다.
// 한도 초과/미인증/모델 실패는 서로 다른 코드로 구분되어야 합니다.
func mapGenerationError(err error) error {
	if err == nil {
		return nil
	}

	var quota *generation.QuotaExceededError
	switch {
	case errors.As(err, &quota):
		return httperror.NewQuotaExceeded(quota.Result)
	case errors.Is(err, generation.ErrUnauthenticated):
		return httperror.NewUnauthenticated()
	case errors.Is(err, generation.ErrInvalidRequest):
		return httperror.NewInvalidInput(err.Error())
	case errors.Is(err, generation.ErrMalformedOutput):
		return httperror.NewLLMParsingError("Model returned a malformed structured response")
	case errors.Is(err, generation.ErrModelFailure):
		if errors.Is(err, context.DeadlineExceeded) {
			return httperror.NewLLMTimeoutError("LLM request timed out")
		}
		if errors.Is(err, gemini.ErrMissingAPIKey) || errors.Is(err, gemini.ErrInvalidModel) {
			return err
		}
		return httperror.NewLLMError("Generation failed", http.StatusBadGateway)
	}
	return err
}
