package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/entitlement"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/handler/shared"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/httperror"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/language"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/middleware"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/verify"
)

// GateRequest 는 게이트 판정 요청 본문이다.
type GateRequest struct {
	Feature string `json:"feature" binding:"required,max=64"`
}

// LanguageRequest 는 대상 언어 결정 요청 본문이다.
type LanguageRequest struct {
	LanguagePreference string `json:"language_preference" binding:"max=32"`
	Sample             string `json:"sample" binding:"max=20000"`
}

// VerifyRequest 는 출력 검증 요청 본문이다. Text 와 Record 중 하나만 채운다.
type VerifyRequest struct {
	Text           string         `json:"text"`
	Record         map[string]any `json:"record"`
	TargetLanguage string         `json:"target_language" binding:"required,max=32"`
	JSONSchema     map[string]any `json:"json_schema"`
}

// PipelineHandler 는 게이트/언어 결정/출력 검증을 개별 API 로 노출한다.
type PipelineHandler struct {
	gate     *entitlement.Gate
	resolver *language.Resolver
	verifier *verify.Pipeline
	logger   *slog.Logger
}

// NewPipelineHandler 는 PipelineHandler 를 생성한다.
func NewPipelineHandler(gate *entitlement.Gate, resolver *language.Resolver, verifier *verify.Pipeline, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{
		gate:     gate,
		resolver: resolver,
		verifier: verifier,
		logger:   logger,
	}
}

// RegisterRoutes 는 파이프라인 라우트를 등록한다.
func (h *PipelineHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/pipeline")
	group.POST("/gate", middleware.RequireCaller(), h.handleGate)
	group.POST("/language", h.handleLanguage)
	group.POST("/verify", h.handleVerify)

	router.GET("/api/entitlements/:feature", middleware.RequireCaller(), h.handleStatus)
}

func (h *PipelineHandler) handleGate(c *gin.Context) {
	var req GateRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.gate.CheckAndIncrement(c.Request.Context(), middleware.GetCallerID(c), req.Feature)
	if err != nil {
		h.logError("gate", err)
		writeError(c, err)
		return
	}
	if !result.Allowed {
		writeError(c, httperror.NewQuotaExceeded(result))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PipelineHandler) handleStatus(c *gin.Context) {
	result, err := h.gate.Status(c.Request.Context(), middleware.GetCallerID(c), c.Param("feature"))
	if err != nil {
		h.logError("entitlement_status", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PipelineHandler) handleLanguage(c *gin.Context) {
	var req LanguageRequest
	if !bindJSONAllowEmpty(c, &req) {
		return
	}
	c.JSON(http.StatusOK, h.resolver.Resolve(c.Request.Context(), req.LanguagePreference, req.Sample))
}

func (h *PipelineHandler) handleVerify(c *gin.Context) {
	var req VerifyRequest
	if !bindJSON(c, &req) {
		return
	}

	hasText := strings.TrimSpace(req.Text) != ""
	hasRecord := len(req.Record) > 0
	if hasText == hasRecord {
		writeError(c, httperror.NewInvalidInput("exactly one of text or record is required"))
		return
	}

	target := language.NormalizeCode(req.TargetLanguage)
	if hasRecord {
		c.JSON(http.StatusOK, h.verifier.VerifyRecord(c.Request.Context(), req.Record, target, req.JSONSchema))
		return
	}
	c.JSON(http.StatusOK, h.verifier.Verify(c.Request.Context(), req.Text, target))
}

func (h *PipelineHandler) logError(operation string, err error) {
	shared.LogError(h.logger, "pipeline_"+operation, err)
}
