package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/generation"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/middleware"
)

// GenerateRequest 는 생성 요청 공통 본문이다.
// LanguagePreference 는 호출자가 저장해 둔 선호 언어이며 없으면 비워 둔다.
type GenerateRequest struct {
	Prompt             string            `json:"prompt" binding:"required,max=20000"`
	SystemPrompt       string            `json:"system_prompt" binding:"max=20000"`
	Variables          map[string]string `json:"variables"`
	Sample             string            `json:"sample" binding:"max=20000"`
	LanguagePreference string            `json:"language_preference" binding:"max=32"`
}

// GuidanceRequest 는 하루 안내 요청 본문이다.
type GuidanceRequest struct {
	Prompts            []string          `json:"prompts" binding:"required,min=1,max=4,dive,required"`
	SystemPrompt       string            `json:"system_prompt" binding:"max=20000"`
	Variables          map[string]string `json:"variables"`
	Sample             string            `json:"sample" binding:"max=20000"`
	LanguagePreference string            `json:"language_preference" binding:"max=32"`
}

// ProfileRequest 는 프로필 합성 요청 본문이다. JSONSchema 가 없으면 기본 프로필 형식을 쓴다.
type ProfileRequest struct {
	GenerateRequest
	JSONSchema map[string]any `json:"json_schema"`
}

// PlanRequest 는 다일 계획 요청 본문이다.
type PlanRequest struct {
	GenerateRequest
	Days       int            `json:"days" binding:"required,min=1,max=14"`
	JSONSchema map[string]any `json:"json_schema"`
}

// GenerationHandler 는 생성 엔드포인트 핸들러다.
type GenerationHandler struct {
	service *generation.Service
	logger  *slog.Logger
}

// NewGenerationHandler 는 GenerationHandler 를 생성한다.
func NewGenerationHandler(service *generation.Service, logger *slog.Logger) *GenerationHandler {
	return &GenerationHandler{service: service, logger: logger}
}

// RegisterRoutes 는 생성 라우트를 등록한다. 모든 라우트는 호출자 식별이 필요하다.
func (h *GenerationHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/generate", middleware.RequireCaller())
	group.POST("/studio", h.handleStudio)
	group.POST("/guidance", h.handleGuidance)
	group.POST("/profile", h.handleProfile)
	group.POST("/plan", h.handlePlan)
}

func (h *GenerationHandler) handleStudio(c *gin.Context) {
	var req GenerateRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.GenerateStudio(c.Request.Context(), toServiceRequest(c, req))
	if err != nil {
		h.logError(c, "studio", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *GenerationHandler) handleGuidance(c *gin.Context) {
	var req GuidanceRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.GenerateGuidance(c.Request.Context(), generation.GuidanceRequest{
		Request: generation.Request{
			CallerID:     middleware.GetCallerID(c),
			Preference:   req.LanguagePreference,
			Sample:       req.Sample,
			Variables:    req.Variables,
			SystemPrompt: req.SystemPrompt,
		},
		Prompts: req.Prompts,
	})
	if err != nil {
		h.logError(c, "guidance", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *GenerationHandler) handleProfile(c *gin.Context) {
	var req ProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.SynthesizeProfile(c.Request.Context(), generation.ProfileRequest{
		Request: toServiceRequest(c, req.GenerateRequest),
		Schema:  req.JSONSchema,
	})
	if err != nil {
		h.logError(c, "profile", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *GenerationHandler) handlePlan(c *gin.Context) {
	var req PlanRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.PlanDays(c.Request.Context(), generation.PlanRequest{
		Request: toServiceRequest(c, req.GenerateRequest),
		Days:    req.Days,
		Schema:  req.JSONSchema,
	})
	if err != nil {
		h.logError(c, "plan", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func toServiceRequest(c *gin.Context, req GenerateRequest) generation.Request {
	return generation.Request{
		CallerID:     middleware.GetCallerID(c),
		Preference:   req.LanguagePreference,
		Sample:       req.Sample,
		Prompt:       req.Prompt,
		Variables:    req.Variables,
		SystemPrompt: req.SystemPrompt,
	}
}

func (h *GenerationHandler) logError(c *gin.Context, endpoint string, err error) {
	if h.logger == nil || err == nil {
		return
	}
	h.logger.Warn("generation_request_failed",
		"endpoint", endpoint,
		"caller_id", middleware.GetCallerID(c),
		"err", err,
	)
}
