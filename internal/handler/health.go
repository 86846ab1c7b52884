package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/health"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/metrics"
)

// ModelConfigResponse: 모델 설정 응답입니다.
type ModelConfigResponse struct {
	ModelDefault          string  `json:"model_default"`
	ModelGenerate         string  `json:"model_generate"`
	ModelDetect           string  `json:"model_detect"`
	ModelCorrect          string  `json:"model_correct"`
	Temperature           float64 `json:"temperature"`
	CorrectiveTemperature float64 `json:"corrective_temperature"`
	TimeoutSeconds        int     `json:"timeout_seconds"`
	MaxRetries            int     `json:"max_retries"`
	HTTP2Enabled          bool    `json:"http2_enabled"`
	TransportMode         string  `json:"transport_mode"`
}

// RegisterHealthRoutes: 상태 확인/메트릭 라우트를 등록합니다.
func RegisterHealthRoutes(router *gin.Engine, cfg *config.Config, checker *health.Checker, pipelineMetrics *metrics.Pipeline) {
	router.GET("/health", func(c *gin.Context) {
		// Liveness: 외부 의존성(Valkey/DB 등) 상태로 인해 다운 판정되지 않도록 shallow로 유지합니다.
		payload := checker.Collect(c.Request.Context(), false)
		c.JSON(http.StatusOK, payload)
	})

	router.GET("/health/ready", func(c *gin.Context) {
		payload := checker.Collect(c.Request.Context(), true)
		status := http.StatusOK
		if payload.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, payload)
	})

	if pipelineMetrics != nil {
		router.GET("/metrics", gin.WrapH(pipelineMetrics.Handler()))
	}

	router.GET("/health/models", func(c *gin.Context) {
		transportMode := "h1"
		if cfg.HTTP.HTTP2Enabled {
			transportMode = "h2c"
		}

		c.JSON(http.StatusOK, ModelConfigResponse{
			ModelDefault:          cfg.Gemini.DefaultModel,
			ModelGenerate:         cfg.Gemini.ModelForTask(config.TaskGenerate),
			ModelDetect:           cfg.Gemini.ModelForTask(config.TaskDetect),
			ModelCorrect:          cfg.Gemini.ModelForTask(config.TaskCorrect),
			Temperature:           cfg.Gemini.TemperatureForTask(config.TaskGenerate),
			CorrectiveTemperature: cfg.Gemini.TemperatureForTask(config.TaskCorrect),
			TimeoutSeconds:        cfg.Gemini.TimeoutSeconds,
			MaxRetries:            cfg.Gemini.MaxRetries,
			HTTP2Enabled:          cfg.HTTP.HTTP2Enabled,
			TransportMode:         transportMode,
		})
	})
}
