package handler

import (
	"log/slog"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/health"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/metrics"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/middleware"
)

const defaultServiceName = "generation-pipeline"

// NewRouter 는 HTTP 라우터를 구성한다.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	checker *health.Checker,
	pipelineMetrics *metrics.Pipeline,
	generationHandler *GenerationHandler,
	pipelineHandler *PipelineHandler,
	usageHandler *UsageHandler,
) *gin.Engine {
	setGinMode(cfg.Logging.Level)

	router := gin.New()

	// OTel 미들웨어는 가장 앞에 둔다.
	if cfg.Telemetry.Enabled {
		serviceName := cfg.Telemetry.ServiceName
		if serviceName == "" {
			serviceName = defaultServiceName
		}
		router.Use(otelgin.Middleware(serviceName))
	}

	router.Use(
		middleware.RequestID(),
		middleware.CallerID(),
		middleware.RequestLogger(logger),
		gin.Recovery(),
	)
	if cfg.HTTP.GzipEnabled {
		router.Use(newGzipMiddleware())
	}
	router.Use(
		middleware.APIKeyAuth(cfg),
		middleware.RateLimit(cfg),
	)

	RegisterHealthRoutes(router, cfg, checker, pipelineMetrics)
	generationHandler.RegisterRoutes(router)
	pipelineHandler.RegisterRoutes(router)
	usageHandler.RegisterRoutes(router)

	return router
}

func newGzipMiddleware() gin.HandlerFunc {
	return gzip.Gzip(gzip.DefaultCompression, gzip.WithCustomShouldCompressFn(func(c *gin.Context) bool {
		// 헬스체크/메트릭 폴링은 압축하지 않는다.
		path := c.Request.URL.Path
		return !strings.HasPrefix(path, "/health") && path != "/metrics"
	}))
}

func setGinMode(level string) {
	if strings.EqualFold(strings.TrimSpace(level), "debug") {
		gin.SetMode(gin.DebugMode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}
