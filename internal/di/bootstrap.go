//go:build !wireinject

package di

import (
	"fmt"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/database"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/gemini"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/handler"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/ledger"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/metrics"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/server"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/subscription"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/usage"
)

// InitializeApp 은 애플리케이션 의존성을 초기화하고 App 인스턴스를 반환한다.
// wire.go 의 injector 와 같은 순서로 구성한다.
func InitializeApp() (*App, error) {
	cfg, err := config.ProvideConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	telemetryProvider, err := ProvideTelemetry(cfg)
	if err != nil {
		return nil, err
	}

	metricsStore := metrics.NewStore()
	pipelineMetrics := metrics.NewPipeline(metricsStore)

	conn := database.NewConnector(cfg, logger)
	usageRepository := usage.NewRepository(conn, logger)
	usageRecorder := usage.NewRecorder(cfg, usageRepository, logger)

	geminiClient, err := gemini.NewClient(cfg, metricsStore, usageRecorder)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	ledgerStore, err := ledger.NewStore(cfg, conn, logger)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	subscriptions := subscription.NewRepository(conn, cfg.Entitlement, logger)

	limits, err := ProvideTierLimits(cfg)
	if err != nil {
		return nil, err
	}
	gate, err := ProvideGate(cfg, limits, subscriptions, ledgerStore, pipelineMetrics, logger)
	if err != nil {
		return nil, err
	}

	resolver, err := ProvideResolver(cfg, geminiClient, pipelineMetrics, logger)
	if err != nil {
		return nil, err
	}
	refusalTable, err := ProvideRefusalTable(cfg, logger)
	if err != nil {
		return nil, err
	}
	verifier, err := ProvideVerifier(cfg, geminiClient, refusalTable, pipelineMetrics, logger)
	if err != nil {
		return nil, err
	}
	generationService, err := ProvideGenerationService(gate, resolver, verifier, geminiClient, logger)
	if err != nil {
		return nil, err
	}

	checker := ProvideHealthChecker(cfg, ledgerStore, subscriptions, metricsStore)
	generationHandler := handler.NewGenerationHandler(generationService, logger)
	pipelineHandler := handler.NewPipelineHandler(gate, resolver, verifier, logger)
	usageHandler := handler.NewUsageHandler(cfg, usageRepository, logger)

	router := handler.NewRouter(cfg, logger, checker, pipelineMetrics, generationHandler, pipelineHandler, usageHandler)
	httpServer := server.NewHTTPServer(cfg, router)

	return NewApp(httpServer, logger, cfg, telemetryProvider, ledgerStore, conn, usageRepository, usageRecorder), nil
}
