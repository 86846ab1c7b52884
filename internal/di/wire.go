//go:build wireinject

package di

import (
	"github.com/google/wire"

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

func ProvideEntitlementConfig(cfg *config.Config) config.EntitlementConfig {
	return cfg.Entitlement
}

func InitializeApp() (*App, error) {
	wire.Build(
		config.ProvideConfig,
		ProvideLogger,
		ProvideTelemetry,
		ProvideEntitlementConfig,
		metrics.NewStore,
		metrics.NewPipeline,
		database.NewConnector,
		usage.NewRepository,
		usage.NewRecorder,
		gemini.NewClient,
		ledger.NewStore,
		subscription.NewRepository,
		ProvideTierLimits,
		ProvideGate,
		ProvideResolver,
		ProvideRefusalTable,
		ProvideVerifier,
		ProvideGenerationService,
		ProvideHealthChecker,
		handler.NewGenerationHandler,
		handler.NewPipelineHandler,
		handler.NewUsageHandler,
		handler.NewRouter,
		server.NewHTTPServer,
		NewApp,
	)
	return nil, nil
}
