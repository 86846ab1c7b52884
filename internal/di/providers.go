package di

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/entitlement"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/gemini"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/generation"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/health"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/language"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/ledger"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/logging"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/metrics"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/refusal"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/subscription"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/telemetry"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/verify"
)

// ProvideLogger: 로거를 구성해 반환합니다.
// OTel이 활성화된 경우 로그에 trace_id/span_id가 자동으로 추가됩니다.
func ProvideLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.NewLoggerWithOTel(cfg.Logging, cfg.Telemetry.Enabled)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// ProvideTelemetry: TracerProvider 를 초기화합니다. 비활성화면 no-op 입니다.
func ProvideTelemetry(cfg *config.Config) (*telemetry.Provider, error) {
	provider, err := telemetry.NewProvider(context.Background(), cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	return provider, nil
}

// ProvideTierLimits: 한도표를 읽습니다. 파일 경로가 없으면 내장 한도표입니다.
func ProvideTierLimits(cfg *config.Config) (entitlement.TierLimits, error) {
	limits, err := entitlement.LoadTierLimits(cfg.Entitlement.LimitsFile)
	if err != nil {
		return entitlement.TierLimits{}, fmt.Errorf("tier limits: %w", err)
	}
	return limits, nil
}

// ProvideGate: 게이트를 생성하고 판정 카운터를 연결합니다.
func ProvideGate(
	cfg *config.Config,
	limits entitlement.TierLimits,
	subs *subscription.Repository,
	store ledger.Store,
	pipelineMetrics *metrics.Pipeline,
	logger *slog.Logger,
) (*entitlement.Gate, error) {
	loc, err := cfg.Entitlement.Location()
	if err != nil {
		return nil, fmt.Errorf("entitlement timezone: %w", err)
	}
	return entitlement.NewGate(limits, subs, store, logger,
		entitlement.WithLocation(loc),
		entitlement.WithObserver(pipelineMetrics),
	), nil
}

// ProvideResolver: 모델 기반 감지기를 쓰는 언어 결정기를 생성합니다.
func ProvideResolver(cfg *config.Config, client *gemini.Client, pipelineMetrics *metrics.Pipeline, logger *slog.Logger) (*language.Resolver, error) {
	detector, err := language.NewLLMDetector(client)
	if err != nil {
		return nil, fmt.Errorf("language detector: %w", err)
	}
	resolver := language.NewResolver(detector, cfg.Pipeline, logger)
	resolver.SetObserver(pipelineMetrics)
	return resolver, nil
}

// ProvideRefusalTable: 거절 접두어 표를 읽습니다. 디렉터리가 없으면 내장 표입니다.
func ProvideRefusalTable(cfg *config.Config, logger *slog.Logger) (*refusal.Table, error) {
	table, err := refusal.LoadTable(cfg.Pipeline.RefusalPrefixDir, logger)
	if err != nil {
		return nil, fmt.Errorf("refusal table: %w", err)
	}
	return table, nil
}

// ProvideVerifier: 출력 검증 파이프라인을 생성합니다.
func ProvideVerifier(
	cfg *config.Config,
	client *gemini.Client,
	table *refusal.Table,
	pipelineMetrics *metrics.Pipeline,
	logger *slog.Logger,
) (*verify.Pipeline, error) {
	corrector, err := verify.NewLLMCorrector(client)
	if err != nil {
		return nil, fmt.Errorf("output corrector: %w", err)
	}
	return verify.NewPipeline(corrector, logger,
		verify.WithRefusalTable(table),
		verify.WithObserver(pipelineMetrics),
		verify.WithMaxAttempts(cfg.Pipeline.CorrectiveMaxAttempts),
	), nil
}

// ProvideGenerationService: 생성 오케스트레이터를 생성합니다.
func ProvideGenerationService(
	gate *entitlement.Gate,
	resolver *language.Resolver,
	verifier *verify.Pipeline,
	client *gemini.Client,
	logger *slog.Logger,
) (*generation.Service, error) {
	service, err := generation.NewService(gate, resolver, verifier, client, logger)
	if err != nil {
		return nil, fmt.Errorf("generation service: %w", err)
	}
	return service, nil
}

// ProvideHealthChecker: 헬스 체커를 생성합니다.
func ProvideHealthChecker(cfg *config.Config, store ledger.Store, subs *subscription.Repository, stats *metrics.Store) *health.Checker {
	return health.NewChecker(cfg, store, subs, stats)
}
