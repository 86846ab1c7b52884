package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/database"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/ledger"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/telemetry"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/usage"
)

const telemetryShutdownTimeout = 5 * time.Second

// App: 애플리케이션 구성 요소를 묶는다.
type App struct {
	Server          *http.Server
	Logger          *slog.Logger
	Config          *config.Config
	Telemetry       *telemetry.Provider
	Ledger          ledger.Store
	Database        *database.Connector
	UsageRepository *usage.Repository
	UsageRecorder   *usage.Recorder
}

// NewApp: App 인스턴스를 생성합니다.
func NewApp(
	server *http.Server,
	logger *slog.Logger,
	cfg *config.Config,
	telemetryProvider *telemetry.Provider,
	ledgerStore ledger.Store,
	conn *database.Connector,
	usageRepository *usage.Repository,
	usageRecorder *usage.Recorder,
) *App {
	return &App{
		Server:          server,
		Logger:          logger,
		Config:          cfg,
		Telemetry:       telemetryProvider,
		Ledger:          ledgerStore,
		Database:        conn,
		UsageRepository: usageRepository,
		UsageRecorder:   usageRecorder,
	}
}

// Close: 앱 리소스를 정리합니다. 사용량 배처를 먼저 비운 뒤 연결을 닫습니다.
func (a *App) Close() {
	if a.UsageRecorder != nil {
		a.UsageRecorder.Close()
	}
	if a.UsageRepository != nil {
		a.UsageRepository.Close()
	}
	if a.Ledger != nil {
		a.Ledger.Close()
	}
	if a.Database != nil {
		a.Database.Close()
	}
	if a.Telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := a.Telemetry.Shutdown(ctx); err != nil && a.Logger != nil {
			a.Logger.Warn("telemetry_shutdown_failed", "err", err)
		}
	}
}
