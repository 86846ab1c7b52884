package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/database"
)

const preloadTimeout = 3 * time.Second

// NewStore 는 설정한 백엔드의 카운터 저장소를 생성한다.
func NewStore(cfg *config.Config, conn *database.Connector, logger *slog.Logger) (Store, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	switch cfg.Ledger.Backend {
	case config.LedgerBackendValkey:
		store, err := NewValkeyStore(cfg.Ledger)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), preloadTimeout)
		defer cancel()
		if err := store.Preload(ctx); err != nil && logger != nil {
			// EVALSHA 실패 시 EVAL 로 재시도되므로 경고만 남긴다.
			logger.Warn("ledger_lua_preload_failed", "err", err)
		}
		if logger != nil {
			logger.Info("ledger_backend", "backend", store.Backend(), "prefix", store.prefix)
		}
		return store, nil
	case config.LedgerBackendPostgres:
		if conn == nil {
			return nil, errors.New("ledger postgres backend requires database connector")
		}
		if logger != nil {
			logger.Info("ledger_backend", "backend", config.LedgerBackendPostgres)
		}
		return NewGormStore(conn, time.Duration(cfg.Ledger.OpTimeoutSeconds)*time.Second), nil
	case config.LedgerBackendMemory:
		if logger != nil {
			logger.Warn("ledger_backend", "backend", config.LedgerBackendMemory, "durable", false)
		}
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend: %q", cfg.Ledger.Backend)
	}
}
