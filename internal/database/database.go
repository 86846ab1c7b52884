package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
)

// Connector 는 gorm 연결을 지연 생성하고 공유한다.
// usage, subscription, ledger(postgres) 저장소가 같은 풀을 사용한다.
type Connector struct {
	cfg    *config.Config
	logger *slog.Logger
	mu     sync.Mutex
	db     *gorm.DB
	sqlDB  *sql.DB
	owned  bool
}

// NewConnector 는 설정 기반 Connector 를 생성한다. 실제 연결은 첫 DB 호출 시 맺는다.
func NewConnector(cfg *config.Config, logger *slog.Logger) *Connector {
	return &Connector{cfg: cfg, logger: logger, owned: true}
}

// NewConnectorWithDB 는 이미 열린 gorm 연결을 감싼다. Close 는 연결을 닫지 않는다.
func NewConnectorWithDB(db *gorm.DB) *Connector {
	return &Connector{db: db}
}

// DB 는 gorm 연결을 반환한다.
func (c *Connector) DB(ctx context.Context) (*gorm.DB, error) {
	if c == nil {
		return nil, errors.New("database connector is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db.WithContext(ctx), nil
	}
	if c.cfg == nil {
		return nil, errors.New("database config is nil")
	}

	hostUsed := c.cfg.Database.Host
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	db, err := gorm.Open(postgres.Open(c.cfg.Database.DSN()), gormCfg)
	if err != nil && shouldFallbackToLocalhost(err, c.cfg.Database.Host) {
		fallback := c.cfg.Database
		fallback.Host = "127.0.0.1"
		db, err = gorm.Open(postgres.Open(fallback.DSN()), gormCfg)
		if err == nil {
			hostUsed = fallback.Host
			if c.logger != nil {
				c.logger.Warn(
					"db_host_fallback",
					"configured_host", c.cfg.Database.Host,
					"effective_host", hostUsed,
				)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get db handle: %w", err)
	}

	sqlDB.SetMaxIdleConns(c.cfg.Database.MinPool)
	sqlDB.SetMaxOpenConns(c.cfg.Database.MaxPool)
	if c.cfg.Database.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(c.cfg.Database.ConnMaxLifetimeMinutes) * time.Minute)
	}
	if c.cfg.Database.ConnMaxIdleTimeMinutes > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(c.cfg.Database.ConnMaxIdleTimeMinutes) * time.Minute)
	}

	if c.logger != nil {
		c.logger.Info("db_connected", "host", hostUsed, "name", c.cfg.Database.Name)
	}

	c.db = db
	c.sqlDB = sqlDB
	return db.WithContext(ctx), nil
}

// Ping 은 DB 연결 상태를 확인한다.
func (c *Connector) Ping(ctx context.Context) error {
	db, err := c.DB(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get db handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

// Close 는 직접 연 연결만 닫는다.
func (c *Connector) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.owned || c.sqlDB == nil {
		return
	}
	_ = c.sqlDB.Close()
	c.sqlDB = nil
	c.db = nil
}

func shouldFallbackToLocalhost(err error, host string) bool {
	if err == nil {
		return false
	}
	if host == "" || host == "127.0.0.1" || strings.EqualFold(host, "localhost") {
		return false
	}
	if !strings.EqualFold(host, "postgres") {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return strings.EqualFold(dnsErr.Name, host)
	}

	lower := strings.ToLower(err.Error())
	hostLower := strings.ToLower(host)
	if strings.Contains(lower, "lookup "+hostLower) && strings.Contains(lower, "no such host") {
		return true
	}
	return strings.Contains(lower, "no such host") && strings.Contains(lower, hostLower)
}
