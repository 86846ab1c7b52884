package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/database"
)

// UsageCounter 는 (caller, feature, period) 카운터 행이다.
type UsageCounter struct {
	CallerID     string    `gorm:"column:caller_id;primaryKey;size:128"`
	FeatureKey   string    `gorm:"column:feature_key;primaryKey;size:64"`
	PeriodKey    string    `gorm:"column:period_key;primaryKey;size:16"`
	CounterValue int64     `gorm:"column:counter_value;not null"`
	LastUpdated  time.Time `gorm:"column:last_updated;not null"`
}

// TableName 은 GORM 테이블명을 반환한다.
func (UsageCounter) TableName() string {
	return "usage_counters"
}

// 조건부 upsert. 충돌 행이 limit 이상이면 갱신되지 않아 RETURNING 결과가 비어 있다.
const incrementBelowSQL = `INSERT INTO usage_counters (caller_id, feature_key, period_key, counter_value, last_updated)
VALUES (?, ?, ?, 1, ?)
ON CONFLICT (caller_id, feature_key, period_key)
DO UPDATE SET counter_value = usage_counters.counter_value + 1, last_updated = excluded.last_updated
WHERE usage_counters.counter_value < ?
RETURNING counter_value`

// GormStore 는 RDB 카운터 저장소다.
type GormStore struct {
	conn       *database.Connector
	opTimeout  time.Duration
	mu         sync.Mutex
	schemaDone bool
}

// NewGormStore 는 공유 Connector 위에 카운터 저장소를 만든다. opTimeout 이 0 이하이면 기본값을 쓴다.
func NewGormStore(conn *database.Connector, opTimeout time.Duration) *GormStore {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &GormStore{conn: conn, opTimeout: opTimeout}
}

// Get 은 카운터 행을 조회한다. 행이 없으면 0 이다.
func (s *GormStore) Get(ctx context.Context, key Key) (Counter, error) {
	if err := key.Validate(); err != nil {
		return Counter{}, err
	}
	ctx, cancel := withOpTimeout(ctx, s.opTimeout)
	defer cancel()

	db, err := s.getDB(ctx)
	if err != nil {
		return Counter{}, err
	}

	var row UsageCounter
	err = db.Where("caller_id = ? AND feature_key = ? AND period_key = ?", key.CallerID, key.Feature, key.Period).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Counter{}, nil
	}
	if err != nil {
		return Counter{}, fmt.Errorf("ledger get: %w", err)
	}
	return Counter{Value: row.CounterValue, LastUpdated: row.LastUpdated}, nil
}

// IncrementBelow 는 조건부 upsert 한 문장으로 증가시킨다.
func (s *GormStore) IncrementBelow(ctx context.Context, key Key, limit int64) (Increment, error) {
	if err := key.Validate(); err != nil {
		return Increment{}, err
	}
	if limit <= 0 {
		counter, err := s.Get(ctx, key)
		if err != nil {
			return Increment{}, err
		}
		return Increment{Value: counter.Value}, nil
	}

	ctx, cancel := withOpTimeout(ctx, s.opTimeout)
	defer cancel()

	db, err := s.getDB(ctx)
	if err != nil {
		return Increment{}, err
	}

	var returned []int64
	if err := db.Raw(incrementBelowSQL, key.CallerID, key.Feature, key.Period, time.Now().UTC(), limit).
		Scan(&returned).Error; err != nil {
		return Increment{}, fmt.Errorf("ledger increment: %w", err)
	}
	if len(returned) == 1 {
		return Increment{Applied: true, Value: returned[0]}, nil
	}

	counter, err := s.Get(ctx, key)
	if err != nil {
		return Increment{}, err
	}
	return Increment{Value: counter.Value}, nil
}

// Ping 은 DB 연결 상태를 확인한다.
func (s *GormStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Backend 는 백엔드 이름을 반환한다.
func (s *GormStore) Backend() string {
	return config.LedgerBackendPostgres
}

// Close 는 공유 연결을 닫지 않는다.
func (s *GormStore) Close() {}

func (s *GormStore) getDB(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.conn == nil {
		return nil, errors.New("ledger database not configured")
	}
	db, err := s.conn.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger db: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.schemaDone {
		if err := db.AutoMigrate(&UsageCounter{}); err != nil {
			return nil, fmt.Errorf("prepare ledger db: %w", err)
		}
		s.schemaDone = true
	}
	return db, nil
}

var _ Store = (*GormStore)(nil)
