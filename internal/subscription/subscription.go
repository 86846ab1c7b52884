package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/cache"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/database"
)

// 요금제 등급입니다.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// 구독 상태입니다. 외부 결제 시스템 값을 그대로 저장하므로 목록 밖의 값도 올 수 있습니다.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusCanceled = "canceled"
	StatusNone     = "none"
)

// Record: 호출자 구독 정보입니다.
type Record struct {
	CallerID string
	Tier     string
	Status   string
}

// IsPremium: premium 등급이면서 active/trialing 상태일 때만 true 입니다.
func (r Record) IsPremium() bool {
	if !strings.EqualFold(r.Tier, TierPremium) {
		return false
	}
	switch strings.ToLower(r.Status) {
	case StatusActive, StatusTrialing:
		return true
	default:
		return false
	}
}

// EffectiveTier: 한도 계산에 쓰는 등급입니다.
func (r Record) EffectiveTier() string {
	if r.IsPremium() {
		return TierPremium
	}
	return TierFree
}

// Lookup: 호출자 구독 조회 인터페이스입니다.
type Lookup interface {
	Get(ctx context.Context, callerID string) (Record, error)
}

// Subscription: subscriptions 테이블 모델입니다.
type Subscription struct {
	CallerID  string    `gorm:"column:caller_id;primaryKey;size:128"`
	Tier      string    `gorm:"column:tier;size:32;not null"`
	Status    string    `gorm:"column:status;size:32;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName: GORM 테이블명입니다.
func (Subscription) TableName() string {
	return "subscriptions"
}

// Repository: 구독 정보를 읽는 gorm 저장소입니다.
// 조회 결과는 짧은 TTL 로 캐시하고 같은 호출자의 동시 조회는 하나로 합칩니다.
type Repository struct {
	conn   *database.Connector
	cache  *cache.TTLCache[string, Record]
	group  singleflight.Group
	logger *slog.Logger

	mu         sync.Mutex
	schemaDone bool
}

// NewRepository: 구독 저장소를 생성합니다. TTL 이 0 이면 캐시를 쓰지 않습니다.
func NewRepository(conn *database.Connector, cfg config.EntitlementConfig, logger *slog.Logger) *Repository {
	repo := &Repository{conn: conn, logger: logger}
	if cfg.SubscriptionCacheTTLSeconds > 0 {
		repo.cache = cache.NewTTLCache[string, Record](
			cfg.SubscriptionCacheSize,
			time.Duration(cfg.SubscriptionCacheTTLSeconds)*time.Second,
		)
	}
	return repo
}

// Get: 호출자 구독을 조회합니다. 행이 없으면 free/none 입니다.
func (r *Repository) Get(ctx context.Context, callerID string) (Record, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return Record{}, errors.New("caller id is empty")
	}
	if r.cache != nil {
		if record, ok := r.cache.Get(callerID); ok {
			return record, nil
		}
	}

	value, err, _ := r.group.Do(callerID, func() (any, error) {
		return r.load(ctx, callerID)
	})
	if err != nil {
		return Record{}, err
	}
	record := value.(Record)
	if r.cache != nil {
		r.cache.Set(callerID, record)
	}
	return record, nil
}

func (r *Repository) load(ctx context.Context, callerID string) (Record, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return Record{}, err
	}

	var row Subscription
	err = db.Where("caller_id = ?", callerID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{CallerID: callerID, Tier: TierFree, Status: StatusNone}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("subscription lookup: %w", err)
	}
	return Record{CallerID: row.CallerID, Tier: strings.ToLower(row.Tier), Status: strings.ToLower(row.Status)}, nil
}

// Upsert: 구독 정보를 저장하고 캐시를 비웁니다. 결제 동기화 작업과 테스트에서 사용합니다.
func (r *Repository) Upsert(ctx context.Context, record Record) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	row := Subscription{
		CallerID:  record.CallerID,
		Tier:      strings.ToLower(record.Tier),
		Status:    strings.ToLower(record.Status),
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "caller_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tier", "status", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("subscription upsert: %w", err)
	}
	if r.cache != nil {
		r.cache.Delete(record.CallerID)
	}
	return nil
}

// Ping: DB 연결 상태를 확인합니다.
func (r *Repository) Ping(ctx context.Context) error {
	if r == nil || r.conn == nil {
		return errors.New("subscription database not configured")
	}
	return r.conn.Ping(ctx)
}

func (r *Repository) getDB(ctx context.Context) (*gorm.DB, error) {
	if r == nil || r.conn == nil {
		return nil, errors.New("subscription database not configured")
	}
	db, err := r.conn.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscription db: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.schemaDone {
		if err := db.AutoMigrate(&Subscription{}); err != nil {
			return nil, fmt.Errorf("prepare subscription db: %w", err)
		}
		r.schemaDone = true
	}
	return db, nil
}

// Static: 고정 구독 맵 조회기입니다. 로컬 개발과 테스트에서 사용합니다.
type Static map[string]Record

// Get: 등록되지 않은 호출자는 free/none 입니다.
func (s Static) Get(_ context.Context, callerID string) (Record, error) {
	if record, ok := s[callerID]; ok {
		record.CallerID = callerID
		return record, nil
	}
	return Record{CallerID: callerID, Tier: TierFree, Status: StatusNone}, nil
}

var (
	_ Lookup = (*Repository)(nil)
	_ Lookup = Static(nil)
)
