package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/database"
)

// Repository 는 usage DB 접근을 담당한다.
type Repository struct {
	conn       *database.Connector
	logger     *slog.Logger
	mu         sync.Mutex
	schemaDone bool
}

// NewRepository 는 usage 저장소를 생성한다.
func NewRepository(conn *database.Connector, logger *slog.Logger) *Repository {
	return &Repository{
		conn:   conn,
		logger: logger,
	}
}

// RecordUsage 는 지정한 날짜(또는 오늘)와 기능의 토큰 사용량을 누적 저장한다.
func (r *Repository) RecordUsage(
	ctx context.Context,
	feature string,
	inputTokens int64,
	outputTokens int64,
	reasoningTokens int64,
	requestCount int64,
	usageDate time.Time,
) error {
	if requestCount <= 0 && inputTokens <= 0 && outputTokens <= 0 {
		return nil
	}

	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}

	targetDate := usageDate
	if targetDate.IsZero() {
		targetDate = todayDate()
	}

	row := TokenUsage{
		UsageDate:       targetDate,
		FeatureKey:      featureOrDefault(feature),
		InputTokens:     inputTokens,
		OutputTokens:    outputTokens,
		ReasoningTokens: reasoningTokens,
		RequestCount:    requestCount,
		Version:         0,
	}

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "usage_date"}, {Name: "feature_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"input_tokens":     gorm.Expr("token_usage.input_tokens + EXCLUDED.input_tokens"),
			"output_tokens":    gorm.Expr("token_usage.output_tokens + EXCLUDED.output_tokens"),
			"reasoning_tokens": gorm.Expr("token_usage.reasoning_tokens + EXCLUDED.reasoning_tokens"),
			"request_count":    gorm.Expr("token_usage.request_count + EXCLUDED.request_count"),
			"version":          gorm.Expr("token_usage.version + 1"),
		}),
	}).Create(&row).Error
}

// GetDailyUsage 는 특정 날짜(또는 오늘)의 전체 기능 합계를 조회한다.
func (r *Repository) GetDailyUsage(ctx context.Context, usageDate time.Time) (*DailyUsage, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	targetDate := usageDate
	if targetDate.IsZero() {
		targetDate = todayDate()
	}

	var rows []aggregate
	if err := db.Model(&TokenUsage{}).
		Select(aggregateColumns+", COUNT(*) as row_count").
		Where("usage_date = ?", targetDate).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].RowCount == 0 {
		return nil, nil
	}

	result := rows[0].toDaily()
	result.UsageDate = targetDate
	return &result, nil
}

// GetRecentUsage 는 최근 N일 일자별 합계를 조회한다.
func (r *Repository) GetRecentUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 7
	}

	var rows []TokenUsage
	if err := db.Where("usage_date >= ?", sinceDate(days)).
		Order("usage_date desc").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	// 일자별로 기능 행을 합산한다.
	usages := make([]DailyUsage, 0, days)
	index := make(map[string]int, days)
	for _, row := range rows {
		key := row.UsageDate.Format(time.DateOnly)
		pos, ok := index[key]
		if !ok {
			pos = len(usages)
			index[key] = pos
			usages = append(usages, DailyUsage{UsageDate: row.UsageDate})
		}
		usages[pos].InputTokens += row.InputTokens
		usages[pos].OutputTokens += row.OutputTokens
		usages[pos].ReasoningTokens += row.ReasoningTokens
		usages[pos].RequestCount += row.RequestCount
	}
	return usages, nil
}

// GetTotalUsage 는 최근 N일 합계를 조회한다.
func (r *Repository) GetTotalUsage(ctx context.Context, days int) (DailyUsage, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return DailyUsage{}, err
	}
	if days <= 0 {
		days = 30
	}

	var result aggregate
	if err := db.Model(&TokenUsage{}).
		Select(aggregateColumns).
		Where("usage_date >= ?", sinceDate(days)).
		Scan(&result).Error; err != nil {
		return DailyUsage{}, err
	}

	total := result.toDaily()
	total.UsageDate = todayDate()
	return total, nil
}

// GetFeatureUsage 는 최근 N일 기능별 합계를 조회한다.
func (r *Repository) GetFeatureUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 30
	}

	var rows []aggregate
	if err := db.Model(&TokenUsage{}).
		Select("feature_key, "+aggregateColumns).
		Where("usage_date >= ?", sinceDate(days)).
		Group("feature_key").
		Order("feature_key").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	usages := make([]DailyUsage, 0, len(rows))
	for _, row := range rows {
		usages = append(usages, row.toDaily())
	}
	return usages, nil
}

// Close 는 공유 연결을 그대로 둔다. 연결 수명은 Connector 가 관리한다.
func (r *Repository) Close() {}

const aggregateColumns = `COALESCE(SUM(input_tokens), 0) as input_tokens,
	COALESCE(SUM(output_tokens), 0) as output_tokens,
	COALESCE(SUM(reasoning_tokens), 0) as reasoning_tokens,
	COALESCE(SUM(request_count), 0) as request_count`

type aggregate struct {
	FeatureKey      string
	InputTokens     int64
	OutputTokens    int64
	ReasoningTokens int64
	RequestCount    int64
	RowCount        int64
}

func (a aggregate) toDaily() DailyUsage {
	return DailyUsage{
		FeatureKey:      a.FeatureKey,
		InputTokens:     a.InputTokens,
		OutputTokens:    a.OutputTokens,
		ReasoningTokens: a.ReasoningTokens,
		RequestCount:    a.RequestCount,
	}
}

func (r *Repository) getDB(ctx context.Context) (*gorm.DB, error) {
	if r == nil || r.conn == nil {
		return nil, errors.New("usage repository not configured")
	}
	db, err := r.conn.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("usage db: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.schemaDone {
		if err := db.AutoMigrate(&TokenUsage{}); err != nil {
			return nil, fmt.Errorf("prepare usage db: %w", err)
		}
		r.schemaDone = true
	}
	return db, nil
}

func todayDate() time.Time {
	now := time.Now().In(time.Local)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func sinceDate(days int) time.Time {
	return todayDate().AddDate(0, 0, -(days - 1))
}
