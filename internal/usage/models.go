package usage

import "time"

// TokenUsage 는 일자/기능별 토큰 사용량 집계를 저장하는 DB 모델이다.
type TokenUsage struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UsageDate       time.Time `gorm:"column:usage_date;type:date;not null;uniqueIndex:idx_token_usage_date_feature"`
	FeatureKey      string    `gorm:"column:feature_key;size:64;not null;uniqueIndex:idx_token_usage_date_feature"`
	InputTokens     int64     `gorm:"column:input_tokens;not null;default:0"`
	OutputTokens    int64     `gorm:"column:output_tokens;not null;default:0"`
	ReasoningTokens int64     `gorm:"column:reasoning_tokens;not null;default:0"`
	RequestCount    int64     `gorm:"column:request_count;not null;default:0"`
	Version         int64     `gorm:"column:version;not null;default:0"`
}

// TableName 은 GORM에서 사용할 테이블명을 반환한다.
func (TokenUsage) TableName() string {
	return "token_usage"
}

// DailyUsage 는 API/집계용 일자별 사용량 뷰 모델이다.
// FeatureKey 가 비어 있으면 모든 기능의 합계다.
type DailyUsage struct {
	UsageDate       time.Time
	FeatureKey      string
	InputTokens     int64
	OutputTokens    int64
	ReasoningTokens int64
	RequestCount    int64
}

// TotalTokens 는 입력+출력 토큰 합계를 반환한다.
func (d DailyUsage) TotalTokens() int64 {
	return d.InputTokens + d.OutputTokens
}

// UnattributedFeature 는 기능 키 없이 호출된 모델 요청의 집계 키다.
const UnattributedFeature = "unattributed"

func featureOrDefault(feature string) string {
	if feature == "" {
		return UnattributedFeature
	}
	return feature
}
