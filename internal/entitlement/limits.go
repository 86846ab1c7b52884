package entitlement

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed limits.yml
var defaultLimitsYAML []byte

// 기능 키입니다.
const (
	FeatureStudioGenerate   = "studio_generate"
	FeatureDailyGuidance    = "daily_guidance"
	FeatureProfileSynthesis = "profile_synthesis"
	FeatureMultiDayPlan     = "multi_day_plan"
)

// Period 는 카운터 기간 단위다.
type Period string

// 기간 단위 값이다.
const (
	PeriodDaily    Period = "daily"
	PeriodLifetime Period = "lifetime"
)

// LifetimePeriodKey 는 누적 기능의 period key 다.
const LifetimePeriodKey = "total"

// DefaultUnlimited 는 무제한 표시값이다.
const DefaultUnlimited int64 = 999999

// ErrUnknownFeature 는 한도 표에 없는 기능 키 오류다.
var ErrUnknownFeature = errors.New("unknown feature")

type rawLimits struct {
	Unlimited int64                 `yaml:"unlimited"`
	Features  map[string]rawFeature `yaml:"features"`
}

type rawFeature struct {
	Period string           `yaml:"period"`
	Limits map[string]int64 `yaml:"limits"`
}

type featurePolicy struct {
	period Period
	limits map[string]int64
}

// TierLimits 는 기능별 기간 단위와 요금제 한도를 담은 불변 설정이다.
type TierLimits struct {
	unlimited int64
	features  map[string]featurePolicy
}

// FeatureLimit 는 TierLimits 를 코드로 구성할 때 쓰는 기능 정의다.
type FeatureLimit struct {
	Feature string
	Period  Period
	Limits  map[string]int64
}

// NewTierLimits 는 기능 정의 목록으로 TierLimits 를 만든다.
func NewTierLimits(unlimited int64, features ...FeatureLimit) (TierLimits, error) {
	if unlimited <= 0 {
		unlimited = DefaultUnlimited
	}
	out := TierLimits{unlimited: unlimited, features: make(map[string]featurePolicy, len(features))}
	for _, feature := range features {
		key := strings.TrimSpace(feature.Feature)
		if key == "" {
			return TierLimits{}, errors.New("feature key is empty")
		}
		switch feature.Period {
		case PeriodDaily, PeriodLifetime:
		default:
			return TierLimits{}, fmt.Errorf("feature %s: unknown period %q", key, feature.Period)
		}
		limits := make(map[string]int64, len(feature.Limits))
		for tier, limit := range feature.Limits {
			if limit < 0 {
				return TierLimits{}, fmt.Errorf("feature %s: negative limit for %s", key, tier)
			}
			limits[strings.ToLower(tier)] = limit
		}
		out.features[key] = featurePolicy{period: feature.Period, limits: limits}
	}
	if len(out.features) == 0 {
		return TierLimits{}, errors.New("no features configured")
	}
	return out, nil
}

// ParseTierLimits 는 YAML 문서를 TierLimits 로 변환한다.
func ParseTierLimits(data []byte) (TierLimits, error) {
	var raw rawLimits
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return TierLimits{}, fmt.Errorf("parse tier limits: %w", err)
	}
	features := make([]FeatureLimit, 0, len(raw.Features))
	for key, feature := range raw.Features {
		features = append(features, FeatureLimit{
			Feature: key,
			Period:  Period(strings.ToLower(feature.Period)),
			Limits:  feature.Limits,
		})
	}
	limits, err := NewTierLimits(raw.Unlimited, features...)
	if err != nil {
		return TierLimits{}, fmt.Errorf("parse tier limits: %w", err)
	}
	return limits, nil
}

// LoadTierLimits 는 path 가 비어 있으면 내장 한도표를, 아니면 파일을 읽는다.
func LoadTierLimits(path string) (TierLimits, error) {
	if strings.TrimSpace(path) == "" {
		return ParseTierLimits(defaultLimitsYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return TierLimits{}, fmt.Errorf("read tier limits: %w", err)
	}
	return ParseTierLimits(data)
}

// DefaultTierLimits 는 내장 한도표다.
func DefaultTierLimits() TierLimits {
	limits, err := ParseTierLimits(defaultLimitsYAML)
	if err != nil {
		panic(err)
	}
	return limits
}

// Unlimited 는 무제한 표시값을 반환한다.
func (l TierLimits) Unlimited() int64 {
	return l.unlimited
}

// Has 는 기능 키 등록 여부를 반환한다.
func (l TierLimits) Has(feature string) bool {
	_, ok := l.features[feature]
	return ok
}

// Period 는 기능의 기간 단위를 반환한다.
func (l TierLimits) Period(feature string) (Period, error) {
	policy, ok := l.features[feature]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFeature, feature)
	}
	return policy.period, nil
}

// Limit 는 기능/등급 한도를 반환한다. 등급 항목이 없으면 0(잠금)이다.
func (l TierLimits) Limit(feature string, tier string) (int64, error) {
	policy, ok := l.features[feature]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownFeature, feature)
	}
	return policy.limits[strings.ToLower(tier)], nil
}

// Features 는 정렬된 기능 키 목록을 반환한다.
func (l TierLimits) Features() []string {
	keys := make([]string, 0, len(l.features))
	for key := range l.features {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
