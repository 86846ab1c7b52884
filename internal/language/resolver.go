package language

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/cache"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/codec"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/script"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/telemetry"
)

// 결정 근거 라벨이다.
const (
	SourcePreference = "preference"
	SourceDetected   = "detected"
	SourceDefault    = "default"
)

// Resolution 은 요청 단위로 결정된 대상 언어다.
type Resolution struct {
	Code       string `json:"code"`
	Source     string `json:"source"`
	Detected   string `json:"detected,omitempty"`
	Preference string `json:"preference,omitempty"`
}

// Observer 는 언어 결정 결과를 수집한다.
type Observer interface {
	ObserveResolution(source string, code string)
}

// Resolver 는 저장된 선호 언어와 샘플 감지 결과로 대상 언어를 정한다.
type Resolver struct {
	detector    Detector
	defaultCode string
	maxRunes    int
	cache       *cache.TTLCache[string, string]
	group       singleflight.Group
	logger      *slog.Logger
	observer    Observer
}

// NewResolver 는 Resolver 를 생성한다.
func NewResolver(detector Detector, cfg config.PipelineConfig, logger *slog.Logger) *Resolver {
	defaultCode := NormalizeCode(cfg.DefaultLanguage)
	if defaultCode == "" {
		defaultCode = script.English
	}
	r := &Resolver{
		detector:    detector,
		defaultCode: defaultCode,
		maxRunes:    cfg.DetectSampleMaxRunes,
		logger:      logger,
	}
	if cfg.DetectCacheSize > 0 && cfg.DetectCacheTTLSeconds > 0 {
		r.cache = cache.NewTTLCache[string, string](cfg.DetectCacheSize, time.Duration(cfg.DetectCacheTTLSeconds)*time.Second)
	}
	return r
}

// SetObserver 는 결정 결과 수집기를 지정한다.
func (r *Resolver) SetObserver(observer Observer) {
	r.observer = observer
}

// DefaultCode 는 기본 언어 코드를 반환한다.
func (r *Resolver) DefaultCode() string {
	return r.defaultCode
}

// Resolve 는 대상 언어를 결정한다. 감지 실패는 기본 언어 감지로 취급하며 오류를 반환하지 않는다.
func (r *Resolver) Resolve(ctx context.Context, storedPreference string, sampleText string) Resolution {
	ctx, span := telemetry.StartSpan(ctx, "language.resolve")
	defer span.End()

	preference := NormalizeCode(storedPreference)
	res := r.resolve(ctx, preference, sampleText)
	span.SetAttributes(
		attribute.String("language.code", res.Code),
		attribute.String("language.source", res.Source),
	)
	if r.observer != nil {
		r.observer.ObserveResolution(res.Source, res.Code)
	}
	return res
}

func (r *Resolver) resolve(ctx context.Context, preference string, sampleText string) Resolution {
	sample := strings.TrimSpace(sampleText)
	if sample == "" {
		if preference != "" {
			return Resolution{Code: preference, Source: SourcePreference, Preference: preference}
		}
		return Resolution{Code: r.defaultCode, Source: SourceDefault}
	}

	detected := r.detect(ctx, sample)
	if (preference == "" || preference == r.defaultCode) && detected != r.defaultCode {
		return Resolution{Code: detected, Source: SourceDetected, Detected: detected, Preference: preference}
	}
	if preference != "" {
		return Resolution{Code: preference, Source: SourcePreference, Detected: detected, Preference: preference}
	}
	return Resolution{Code: r.defaultCode, Source: SourceDefault, Detected: detected}
}

// detect 는 샘플 언어를 감지한다. 실패하면 기본 언어를 반환한다.
func (r *Resolver) detect(ctx context.Context, sample string) string {
	if r.detector == nil {
		return r.defaultCode
	}
	if r.maxRunes > 0 {
		sample = codec.TrimRunes(sample, r.maxRunes)
	}

	key := sampleKey(sample)
	if r.cache != nil {
		if code, ok := r.cache.Get(key); ok {
			return code
		}
	}

	value, err, _ := r.group.Do(key, func() (any, error) {
		answer, err := r.detector.Detect(ctx, sample)
		if err != nil {
			return "", err
		}
		code, ok := ParseCode(answer)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUndetermined, answer)
		}
		if r.cache != nil {
			r.cache.Set(key, code)
		}
		return code, nil
	})
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("language_detect_failed", "err", err)
		}
		return r.defaultCode
	}
	code, _ := value.(string)
	if code == "" {
		return r.defaultCode
	}
	return code
}

func sampleKey(sample string) string {
	sum := sha256.Sum256([]byte(sample))
	return hex.EncodeToString(sum[:])
}
