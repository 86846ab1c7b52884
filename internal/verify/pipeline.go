package verify

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/codec"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/refusal"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/script"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/telemetry"
)

// Classification 은 검증 분류다.
type Classification string

// 분류 값이다.
const (
	ClassClean   Classification = "clean"
	ClassRefusal Classification = "refusal"
	ClassMixed   Classification = "mixed"
)

// Outcome 은 텍스트 검증 결과다.
type Outcome struct {
	Classification Classification `json:"classification"`
	Text           string         `json:"text"`
	Corrected      bool           `json:"corrected"`
}

// RecordOutcome 은 레코드 검증 결과다.
type RecordOutcome struct {
	Classification Classification `json:"classification"`
	Record         map[string]any `json:"record"`
	Corrected      bool           `json:"corrected"`
}

// Observer 는 검증 결과와 교정 호출 결과를 수집한다.
type Observer interface {
	ObserveVerification(kind string, classification string, corrected bool)
	ObserveCorrection(stage string, ok bool)
}

// 교정 단계 이름이다.
const (
	StageRecover      = "recover"
	StageRefine       = "refine"
	StageRefineRecord = "refine_record"
)

// MaxCorrectiveAttempts 는 교정 단계별 호출 상한이다. 설정값이 더 커도 이 값으로 자른다.
const MaxCorrectiveAttempts = 1

// Option 은 Pipeline 옵션이다.
type Option func(*Pipeline)

// WithObserver 는 결과 수집기를 지정한다.
func WithObserver(observer Observer) Option {
	return func(p *Pipeline) {
		p.observer = observer
	}
}

// WithRefusalTable 은 거절 문구 표를 지정한다.
func WithRefusalTable(table *refusal.Table) Option {
	return func(p *Pipeline) {
		if table != nil {
			p.refusals = table
		}
	}
}

// WithMaxAttempts 는 교정 단계별 시도 횟수를 지정한다. 1 과 MaxCorrectiveAttempts 사이로 제한된다.
func WithMaxAttempts(attempts int) Option {
	return func(p *Pipeline) {
		p.maxAttempts = min(max(attempts, 1), MaxCorrectiveAttempts)
	}
}

// WithScriptClassifier 는 문자 혼용 판별기를 지정한다.
func WithScriptClassifier(classifier *script.Classifier) Option {
	return func(p *Pipeline) {
		if classifier != nil {
			p.scripts = classifier
		}
	}
}

// Pipeline 은 모델 응답을 거절/혼용/정상으로 분류하고 필요한 교정을 한 번씩만 수행한다.
// 교정 호출 실패는 오류로 올리지 않고 교정 전 값으로 되돌린다.
type Pipeline struct {
	corrector   Corrector
	refusals    *refusal.Table
	scripts     *script.Classifier
	logger      *slog.Logger
	observer    Observer
	maxAttempts int
}

// NewPipeline 은 Pipeline 을 생성한다.
func NewPipeline(corrector Corrector, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		corrector:   corrector,
		refusals:    refusal.Default(),
		scripts:     script.NewClassifier(),
		logger:      logger,
		maxAttempts: MaxCorrectiveAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsRefusal 은 text 가 거절 응답인지 판정한다.
func (p *Pipeline) IsRefusal(text string) bool {
	return p.refusals.IsRefusal(text)
}

// IsMixed 는 text 에 target 밖의 문자가 섞였는지 판정한다.
func (p *Pipeline) IsMixed(text string, target string) bool {
	return p.scripts.IsMixed(text, target)
}

// Verify 는 텍스트 응답을 검증한다.
//
//	거절 → 복구 1회 (실패 시 원문, refusal)
//	혼용 → 정제 1회 (실패 시 정제 전 텍스트)
//
// 결과 텍스트는 raw 가 비어 있지 않으면 비어 있지 않다.
func (p *Pipeline) Verify(ctx context.Context, raw string, target string) (out Outcome) {
	ctx, span := telemetry.StartSpan(ctx, "verify.text", attribute.String("language.target", target))
	defer func() {
		span.SetAttributes(
			attribute.String("verify.classification", string(out.Classification)),
			attribute.Bool("verify.corrected", out.Corrected),
		)
		span.End()
		p.observeOutcome("text", out.Classification, out.Corrected)
	}()

	current := raw
	recovered := false

	if p.refusals.IsRefusal(current) {
		text, ok := p.recover(ctx, current, target)
		if !ok {
			return Outcome{Classification: ClassRefusal, Text: raw}
		}
		current = text
		recovered = true
	}

	if !p.scripts.IsMixed(current, target) {
		if recovered {
			return Outcome{Classification: ClassRefusal, Text: current, Corrected: true}
		}
		return Outcome{Classification: ClassClean, Text: current}
	}

	refined, ok := p.refine(ctx, current, target)
	if !ok {
		if recovered {
			return Outcome{Classification: ClassRefusal, Text: current, Corrected: true}
		}
		return Outcome{Classification: ClassMixed, Text: current}
	}
	return Outcome{Classification: ClassMixed, Text: refined, Corrected: true}
}

// VerifyRecord 는 레코드 응답을 검증한다.
// 문자 혼용은 직렬화한 JSON 으로 판정하고, 정제 결과가 레코드로 해석되지 않거나 키가 달라지면 원본을 반환한다.
// schema 는 정제 호출의 응답 스키마이며 nil 이면 자유 형식 JSON 을 요청한다.
func (p *Pipeline) VerifyRecord(ctx context.Context, record map[string]any, target string, schema map[string]any) (out RecordOutcome) {
	ctx, span := telemetry.StartSpan(ctx, "verify.record", attribute.String("language.target", target))
	defer func() {
		span.SetAttributes(
			attribute.String("verify.classification", string(out.Classification)),
			attribute.Bool("verify.corrected", out.Corrected),
		)
		span.End()
		p.observeOutcome("record", out.Classification, out.Corrected)
	}()

	serialized, err := codec.SerializeRecord(record)
	if err != nil {
		p.logWarn("verify_record_serialize_failed", err)
		return RecordOutcome{Classification: ClassClean, Record: record}
	}
	if !p.scripts.IsMixed(serialized, target) {
		return RecordOutcome{Classification: ClassClean, Record: record}
	}

	if p.corrector == nil {
		return RecordOutcome{Classification: ClassMixed, Record: record}
	}
	refined, err := p.corrector.RefineRecord(ctx, record, target, schema)
	if err != nil || !sameKeys(record, refined) {
		if err == nil {
			err = errKeysChanged
		}
		p.observeCorrection(StageRefineRecord, false)
		p.logWarn("verify_refine_record_failed", err)
		return RecordOutcome{Classification: ClassMixed, Record: record}
	}
	p.observeCorrection(StageRefineRecord, true)
	return RecordOutcome{Classification: ClassMixed, Record: refined, Corrected: true}
}

func (p *Pipeline) recover(ctx context.Context, text string, target string) (string, bool) {
	return p.attempt(StageRecover, func() (string, error) {
		return p.corrector.Recover(ctx, text, target)
	})
}

func (p *Pipeline) refine(ctx context.Context, text string, target string) (string, bool) {
	return p.attempt(StageRefine, func() (string, error) {
		return p.corrector.Refine(ctx, text, target)
	})
}

// attempt 는 교정 호출을 maxAttempts 번까지 수행한다.
// 빈 결과와 여전히 거절인 결과는 실패로 본다.
func (p *Pipeline) attempt(stage string, call func() (string, error)) (string, bool) {
	if p.corrector == nil {
		return "", false
	}
	var lastErr error
	for range p.maxAttempts {
		text, err := call()
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyCorrection
		}
		if err == nil && p.refusals.IsRefusal(text) {
			err = errStillRefusal
		}
		if err == nil {
			p.observeCorrection(stage, true)
			return text, true
		}
		lastErr = err
	}
	p.observeCorrection(stage, false)
	p.logWarn("verify_"+stage+"_failed", lastErr)
	return "", false
}

func sameKeys(original map[string]any, refined map[string]any) bool {
	if len(refined) == 0 || len(original) != len(refined) {
		return false
	}
	for key := range original {
		if _, ok := refined[key]; !ok {
			return false
		}
	}
	return true
}

func (p *Pipeline) observeOutcome(kind string, classification Classification, corrected bool) {
	if p.observer != nil {
		p.observer.ObserveVerification(kind, string(classification), corrected)
	}
}

func (p *Pipeline) observeCorrection(stage string, ok bool) {
	if p.observer != nil {
		p.observer.ObserveCorrection(stage, ok)
	}
}

func (p *Pipeline) logWarn(event string, err error) {
	if p.logger != nil {
		p.logger.Warn(event, "err", err)
	}
}
