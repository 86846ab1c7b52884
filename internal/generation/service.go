package generation

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/entitlement"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/gemini"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/language"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/prompt"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/script"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/telemetry"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/verify"
)

//go:embed prompts/*.yml
var promptsFS embed.FS

// 요청 범위 제한이다.
const (
	MaxPlanDays        = 14
	MaxGuidancePrompts = 4
)

// Gatekeeper 는 기능 사용 허용 여부를 판정하고 카운터를 올린다.
type Gatekeeper interface {
	CheckAndIncrement(ctx context.Context, callerID string, feature string) (entitlement.Result, error)
}

// LanguageResolver 는 요청 대상 언어를 정한다.
type LanguageResolver interface {
	Resolve(ctx context.Context, storedPreference string, sampleText string) language.Resolution
}

// Verifier 는 모델 응답을 검증/교정한다.
type Verifier interface {
	Verify(ctx context.Context, raw string, target string) verify.Outcome
	VerifyRecord(ctx context.Context, record map[string]any, target string, schema map[string]any) verify.RecordOutcome
}

// Request 는 생성 요청 공통 필드다.
// Prompt 는 호출자가 만든 템플릿이며, Variables 가 있으면 {key} 자리를 치환한다.
type Request struct {
	CallerID     string
	Preference   string
	Sample       string
	Prompt       string
	Variables    map[string]string
	SystemPrompt string
}

// GuidanceRequest 는 하루 안내 요청이다. Prompts 의 각 항목은 독립적으로 생성된다.
type GuidanceRequest struct {
	Request
	Prompts []string
}

// PlanRequest 는 다일 계획 요청이다.
type PlanRequest struct {
	Request
	Days   int
	Schema map[string]any
}

// ProfileRequest 는 프로필 합성 요청이다.
type ProfileRequest struct {
	Request
	Schema map[string]any
}

// TextResult 는 텍스트 생성 결과다.
type TextResult struct {
	Text         string              `json:"text"`
	Model        string              `json:"model"`
	Language     language.Resolution `json:"language"`
	Verification verify.Outcome      `json:"verification"`
	Entitlement  entitlement.Result  `json:"entitlement"`
}

// GuidanceResult 는 하루 안내 생성 결과다.
type GuidanceResult struct {
	Items       []verify.Outcome    `json:"items"`
	Model       string              `json:"model"`
	Language    language.Resolution `json:"language"`
	Entitlement entitlement.Result  `json:"entitlement"`
}

// RecordResult 는 구조화 생성 결과다.
type RecordResult struct {
	Record       map[string]any       `json:"record"`
	Model        string               `json:"model"`
	Language     language.Resolution  `json:"language"`
	Verification verify.RecordOutcome `json:"verification"`
	Entitlement  entitlement.Result   `json:"entitlement"`
}

// Service 는 게이트 → 언어 결정 → 프롬프트 조립 → 모델 호출 → 출력 검증 순서를 고정해 실행한다.
// 게이트가 거부하면 모델을 호출하지 않는다.
type Service struct {
	gate     Gatekeeper
	resolver LanguageResolver
	verifier Verifier
	client   gemini.LLM
	prompts  *prompt.Bundle
	logger   *slog.Logger
}

// NewService 는 Service 를 생성한다.
func NewService(gate Gatekeeper, resolver LanguageResolver, verifier Verifier, client gemini.LLM, logger *slog.Logger) (*Service, error) {
	if gate == nil || resolver == nil || verifier == nil || client == nil {
		return nil, errors.New("generation dependencies are required")
	}
	bundle, err := prompt.LoadBundle(promptsFS, "prompts", "generation")
	if err != nil {
		return nil, fmt.Errorf("load generation prompts: %w", err)
	}
	return &Service{
		gate:     gate,
		resolver: resolver,
		verifier: verifier,
		client:   client,
		prompts:  bundle,
		logger:   logger,
	}, nil
}

// GenerateStudio 는 대화형 콘텐츠를 생성한다.
func (s *Service) GenerateStudio(ctx context.Context, req Request) (TextResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "generation.studio")
	result, err := s.generateStudio(ctx, req)
	telemetry.EndSpan(span, err)
	return result, err
}

func (s *Service) generateStudio(ctx context.Context, req Request) (TextResult, error) {
	userPrompt, err := renderPrompt(req)
	if err != nil {
		return TextResult{}, err
	}
	allowed, err := s.admit(ctx, req.CallerID, entitlement.FeatureStudioGenerate)
	if err != nil {
		return TextResult{}, err
	}
	resolution := s.resolver.Resolve(ctx, req.Preference, sampleOf(req))

	system, err := s.systemPrompt("studio", req.SystemPrompt)
	if err != nil {
		return TextResult{}, err
	}
	raw, model, err := s.chat(ctx, entitlement.FeatureStudioGenerate, system, resolution.Code, userPrompt)
	if err != nil {
		return TextResult{}, err
	}

	outcome := s.verifier.Verify(ctx, raw, resolution.Code)
	return TextResult{
		Text:         outcome.Text,
		Model:        model,
		Language:     resolution,
		Verification: outcome,
		Entitlement:  allowed,
	}, nil
}

// GenerateGuidance 는 하루 안내 항목들을 동시에 생성한 뒤 모두 끝나면 각각 검증한다.
// 카운터는 요청당 1회만 증가한다.
func (s *Service) GenerateGuidance(ctx context.Context, req GuidanceRequest) (GuidanceResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "generation.guidance", attribute.Int("guidance.items", len(req.Prompts)))
	result, err := s.generateGuidance(ctx, req)
	telemetry.EndSpan(span, err)
	return result, err
}

func (s *Service) generateGuidance(ctx context.Context, req GuidanceRequest) (GuidanceResult, error) {
	prompts := req.Prompts
	if len(prompts) == 0 && strings.TrimSpace(req.Prompt) != "" {
		prompts = []string{req.Prompt}
	}
	if len(prompts) == 0 || len(prompts) > MaxGuidancePrompts {
		return GuidanceResult{}, fmt.Errorf("%w: guidance needs 1 to %d prompts", ErrInvalidRequest, MaxGuidancePrompts)
	}
	rendered := make([]string, len(prompts))
	for i, text := range prompts {
		item := req.Request
		item.Prompt = text
		userPrompt, err := renderPrompt(item)
		if err != nil {
			return GuidanceResult{}, err
		}
		rendered[i] = userPrompt
	}

	allowed, err := s.admit(ctx, req.CallerID, entitlement.FeatureDailyGuidance)
	if err != nil {
		return GuidanceResult{}, err
	}
	resolution := s.resolver.Resolve(ctx, req.Preference, sampleOf(req.Request))
	system, err := s.systemPrompt("guidance", req.SystemPrompt)
	if err != nil {
		return GuidanceResult{}, err
	}

	raws := make([]string, len(rendered))
	models := make([]string, len(rendered))
	g, gctx := errgroup.WithContext(ctx)
	for i, userPrompt := range rendered {
		g.Go(func() error {
			raw, model, err := s.chat(gctx, entitlement.FeatureDailyGuidance, system, resolution.Code, userPrompt)
			if err != nil {
				return err
			}
			raws[i] = raw
			models[i] = model
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return GuidanceResult{}, err
	}

	items := make([]verify.Outcome, len(raws))
	for i, raw := range raws {
		items[i] = s.verifier.Verify(ctx, raw, resolution.Code)
	}
	return GuidanceResult{
		Items:       items,
		Model:       models[0],
		Language:    resolution,
		Entitlement: allowed,
	}, nil
}

// SynthesizeProfile 는 구조화 프로필을 합성한다.
func (s *Service) SynthesizeProfile(ctx context.Context, req ProfileRequest) (RecordResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "generation.profile")
	result, err := s.synthesizeProfile(ctx, req)
	telemetry.EndSpan(span, err)
	return result, err
}

func (s *Service) synthesizeProfile(ctx context.Context, req ProfileRequest) (RecordResult, error) {
	userPrompt, err := renderPrompt(req.Request)
	if err != nil {
		return RecordResult{}, err
	}
	schema, validate := req.Schema, func(map[string]any) error { return nil }
	if schema == nil {
		schema, validate = profileSchema(), validateProfile
	}
	return s.runRecord(ctx, req.Request, entitlement.FeatureProfileSynthesis, "profile", userPrompt, schema, validate)
}

// PlanDays 는 다일 계획을 생성한다.
func (s *Service) PlanDays(ctx context.Context, req PlanRequest) (RecordResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "generation.plan", attribute.Int("plan.days", req.Days))
	result, err := s.planDays(ctx, req)
	telemetry.EndSpan(span, err)
	return result, err
}

func (s *Service) planDays(ctx context.Context, req PlanRequest) (RecordResult, error) {
	if req.Days < 1 || req.Days > MaxPlanDays {
		return RecordResult{}, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidRequest, MaxPlanDays)
	}
	body, err := renderPrompt(req.Request)
	if err != nil {
		return RecordResult{}, err
	}
	data, err := s.prompts.Prompt("plan")
	if err != nil {
		return RecordResult{}, err
	}
	template, err := s.prompts.Field(data, "user", "plan.user")
	if err != nil {
		return RecordResult{}, err
	}
	userPrompt, err := prompt.FormatTemplate(template, map[string]string{
		"days":    strconv.Itoa(req.Days),
		"request": body,
	})
	if err != nil {
		return RecordResult{}, fmt.Errorf("format plan.user: %w", err)
	}
	schema, validate := req.Schema, func(map[string]any) error { return nil }
	if schema == nil {
		schema, validate = planSchema(), validatePlan
	}
	return s.runRecord(ctx, req.Request, entitlement.FeatureMultiDayPlan, "plan", userPrompt, schema, validate)
}

func (s *Service) runRecord(
	ctx context.Context,
	req Request,
	feature string,
	promptName string,
	userPrompt string,
	schema map[string]any,
	validate func(map[string]any) error,
) (RecordResult, error) {
	allowed, err := s.admit(ctx, req.CallerID, feature)
	if err != nil {
		return RecordResult{}, err
	}
	resolution := s.resolver.Resolve(ctx, req.Preference, sampleOf(req))

	system, err := s.systemPrompt(promptName, req.SystemPrompt)
	if err != nil {
		return RecordResult{}, err
	}
	lock, err := s.languageLock("record", resolution.Code)
	if err != nil {
		return RecordResult{}, err
	}

	record, model, err := s.client.Structured(ctx, gemini.Request{
		Prompt:       lock + "\n\n" + userPrompt,
		SystemPrompt: system,
		Task:         config.TaskGenerate,
		Feature:      feature,
	}, schema)
	if err != nil {
		if errors.Is(err, gemini.ErrMalformedResponse) {
			return RecordResult{}, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
		}
		return RecordResult{}, fmt.Errorf("%w: %w", ErrModelFailure, err)
	}
	if err := validate(record); err != nil {
		return RecordResult{}, err
	}

	outcome := s.verifier.VerifyRecord(ctx, record, resolution.Code, schema)
	return RecordResult{
		Record:       outcome.Record,
		Model:        model,
		Language:     resolution,
		Verification: outcome,
		Entitlement:  allowed,
	}, nil
}

// admit 는 게이트를 통과시키고, 거부되면 QuotaExceededError 를 반환한다.
func (s *Service) admit(ctx context.Context, callerID string, feature string) (entitlement.Result, error) {
	if strings.TrimSpace(callerID) == "" {
		return entitlement.Result{}, ErrUnauthenticated
	}
	result, err := s.gate.CheckAndIncrement(ctx, callerID, feature)
	if err != nil {
		if errors.Is(err, entitlement.ErrInvalidCaller) {
			return result, ErrUnauthenticated
		}
		return result, err
	}
	if !result.Allowed {
		if s.logger != nil {
			s.logger.Info("generation_quota_exceeded",
				"caller_id", callerID,
				"feature", feature,
				"tier", result.Tier,
				"current_usage", result.CurrentUsage,
				"limit", result.Limit,
			)
		}
		return result, &QuotaExceededError{Result: result}
	}
	return result, nil
}

func (s *Service) chat(ctx context.Context, feature string, system string, target string, userPrompt string) (string, string, error) {
	lock, err := s.languageLock("text", target)
	if err != nil {
		return "", "", err
	}
	result, model, err := s.client.ChatWithUsage(ctx, gemini.Request{
		Prompt:       lock + "\n\n" + userPrompt,
		SystemPrompt: system,
		Task:         config.TaskGenerate,
		Feature:      feature,
	})
	if err != nil {
		return "", model, fmt.Errorf("%w: %w", ErrModelFailure, err)
	}
	if s.logger != nil {
		s.logger.Debug("generation_model_call",
			"feature", feature,
			"model", model,
			"input_tokens", result.Usage.InputTokens,
			"output_tokens", result.Usage.OutputTokens,
			"reasoning", result.HasReasoning,
		)
	}
	if strings.TrimSpace(result.Text) == "" {
		return "", model, fmt.Errorf("%w: empty response", ErrModelFailure)
	}
	return result.Text, model, nil
}

// languageLock 은 대상 언어 고정 지시문을 만든다. kind 는 text 또는 record 다.
func (s *Service) languageLock(kind string, target string) (string, error) {
	data, err := s.prompts.Prompt("language_lock")
	if err != nil {
		return "", err
	}
	template, err := s.prompts.Field(data, kind, "language_lock."+kind)
	if err != nil {
		return "", err
	}
	lock, err := prompt.FormatTemplate(template, map[string]string{
		"language": script.Name(target),
		"code":     target,
	})
	if err != nil {
		return "", fmt.Errorf("format language_lock.%s: %w", kind, err)
	}
	return strings.TrimSpace(lock), nil
}

func (s *Service) systemPrompt(name string, override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return override, nil
	}
	data, err := s.prompts.Prompt(name)
	if err != nil {
		return "", err
	}
	return s.prompts.Field(data, "system", name+".system")
}

// renderPrompt 는 변수 유무와 관계없이 템플릿을 적용한다.
// 치환되지 않는 자리표시자는 게이트 전에 ErrInvalidRequest 가 된다. 리터럴 중괄호는 {{ }} 로 쓴다.
func renderPrompt(req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("%w: prompt is empty", ErrInvalidRequest)
	}
	rendered, err := prompt.FormatTemplate(req.Prompt, req.Variables)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return rendered, nil
}

// sampleOf 는 언어 감지에 쓸 샘플을 고른다. 명시 샘플이 없으면 사용자 입력 값을 이어 붙인다.
func sampleOf(req Request) string {
	if strings.TrimSpace(req.Sample) != "" {
		return req.Sample
	}
	if len(req.Variables) == 0 {
		return ""
	}
	parts := make([]string, 0, len(req.Variables))
	for _, value := range req.Variables {
		if strings.TrimSpace(value) != "" {
			parts = append(parts, value)
		}
	}
	slices.Sort(parts)
	return strings.Join(parts, "\n")
}
