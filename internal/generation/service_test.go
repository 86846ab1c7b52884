package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/entitlement"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/gemini"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/language"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/ledger"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/llm"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/script"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/subscription"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/verify"
)

const (
	thaiOutput  = "สวัสดีครับ วันนี้เป็นวันที่ดี"
	mixedOutput = "สวัสดีครับ 안녕하세요 วันนี้เป็นวันที่ดี"
	thaiSample  = "ช่วยเขียนคำอวยพรวันเกิดให้เพื่อนหน่อย"
)

var testNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

// scriptedLLM 은 작업 유형별 응답을 돌려주는 가짜 모델이다.
type scriptedLLM struct {
	mu            sync.Mutex
	requests      []gemini.Request
	generateCalls atomic.Int32
	chatText      string
	chatErr       error
	detected      string
	corrected     string
	record        map[string]any
	structuredErr error
}

func (f *scriptedLLM) remember(req gemini.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

func (f *scriptedLLM) Chat(ctx context.Context, req gemini.Request) (string, string, error) {
	result, model, err := f.ChatWithUsage(ctx, req)
	return result.Text, model, err
}

func (f *scriptedLLM) ChatWithUsage(ctx context.Context, req gemini.Request) (llm.ChatResult, string, error) {
	f.remember(req)
	if req.Task == config.TaskCorrect {
		if f.corrected == "" {
			return llm.ChatResult{}, "gemini-3-test", errors.New("corrector down")
		}
		return llm.ChatResult{Text: f.corrected}, "gemini-3-test", nil
	}
	f.generateCalls.Add(1)
	if f.chatErr != nil {
		return llm.ChatResult{}, "gemini-3-test", f.chatErr
	}
	return llm.ChatResult{Text: f.chatText}, "gemini-3-test", nil
}

func (f *scriptedLLM) Structured(ctx context.Context, req gemini.Request, schema map[string]any) (map[string]any, string, error) {
	f.remember(req)
	switch req.Task {
	case config.TaskDetect:
		if f.detected == "" {
			return nil, "gemini-3-test", errors.New("detector down")
		}
		return map[string]any{"language": f.detected}, "gemini-3-test", nil
	case config.TaskCorrect:
		return nil, "gemini-3-test", gemini.ErrMalformedResponse
	}
	f.generateCalls.Add(1)
	if f.structuredErr != nil {
		return nil, "gemini-3-test", f.structuredErr
	}
	return f.record, "gemini-3-test", nil
}

func (f *scriptedLLM) generatePrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var prompts []string
	for _, req := range f.requests {
		if req.Task == config.TaskGenerate {
			prompts = append(prompts, req.Prompt)
		}
	}
	return prompts
}

type failingReadStore struct {
	*ledger.MemoryStore
}

func (failingReadStore) Get(context.Context, ledger.Key) (ledger.Counter, error) {
	return ledger.Counter{}, errors.New("connection refused")
}

type fixture struct {
	service *Service
	store   *ledger.MemoryStore
	llm     *scriptedLLM
}

func newFixture(t *testing.T, client *scriptedLLM, subs subscription.Lookup, store ledger.Store) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gate := entitlement.NewGate(entitlement.DefaultTierLimits(), subs, store, logger,
		entitlement.WithClock(func() time.Time { return testNow }),
	)
	detector, err := language.NewLLMDetector(client)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	resolver := language.NewResolver(detector, config.PipelineConfig{
		DefaultLanguage:       "en",
		DetectSampleMaxRunes:  500,
		DetectCacheSize:       8,
		DetectCacheTTLSeconds: 60,
	}, logger)
	corrector, err := verify.NewLLMCorrector(client)
	if err != nil {
		t.Fatalf("new corrector: %v", err)
	}
	service, err := NewService(gate, resolver, verify.NewPipeline(corrector, logger), client, logger)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func newFreeFixture(t *testing.T, client *scriptedLLM) fixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	subs := subscription.Static{"premium-user": {Tier: subscription.TierPremium, Status: subscription.StatusActive}}
	return fixture{service: newFixture(t, client, subs, store), store: store, llm: client}
}

func studioKey(caller string) ledger.Key {
	return ledger.Key{CallerID: caller, Feature: entitlement.FeatureStudioGenerate, Period: "2026-10-18"}
}

func TestStudioThaiEndToEnd(t *testing.T) {
	client := &scriptedLLM{chatText: mixedOutput, detected: "th", corrected: thaiOutput}
	fx := newFreeFixture(t, client)

	result, err := fx.service.GenerateStudio(context.Background(), Request{
		CallerID:   "user-1",
		Preference: "en",
		Sample:     thaiSample,
		Prompt:     "Write a birthday wish for my friend.",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !result.Entitlement.Allowed || result.Entitlement.Remaining != 2 || result.Entitlement.Tier != subscription.TierFree {
		t.Fatalf("unexpected entitlement: %+v", result.Entitlement)
	}
	if result.Language.Code != "th" || result.Language.Source != language.SourceDetected {
		t.Fatalf("unexpected language: %+v", result.Language)
	}
	if result.Verification.Classification != verify.ClassMixed || !result.Verification.Corrected {
		t.Fatalf("unexpected verification: %+v", result.Verification)
	}
	if result.Text != thaiOutput || script.IsMixed(result.Text, "th") {
		t.Fatalf("expected thai-only text, got %q", result.Text)
	}

	counter, _ := fx.store.Get(context.Background(), studioKey("user-1"))
	if counter.Value != 1 {
		t.Fatalf("expected counter 1, got %d", counter.Value)
	}
	prompts := client.generatePrompts()
	if len(prompts) != 1 || !strings.HasPrefix(prompts[0], "LANGUAGE LOCK: Write the entire response in Thai") {
		t.Fatalf("generation prompt must start with the language lock: %v", prompts)
	}
	if !strings.HasSuffix(prompts[0], "Write a birthday wish for my friend.") {
		t.Fatalf("generation prompt must end with the caller template: %q", prompts[0])
	}
}

func TestStudioQuotaExceededSkipsModel(t *testing.T) {
	client := &scriptedLLM{chatText: thaiOutput, detected: "th"}
	fx := newFreeFixture(t, client)
	fx.store.Set(studioKey("user-1"), 3)

	_, err := fx.service.GenerateStudio(context.Background(), Request{CallerID: "user-1", Prompt: "hello"})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	var quotaErr *QuotaExceededError
	if !errors.As(err, &quotaErr) || quotaErr.Result.CurrentUsage != 3 || quotaErr.Result.Remaining != 0 {
		t.Fatalf("expected quota details, got %+v", quotaErr)
	}
	if client.generateCalls.Load() != 0 || len(client.requests) != 0 {
		t.Fatalf("denied request must not reach the model")
	}
	counter, _ := fx.store.Get(context.Background(), studioKey("user-1"))
	if counter.Value != 3 {
		t.Fatalf("denied request must not change the counter, got %d", counter.Value)
	}
}

func TestStudioUnauthenticated(t *testing.T) {
	client := &scriptedLLM{chatText: thaiOutput}
	fx := newFreeFixture(t, client)

	_, err := fx.service.GenerateStudio(context.Background(), Request{CallerID: " ", Prompt: "hello"})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if len(client.requests) != 0 {
		t.Fatalf("unauthenticated request must not reach the model")
	}
}

func TestStudioQuotaReadFailureIsFatal(t *testing.T) {
	client := &scriptedLLM{chatText: thaiOutput}
	store := failingReadStore{MemoryStore: ledger.NewMemoryStore()}
	service := newFixture(t, client, subscription.Static{}, store)

	_, err := service.GenerateStudio(context.Background(), Request{CallerID: "user-1", Prompt: "hello"})
	if !errors.Is(err, entitlement.ErrQuotaRead) {
		t.Fatalf("expected quota read error, got %v", err)
	}
	if errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("read failure must be distinct from quota exceeded")
	}
	if client.generateCalls.Load() != 0 {
		t.Fatalf("read failure must not reach the model")
	}
}

func TestStudioModelFailure(t *testing.T) {
	client := &scriptedLLM{chatErr: context.DeadlineExceeded}
	fx := newFreeFixture(t, client)

	_, err := fx.service.GenerateStudio(context.Background(), Request{CallerID: "user-1", Prompt: "hello"})
	if !errors.Is(err, ErrModelFailure) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped model failure, got %v", err)
	}

	client = &scriptedLLM{chatText: "   "}
	fx = newFreeFixture(t, client)
	if _, err := fx.service.GenerateStudio(context.Background(), Request{CallerID: "user-1", Prompt: "hello"}); !errors.Is(err, ErrModelFailure) {
		t.Fatalf("expected model failure for empty output, got %v", err)
	}
}

func TestStudioInvalidPromptKeepsQuota(t *testing.T) {
	client := &scriptedLLM{chatText: thaiOutput}
	fx := newFreeFixture(t, client)

	_, err := fx.service.GenerateStudio(context.Background(), Request{CallerID: "user-1", Prompt: "Hi {name}"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for missing variable, got %v", err)
	}
	counter, _ := fx.store.Get(context.Background(), studioKey("user-1"))
	if counter.Value != 0 {
		t.Fatalf("invalid request must not consume quota")
	}
}

func TestRenderPromptWithoutVariables(t *testing.T) {
	rendered, err := renderPrompt(Request{Prompt: "Return {{\"ok\": true}} as JSON"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if rendered != `Return {"ok": true} as JSON` {
		t.Fatalf("unexpected rendered prompt: %q", rendered)
	}

	if _, err := renderPrompt(Request{Prompt: "Hi {name}"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for unresolved placeholder, got %v", err)
	}
	if _, err := renderPrompt(Request{Prompt: "Hi {name}", Variables: map[string]string{"other": "x"}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for partial variables, got %v", err)
	}
}

func TestStudioVariablesFeedDetection(t *testing.T) {
	client := &scriptedLLM{chatText: "こんにちは、元気ですか", detected: "ja"}
	fx := newFreeFixture(t, client)

	result, err := fx.service.GenerateStudio(context.Background(), Request{
		CallerID:  "user-1",
		Prompt:    "Reply to: {message}",
		Variables: map[string]string{"message": "こんにちは"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Language.Code != "ja" || result.Verification.Classification != verify.ClassClean {
		t.Fatalf("unexpected result: %+v", result)
	}
	prompts := client.generatePrompts()
	if len(prompts) != 1 || !strings.Contains(prompts[0], "Reply to: こんにちは") {
		t.Fatalf("variables must be rendered: %v", prompts)
	}
}

func TestGuidanceRunsPromptsAndCountsOnce(t *testing.T) {
	client := &scriptedLLM{chatText: thaiOutput, detected: "th"}
	fx := newFreeFixture(t, client)

	result, err := fx.service.GenerateGuidance(context.Background(), GuidanceRequest{
		Request: Request{CallerID: "user-1", Preference: "th"},
		Prompts: []string{"Morning focus", "Evening reflection"},
	})
	if err != nil {
		t.Fatalf("guidance: %v", err)
	}
	if len(result.Items) != 2 || client.generateCalls.Load() != 2 {
		t.Fatalf("expected two generations, got items=%d calls=%d", len(result.Items), client.generateCalls.Load())
	}
	for _, item := range result.Items {
		if item.Text != thaiOutput || item.Corrected {
			t.Fatalf("unexpected item: %+v", item)
		}
	}
	if result.Entitlement.Remaining != 1 {
		t.Fatalf("expected remaining 1, got %d", result.Entitlement.Remaining)
	}

	counter, _ := fx.store.Get(context.Background(), ledger.Key{CallerID: "user-1", Feature: entitlement.FeatureDailyGuidance, Period: "2026-10-18"})
	if counter.Value != 1 {
		t.Fatalf("guidance must increment once per request, got %d", counter.Value)
	}
}

func TestGuidanceFailsWhenAnyGenerationFails(t *testing.T) {
	client := &scriptedLLM{chatErr: errors.New("upstream 500")}
	fx := newFreeFixture(t, client)

	_, err := fx.service.GenerateGuidance(context.Background(), GuidanceRequest{
		Request: Request{CallerID: "user-1"},
		Prompts: []string{"a", "b"},
	})
	if !errors.Is(err, ErrModelFailure) {
		t.Fatalf("expected model failure, got %v", err)
	}

	_, err = fx.service.GenerateGuidance(context.Background(), GuidanceRequest{Request: Request{CallerID: "user-1"}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request without prompts, got %v", err)
	}
}

func TestProfileSynthesis(t *testing.T) {
	client := &scriptedLLM{
		detected: "th",
		record: map[string]any{
			"summary":   "ชอบวิ่งตอนเช้า",
			"interests": []any{"วิ่ง"},
			"goals":     []any{"สุขภาพดี"},
		},
	}
	fx := newFreeFixture(t, client)

	result, err := fx.service.SynthesizeProfile(context.Background(), ProfileRequest{
		Request: Request{CallerID: "user-1", Sample: thaiSample, Prompt: "Notes: ..."},
	})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if result.Verification.Classification != verify.ClassClean || result.Record["summary"] != "ชอบวิ่งตอนเช้า" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Entitlement.PeriodKey != entitlement.LifetimePeriodKey || result.Entitlement.Remaining != 0 {
		t.Fatalf("unexpected entitlement: %+v", result.Entitlement)
	}
	prompts := client.generatePrompts()
	if len(prompts) != 1 || !strings.HasPrefix(prompts[0], "LANGUAGE LOCK: Every string value") {
		t.Fatalf("record prompt must start with the record language lock: %v", prompts)
	}

	// 누적 한도 1 이므로 두 번째 요청은 거부된다.
	_, err = fx.service.SynthesizeProfile(context.Background(), ProfileRequest{
		Request: Request{CallerID: "user-1", Prompt: "Notes: ..."},
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded on second synthesis, got %v", err)
	}
}

func TestProfileMalformedOutput(t *testing.T) {
	client := &scriptedLLM{structuredErr: gemini.ErrMalformedResponse}
	fx := newFreeFixture(t, client)

	_, err := fx.service.SynthesizeProfile(context.Background(), ProfileRequest{Request: Request{CallerID: "user-1", Prompt: "x"}})
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("expected malformed output, got %v", err)
	}

	client = &scriptedLLM{record: map[string]any{"interests": "not-a-list-of-anything", "summary": map[string]any{"x": 1}}}
	fx = newFreeFixture(t, client)
	_, err = fx.service.SynthesizeProfile(context.Background(), ProfileRequest{Request: Request{CallerID: "user-2", Prompt: "x"}})
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("expected malformed output for wrong shape, got %v", err)
	}
}

func TestPlanLockedForFreeTier(t *testing.T) {
	client := &scriptedLLM{record: map[string]any{"title": "t", "days": []any{}}}
	fx := newFreeFixture(t, client)

	_, err := fx.service.PlanDays(context.Background(), PlanRequest{Request: Request{CallerID: "user-1", Prompt: "trip"}, Days: 3})
	var quotaErr *QuotaExceededError
	if !errors.As(err, &quotaErr) || quotaErr.Result.Limit != 0 {
		t.Fatalf("expected locked feature, got %v", err)
	}
	if client.generateCalls.Load() != 0 {
		t.Fatalf("locked feature must not reach the model")
	}
}

func TestPlanForPremium(t *testing.T) {
	client := &scriptedLLM{
		record: map[string]any{
			"title": "Weekend",
			"days": []any{
				map[string]any{"day": float64(1), "title": "Arrive", "tasks": []any{"Check in"}},
				map[string]any{"day": float64(2), "title": "Explore", "tasks": []any{"Museum"}},
			},
		},
	}
	fx := newFreeFixture(t, client)

	result, err := fx.service.PlanDays(context.Background(), PlanRequest{Request: Request{CallerID: "premium-user", Prompt: "Weekend trip"}, Days: 2})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if result.Entitlement.Tier != subscription.TierPremium || result.Entitlement.Remaining != entitlement.DefaultUnlimited {
		t.Fatalf("unexpected entitlement: %+v", result.Entitlement)
	}
	prompts := client.generatePrompts()
	if len(prompts) != 1 || !strings.Contains(prompts[0], "Build a plan covering 2 days.") {
		t.Fatalf("unexpected plan prompt: %v", prompts)
	}
	if !strings.Contains(prompts[0], "(language code \"en\")") {
		t.Fatalf("plan without sample must lock to the default language: %q", prompts[0])
	}

	if _, err := fx.service.PlanDays(context.Background(), PlanRequest{Request: Request{CallerID: "premium-user", Prompt: "x"}, Days: 0}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for zero days, got %v", err)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(nil, nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}
