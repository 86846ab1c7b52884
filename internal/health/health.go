package health

import (
	"context"
	"time"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/metrics"
)

var startTime = time.Now()

const deepCheckTimeout = 2 * time.Second

// Component 는 상태 구성 요소다.
type Component struct {
	Status string         `json:"status"`
	Detail map[string]any `json:"detail"`
}

// Response 는 상태 응답 본문이다.
type Response struct {
	Status     string               `json:"status"`
	Components map[string]Component `json:"components"`
}

// Pinger 는 연결 확인이 가능한 의존성이다.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LedgerProbe 는 카운터 저장소 상태 확인 대상이다.
type LedgerProbe interface {
	Pinger
	Backend() string
}

// Checker 는 구성 요소별 상태를 수집한다.
type Checker struct {
	cfg          *config.Config
	ledger       LedgerProbe
	subscription Pinger
	stats        *metrics.Store
}

// NewChecker 는 Checker 를 생성한다. subscription 이 nil 이면 구독 저장소 검사를 건너뛴다.
func NewChecker(cfg *config.Config, ledger LedgerProbe, subscription Pinger, stats *metrics.Store) *Checker {
	return &Checker{
		cfg:          cfg,
		ledger:       ledger,
		subscription: subscription,
		stats:        stats,
	}
}

// Collect 는 헬스 상태를 수집한다.
// deepChecks 가 false 이면 외부 저장소에 접속하지 않는다.
func (c *Checker) Collect(ctx context.Context, deepChecks bool) Response {
	if ctx == nil {
		ctx = context.Background()
	}

	components := map[string]Component{
		"app":    buildAppStatus(),
		"gemini": buildGeminiStatus(c.cfg),
		"ledger": c.buildLedgerStatus(ctx, deepChecks),
	}
	if c.subscription != nil {
		components["subscription"] = buildPingStatus(ctx, c.subscription, deepChecks)
	}
	if c.stats != nil {
		components["llm"] = Component{Status: "ok", Detail: snapshotDetail(c.stats.Snapshot())}
	}

	overall := "ok"
	for _, component := range components {
		if component.Status != "ok" {
			overall = "degraded"
			break
		}
	}

	return Response{
		Status:     overall,
		Components: components,
	}
}

func buildAppStatus() Component {
	uptimeSeconds := int(time.Since(startTime).Seconds())
	return Component{
		Status: "ok",
		Detail: map[string]any{
			"uptime_seconds": uptimeSeconds,
		},
	}
}

func buildGeminiStatus(cfg *config.Config) Component {
	apiKeyPresent := false
	defaultModel := ""
	timeoutSeconds := 0
	maxRetries := 0

	if cfg != nil {
		apiKeyPresent = cfg.Gemini.PrimaryKey() != ""
		defaultModel = cfg.Gemini.DefaultModel
		timeoutSeconds = cfg.Gemini.TimeoutSeconds
		maxRetries = cfg.Gemini.MaxRetries
	}
	status := "ok"
	if !apiKeyPresent {
		status = "degraded"
	}

	return Component{
		Status: status,
		Detail: map[string]any{
			"api_key_present": apiKeyPresent,
			"default_model":   defaultModel,
			"timeout_seconds": timeoutSeconds,
			"max_retries":     maxRetries,
		},
	}
}

func (c *Checker) buildLedgerStatus(ctx context.Context, deepChecks bool) Component {
	if c.ledger == nil {
		return Component{Status: "degraded", Detail: map[string]any{"configured": false}}
	}
	component := buildPingStatus(ctx, c.ledger, deepChecks)
	component.Detail["backend"] = c.ledger.Backend()
	return component
}

func buildPingStatus(ctx context.Context, target Pinger, deepChecks bool) Component {
	detail := map[string]any{"deep_checked": deepChecks}
	if !deepChecks {
		return Component{Status: "ok", Detail: detail}
	}

	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deepCheckTimeout)
	defer cancel()

	if err := target.Ping(checkCtx); err != nil {
		detail["connected"] = false
		detail["error"] = err.Error()
		return Component{Status: "degraded", Detail: detail}
	}
	detail["connected"] = true
	return Component{Status: "ok", Detail: detail}
}

func snapshotDetail(snapshot map[string]float64) map[string]any {
	detail := make(map[string]any, len(snapshot))
	for key, value := range snapshot {
		detail[key] = value
	}
	return detail
}
