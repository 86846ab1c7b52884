package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/ledger"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/subscription"
	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/telemetry"
)

var (
	// ErrQuotaRead 는 구독/카운터 조회 실패 오류다. 요청을 차단해야 한다.
	ErrQuotaRead = errors.New("quota read failed")
	// ErrInvalidCaller 는 호출자 식별자가 비어 있는 오류다.
	ErrInvalidCaller = errors.New("caller id is empty")
)

// 게이트 판정 결과 라벨이다.
const (
	OutcomeAllowed     = "allowed"
	OutcomeDenied      = "denied"
	OutcomePremium     = "premium"
	OutcomeWriteFailed = "write_failed"
	OutcomeReadFailed  = "read_failed"
)

// Result 는 게이트 판정 결과다.
type Result struct {
	Allowed      bool   `json:"allowed"`
	Remaining    int64  `json:"remaining"`
	Tier         string `json:"tier"`
	CurrentUsage int64  `json:"current_usage"`
	Limit        int64  `json:"limit"`
	Feature      string `json:"feature"`
	PeriodKey    string `json:"period_key,omitempty"`
}

// Observer 는 게이트 판정 결과를 수집한다.
type Observer interface {
	ObserveGate(feature string, tier string, outcome string)
}

// Option 은 Gate 옵션이다.
type Option func(*Gate)

// WithObserver 는 판정 결과 수집기를 지정한다.
func WithObserver(observer Observer) Option {
	return func(g *Gate) {
		g.observer = observer
	}
}

// WithLocation 은 일 단위 period key 의 타임존을 지정한다.
func WithLocation(loc *time.Location) Option {
	return func(g *Gate) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithClock 은 현재 시각 함수를 지정한다.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// Gate 는 구독 등급과 사용량 카운터로 기능 사용 허용 여부를 판정한다.
type Gate struct {
	limits   TierLimits
	subs     subscription.Lookup
	store    ledger.Store
	logger   *slog.Logger
	observer Observer
	loc      *time.Location
	now      func() time.Time
}

// NewGate 는 Gate 를 생성한다.
func NewGate(limits TierLimits, subs subscription.Lookup, store ledger.Store, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		limits: limits,
		subs:   subs,
		store:  store,
		logger: logger,
		loc:    time.UTC,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Limits 는 주입된 한도표를 반환한다.
func (g *Gate) Limits() TierLimits {
	return g.limits
}

// PeriodKey 는 기능과 시각으로 period key 를 계산한다.
func (g *Gate) PeriodKey(feature string, at time.Time) (string, error) {
	period, err := g.limits.Period(feature)
	if err != nil {
		return "", err
	}
	if period == PeriodLifetime {
		return LifetimePeriodKey, nil
	}
	return at.In(g.loc).Format(time.DateOnly), nil
}

// CheckAndIncrement 는 사용 가능 여부를 판정하고, 허용 시 카운터를 1 증가시킨다.
// premium 호출자는 카운터를 읽지도 쓰지도 않는다.
// 조회 실패는 ErrQuotaRead 로 반환하고, 증가 실패는 로그만 남기고 허용한다.
func (g *Gate) CheckAndIncrement(ctx context.Context, callerID string, feature string) (result Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "entitlement.check",
		attribute.String("feature", feature),
	)
	defer func() {
		span.SetAttributes(
			attribute.Bool("allowed", result.Allowed),
			attribute.String("tier", result.Tier),
		)
		telemetry.EndSpan(span, err)
	}()

	record, err := g.resolveSubscription(ctx, callerID, feature)
	if err != nil {
		return Result{Feature: feature}, err
	}
	if record.IsPremium() {
		g.observe(feature, subscription.TierPremium, OutcomePremium)
		return g.premiumResult(feature), nil
	}

	tier := subscription.TierFree
	limit, err := g.limits.Limit(feature, tier)
	if err != nil {
		return Result{Feature: feature}, err
	}
	periodKey, err := g.PeriodKey(feature, g.now())
	if err != nil {
		return Result{Feature: feature}, err
	}
	key := ledger.Key{CallerID: callerID, Feature: feature, Period: periodKey}
	base := Result{Tier: tier, Limit: limit, Feature: feature, PeriodKey: periodKey}

	counter, err := g.store.Get(ctx, key)
	if err != nil {
		g.observe(feature, tier, OutcomeReadFailed)
		if g.logger != nil {
			g.logger.Error("ledger_read_failed", "caller_id", callerID, "feature", feature, "period", periodKey, "err", err)
		}
		return base, fmt.Errorf("%w: %w", ErrQuotaRead, err)
	}

	if counter.Value >= limit {
		g.observe(feature, tier, OutcomeDenied)
		base.CurrentUsage = counter.Value
		return base, nil
	}

	inc, err := g.store.IncrementBelow(ctx, key, limit)
	if err != nil {
		g.observe(feature, tier, OutcomeWriteFailed)
		if g.logger != nil {
			g.logger.Warn("ledger_increment_failed", "caller_id", callerID, "feature", feature, "period", periodKey, "err", err)
		}
		base.Allowed = true
		base.CurrentUsage = counter.Value + 1
		base.Remaining = limit - base.CurrentUsage
		return base, nil
	}

	if !inc.Applied {
		// 동시 요청이 마지막 한도를 먼저 소진한 경우다.
		g.observe(feature, tier, OutcomeDenied)
		base.CurrentUsage = inc.Value
		return base, nil
	}

	g.observe(feature, tier, OutcomeAllowed)
	base.Allowed = true
	base.CurrentUsage = inc.Value
	base.Remaining = max(0, limit-inc.Value)
	return base, nil
}

// Status 는 카운터를 증가시키지 않고 현재 사용 현황을 반환한다.
func (g *Gate) Status(ctx context.Context, callerID string, feature string) (Result, error) {
	record, err := g.resolveSubscription(ctx, callerID, feature)
	if err != nil {
		return Result{Feature: feature}, err
	}
	if record.IsPremium() {
		return g.premiumResult(feature), nil
	}

	tier := subscription.TierFree
	limit, err := g.limits.Limit(feature, tier)
	if err != nil {
		return Result{Feature: feature}, err
	}
	periodKey, err := g.PeriodKey(feature, g.now())
	if err != nil {
		return Result{Feature: feature}, err
	}
	counter, err := g.store.Get(ctx, ledger.Key{CallerID: callerID, Feature: feature, Period: periodKey})
	if err != nil {
		return Result{Feature: feature, Tier: tier}, fmt.Errorf("%w: %w", ErrQuotaRead, err)
	}

	return Result{
		Allowed:      counter.Value < limit,
		Remaining:    max(0, limit-counter.Value),
		Tier:         tier,
		CurrentUsage: counter.Value,
		Limit:        limit,
		Feature:      feature,
		PeriodKey:    periodKey,
	}, nil
}

func (g *Gate) resolveSubscription(ctx context.Context, callerID string, feature string) (subscription.Record, error) {
	if strings.TrimSpace(callerID) == "" {
		return subscription.Record{}, ErrInvalidCaller
	}
	if !g.limits.Has(feature) {
		return subscription.Record{}, fmt.Errorf("%w: %s", ErrUnknownFeature, feature)
	}
	record, err := g.subs.Get(ctx, callerID)
	if err != nil {
		if g.logger != nil {
			g.logger.Error("subscription_read_failed", "caller_id", callerID, "feature", feature, "err", err)
		}
		g.observe(feature, "", OutcomeReadFailed)
		return subscription.Record{}, fmt.Errorf("%w: %w", ErrQuotaRead, err)
	}
	return record, nil
}

func (g *Gate) premiumResult(feature string) Result {
	return Result{
		Allowed:   true,
		Remaining: g.limits.Unlimited(),
		Tier:      subscription.TierPremium,
		Limit:     g.limits.Unlimited(),
		Feature:   feature,
	}
}

func (g *Gate) observe(feature string, tier string, outcome string) {
	if g.observer == nil {
		return
	}
	g.observer.ObserveGate(feature, tier, outcome)
}
