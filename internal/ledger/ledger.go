package ledger

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrInvalidKey 는 식별자가 비어 있는 카운터 키 오류다.
var ErrInvalidKey = errors.New("ledger key is incomplete")

// DefaultOpTimeout 은 저장소 연산 하나에 허용하는 기본 시간이다.
const DefaultOpTimeout = 2 * time.Second

// withOpTimeout 은 연산 단위 deadline 을 건다. 호출자 deadline 이 더 짧으면 그대로 따른다.
func withOpTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Key 는 (caller, feature, period) 카운터 식별자다.
type Key struct {
	CallerID string
	Feature  string
	Period   string
}

// Validate 는 세 식별자가 모두 채워졌는지 확인한다.
func (k Key) Validate() error {
	if strings.TrimSpace(k.CallerID) == "" || strings.TrimSpace(k.Feature) == "" || strings.TrimSpace(k.Period) == "" {
		return ErrInvalidKey
	}
	return nil
}

func (k Key) redisKey(prefix string) string {
	return prefix + ":" + k.CallerID + ":" + k.Feature + ":" + k.Period
}

// Counter 는 카운터 현재 값이다. 미존재 카운터는 0 값이다.
type Counter struct {
	Value       int64
	LastUpdated time.Time
}

// Increment 는 조건부 증가 결과다.
// Applied 가 false 이면 limit 에 도달해 쓰기를 하지 않았고 Value 는 현재 값이다.
type Increment struct {
	Applied bool
	Value   int64
}

// Store 는 사용량 카운터 저장소다.
// IncrementBelow 는 "value < limit 이면 +1" 을 하나의 원자 연산으로 수행해야 한다.
type Store interface {
	Get(ctx context.Context, key Key) (Counter, error)
	IncrementBelow(ctx context.Context, key Key, limit int64) (Increment, error)
	Ping(ctx context.Context) error
	Backend() string
	Close()
}
