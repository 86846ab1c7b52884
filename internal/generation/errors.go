package generation

import (
	"errors"
	"fmt"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/entitlement"
)

var (
	// ErrQuotaExceeded 는 게이트가 요청을 거부한 오류다. QuotaExceededError 로 판정 결과를 꺼낼 수 있다.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrUnauthenticated 는 호출자 식별자가 없는 오류다.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrModelFailure 는 생성 호출이 실패했거나 빈 응답을 돌려준 오류다.
	ErrModelFailure = errors.New("model failure")
	// ErrMalformedOutput 은 구조화 응답을 레코드로 해석하지 못한 오류다.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrInvalidRequest 는 요청 본문이 비어 있거나 범위를 벗어난 오류다.
	ErrInvalidRequest = errors.New("invalid request")
)

// QuotaExceededError 는 거부된 게이트 판정 결과를 담는다.
type QuotaExceededError struct {
	Result entitlement.Result
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: feature=%s tier=%s usage=%d/%d",
		e.Result.Feature, e.Result.Tier, e.Result.CurrentUsage, e.Result.Limit)
}

// Is 는 errors.Is(err, ErrQuotaExceeded) 판정을 지원한다.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
