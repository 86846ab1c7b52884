package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/httperror"
)

// CallerIDHeader 는 인증 게이트웨이가 채우는 호출자 식별 헤더다.
const CallerIDHeader = "X-Caller-ID"

const callerIDKey = "caller_id"

// maxCallerIDLength 를 넘는 식별자는 거부한다.
const maxCallerIDLength = 128

// CallerID 는 호출자 식별자를 컨텍스트에 저장한다.
func CallerID() gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID := strings.TrimSpace(c.GetHeader(CallerIDHeader))
		if callerID != "" && len(callerID) <= maxCallerIDLength {
			c.Set(callerIDKey, callerID)
		}
		c.Next()
	}
}

// RequireCaller 는 호출자 식별자가 없으면 401 로 중단한다.
func RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetCallerID(c) == "" {
			status, payload := httperror.Response(httperror.NewUnauthenticated(), GetRequestID(c))
			c.AbortWithStatusJSON(status, payload)
			return
		}
		c.Next()
	}
}

// GetCallerID 는 컨텍스트의 호출자 식별자를 반환한다.
func GetCallerID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	value, ok := c.Get(callerIDKey)
	if !ok {
		return ""
	}
	callerID, ok := value.(string)
	if !ok {
		return ""
	}
	return callerID
}
