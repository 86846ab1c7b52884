package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newCallerRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), CallerID())
	router.GET("/api/open", func(c *gin.Context) {
		c.String(http.StatusOK, GetCallerID(c))
	})
	router.GET("/api/closed", RequireCaller(), func(c *gin.Context) {
		c.String(http.StatusOK, GetCallerID(c))
	})
	return router
}

func TestCallerIDStored(t *testing.T) {
	router := newCallerRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/closed", nil)
	req.Header.Set(CallerIDHeader, "  user-42 ")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || resp.Body.String() != "user-42" {
		t.Fatalf("unexpected response: %d %q", resp.Code, resp.Body.String())
	}
}

func TestRequireCallerRejectsMissing(t *testing.T) {
	router := newCallerRouter()

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/closed", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "UNAUTHORIZED") {
		t.Fatalf("expected unauthorized error code, got %s", resp.Body.String())
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/open", nil))
	if resp.Code != http.StatusOK || resp.Body.String() != "" {
		t.Fatalf("open route must pass without caller: %d %q", resp.Code, resp.Body.String())
	}
}

func TestCallerIDTooLongIgnored(t *testing.T) {
	router := newCallerRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/closed", nil)
	req.Header.Set(CallerIDHeader, strings.Repeat("x", maxCallerIDLength+1))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for oversized caller id, got %d", resp.Code)
	}
}
