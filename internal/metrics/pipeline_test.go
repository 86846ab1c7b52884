package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineCounters(t *testing.T) {
	p := NewPipeline(nil)

	p.ObserveGate("studio_generate", "free", "allowed")
	p.ObserveGate("studio_generate", "free", "allowed")
	p.ObserveGate("studio_generate", "", "read_failed")
	p.ObserveResolution("detected", "th")
	p.ObserveVerification("text", "mixed", true)
	p.ObserveCorrection("refine", false)

	if got := testutil.ToFloat64(p.gateDecisions.WithLabelValues("studio_generate", "free", "allowed")); got != 2 {
		t.Fatalf("expected 2 allowed decisions, got %v", got)
	}
	if got := testutil.ToFloat64(p.gateDecisions.WithLabelValues("studio_generate", "unknown", "read_failed")); got != 1 {
		t.Fatalf("expected empty tier to be labelled unknown, got %v", got)
	}
	if got := testutil.ToFloat64(p.resolutions.WithLabelValues("detected", "th")); got != 1 {
		t.Fatalf("expected 1 resolution, got %v", got)
	}
	if got := testutil.ToFloat64(p.verifications.WithLabelValues("text", "mixed", "true")); got != 1 {
		t.Fatalf("expected 1 verification, got %v", got)
	}
	if got := testutil.ToFloat64(p.corrections.WithLabelValues("refine", "failed")); got != 1 {
		t.Fatalf("expected 1 failed correction, got %v", got)
	}
}

func TestPipelineHandlerExposesStoreStats(t *testing.T) {
	store := NewStore()
	store.RecordError(10 * time.Millisecond)
	p := NewPipeline(store)
	p.ObserveGate("daily_guidance", "premium", "premium")

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		"generation_pipeline_gate_decisions_total",
		"generation_pipeline_llm_errors_total 1",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
