package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "generation_pipeline"

// Pipeline 은 게이트/언어 결정/출력 검증 결과 카운터다.
// 전역 레지스트리 대신 자체 레지스트리를 쓴다.
type Pipeline struct {
	registry      *prometheus.Registry
	gateDecisions *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
	verifications *prometheus.CounterVec
	corrections   *prometheus.CounterVec
	llmCalls      prometheus.CounterFunc
	llmErrors     prometheus.CounterFunc
}

// NewPipeline 은 카운터를 등록한 Pipeline 을 생성한다. store 가 있으면 LLM 호출 통계도 노출한다.
func NewPipeline(store *Store) *Pipeline {
	registry := prometheus.NewRegistry()
	p := &Pipeline{
		registry: registry,
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Entitlement gate decisions by feature, tier and outcome.",
		}, []string{"feature", "tier", "outcome"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "language_resolutions_total",
			Help:      "Resolved target languages by decision source.",
		}, []string{"source", "language"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Output verification outcomes.",
		}, []string{"kind", "classification", "corrected"}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrective_calls_total",
			Help:      "Corrective model calls by stage and result.",
		}, []string{"stage", "result"}),
	}
	registry.MustRegister(
		p.gateDecisions,
		p.resolutions,
		p.verifications,
		p.corrections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if store != nil {
		p.llmCalls = prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Language model calls.",
		}, func() float64 { return store.Snapshot()["total_calls"] })
		p.llmErrors = prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_errors_total",
			Help:      "Failed language model calls.",
		}, func() float64 { return store.Snapshot()["total_errors"] })
		registry.MustRegister(p.llmCalls, p.llmErrors)
	}
	return p
}

// ObserveGate 는 게이트 판정을 센다.
func (p *Pipeline) ObserveGate(feature string, tier string, outcome string) {
	if tier == "" {
		tier = "unknown"
	}
	p.gateDecisions.WithLabelValues(feature, tier, outcome).Inc()
}

// ObserveResolution 은 언어 결정을 센다.
func (p *Pipeline) ObserveResolution(source string, code string) {
	p.resolutions.WithLabelValues(source, code).Inc()
}

// ObserveVerification 은 검증 결과를 센다.
func (p *Pipeline) ObserveVerification(kind string, classification string, corrected bool) {
	label := "false"
	if corrected {
		label = "true"
	}
	p.verifications.WithLabelValues(kind, classification, label).Inc()
}

// ObserveCorrection 은 교정 호출 결과를 센다.
func (p *Pipeline) ObserveCorrection(stage string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	p.corrections.WithLabelValues(stage, result).Inc()
}

// Registry 는 내부 레지스트리를 반환한다.
func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}

// Handler 는 /metrics 핸들러를 반환한다.
func (p *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
