// Package metrics records agent, model, tool and flow measurements.
//
// Recorder is the sink used throughout agentpipe. NoOp discards everything;
// NewPrometheus registers collectors on a caller supplied registerer so
// several instances (or tests) never collide on the global registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/agentpipe/model"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// StatusOf maps an error to a status label.
func StatusOf(err error) string {
	if err != nil {
		return StatusError
	}

	return StatusSuccess
}

// Recorder receives measurements from agents, executors and flows.
type Recorder interface {
	RecordAgentRun(agent, status string, dur time.Duration)
	RecordLLMCall(provider, modelName, status string, dur time.Duration, usage *model.TokenUsage)
	RecordToolCall(tool, status string, dur time.Duration)
	RecordFlowRun(flow, status string, steps int, dur time.Duration)
	RecordTypeMismatch(stage string)
}

// OrNoOp returns r, or NoOp when r is nil.
func OrNoOp(r Recorder) Recorder {
	if r == nil {
		return NoOp{}
	}

	return r
}

// NoOp discards all measurements.
type NoOp struct{}

// RecordAgentRun implements Recorder.
func (NoOp) RecordAgentRun(string, string, time.Duration) {}

// RecordLLMCall implements Recorder.
func (NoOp) RecordLLMCall(string, string, string, time.Duration, *model.TokenUsage) {}

// RecordToolCall implements Recorder.
func (NoOp) RecordToolCall(string, string, time.Duration) {}

// RecordFlowRun implements Recorder.
func (NoOp) RecordFlowRun(string, string, int, time.Duration) {}

// RecordTypeMismatch implements Recorder.
func (NoOp) RecordTypeMismatch(string) {}

// PrometheusOptions configures NewPrometheus.
type PrometheusOptions struct {
	// Namespace prefixes every metric name. Defaults to "agentpipe".
	Namespace string
	// Registerer receives the collectors. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Prometheus is a Recorder backed by prometheus collectors.
type Prometheus struct {
	agentRuns      *prometheus.CounterVec
	agentDuration  *prometheus.HistogramVec
	llmRequests    *prometheus.CounterVec
	llmDuration    *prometheus.HistogramVec
	llmTokens      *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	flowRuns       *prometheus.CounterVec
	flowDuration   *prometheus.HistogramVec
	flowSteps      *prometheus.HistogramVec
	typeMismatches *prometheus.CounterVec
}

// NewPrometheus creates and registers the collectors.
func NewPrometheus(optFns ...func(o *PrometheusOptions)) *Prometheus {
	opts := PrometheusOptions{
		Namespace:  "agentpipe",
		Registerer: prometheus.DefaultRegisterer,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	factory := promauto.With(opts.Registerer)
	ns := opts.Namespace

	return &Prometheus{
		agentRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "agent_runs_total",
			Help:      "Total number of agent runs",
		}, []string{"agent", "status"}),
		agentDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "agent_run_duration_seconds",
			Help:      "Agent run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"agent"}),
		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		}, []string{"provider", "model", "status"}),
		llmDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		llmTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		}, []string{"provider", "model", "type"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		}, []string{"tool", "status"}),
		toolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		flowRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "flow_runs_total",
			Help:      "Total number of flow runs",
		}, []string{"flow", "status"}),
		flowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "flow_run_duration_seconds",
			Help:      "Flow run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"flow"}),
		flowSteps: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "flow_run_steps",
			Help:      "Number of stages executed per flow run",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}, []string{"flow"}),
		typeMismatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "type_mismatches_total",
			Help:      "Total number of type mismatches detected while composing or running flows",
		}, []string{"stage"}),
	}
}

// RecordAgentRun implements Recorder.
func (p *Prometheus) RecordAgentRun(agent, status string, dur time.Duration) {
	p.agentRuns.WithLabelValues(agent, status).Inc()
	p.agentDuration.WithLabelValues(agent).Observe(dur.Seconds())
}

// RecordLLMCall implements Recorder.
func (p *Prometheus) RecordLLMCall(provider, modelName, status string, dur time.Duration, usage *model.TokenUsage) {
	p.llmRequests.WithLabelValues(provider, modelName, status).Inc()
	p.llmDuration.WithLabelValues(provider, modelName).Observe(dur.Seconds())

	if usage != nil {
		p.llmTokens.WithLabelValues(provider, modelName, "prompt").Add(float64(usage.PromptTokens))
		p.llmTokens.WithLabelValues(provider, modelName, "completion").Add(float64(usage.CompletionTokens))
	}
}

// RecordToolCall implements Recorder.
func (p *Prometheus) RecordToolCall(tool, status string, dur time.Duration) {
	p.toolCalls.WithLabelValues(tool, status).Inc()
	p.toolDuration.WithLabelValues(tool).Observe(dur.Seconds())
}

// RecordFlowRun implements Recorder.
func (p *Prometheus) RecordFlowRun(flow, status string, steps int, dur time.Duration) {
	p.flowRuns.WithLabelValues(flow, status).Inc()
	p.flowDuration.WithLabelValues(flow).Observe(dur.Seconds())
	p.flowSteps.WithLabelValues(flow).Observe(float64(steps))
}

// RecordTypeMismatch implements Recorder.
func (p *Prometheus) RecordTypeMismatch(stage string) {
	p.typeMismatches.WithLabelValues(stage).Inc()
}
