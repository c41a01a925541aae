package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpipe/model"
)

func newTestRecorder(t *testing.T) (*Prometheus, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	rec := NewPrometheus(func(o *PrometheusOptions) {
		o.Namespace = "test"
		o.Registerer = reg
	})

	return rec, reg
}

func TestPrometheus_Records(t *testing.T) {
	rec, reg := newTestRecorder(t)

	rec.RecordAgentRun("writer", StatusSuccess, 20*time.Millisecond)
	rec.RecordAgentRun("writer", StatusError, 10*time.Millisecond)
	rec.RecordLLMCall("mock", "m1", StatusSuccess, time.Millisecond, &model.TokenUsage{PromptTokens: 3, CompletionTokens: 5})
	rec.RecordToolCall("search", StatusSuccess, time.Millisecond)
	rec.RecordFlowRun("pipeline", StatusSuccess, 3, time.Second)
	rec.RecordTypeMismatch("summarizer")

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.agentRuns.WithLabelValues("writer", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.agentRuns.WithLabelValues("writer", StatusError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(rec.llmTokens.WithLabelValues("mock", "m1", "prompt")))
	assert.Equal(t, 5.0, testutil.ToFloat64(rec.llmTokens.WithLabelValues("mock", "m1", "completion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.toolCalls.WithLabelValues("search", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.flowRuns.WithLabelValues("pipeline", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.typeMismatches.WithLabelValues("summarizer")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestPrometheus_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		newTestRecorder(t)
		newTestRecorder(t)
	})
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusSuccess, StatusOf(nil))
	assert.Equal(t, StatusError, StatusOf(errors.New("x")))
}

func TestOrNoOp(t *testing.T) {
	assert.Equal(t, NoOp{}, OrNoOp(nil))

	rec, _ := newTestRecorder(t)
	assert.Same(t, rec, OrNoOp(rec))
}
