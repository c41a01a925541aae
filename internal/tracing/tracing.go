// Package tracing wraps OpenTelemetry span creation for agents, model calls,
// tool calls and flows. Spans are no-ops unless the application installs a
// tracer provider.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/hupe1980/agentpipe"

// Span names.
const (
	SpanAgentRun = "agentpipe.agent.run"
	SpanLLMCall  = "agentpipe.llm.call"
	SpanToolCall = "agentpipe.tool.call"
	SpanFlowRun  = "agentpipe.flow.run"
	SpanFlowStep = "agentpipe.flow.step"
)

// Attribute keys.
const (
	AttrAgentName    = "agentpipe.agent.name"
	AttrModelName    = "agentpipe.model.name"
	AttrProvider     = "agentpipe.model.provider"
	AttrToolName     = "agentpipe.tool.name"
	AttrToolCallID   = "agentpipe.tool.call_id"
	AttrFlowName     = "agentpipe.flow.name"
	AttrStepName     = "agentpipe.flow.step"
	AttrStepIndex    = "agentpipe.flow.step_index"
	AttrInputPreview = "agentpipe.input_preview"
	AttrTotalTokens  = "agentpipe.usage.total_tokens"
)

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Start opens a span with the given attributes.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err (if any) on span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

// Preview truncates s for use as a span attribute.
func Preview(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}

	return s
}
