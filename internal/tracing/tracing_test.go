package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartEnd(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)

	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, ok := Start(context.Background(), SpanAgentRun, attribute.String(AttrAgentName, "writer"))
	End(ok, nil)

	_, failing := Start(context.Background(), SpanToolCall)
	End(failing, errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, SpanAgentRun, spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String(AttrAgentName, "writer"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, SpanToolCall, spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", Preview("abc", 5))
	assert.Equal(t, "ab...", Preview("abcdef", 2))
}
