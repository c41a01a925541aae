package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpipe/logging"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct{ entries []logEntry }

func (c *captureLogger) record(level, msg string, args []any) {
	c.entries = append(c.entries, logEntry{level: level, msg: msg, args: args})
}

func (c *captureLogger) Debug(msg string, args ...any) { c.record("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.record("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.record("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.record("error", msg, args) }

type ctxKey struct{}

func TestNewToolContext_Accessors(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxKey{}, "v")

	tc := NewToolContext(ctx, "researcher", "call_1", nil)
	assert.Equal(t, "v", tc.Context().Value(ctxKey{}))
	assert.Equal(t, "researcher", tc.AgentName())
	assert.Equal(t, "call_1", tc.FunctionCallID())
}

func TestNewToolContext_Defaults(t *testing.T) {
	tc := NewToolContext(nil, "a", "c", nil)

	require.NotNil(t, tc.Context())
	assert.NoError(t, tc.Context().Err())
	assert.IsType(t, logging.NoOpLogger{}, tc.Logger())

	assert.NotPanics(t, func() {
		tc.LogDebug("d")
		tc.LogInfo("i")
		tc.LogWarn("w")
		tc.LogError("e")
	})
}

func TestToolContext_LogAttachesCallAttributes(t *testing.T) {
	logger := &captureLogger{}
	tc := NewToolContext(context.Background(), "weather", "call_7", logger)

	assert.Same(t, logger, tc.Logger())

	tc.LogDebug("tool.call.start", "tool", "lookup")
	tc.LogInfo("lookup.hit")
	tc.LogWarn("lookup.slow", "ms", 900)
	tc.LogError("lookup.failed", "error", "timeout")

	require.Len(t, logger.entries, 4)

	levels := make([]string, 0, len(logger.entries))
	for _, e := range logger.entries {
		levels = append(levels, e.level)
		assert.Equal(t, []any{"agent", "weather", "fc_id", "call_7"}, e.args[:4])
	}

	assert.Equal(t, []string{"debug", "info", "warn", "error"}, levels)
	assert.Equal(t, []any{"agent", "weather", "fc_id", "call_7", "tool", "lookup"}, logger.entries[0].args)
	assert.Len(t, logger.entries[1].args, 4)
}
