package core

import (
	"context"

	"github.com/hupe1980/agentpipe/logging"
)

// ToolContext provides the scoped surface handed to tool implementations for a
// single function call: the caller's context, the correlating call id, the
// invoking agent and a logger.
type ToolContext struct {
	ctx            context.Context
	functionCallID string
	agentName      string
	logger         logging.Logger
}

// NewToolContext constructs a tool context for one function call. A nil ctx
// becomes context.Background and a nil logger a NoOp logger.
func NewToolContext(ctx context.Context, agentName, functionCallID string, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}

	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &ToolContext{
		ctx:            ctx,
		functionCallID: functionCallID,
		agentName:      agentName,
		logger:         logger,
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the name of the agent that requested the call.
func (tc *ToolContext) AgentName() string { return tc.agentName }

// Logger returns the underlying logger.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// LogDebug logs at debug level with the agent and call id attached.
func (tc *ToolContext) LogDebug(msg string, args ...any) {
	tc.logger.Debug(msg, tc.callAttrs(args)...)
}

// LogInfo logs at info level with the agent and call id attached.
func (tc *ToolContext) LogInfo(msg string, args ...any) {
	tc.logger.Info(msg, tc.callAttrs(args)...)
}

// LogWarn logs at warn level with the agent and call id attached.
func (tc *ToolContext) LogWarn(msg string, args ...any) {
	tc.logger.Warn(msg, tc.callAttrs(args)...)
}

// LogError logs at error level with the agent and call id attached.
func (tc *ToolContext) LogError(msg string, args ...any) {
	tc.logger.Error(msg, tc.callAttrs(args)...)
}

func (tc *ToolContext) callAttrs(args []any) []any {
	attrs := make([]any, 0, len(args)+4)
	attrs = append(attrs, "agent", tc.agentName, "fc_id", tc.functionCallID)

	return append(attrs, args...)
}
