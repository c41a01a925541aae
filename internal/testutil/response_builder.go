package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/model"
)

// ResponseBuilder provides a fluent helper for constructing model responses.
// Example:
//
//	resp := NewResponseBuilder().Call("get_weather", map[string]any{"city": "Paris"}).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type ResponseBuilder struct {
	textParts    []string
	funcCalls    []core.FunctionCall
	finishReason string
	usage        *model.TokenUsage
}

// NewResponseBuilder creates an empty builder.
func NewResponseBuilder() *ResponseBuilder { return &ResponseBuilder{} }

// Text appends an assistant text part (chainable).
func (b *ResponseBuilder) Text(t string) *ResponseBuilder {
	b.textParts = append(b.textParts, t)
	return b
}

// Call adds a function call with arguments encoded as JSON (chainable). The
// call id is derived from its position.
func (b *ResponseBuilder) Call(name string, args map[string]any) *ResponseBuilder {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("testutil: cannot encode args for %s: %v", name, err))
	}

	return b.RawCall(fmt.Sprintf("call_%d", len(b.funcCalls)+1), name, string(raw))
}

// RawCall adds a function call with an explicit id and argument string (chainable).
func (b *ResponseBuilder) RawCall(id, name, args string) *ResponseBuilder {
	b.funcCalls = append(b.funcCalls, core.FunctionCall{ID: id, Name: name, Arguments: args})
	return b
}

// FinishReason overrides the finish reason (chainable).
func (b *ResponseBuilder) FinishReason(r string) *ResponseBuilder { b.finishReason = r; return b }

// Usage sets token usage (chainable).
func (b *ResponseBuilder) Usage(prompt, completion int) *ResponseBuilder {
	b.usage = &model.TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	return b
}

// Build constructs the final (non partial) response.
func (b *ResponseBuilder) Build() model.Response {
	parts := make([]core.Part, 0, len(b.textParts)+len(b.funcCalls))
	for _, t := range b.textParts {
		parts = append(parts, core.TextPart{Text: t})
	}

	for _, fc := range b.funcCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}

	finish := b.finishReason
	if finish == "" {
		finish = "stop"
		if len(b.funcCalls) > 0 {
			finish = "tool_calls"
		}
	}

	return model.Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finish,
		Usage:        b.usage,
	}
}
