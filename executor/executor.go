// Package executor runs the tool-calling loop behind tool-using agents.
//
// Each iteration sends the conversation plus the tool declarations to the
// model. Function calls in the reply are executed (in parallel, bounded, with
// results kept in call order) and fed back as tool turns. The loop ends with
// the first reply that requests no tools; its text is the output.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/internal/tracing"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/metrics"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/tool"
)

// ErrMaxIterations is returned when the model keeps requesting tools past
// the configured iteration limit.
var ErrMaxIterations = errors.New("tool loop exceeded max iterations")

// DefaultMaxIterations bounds the number of model turns per run.
const DefaultMaxIterations = 10

// Options configures an Executor.
type Options struct {
	// AgentName is reported to tools and in logs.
	AgentName string
	// Instructions is the system prompt sent with every turn.
	Instructions string
	// MaxIterations bounds model turns; <= 0 uses DefaultMaxIterations.
	MaxIterations int
	// MaxParallel bounds concurrent tool calls per turn; <= 0 means unbounded.
	MaxParallel int
	Logger      logging.Logger
	Metrics     metrics.Recorder
}

// Step records one executed tool call.
type Step struct {
	Call     core.FunctionCall
	Result   any
	Err      error
	Duration time.Duration
}

// Result is the outcome of a run.
type Result struct {
	Output     string
	Steps      []Step
	Usage      model.TokenUsage
	Iterations int
}

// Executor drives a model through tool calls until it produces an answer.
type Executor struct {
	model    model.Model
	tools    []tool.Tool
	registry map[string]tool.Tool
	defs     []model.ToolDefinition
	opts     Options
}

// New creates an Executor. Tool names must be unique.
func New(m model.Model, tools []tool.Tool, optFns ...func(o *Options)) (*Executor, error) {
	if m == nil {
		return nil, fmt.Errorf("executor: model is required")
	}

	opts := Options{MaxIterations: DefaultMaxIterations}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	opts.Logger = logging.OrNoOp(opts.Logger)
	opts.Metrics = metrics.OrNoOp(opts.Metrics)

	registry, err := tool.Index(tools)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	return &Executor{
		model:    m,
		tools:    tools,
		registry: registry,
		defs:     tool.Definitions(tools),
		opts:     opts,
	}, nil
}

// Tools returns the tools available to the model.
func (e *Executor) Tools() []tool.Tool { return e.tools }

// Run executes the loop for input and returns the final answer.
func (e *Executor) Run(ctx context.Context, input string) (*Result, error) {
	return e.RunWithInstructions(ctx, e.opts.Instructions, input)
}

// RunWithInstructions is like Run but overrides the system prompt for this
// run only.
func (e *Executor) RunWithInstructions(ctx context.Context, instructions, input string) (*Result, error) {
	logger := e.opts.Logger
	contents := []core.Content{core.NewTextContent(core.RoleUser, input)}
	result := &Result{}

	for iter := 0; iter < e.opts.MaxIterations; iter++ {
		result.Iterations = iter + 1

		resp, err := e.generate(ctx, instructions, contents)
		if err != nil {
			return result, err
		}

		result.Usage.Add(resp.Usage)

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 {
			result.Output = resp.Content.Text()

			logger.Debug("executor.run.complete", "agent", e.opts.AgentName, "iterations", result.Iterations, "steps", len(result.Steps))

			return result, nil
		}

		calls = ensureCallIDs(calls)
		contents = append(contents, assistantContent(resp.Content, calls))

		steps, err := e.executeCalls(ctx, calls)
		if err != nil {
			return result, err
		}

		result.Steps = append(result.Steps, steps...)
		contents = append(contents, toolContent(steps))
	}

	logger.Warn("executor.run.max_iterations", "agent", e.opts.AgentName, "max_iterations", e.opts.MaxIterations)

	return result, fmt.Errorf("%s: %w (%d)", e.opts.AgentName, ErrMaxIterations, e.opts.MaxIterations)
}

func (e *Executor) generate(ctx context.Context, instructions string, contents []core.Content) (*model.Response, error) {
	info := e.model.Info()

	ctx, span := tracing.Start(ctx, tracing.SpanLLMCall,
		attribute.String(tracing.AttrAgentName, e.opts.AgentName),
		attribute.String(tracing.AttrModelName, info.Name),
		attribute.String(tracing.AttrProvider, info.Provider),
	)

	start := time.Now()
	resp, err := model.Collect(ctx, e.model, model.Request{
		Instructions: instructions,
		Contents:     contents,
		Tools:        e.defs,
	})
	dur := time.Since(start)

	var usage *model.TokenUsage
	if resp != nil {
		usage = resp.Usage
		if usage != nil {
			span.SetAttributes(attribute.Int(tracing.AttrTotalTokens, usage.TotalTokens))
		}
	}

	tracing.End(span, err)
	e.opts.Metrics.RecordLLMCall(info.Provider, info.Name, metrics.StatusOf(err), dur, usage)

	tokens := 0
	if usage != nil {
		tokens = usage.TotalTokens
	}

	logging.LLMCall(e.opts.Logger, info.Name, tokens, dur, err)

	if err != nil {
		return nil, fmt.Errorf("%s: model call failed: %w", e.opts.AgentName, err)
	}

	return resp, nil
}

// executeCalls runs calls concurrently (bounded by MaxParallel) and returns
// one step per call in call order. Tool failures become step errors that are
// reported back to the model; only context cancellation aborts the run.
func (e *Executor) executeCalls(ctx context.Context, calls []core.FunctionCall) ([]Step, error) {
	steps := make([]Step, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	if e.opts.MaxParallel > 0 {
		g.SetLimit(e.opts.MaxParallel)
	}

	for i, fc := range calls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			steps[i] = e.executeCall(gctx, fc)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return steps, ctx.Err()
}

func (e *Executor) executeCall(ctx context.Context, fc core.FunctionCall) Step {
	ctx, span := tracing.Start(ctx, tracing.SpanToolCall,
		attribute.String(tracing.AttrAgentName, e.opts.AgentName),
		attribute.String(tracing.AttrToolName, fc.Name),
		attribute.String(tracing.AttrToolCallID, fc.ID),
	)

	start := time.Now()
	result, err := e.callTool(ctx, fc)
	dur := time.Since(start)

	tracing.End(span, err)
	e.opts.Metrics.RecordToolCall(fc.Name, metrics.StatusOf(err), dur)

	logging.ToolCall(e.opts.Logger, fc.Name, dur, err)

	return Step{Call: fc, Result: result, Err: err, Duration: dur}
}

// callTool looks up and invokes one tool, converting panics into errors.
func (e *Executor) callTool(ctx context.Context, fc core.FunctionCall) (result any, err error) {
	impl, ok := e.registry[fc.Name]
	if !ok {
		return nil, tool.NewToolError(fc.Name, fmt.Sprintf("tool %s not found", fc.Name), tool.CodeNotFound)
	}

	args := map[string]any{}
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			return nil, &tool.ToolError{
				Tool:    fc.Name,
				Message: fmt.Sprintf("failed to unmarshal args: %v", err),
				Code:    tool.CodeDecode,
			}
		}
	}

	defer func() {
		if r := recover(); r != nil {
			e.opts.Logger.Error("agent.function.panic", "agent", e.opts.AgentName, "function", fc.Name, "recover", r, "stack", string(debug.Stack()))
			result, err = nil, tool.NewToolError(fc.Name, fmt.Sprintf("panic: %v", r), tool.CodePanic)
		}
	}()

	toolCtx := core.NewToolContext(ctx, e.opts.AgentName, fc.ID, e.opts.Logger)

	return impl.Call(toolCtx, args)
}

// ensureCallIDs fills in missing call ids so responses can be matched.
func ensureCallIDs(calls []core.FunctionCall) []core.FunctionCall {
	out := make([]core.FunctionCall, len(calls))
	for i, fc := range calls {
		if fc.ID == "" {
			fc.ID = "call_" + core.NewID()
		}

		out[i] = fc
	}

	return out
}

func assistantContent(resp core.Content, calls []core.FunctionCall) core.Content {
	parts := make([]core.Part, 0, len(calls)+1)
	if text := resp.Text(); text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}

	for _, fc := range calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}

	return core.Content{Role: core.RoleAssistant, Parts: parts}
}

func toolContent(steps []Step) core.Content {
	parts := make([]core.Part, 0, len(steps))
	for _, s := range steps {
		parts = append(parts, core.NewFunctionResponsePart(s.Call.ID, s.Call.Name, encodeResult(s.Result), s.Err))
	}

	return core.Content{Role: core.RoleTool, Parts: parts}
}

// encodeResult renders tool results as text the model can read: strings
// verbatim, everything else as JSON.
func encodeResult(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case fmt.Stringer:
		return r.String()
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	return string(b)
}
