package agent

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/executor"
	"github.com/hupe1980/agentpipe/internal/tracing"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/metrics"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/parser"
	"github.com/hupe1980/agentpipe/prompt"
	"github.com/hupe1980/agentpipe/tool"
)

// ErrPromptRequired is returned by New when an input type is configured
// without a prompt template.
var ErrPromptRequired = errors.New("prompt template must be provided when input type is set")

// Agent is a typed unit of work backed by a language model.
//
// Without tools an agent renders its prompt, appends the output format
// instructions, calls the model once and parses the reply. With tools it runs
// the tool-calling loop and, when an output type is set, converts the final
// answer into that type with one more model call.
//
// Agent implements core.Task and is safe for concurrent use.
type Agent struct {
	name     string
	model    model.Model
	opts     Options
	prompt   *prompt.Template
	parser   parser.OutputParser
	executor *executor.Executor
	logger   logging.Logger
	metrics  metrics.Recorder
}

var _ core.Task = (*Agent)(nil)

// New creates an Agent.
func New(name string, m model.Model, optFns ...func(o *Options)) (*Agent, error) {
	if name == "" {
		return nil, errors.New("agent name is required")
	}

	if m == nil {
		return nil, fmt.Errorf("agent %s: model is required", name)
	}

	opts := Options{MaxIterations: executor.DefaultMaxIterations}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.InputType != nil && opts.PromptTemplate == "" {
		return nil, fmt.Errorf("agent %s: %w", name, ErrPromptRequired)
	}

	a := &Agent{
		name:    name,
		model:   m,
		opts:    opts,
		logger:  logging.OrNoOp(opts.Logger),
		metrics: metrics.OrNoOp(opts.Metrics),
	}

	text := opts.PromptTemplate
	if text == "" {
		text = prompt.DefaultTemplate
	}

	tmpl, err := prompt.New(text)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}

	a.prompt = tmpl

	a.parser, err = parser.For(opts.OutputType)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}

	if len(opts.Tools) > 0 {
		a.executor, err = executor.New(m, opts.Tools, func(eo *executor.Options) {
			eo.AgentName = name
			eo.MaxIterations = opts.MaxIterations
			eo.MaxParallel = opts.MaxParallelTools
			eo.Logger = a.logger
			eo.Metrics = a.metrics
		})
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
	}

	return a, nil
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Description returns the configured description.
func (a *Agent) Description() string { return a.opts.Description }

// InputType implements core.Task.
func (a *Agent) InputType() reflect.Type { return a.opts.InputType }

// OutputType implements core.Task.
func (a *Agent) OutputType() reflect.Type { return a.opts.OutputType }

// Model returns the backing model.
func (a *Agent) Model() model.Model { return a.model }

// Tools returns the tools available to the agent.
func (a *Agent) Tools() []tool.Tool { return a.opts.Tools }

// FormatInstructions returns the output format instructions sent to the model.
func (a *Agent) FormatInstructions() string { return a.parser.FormatInstructions() }

// Run implements core.Task. The input must have the agent's input type (or
// be a pointer to it). The result has the output type, or is a string when
// no output type is set.
func (a *Agent) Run(ctx context.Context, input any) (result any, err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanAgentRun,
		attribute.String(tracing.AttrAgentName, a.name),
		attribute.String(tracing.AttrModelName, a.model.Info().Name),
		attribute.String(tracing.AttrInputPreview, tracing.Preview(fmt.Sprint(input), 100)),
	)

	start := time.Now()

	defer func() {
		tracing.End(span, err)
		a.metrics.RecordAgentRun(a.name, metrics.StatusOf(err), time.Since(start))

		if err != nil {
			a.logger.Error("agent.run.failed", "agent", a.name, "duration_ms", time.Since(start).Milliseconds(), "error", err.Error())
		} else {
			a.logger.Info("agent.run.complete", "agent", a.name, "duration_ms", time.Since(start).Milliseconds())
		}
	}()

	a.logger.Debug("agent.run.start", "agent", a.name, "tools", len(a.opts.Tools))

	input, err = core.ValidateInput(a.name, a.opts.InputType, input)
	if err != nil {
		a.metrics.RecordTypeMismatch(a.name)
		return nil, err
	}

	if a.executor == nil {
		return a.runWithoutTools(ctx, input)
	}

	return a.runWithTools(ctx, input)
}

func (a *Agent) runWithoutTools(ctx context.Context, input any) (any, error) {
	text, err := a.prompt.FormatWithInstructions(input, a.parser.FormatInstructions())
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.name, err)
	}

	instructions, err := a.opts.Instruction.Resolve(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("agent %s: failed to resolve instruction: %w", a.name, err)
	}

	return a.completeAndParse(ctx, instructions, text)
}

func (a *Agent) runWithTools(ctx context.Context, input any) (any, error) {
	query := fmt.Sprint(input)

	if a.opts.PromptTemplate != "" {
		rendered, err := a.prompt.Format(input, "")
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.name, err)
		}

		query = rendered
	}

	instructions := prompt.AgentSystemPrompt
	if !a.opts.Instruction.IsZero() {
		resolved, err := a.opts.Instruction.Resolve(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("agent %s: failed to resolve instruction: %w", a.name, err)
		}

		instructions = resolved
	}

	res, err := a.executor.RunWithInstructions(ctx, instructions, query)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("agent.tools.complete", "agent", a.name, "steps", len(res.Steps), "iterations", res.Iterations)

	if a.opts.OutputType == nil {
		return res.Output, nil
	}

	text, err := prompt.TypedResult.Format(res.Output, a.parser.FormatInstructions())
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.name, err)
	}

	return a.completeAndParse(ctx, "", text)
}

// completeAndParse sends a single user prompt and parses the reply.
func (a *Agent) completeAndParse(ctx context.Context, instructions, text string) (any, error) {
	info := a.model.Info()

	ctx, span := tracing.Start(ctx, tracing.SpanLLMCall,
		attribute.String(tracing.AttrAgentName, a.name),
		attribute.String(tracing.AttrModelName, info.Name),
		attribute.String(tracing.AttrProvider, info.Provider),
	)

	start := time.Now()
	resp, err := model.Collect(ctx, a.model, model.Request{
		Instructions: instructions,
		Contents:     []core.Content{core.NewTextContent(core.RoleUser, text)},
		JSONMode:     wantsJSONObject(a.opts.OutputType),
	})
	dur := time.Since(start)

	var usage *model.TokenUsage

	tokens := 0
	if resp != nil && resp.Usage != nil {
		usage = resp.Usage
		tokens = usage.TotalTokens
	}

	tracing.End(span, err)
	a.metrics.RecordLLMCall(info.Provider, info.Name, metrics.StatusOf(err), dur, usage)
	logging.LLMCall(a.logger, info.Name, tokens, dur, err)

	if err != nil {
		return nil, fmt.Errorf("agent %s: model call failed: %w", a.name, err)
	}

	out, err := a.parser.Parse(resp.Content.Text())
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.name, err)
	}

	return out, nil
}

// wantsJSONObject reports whether provider JSON mode fits the output type.
// JSON mode constrains replies to objects, so only struct and map outputs
// qualify.
func wantsJSONObject(t reflect.Type) bool {
	if t == nil {
		return false
	}

	switch t.Kind() {
	case reflect.Struct, reflect.Map:
		return true
	default:
		return false
	}
}
