package config

import (
	"fmt"
	"reflect"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentpipe/agent"
	"github.com/hupe1980/agentpipe/flow"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/metrics"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/model/anthropic"
	"github.com/hupe1980/agentpipe/model/gemini"
	"github.com/hupe1980/agentpipe/model/openai"
	"github.com/hupe1980/agentpipe/tool"
)

// BuildOptions supplies the Go values that configuration files refer to by
// name.
type BuildOptions struct {
	// Types maps input_type/output_type names to Go types.
	Types map[string]reflect.Type
	// Tools maps tool names to implementations.
	Tools map[string]tool.Tool
	// Models overrides configured models by id, e.g. with test doubles.
	Models  map[string]model.Model
	Logger  logging.Logger
	Metrics metrics.Recorder
}

// Build validates the configuration and constructs every agent.
func (c *Config) Build(opts BuildOptions) (map[string]*agent.Agent, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	models := make(map[string]model.Model, len(c.Models))

	agents := make(map[string]*agent.Agent, len(c.Agents))
	for _, name := range sortedKeys(c.Agents) {
		ac := c.Agents[name]

		m, err := c.resolveModel(ac.Model, models, opts)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}

		optFns, err := agentOptions(ac, opts)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}

		a, err := agent.New(name, m, optFns...)
		if err != nil {
			return nil, err
		}

		agents[name] = a
	}

	return agents, nil
}

// BuildFlows composes the configured flows from agents returned by Build.
// Composition errors, including type mismatches, are returned.
func (c *Config) BuildFlows(agents map[string]*agent.Agent, opts BuildOptions) (map[string]*flow.Flow, error) {
	flows := make(map[string]*flow.Flow, len(c.Flows))

	for _, name := range sortedKeys(c.Flows) {
		steps := c.Flows[name].Steps
		if len(steps) == 0 {
			return nil, fmt.Errorf("flow %s: at least one step is required", name)
		}

		tasks := make([]*agent.Agent, len(steps))
		for i, step := range steps {
			a, ok := agents[step]
			if !ok {
				return nil, fmt.Errorf("flow %s: unknown agent %q", name, step)
			}

			tasks[i] = a
		}

		f := flow.Start(tasks[0], flow.WithName(name), flow.WithLogger(opts.Logger), flow.WithMetrics(opts.Metrics))
		for _, t := range tasks[1:] {
			f = f.Next(t)
		}

		if err := f.Err(); err != nil {
			return nil, err
		}

		flows[name] = f
	}

	return flows, nil
}

func (c *Config) resolveModel(id string, cache map[string]model.Model, opts BuildOptions) (model.Model, error) {
	if m, ok := opts.Models[id]; ok {
		return m, nil
	}

	if m, ok := cache[id]; ok {
		return m, nil
	}

	mc, ok := c.Models[id]
	if !ok {
		return nil, fmt.Errorf("unknown model %q", id)
	}

	m, err := NewModel(id, mc)
	if err != nil {
		return nil, err
	}

	cache[id] = m

	return m, nil
}

// NewModel constructs the adapter for a model configuration.
func NewModel(id string, mc ModelConfig) (model.Model, error) {
	switch mc.Provider {
	case ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.Model = mc.Model
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL

			if mc.Temperature != nil {
				o.Temperature = *mc.Temperature
			}

			if mc.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(mc.MaxTokens)
			}
		}), nil
	case ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(mc.Model)
			o.APIKey = mc.APIKey

			if mc.Temperature != nil {
				o.Temperature = *mc.Temperature
			}

			if mc.MaxTokens > 0 {
				o.MaxTokens = int64(mc.MaxTokens)
			}
		}), nil
	case ProviderGemini:
		m, err := gemini.NewModel(func(o *gemini.Options) {
			o.Model = mc.Model
			o.APIKey = mc.APIKey

			if mc.Temperature != nil {
				o.Temperature = *mc.Temperature
			}

			if mc.MaxTokens > 0 {
				o.MaxOutputTokens = int32(mc.MaxTokens)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", id, err)
		}

		return m, nil
	case ProviderMock:
		name := mc.Model
		if name == "" {
			name = id
		}

		m := model.NewMockModel(name, ProviderMock)
		for prompt, reply := range mc.Responses {
			m.AddResponse(prompt, reply)
		}

		return m, nil
	default:
		return nil, fmt.Errorf("model %s: unsupported provider %q", id, mc.Provider)
	}
}

func agentOptions(ac AgentConfig, opts BuildOptions) ([]func(o *agent.Options), error) {
	in, err := lookupType(ac.InputType, opts.Types)
	if err != nil {
		return nil, fmt.Errorf("input_type: %w", err)
	}

	out, err := lookupType(ac.OutputType, opts.Types)
	if err != nil {
		return nil, fmt.Errorf("output_type: %w", err)
	}

	tools := make([]tool.Tool, 0, len(ac.Tools))
	for _, name := range ac.Tools {
		t, ok := opts.Tools[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", name)
		}

		tools = append(tools, t)
	}

	optFns := []func(o *agent.Options){
		func(o *agent.Options) {
			o.PromptTemplate = ac.Prompt
			o.Description = ac.Description
			o.InputType = in
			o.OutputType = out
			o.Tools = tools
			o.MaxParallelTools = ac.MaxParallelTools
			o.Logger = opts.Logger
			o.Metrics = opts.Metrics

			if ac.MaxIterations > 0 {
				o.MaxIterations = ac.MaxIterations
			}
		},
	}

	if ac.Instruction != "" {
		optFns = append(optFns, agent.WithInstruction(ac.Instruction))
	}

	return optFns, nil
}

func lookupType(name string, types map[string]reflect.Type) (reflect.Type, error) {
	if name == "" {
		return nil, nil
	}

	t, ok := types[name]
	if !ok {
		return nil, fmt.Errorf("unknown type %q", name)
	}

	return t, nil
}
