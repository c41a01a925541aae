package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/internal/testutil"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/tool"
)

type ticket struct {
	Text string `json:"text"`
}

type category struct {
	Name string `json:"name"`
}

const sample = `
logging:
  level: debug
  format: text
models:
  fast:
    provider: mock
    responses:
      hello: hi
  smart:
    provider: openai
    model: gpt-4o-mini
    temperature: 0
agents:
  greeter:
    model: fast
    description: says hello
  classifier:
    model: smart
    prompt: "Classify: {{.Arg.Text}}"
    input_type: Ticket
    output_type: Category
    max_iterations: 3
  responder:
    model: smart
    prompt: "Answer a {{.Arg.Name}} question."
    input_type: Category
    instruction: be polite
    tools: [search]
flows:
  support:
    steps: [classifier, responder]
`

func buildOptions(t *testing.T, models map[string]model.Model) BuildOptions {
	t.Helper()

	search := tool.NewFunctionTool("search", "searches", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return "result", nil
	})

	return BuildOptions{
		Types: map[string]reflect.Type{
			"Ticket":   core.TypeOf[ticket](),
			"Category": core.TypeOf[category](),
		},
		Tools:  map[string]tool.Tool{"search": search},
		Models: models,
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Len(t, cfg.Models, 2)
	require.NotNil(t, cfg.Models["smart"].Temperature)
	assert.Equal(t, 0.0, *cfg.Models["smart"].Temperature)
	assert.Nil(t, cfg.Models["fast"].Temperature)

	classifier := cfg.Agents["classifier"]
	assert.Equal(t, "Ticket", classifier.InputType)
	assert.Equal(t, 3, classifier.MaxIterations)
	assert.Equal(t, []string{"search"}, cfg.Agents["responder"].Tools)
	assert.Equal(t, []string{"classifier", "responder"}, cfg.Flows["support"].Steps)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("agents:\n  a:\n    modle: x\n"))
	assert.ErrorContains(t, err, "parse YAML")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Agents, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestValidate(t *testing.T) {
	hot := 3.0

	cfg := &Config{
		Logging: LoggingConfig{Level: "loud", Format: "xml"},
		Models: map[string]ModelConfig{
			"a": {Provider: "openai"},
			"b": {Provider: "cohere", Model: "x"},
			"c": {Provider: "mock", Temperature: &hot, MaxTokens: -1},
			"d": {},
		},
		Agents: map[string]AgentConfig{
			"x": {Model: "missing"},
			"y": {Model: "c", InputType: "T", MaxIterations: -1},
			"z": {},
		},
		Flows: map[string]FlowConfig{
			"f": {},
			"g": {Steps: []string{"x", "nope"}},
		},
	}

	err := cfg.Validate()
	require.Error(t, err)

	for _, msg := range []string{
		`unknown log level "loud"`,
		`unsupported format "xml"`,
		"model a: model is required",
		`model b: unsupported provider "cohere"`,
		"model c: temperature must be between 0 and 2",
		"model c: max_tokens must be non-negative",
		"model d: provider is required",
		`agent x: unknown model "missing"`,
		"agent y: prompt is required when input_type is set",
		"agent y: max_iterations must be non-negative",
		"agent z: model is required",
		"flow f: at least one step is required",
		`flow g: unknown agent "nope"`,
	} {
		assert.ErrorContains(t, err, msg)
	}
}

func TestBuild(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	smart := testutil.NewScriptedModel("smart")

	agents, err := cfg.Build(buildOptions(t, map[string]model.Model{"smart": smart}))
	require.NoError(t, err)
	require.Len(t, agents, 3)

	classifier := agents["classifier"]
	assert.Equal(t, core.TypeOf[ticket](), classifier.InputType())
	assert.Equal(t, core.TypeOf[category](), classifier.OutputType())
	assert.Same(t, smart, classifier.Model())

	responder := agents["responder"]
	require.Len(t, responder.Tools(), 1)
	assert.Equal(t, "search", responder.Tools()[0].Name())

	greeter := agents["greeter"]
	assert.Equal(t, "says hello", greeter.Description())
	assert.Equal(t, "mock", greeter.Model().Info().Provider)

	out, err := greeter.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestBuild_UnknownReferences(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	opts := buildOptions(t, map[string]model.Model{"smart": testutil.NewScriptedModel("smart")})
	delete(opts.Types, "Category")

	_, err = cfg.Build(opts)
	assert.ErrorContains(t, err, `unknown type "Category"`)

	opts = buildOptions(t, map[string]model.Model{"smart": testutil.NewScriptedModel("smart")})
	delete(opts.Tools, "search")

	_, err = cfg.Build(opts)
	assert.ErrorContains(t, err, `agent responder: unknown tool "search"`)
}

func TestBuildFlows(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	smart := testutil.NewScriptedModel("smart").
		Reply(`{"name": "billing"}`).
		Reply("We will refund you.")

	opts := buildOptions(t, map[string]model.Model{"smart": smart})

	agents, err := cfg.Build(opts)
	require.NoError(t, err)

	flows, err := cfg.BuildFlows(agents, opts)
	require.NoError(t, err)
	require.Contains(t, flows, "support")

	support := flows["support"]
	assert.Equal(t, core.TypeOf[ticket](), support.InputType())

	out, err := support.Run(context.Background(), ticket{Text: "refund please"})
	require.NoError(t, err)
	assert.Equal(t, "We will refund you.", out)
	assert.Equal(t, "be polite", smart.Requests()[1].Instructions)
}

func TestBuildFlows_TypeMismatch(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	cfg.Flows["broken"] = FlowConfig{Steps: []string{"classifier", "classifier"}}

	opts := buildOptions(t, map[string]model.Model{"smart": testutil.NewScriptedModel("smart")})

	agents, err := cfg.Build(opts)
	require.NoError(t, err)

	_, err = cfg.BuildFlows(agents, opts)
	assert.ErrorIs(t, err, core.ErrTypeMismatch)
}

func TestNewModel(t *testing.T) {
	m, err := NewModel("local", ModelConfig{Provider: ProviderOpenAI, Model: "llama3", APIKey: "test", BaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Info().Provider)
	assert.Equal(t, "llama3", m.Info().Name)

	m, err = NewModel("claude", ModelConfig{Provider: ProviderAnthropic, Model: "claude-3-5-haiku-latest", APIKey: "test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)

	_, err = NewModel("x", ModelConfig{Provider: "cohere"})
	assert.ErrorContains(t, err, "unsupported provider")
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "warn", Format: "text"}}

	l, err := cfg.NewLogger()
	require.NoError(t, err)

	var _ logging.Logger = l

	cfg.Logging.Level = "verbose"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
