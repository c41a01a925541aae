package agent

import (
	"reflect"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/metrics"
	"github.com/hupe1980/agentpipe/tool"
)

// Options configures an Agent.
//
// Use functional options with New to override defaults.
type Options struct {
	// PromptTemplate is a text/template rendered with the run input. It is
	// required when InputType is set.
	PromptTemplate string
	// InputType is the type Run accepts; nil accepts any value.
	InputType reflect.Type
	// OutputType is the type Run returns; nil means the raw text answer.
	OutputType reflect.Type
	// Tools turns the agent into a tool-calling agent.
	Tools []tool.Tool
	// Instruction is the system prompt. Tool agents default to the built-in
	// tool-use instructions.
	Instruction Instruction
	// Description is informational (config files, logs).
	Description string
	// MaxIterations bounds tool loop turns.
	MaxIterations int
	// MaxParallelTools bounds concurrent tool calls within a turn.
	MaxParallelTools int
	Logger           logging.Logger
	Metrics          metrics.Recorder
}

// WithInput sets the input type to T.
func WithInput[T any]() func(o *Options) {
	return func(o *Options) { o.InputType = core.TypeOf[T]() }
}

// WithOutput sets the output type to T.
func WithOutput[T any]() func(o *Options) {
	return func(o *Options) { o.OutputType = core.TypeOf[T]() }
}

// WithPrompt sets the prompt template.
func WithPrompt(text string) func(o *Options) {
	return func(o *Options) { o.PromptTemplate = text }
}

// WithTools appends tools.
func WithTools(tools ...tool.Tool) func(o *Options) {
	return func(o *Options) { o.Tools = append(o.Tools, tools...) }
}

// WithInstruction sets a static system instruction.
func WithInstruction(text string) func(o *Options) {
	return func(o *Options) { o.Instruction = NewInstructionFromText(text) }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) func(o *Options) {
	return func(o *Options) { o.Metrics = r }
}
