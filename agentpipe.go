// Package agentpipe composes typed language model agents into checked
// pipelines.
//
// An agent pairs a prompt template with a model, optional tools and an
// optional structured output type. Flows chain agents and other tasks and
// reject wiring where one stage's output type differs from the next stage's
// input type:
//
//	classifier, _ := agentpipe.NewAgent("classifier", m,
//		agent.WithInput[Ticket](),
//		agent.WithOutput[Category](),
//		agent.WithPrompt("Classify this ticket: {{.Arg.Text}}"),
//	)
//
//	f := agentpipe.Start(classifier).Case(
//		agentpipe.WhenT(func(c Category) bool { return c.Name == "billing" }).Then(billing),
//		agentpipe.Default(support),
//	)
//
//	reply, err := agentpipe.Run[string](ctx, f, Ticket{Text: "refund please"})
//
// The subpackages hold the building blocks: agent, flow, tool, model (with
// OpenAI, Anthropic and Gemini adapters), parser, prompt, config, logging
// and metrics.
package agentpipe

import (
	"context"

	"github.com/hupe1980/agentpipe/agent"
	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/flow"
	"github.com/hupe1980/agentpipe/model"
)

// Task is the unit of work composed into flows.
type Task = core.Task

// NewAgent creates a typed agent. See agent.New.
func NewAgent(name string, m model.Model, optFns ...func(o *agent.Options)) (*agent.Agent, error) {
	return agent.New(name, m, optFns...)
}

// Start begins a flow. See flow.Start.
func Start(task Task, optFns ...func(o *flow.Options)) *flow.Flow {
	return flow.Start(task, optFns...)
}

// When creates a Case branch. See flow.When.
func When(pred func(any) bool) *flow.Condition {
	return flow.When(pred)
}

// WhenT creates a Case branch with a typed predicate. See flow.WhenT.
func WhenT[T any](pred func(T) bool) *flow.Condition {
	return flow.WhenT(pred)
}

// Default creates the fallback Case branch. See flow.Default.
func Default(task Task) *flow.Condition {
	return flow.Default(task)
}

// Run runs task and returns its result as O.
func Run[O any](ctx context.Context, task Task, input any) (O, error) {
	return core.RunAs[O](ctx, task, input)
}
