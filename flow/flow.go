// Package flow composes tasks into typed pipelines.
//
// A flow starts from one task and grows fluently:
//
//	f := flow.Start(classifier).
//		Map(flow.MapFunc(func(c Category) Query { return Query{Topic: c.Name} })).
//		Case(
//			flow.WhenT(func(q Query) bool { return q.Topic == "billing" }).Then(billing),
//			flow.Default(support),
//		)
//
// Every stage is checked against its predecessor when it is added: if both
// the producing output type and the consuming input type are known they must
// be identical. The first composition error is kept and returned by Err and
// by Run; later calls are no-ops.
//
// A Flow is a core.Task itself and can be nested in other flows.
package flow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/internal/tracing"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/metrics"
)

var (
	// ErrMissingTask is returned when a stage or branch has no task.
	ErrMissingTask = errors.New("flow: task is required")
	// ErrMultipleDefaults is returned when a case has more than one default.
	ErrMultipleDefaults = errors.New("flow: multiple default branches")
	// ErrEmptyFlow is returned when running a flow without stages.
	ErrEmptyFlow = errors.New("flow: no stages")
)

// Options configures a Flow.
type Options struct {
	// Name identifies the flow in logs, traces and type errors. Defaults to
	// "flow".
	Name    string
	Logger  logging.Logger
	Metrics metrics.Recorder
}

// WithName sets the flow name.
func WithName(name string) func(o *Options) {
	return func(o *Options) { o.Name = name }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) func(o *Options) {
	return func(o *Options) { o.Metrics = r }
}

// Flow is a sequence of stages run one after another, each receiving the
// previous stage's result.
type Flow struct {
	name    string
	stages  []core.Task
	err     error
	logger  logging.Logger
	metrics metrics.Recorder
}

var _ core.Task = (*Flow)(nil)

// Start begins a flow with task as its first stage.
func Start(task core.Task, optFns ...func(o *Options)) *Flow {
	opts := Options{Name: "flow"}
	for _, fn := range optFns {
		fn(&opts)
	}

	f := &Flow{
		name:    opts.Name,
		logger:  logging.OrNoOp(opts.Logger),
		metrics: metrics.OrNoOp(opts.Metrics),
	}

	if task == nil {
		f.err = fmt.Errorf("%s: start: %w", f.name, ErrMissingTask)
		return f
	}

	f.stages = append(f.stages, task)

	return f
}

// Next appends task. Its input type must match the previous stage's output
// type when both are known.
func (f *Flow) Next(task core.Task) *Flow {
	if !f.open() {
		return f
	}

	if task == nil {
		return f.fail(fmt.Errorf("%s: next: %w", f.name, ErrMissingTask))
	}

	if err := core.CheckCompatibility(f.last(), task); err != nil {
		return f.mismatch(task.Name(), err)
	}

	return f.add(task)
}

// Map appends a value transformation. An untyped mapping takes the previous
// stage's output type as its input type, and its output type is inferred
// from the stage that follows it.
func (f *Flow) Map(m Mapping) *Flow {
	if !f.open() {
		return f
	}

	if m == nil {
		return f.fail(fmt.Errorf("%s: map: mapping is required", f.name))
	}

	stage := &mapStage{
		name: fmt.Sprintf("map[%d]", len(f.stages)),
		in:   m.InputType(),
		out:  m.OutputType(),
		fn:   m.Apply,
	}

	if stage.in == nil {
		stage.in = f.last().OutputType()
	}

	if err := core.CheckCompatibility(f.last(), stage); err != nil {
		return f.mismatch(stage.name, err)
	}

	return f.add(stage)
}

// Err returns the first composition error, if any.
func (f *Flow) Err() error { return f.err }

// Name implements core.Task.
func (f *Flow) Name() string { return f.name }

// Stages returns the composed stages.
func (f *Flow) Stages() []core.Task { return f.stages }

// InputType implements core.Task; it is the first stage's input type.
func (f *Flow) InputType() reflect.Type {
	if len(f.stages) == 0 {
		return nil
	}

	return f.stages[0].InputType()
}

// OutputType implements core.Task; it is the last stage's output type.
func (f *Flow) OutputType() reflect.Type {
	if len(f.stages) == 0 {
		return nil
	}

	return f.last().OutputType()
}

// Run implements core.Task, executing all stages in order.
func (f *Flow) Run(ctx context.Context, input any) (result any, err error) {
	if f.err != nil {
		return nil, f.err
	}

	if len(f.stages) == 0 {
		return nil, ErrEmptyFlow
	}

	ctx, span := tracing.Start(ctx, tracing.SpanFlowRun, attribute.String(tracing.AttrFlowName, f.name))

	start := time.Now()
	completed := 0

	defer func() {
		dur := time.Since(start)
		tracing.End(span, err)
		f.metrics.RecordFlowRun(f.name, metrics.StatusOf(err), completed, dur)
		logging.FlowExecution(f.logger, f.name, completed, dur, err)
	}()

	result = input
	for i, stage := range f.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err = f.runStage(ctx, i, stage, result)
		if err != nil {
			return nil, err
		}

		completed++
	}

	return result, nil
}

func (f *Flow) runStage(ctx context.Context, i int, stage core.Task, input any) (any, error) {
	ctx, span := tracing.Start(ctx, tracing.SpanFlowStep,
		attribute.String(tracing.AttrFlowName, f.name),
		attribute.String(tracing.AttrStepName, stage.Name()),
		attribute.Int(tracing.AttrStepIndex, i),
	)

	f.logger.Debug("flow.step.start", "flow", f.name, "step", i, "stage", stage.Name())

	out, err := stage.Run(ctx, input)
	if err != nil {
		err = fmt.Errorf("%s: step %d (%s): %w", f.name, i, stage.Name(), err)
	}

	tracing.End(span, err)

	return out, err
}

// open reports whether stages may still be added.
func (f *Flow) open() bool {
	if f.err == nil && len(f.stages) == 0 {
		f.err = ErrEmptyFlow
	}

	return f.err == nil
}

func (f *Flow) last() core.Task { return f.stages[len(f.stages)-1] }

// add appends stage and resolves the output type of a preceding untyped map.
func (f *Flow) add(stage core.Task) *Flow {
	if prev, ok := f.last().(*mapStage); ok && prev.out == nil {
		prev.out = stage.InputType()
	}

	f.stages = append(f.stages, stage)

	return f
}

func (f *Flow) mismatch(stage string, err error) *Flow {
	f.metrics.RecordTypeMismatch(stage)
	f.logger.Warn("flow.type_mismatch", "flow", f.name, "stage", stage, "error", err.Error())

	return f.fail(fmt.Errorf("%s: %w", f.name, err))
}

func (f *Flow) fail(err error) *Flow {
	f.err = err
	return f
}
