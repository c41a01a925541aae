package flow

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentpipe/core"
)

// ParallelOptions configures a Parallel stage.
type ParallelOptions struct {
	// Timeout bounds the whole fan-out; zero means no timeout.
	Timeout time.Duration
	// MaxConcurrency bounds concurrently running tasks; <= 0 means unbounded.
	MaxConcurrency int
}

// parallelStage runs several tasks on the same input concurrently.
type parallelStage struct {
	name  string
	tasks []core.Task
	in    reflect.Type
	opts  ParallelOptions
}

var resultsType = core.TypeOf[[]any]()

func (s *parallelStage) Name() string             { return s.name }
func (s *parallelStage) InputType() reflect.Type  { return s.in }
func (s *parallelStage) OutputType() reflect.Type { return resultsType }

// Run returns one result per task in task order. The first failure cancels
// the remaining tasks.
func (s *parallelStage) Run(ctx context.Context, input any) (any, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	results := make([]any, len(s.tasks))

	g, gctx := errgroup.WithContext(ctx)
	if s.opts.MaxConcurrency > 0 {
		g.SetLimit(s.opts.MaxConcurrency)
	}

	for i, task := range s.tasks {
		g.Go(func() error {
			out, err := task.Run(gctx, input)
			if err != nil {
				return fmt.Errorf("%s: %s: %w", s.name, task.Name(), err)
			}

			results[i] = out

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// Parallel appends a fan-out stage running every task on the previous
// stage's output concurrently. The stage produces a []any holding each
// task's result in task order, so the following stage is typically a Map.
func (f *Flow) Parallel(tasks []core.Task, optFns ...func(o *ParallelOptions)) *Flow {
	if !f.open() {
		return f
	}

	name := fmt.Sprintf("parallel[%d]", len(f.stages))

	if len(tasks) == 0 {
		return f.fail(fmt.Errorf("%s: %s: %w", f.name, name, ErrMissingTask))
	}

	var opts ParallelOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	stage := &parallelStage{name: name, tasks: tasks, opts: opts}

	for i, task := range tasks {
		if task == nil {
			return f.fail(fmt.Errorf("%s: %s: task %d: %w", f.name, name, i, ErrMissingTask))
		}

		if err := core.CheckCompatibility(f.last(), task); err != nil {
			return f.mismatch(name, err)
		}

		in := task.InputType()
		if stage.in != nil && in != nil && in != stage.in {
			return f.mismatch(name, &core.TypeMismatchError{
				Producer:     tasks[0].Name(),
				ProducerType: stage.in,
				Consumer:     task.Name(),
				ConsumerType: in,
				Side:         "input type",
			})
		}

		if stage.in == nil {
			stage.in = in
		}
	}

	return f.add(stage)
}
