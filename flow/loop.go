package flow

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/hupe1980/agentpipe/core"
)

// DefaultLoopIterations bounds a Loop stage when no limit is configured.
const DefaultLoopIterations = 100

// LoopOptions configures a Loop stage.
type LoopOptions struct {
	// MaxIterations bounds the number of runs; <= 0 uses DefaultLoopIterations.
	MaxIterations int
	// Until stops the loop once it returns true for a result.
	Until func(any) bool
	// Interval is the pause between iterations.
	Interval time.Duration
}

// loopStage reruns a task on its own output.
type loopStage struct {
	name string
	task core.Task
	opts LoopOptions
}

func (s *loopStage) Name() string             { return s.name }
func (s *loopStage) InputType() reflect.Type  { return s.task.InputType() }
func (s *loopStage) OutputType() reflect.Type { return s.task.OutputType() }

func (s *loopStage) Run(ctx context.Context, input any) (any, error) {
	value := input

	for i := 0; i < s.opts.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: iteration %d: %w", s.name, i+1, err)
		}

		out, err := s.task.Run(ctx, value)
		if err != nil {
			return nil, fmt.Errorf("%s: iteration %d: %w", s.name, i+1, err)
		}

		value = out

		if s.opts.Until != nil && s.opts.Until(value) {
			return value, nil
		}

		if s.opts.Interval > 0 && i < s.opts.MaxIterations-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.opts.Interval):
			}
		}
	}

	return value, nil
}

// Loop appends a stage that runs task repeatedly, feeding each result back
// as the next input, until Until matches or MaxIterations is reached. The
// task's output type must equal its input type when both are known.
func (f *Flow) Loop(task core.Task, optFns ...func(o *LoopOptions)) *Flow {
	if !f.open() {
		return f
	}

	name := fmt.Sprintf("loop[%d]", len(f.stages))

	if task == nil {
		return f.fail(fmt.Errorf("%s: %s: %w", f.name, name, ErrMissingTask))
	}

	opts := LoopOptions{MaxIterations: DefaultLoopIterations}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultLoopIterations
	}

	if err := core.CheckCompatibility(task, task); err != nil {
		return f.mismatch(name, err)
	}

	if err := core.CheckCompatibility(f.last(), task); err != nil {
		return f.mismatch(name, err)
	}

	return f.add(&loopStage{name: name, task: task, opts: opts})
}
