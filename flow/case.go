package flow

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hupe1980/agentpipe/core"
)

// Condition is one branch of a Case or Conditional stage: a predicate, the
// task to run when it matches and an optional mapper applied to the task's
// result.
type Condition struct {
	pred      func(any) bool
	task      core.Task
	mapper    func(any) any
	isDefault bool
}

// When creates a branch taken when pred returns true for the stage input.
func When(pred func(any) bool) *Condition {
	return &Condition{pred: pred}
}

// WhenT creates a branch with a typed predicate. Inputs that are not a T (or
// a pointer to one) never match.
func WhenT[T any](pred func(T) bool) *Condition {
	t := core.TypeOf[T]()

	return When(func(input any) bool {
		v, err := core.ValidateInput("when", t, input)
		if err != nil {
			return false
		}

		typed, ok := v.(T)

		return ok && pred(typed)
	})
}

// Default creates the fallback branch of a Case, taken when no other branch
// matches.
func Default(task core.Task) *Condition {
	return &Condition{pred: func(any) bool { return true }, task: task, isDefault: true}
}

// Then sets the branch task.
func (c *Condition) Then(task core.Task) *Condition {
	c.task = task
	return c
}

// ToOutput sets a mapper applied to the branch result. Branches with a
// mapper are exempt from the case output type check.
func (c *Condition) ToOutput(mapper func(any) any) *Condition {
	c.mapper = mapper
	return c
}

// Task returns the branch task.
func (c *Condition) Task() core.Task { return c.task }

// IsDefault reports whether the branch was created with Default.
func (c *Condition) IsDefault() bool { return c.isDefault }

func (c *Condition) matches(input any) bool {
	return c.pred == nil || c.pred(input)
}

func (c *Condition) run(ctx context.Context, input any) (any, error) {
	out, err := c.task.Run(ctx, input)
	if err != nil {
		return nil, err
	}

	if c.mapper != nil {
		out = c.mapper(out)
	}

	return out, nil
}

// branchStage runs the first matching branch.
type branchStage struct {
	name     string
	branches []*Condition
	fallback *Condition
	in, out  reflect.Type
	// strict enables the runtime check of results against out.
	strict bool
}

func (s *branchStage) Name() string             { return s.name }
func (s *branchStage) InputType() reflect.Type  { return s.in }
func (s *branchStage) OutputType() reflect.Type { return s.out }

func (s *branchStage) Run(ctx context.Context, input any) (any, error) {
	var (
		selected *Condition
		index    int
	)

	for i, c := range s.branches {
		if c.matches(input) {
			selected, index = c, i
			break
		}
	}

	if selected == nil && s.fallback != nil {
		selected, index = s.fallback, -1
	}

	if selected == nil {
		return nil, nil
	}

	out, err := selected.run(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", s.name, branchLabel(index, selected.task), err)
	}

	if !s.strict || out == nil || s.out == nil {
		return out, nil
	}

	normalized, err := core.ValidateInput(s.name, s.out, out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, &core.TypeMismatchError{
			Producer:     branchLabel(index, selected.task),
			ProducerType: reflect.TypeOf(out),
			Consumer:     s.name,
			ConsumerType: s.out,
			Side:         "output type",
		})
	}

	return normalized, nil
}

// Case appends a branching stage. Every branch needs a task, and every
// branch task's input type must match the previous stage's output type. The
// branches' output types must agree with branch 0 unless they map their
// result with ToOutput. At runtime the first matching branch runs; without a
// match the Default branch runs, and without a default the result is nil.
func (f *Flow) Case(conds ...*Condition) *Flow {
	return f.CaseAs(nil, conds...)
}

// CaseAs is like Case with an explicit output type that all branches, and
// every non-nil result, must have.
func (f *Flow) CaseAs(outputType reflect.Type, conds ...*Condition) *Flow {
	if !f.open() {
		return f
	}

	name := fmt.Sprintf("case[%d]", len(f.stages))

	if len(conds) == 0 {
		return f.fail(fmt.Errorf("%s: %s: at least one branch is required", f.name, name))
	}

	if err := f.checkBranches(name, conds); err != nil {
		return f
	}

	stage := &branchStage{name: name, in: conds[0].task.InputType(), strict: true}

	for _, c := range conds {
		if !c.IsDefault() {
			stage.branches = append(stage.branches, c)
			continue
		}

		if stage.fallback != nil {
			return f.fail(fmt.Errorf("%s: %s: %w", f.name, name, ErrMultipleDefaults))
		}

		stage.fallback = c
	}

	expected := outputType
	reference := name
	if expected == nil {
		expected = conds[0].task.OutputType()
		reference = branchLabel(0, conds[0].task)
	}

	if expected != nil {
		for i, c := range conds {
			if c.mapper != nil {
				continue
			}

			if got := c.task.OutputType(); got != expected {
				return f.mismatch(name, &core.TypeMismatchError{
					Producer:     branchLabel(i, c.task),
					ProducerType: got,
					Consumer:     reference,
					ConsumerType: expected,
					Side:         "output type",
				})
			}
		}
	}

	stage.out = expected

	return f.add(stage)
}

// Conditional appends a branching stage in the older form: the first
// matching branch runs, else defaultTask (which may be nil), else the result
// is nil. The stage's output type is defaultTask's, else the last branch's.
// Results are not type checked at runtime.
func (f *Flow) Conditional(conds []*Condition, defaultTask core.Task) *Flow {
	if !f.open() {
		return f
	}

	name := fmt.Sprintf("conditional[%d]", len(f.stages))

	if err := f.checkBranches(name, conds); err != nil {
		return f
	}

	stage := &branchStage{name: name, branches: conds}

	if len(conds) > 0 {
		stage.in = conds[0].task.InputType()
		stage.out = conds[len(conds)-1].task.OutputType()
	}

	if defaultTask != nil {
		if err := core.CheckCompatibility(f.last(), defaultTask); err != nil {
			return f.mismatch(name, err)
		}

		stage.fallback = Default(defaultTask)
		stage.out = defaultTask.OutputType()

		if stage.in == nil {
			stage.in = defaultTask.InputType()
		}
	}

	return f.add(stage)
}

// checkBranches verifies every branch has a task that accepts the previous
// stage's output. It records the failure on f and returns it.
func (f *Flow) checkBranches(name string, conds []*Condition) error {
	for i, c := range conds {
		if c == nil || c.task == nil {
			f.fail(fmt.Errorf("%s: %s: branch %d: %w", f.name, name, i, ErrMissingTask))
			return f.err
		}

		if err := core.CheckCompatibility(f.last(), c.task); err != nil {
			f.mismatch(name, err)
			return f.err
		}
	}

	return nil
}

func branchLabel(i int, task core.Task) string {
	if i < 0 {
		return fmt.Sprintf("default (%s)", task.Name())
	}

	return fmt.Sprintf("branch %d (%s)", i, task.Name())
}
