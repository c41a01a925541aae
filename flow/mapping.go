package flow

import (
	"context"
	"reflect"

	"github.com/hupe1980/agentpipe/core"
)

// Mapping transforms a value between two stages.
type Mapping interface {
	// InputType is the accepted type, nil when untyped.
	InputType() reflect.Type
	// OutputType is the produced type, nil when untyped.
	OutputType() reflect.Type
	Apply(ctx context.Context, input any) (any, error)
}

type mapping struct {
	in, out reflect.Type
	fn      func(ctx context.Context, input any) (any, error)
}

func (m *mapping) InputType() reflect.Type  { return m.in }
func (m *mapping) OutputType() reflect.Type { return m.out }

func (m *mapping) Apply(ctx context.Context, input any) (any, error) {
	return m.fn(ctx, input)
}

// MapFunc builds a typed mapping from fn.
func MapFunc[I, O any](fn func(I) O) Mapping {
	return MapFuncE(func(_ context.Context, in I) (O, error) { return fn(in), nil })
}

// MapFuncE builds a typed mapping from a fallible, context-aware fn.
func MapFuncE[I, O any](fn func(context.Context, I) (O, error)) Mapping {
	in := core.TypeOf[I]()

	return &mapping{
		in:  in,
		out: core.TypeOf[O](),
		fn: func(ctx context.Context, input any) (any, error) {
			typed, err := assertInput[I]("map", in, input)
			if err != nil {
				return nil, err
			}

			return fn(ctx, typed)
		},
	}
}

// MapAny builds an untyped mapping. Its output type is taken from the stage
// that follows it in a flow.
func MapAny(fn func(any) any) Mapping {
	return &mapping{
		fn: func(_ context.Context, input any) (any, error) { return fn(input), nil },
	}
}

// mapStage is a Mapping placed in a flow.
type mapStage struct {
	name    string
	in, out reflect.Type
	fn      func(ctx context.Context, input any) (any, error)
}

func (s *mapStage) Name() string             { return s.name }
func (s *mapStage) InputType() reflect.Type  { return s.in }
func (s *mapStage) OutputType() reflect.Type { return s.out }

func (s *mapStage) Run(ctx context.Context, input any) (any, error) {
	return s.fn(ctx, input)
}

// funcTask adapts a typed function to core.Task.
type funcTask[I, O any] struct {
	name string
	fn   func(context.Context, I) (O, error)
}

// Func wraps fn as a named task with input type I and output type O.
// Interface type parameters (such as any) leave the side untyped.
func Func[I, O any](name string, fn func(context.Context, I) (O, error)) core.Task {
	return &funcTask[I, O]{name: name, fn: fn}
}

func (t *funcTask[I, O]) Name() string             { return t.name }
func (t *funcTask[I, O]) InputType() reflect.Type  { return core.TypeOf[I]() }
func (t *funcTask[I, O]) OutputType() reflect.Type { return core.TypeOf[O]() }

func (t *funcTask[I, O]) Run(ctx context.Context, input any) (any, error) {
	typed, err := assertInput[I](t.name, core.TypeOf[I](), input)
	if err != nil {
		return nil, err
	}

	return t.fn(ctx, typed)
}

// assertInput validates input and converts it to I. Interface types are
// untyped for composition but must still be implemented at run time; a nil
// input passes as the zero value.
func assertInput[I any](name string, in reflect.Type, input any) (I, error) {
	var zero I

	v, err := core.ValidateInput(name, in, input)
	if err != nil {
		return zero, err
	}

	if v == nil {
		return zero, nil
	}

	typed, ok := v.(I)
	if !ok {
		return zero, &core.InputTypeError{
			Task:     name,
			Expected: reflect.TypeOf((*I)(nil)).Elem(),
			Actual:   reflect.TypeOf(v),
		}
	}

	return typed, nil
}
