package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// Task is the unit of work composed into flows. Agents, flows and the
// individual flow steps all implement it.
//
// InputType and OutputType describe the static value types a task accepts and
// produces. A nil type means the side is untyped; compatibility checks are
// skipped for it.
type Task interface {
	Name() string
	InputType() reflect.Type
	OutputType() reflect.Type
	Run(ctx context.Context, input any) (any, error)
}

// ErrTypeMismatch is matched (errors.Is) by every *TypeMismatchError.
var ErrTypeMismatch = errors.New("type mismatch")

// TypeMismatchError reports two adjacent stages whose types disagree.
type TypeMismatchError struct {
	Producer     string
	ProducerType reflect.Type
	Consumer     string
	ConsumerType reflect.Type
	// Side describes which type of the consumer is compared ("input type"
	// for stage wiring, "output type" for branch result checks).
	Side string
}

func (e *TypeMismatchError) Error() string {
	side := e.Side
	if side == "" {
		side = "input type"
	}

	return fmt.Sprintf("type mismatch:\n  %s output type: %s\n  %s %s: %s",
		e.Producer, TypeName(e.ProducerType), e.Consumer, side, TypeName(e.ConsumerType))
}

// Is implements errors.Is matching against ErrTypeMismatch.
func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

// InputTypeError is returned when a task receives a value of the wrong type.
type InputTypeError struct {
	Task     string
	Expected reflect.Type
	Actual   reflect.Type
}

func (e *InputTypeError) Error() string {
	return fmt.Sprintf("%s: input must be of type %s, got %s", e.Task, TypeName(e.Expected), TypeName(e.Actual))
}

// TypeOf returns the reflect.Type of T. Interface types (including any) are
// reported as nil, i.e. untyped.
func TypeOf[T any]() reflect.Type {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Interface {
		return nil
	}

	return t
}

// TypeName renders a type for error messages; nil renders as "any".
func TypeName(t reflect.Type) string {
	if t == nil {
		return "any"
	}

	if t.Name() != "" {
		return t.Name()
	}

	return t.String()
}

// CheckCompatibility verifies that prev's output can feed next's input. Only
// stages with both types known are compared; identity is exact type equality.
func CheckCompatibility(prev, next Task) error {
	out, in := prev.OutputType(), next.InputType()
	if out == nil || in == nil {
		return nil
	}

	if out != in {
		return &TypeMismatchError{
			Producer:     prev.Name(),
			ProducerType: out,
			Consumer:     next.Name(),
			ConsumerType: in,
		}
	}

	return nil
}

// ValidateInput checks a runtime value against an expected type. A pointer to
// the expected type is dereferenced and accepted; the normalized value is
// returned.
func ValidateInput(task string, expected reflect.Type, input any) (any, error) {
	if expected == nil {
		return input, nil
	}

	if input == nil {
		return nil, &InputTypeError{Task: task, Expected: expected}
	}

	v := reflect.ValueOf(input)
	if v.Type() == expected {
		return input, nil
	}

	if v.Kind() == reflect.Ptr && !v.IsNil() && v.Type().Elem() == expected {
		return v.Elem().Interface(), nil
	}

	return nil, &InputTypeError{Task: task, Expected: expected, Actual: v.Type()}
}

// RunAs runs the task and asserts the result to O.
func RunAs[O any](ctx context.Context, task Task, input any) (O, error) {
	var zero O

	res, err := task.Run(ctx, input)
	if err != nil {
		return zero, err
	}

	if res == nil {
		return zero, nil
	}

	out, ok := res.(O)
	if !ok {
		return zero, fmt.Errorf("%s: result of type %T is not %s", task.Name(), res, TypeName(reflect.TypeOf((*O)(nil)).Elem()))
	}

	return out, nil
}
