package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/internal/util"
	"github.com/hupe1980/agentpipe/logging"
)

func testToolContext(id string) *core.ToolContext {
	return core.NewToolContext(context.Background(), "tester", id, logging.NoOpLogger{})
}

// -------------------- Schema & Validation Tests --------------------

type sampleArgs struct {
	A string `json:"a" jsonschema:"description=Field A"`
	C int    `json:"c,omitempty" jsonschema:"description=Omit empty field"`
}

func TestNewFunctionToolFromStruct_Schema(t *testing.T) {
	fnTool, err := NewFunctionToolFromStruct("sample", "Sample", sampleArgs{}, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)

	schema := fnTool.Parameters()
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "c")
	assert.ElementsMatch(t, []string{"a"}, util.RequiredFields(schema))
}

func TestNewFunctionToolFromStruct_RejectsNonStruct(t *testing.T) {
	_, err := NewFunctionToolFromStruct("bad", "Bad", 42, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, nil
	})
	assert.ErrorContains(t, err, "tool bad: parameters must be a struct")
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		"required": []any{"x"},
	}

	assert.NoError(t, util.ValidateParameters(map[string]any{"x": 5}, schema))
	assert.NoError(t, util.ValidateParameters(map[string]any{"x": 5.0}, schema))

	err := util.ValidateParameters(map[string]any{}, schema)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "x", vErr.Field)

	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type integer")
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	result, err := sumTool.Call(testToolContext("fc1"), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})

	_, err := tTool.Call(testToolContext("fc2"), nil)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	execTool := NewFunctionTool("fail", "Fails", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	_, err := execTool.Call(testToolContext("fc3"), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	custom := NewToolError("fail", "quota exceeded", "QUOTA")
	execTool := NewFunctionTool("fail", "Fails", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, custom
	})

	_, err := execTool.Call(testToolContext("fc4"), map[string]any{})
	assert.Same(t, custom, err)
}

// -------------------- Typed Tool Tests --------------------

type forecastArgs struct {
	City string   `json:"city" jsonschema:"description=City name"`
	Days int      `json:"days,omitempty"`
	Tags []string `json:"tags,omitempty"`
}

type forecast struct {
	City string
	Days int
}

func TestNewTypedTool_DecodesArguments(t *testing.T) {
	typed, err := NewTypedTool("forecast", "Weather forecast", func(tc *core.ToolContext, args forecastArgs) (forecast, error) {
		assert.Equal(t, "fc5", tc.FunctionCallID())
		return forecast{City: args.City, Days: args.Days}, nil
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"city"}, util.RequiredFields(typed.Parameters()))

	res, err := typed.Call(testToolContext("fc5"), map[string]any{"city": "Paris", "days": 3.0})
	require.NoError(t, err)
	assert.Equal(t, forecast{City: "Paris", Days: 3}, res)
}

func TestNewTypedTool_DecodeError(t *testing.T) {
	typed, err := NewTypedTool("forecast", "Weather forecast", func(_ *core.ToolContext, args forecastArgs) (string, error) {
		return args.City, nil
	})
	require.NoError(t, err)

	_, err = typed.Call(testToolContext("fc6"), map[string]any{
		"city": "Paris",
		"tags": []any{map[string]any{"nested": true}},
	})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeDecode, toolErr.Code)
}

// -------------------- Helpers --------------------

func TestDefinitionsAndIndex(t *testing.T) {
	a := NewFunctionTool("a", "first", nil, nil)
	b := NewFunctionTool("b", "second", nil, nil)

	defs := Definitions([]Tool{a, b})
	require.Len(t, defs, 2)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "a", defs[0].Function.Name)
	assert.Equal(t, "second", defs[1].Function.Description)

	idx, err := Index([]Tool{a, b})
	require.NoError(t, err)
	assert.Same(t, b, idx["b"])

	_, err = Index([]Tool{a, a})
	assert.ErrorContains(t, err, "duplicate tool name")
}

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}
