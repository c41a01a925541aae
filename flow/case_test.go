package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpipe/agent"
	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/internal/testutil"
)

func constant(name, value string) core.Task {
	return Func(name, func(_ context.Context, _ string) (string, error) { return value, nil })
}

func label(name string) core.Task {
	return Func(name, func(_ context.Context, _ any) (string, error) { return name, nil })
}

func isShort(v any) bool { return len(v.(string)) < 5 }

func TestCondition_Accessors(t *testing.T) {
	short := constant("short", "S")
	fallback := constant("fallback", "D")

	branch := When(isShort).Then(short)
	assert.False(t, branch.IsDefault())
	assert.Same(t, short, branch.Task())

	def := Default(fallback)
	assert.True(t, def.IsDefault())
	assert.Same(t, fallback, def.Task())
}

func TestCase_FirstMatchWins(t *testing.T) {
	f := Start(upper()).Case(
		When(isShort).Then(constant("short", "S")),
		When(func(any) bool { return true }).Then(constant("any", "A")),
		Default(constant("fallback", "D")),
	)
	require.NoError(t, f.Err())
	assert.Equal(t, core.TypeOf[string](), f.OutputType())

	out, err := f.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "S", out)

	out, err = f.Run(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, "A", out)
}

func TestCase_DefaultAndNoMatch(t *testing.T) {
	withDefault := Start(upper()).Case(
		Default(constant("fallback", "D")),
		When(isShort).Then(constant("short", "S")),
	)
	require.NoError(t, withDefault.Err())

	out, err := withDefault.Run(context.Background(), "a long input")
	require.NoError(t, err)
	assert.Equal(t, "D", out)

	out, err = withDefault.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "S", out)

	noDefault := Start(upper()).Case(When(isShort).Then(constant("short", "S")))

	out, err = noDefault.Run(context.Background(), "a long input")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCase_CompositionErrors(t *testing.T) {
	f := Start(upper()).Case(When(isShort))
	assert.ErrorIs(t, f.Err(), ErrMissingTask)

	f = Start(upper()).Case()
	assert.ErrorContains(t, f.Err(), "at least one branch")

	f = Start(upper()).Case(Default(constant("a", "a")), Default(constant("b", "b")))
	assert.ErrorIs(t, f.Err(), ErrMultipleDefaults)

	f = Start(upper()).Case(When(isShort).Then(describe()))
	require.ErrorIs(t, f.Err(), core.ErrTypeMismatch)
	assert.Contains(t, f.Err().Error(), "describe input type: int")
}

func TestCase_BranchOutputTypes(t *testing.T) {
	f := Start(upper()).Case(
		When(isShort).Then(constant("short", "S")),
		Default(length()),
	)

	err := f.Err()
	require.ErrorIs(t, err, core.ErrTypeMismatch)
	assert.Contains(t, err.Error(), "branch 1 (length) output type: int")
	assert.Contains(t, err.Error(), "branch 0 (short) output type: string")

	mapped := Start(upper()).Case(
		When(isShort).Then(constant("short", "S")),
		Default(length()).ToOutput(func(v any) any { return strings.Repeat("#", v.(int)) }),
	)
	require.NoError(t, mapped.Err())

	out, err := mapped.Run(context.Background(), "longer")
	require.NoError(t, err)
	assert.Equal(t, "######", out)
}

func TestCaseAs_ExplicitOutputType(t *testing.T) {
	f := Start(upper()).CaseAs(core.TypeOf[int](), When(isShort).Then(constant("short", "S")))
	require.ErrorIs(t, f.Err(), core.ErrTypeMismatch)
	assert.Contains(t, f.Err().Error(), "case[1] output type: int")

	f = Start(upper()).CaseAs(core.TypeOf[string](),
		When(isShort).Then(constant("short", "S")).ToOutput(func(any) any { return 42 }),
	)
	require.NoError(t, f.Err())
	assert.Equal(t, core.TypeOf[string](), f.OutputType())

	_, err := f.Run(context.Background(), "hi")
	require.ErrorIs(t, err, core.ErrTypeMismatch)
	assert.Contains(t, err.Error(), "branch 0 (short) output type: int")
}

func TestWhenT(t *testing.T) {
	f := Start(Func("echo", func(_ context.Context, v any) (any, error) { return v, nil })).Case(
		WhenT(func(tk ticket) bool { return tk.Text == "refund" }).Then(label("billing")),
		Default(label("support")),
	)
	require.NoError(t, f.Err())

	out, err := f.Run(context.Background(), ticket{Text: "refund"})
	require.NoError(t, err)
	assert.Equal(t, "billing", out)

	out, err = f.Run(context.Background(), &ticket{Text: "refund"})
	require.NoError(t, err)
	assert.Equal(t, "billing", out)

	out, err = f.Run(context.Background(), "refund")
	require.NoError(t, err)
	assert.Equal(t, "support", out)
}

func TestConditional(t *testing.T) {
	f := Start(upper()).Conditional(
		[]*Condition{When(isShort).Then(constant("short", "S"))},
		length(),
	)
	require.NoError(t, f.Err())
	assert.Equal(t, core.TypeOf[int](), f.OutputType())

	out, err := f.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "S", out)

	out, err = f.Run(context.Background(), "longer")
	require.NoError(t, err)
	assert.Equal(t, 6, out)

	noDefault := Start(upper()).Conditional([]*Condition{When(isShort).Then(length())}, nil)
	require.NoError(t, noDefault.Err())
	assert.Equal(t, core.TypeOf[int](), noDefault.OutputType())

	out, err = noDefault.Run(context.Background(), "longer")
	require.NoError(t, err)
	assert.Nil(t, out)

	bad := Start(length()).Conditional(nil, upper())
	assert.ErrorIs(t, bad.Err(), core.ErrTypeMismatch)
}

func TestFlow_AgentsWithBranching(t *testing.T) {
	classifierModel := testutil.NewScriptedModel("classifier").
		Reply(`{"name": "billing"}`)
	billingModel := testutil.NewScriptedModel("billing").
		Reply("Your refund is on its way.")

	classifier, err := agent.New("classifier", classifierModel,
		agent.WithInput[ticket](),
		agent.WithOutput[category](),
		agent.WithPrompt("Classify this ticket: {{.Arg.Text}}"),
	)
	require.NoError(t, err)

	billing, err := agent.New("billing", billingModel,
		agent.WithInput[category](),
		agent.WithPrompt("Answer a {{.Arg.Name}} question."),
	)
	require.NoError(t, err)

	unreachable, err := agent.New("general", testutil.NewScriptedModel("general"),
		agent.WithInput[category](),
		agent.WithPrompt("Answer a {{.Arg.Name}} question."),
	)
	require.NoError(t, err)

	f := Start(classifier, WithName("support")).Case(
		WhenT(func(c category) bool { return c.Name == "billing" }).Then(billing),
		Default(unreachable),
	)
	require.NoError(t, f.Err())

	out, err := core.RunAs[string](context.Background(), f, ticket{Text: "I want my money back"})
	require.NoError(t, err)
	assert.Equal(t, "Your refund is on its way.", out)
	assert.Equal(t, "Answer a billing question.", billingModel.LastPrompt())
	assert.Contains(t, classifierModel.LastPrompt(), "Classify this ticket: I want my money back")
}

func TestFlow_AgentTypeMismatch(t *testing.T) {
	m := testutil.NewScriptedModel("m")

	classifier, err := agent.New("classifier", m,
		agent.WithInput[ticket](), agent.WithOutput[category](), agent.WithPrompt("{{.Arg.Text}}"))
	require.NoError(t, err)

	responder, err := agent.New("responder", m,
		agent.WithInput[ticket](), agent.WithPrompt("{{.Arg.Text}}"))
	require.NoError(t, err)

	f := Start(classifier).Next(responder)

	err = f.Err()
	require.ErrorIs(t, err, core.ErrTypeMismatch)
	assert.Contains(t, err.Error(), "type mismatch:\n  classifier output type: category\n  responder input type: ticket")
}
