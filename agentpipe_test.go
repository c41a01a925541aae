package agentpipe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpipe/agent"
	"github.com/hupe1980/agentpipe/internal/testutil"
)

type ticket struct {
	Text string `json:"text"`
}

type category struct {
	Name string `json:"name"`
}

func TestPipeline(t *testing.T) {
	m := testutil.NewScriptedModel("m").
		Reply(`{"name": "shipping"}`).
		Reply("Your parcel arrives tomorrow.")

	classifier, err := NewAgent("classifier", m,
		agent.WithInput[ticket](),
		agent.WithOutput[category](),
		agent.WithPrompt("Classify: {{.Arg.Text}}"),
	)
	require.NoError(t, err)

	shipping, err := NewAgent("shipping", m,
		agent.WithInput[category](),
		agent.WithPrompt("Answer a {{.Arg.Name}} question."),
	)
	require.NoError(t, err)

	fallback, err := NewAgent("fallback", m,
		agent.WithInput[category](),
		agent.WithPrompt("Apologize."),
	)
	require.NoError(t, err)

	f := Start(classifier).Case(
		WhenT(func(c category) bool { return c.Name == "shipping" }).Then(shipping),
		When(func(any) bool { return false }).Then(fallback),
		Default(fallback),
	)
	require.NoError(t, f.Err())

	out, err := Run[string](context.Background(), f, ticket{Text: "where is my parcel?"})
	require.NoError(t, err)
	assert.Equal(t, "Your parcel arrives tomorrow.", out)
	assert.Equal(t, 0, m.Remaining())
}

func TestRun_WrongResultType(t *testing.T) {
	m := testutil.NewScriptedModel("m").Reply("text")

	a, err := NewAgent("a", m)
	require.NoError(t, err)

	_, err = Run[int](context.Background(), a, "hi")
	assert.ErrorContains(t, err, "result of type string is not int")
}
