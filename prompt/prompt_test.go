package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type question struct {
	Question string
	Topic    string
}

func TestTemplate_FormatScalarInput(t *testing.T) {
	tmpl, err := New("Translate: {{.Input}}")
	require.NoError(t, err)

	out, err := tmpl.Format("hello", "")
	require.NoError(t, err)
	assert.Equal(t, "Translate: hello", out)
}

func TestTemplate_FormatStructInput(t *testing.T) {
	tmpl, err := New("Q: {{.Arg.Question}} ({{.Arg.Topic | upper}})")
	require.NoError(t, err)

	out, err := tmpl.Format(question{Question: "Why?", Topic: "go"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Q: Why? (GO)", out)

	out, err = tmpl.Format(&question{Question: "How?", Topic: "rust"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Q: How? (RUST)", out)
}

func TestTemplate_MissingKeyFails(t *testing.T) {
	tmpl, err := New("Q: {{.Arg.Question}}")
	require.NoError(t, err)

	_, err = tmpl.Format("plain string", "")
	assert.Error(t, err)
}

func TestNew_InvalidTemplate(t *testing.T) {
	_, err := New("{{.Input")
	assert.ErrorContains(t, err, "invalid prompt template")
}

func TestTemplate_FormatWithInstructions(t *testing.T) {
	tmpl := Must("Summarize {{.Input}}")

	out, err := tmpl.FormatWithInstructions("the text", "Respond in JSON.")
	require.NoError(t, err)
	assert.Equal(t, "Summarize the text\nRespond in JSON.", out)

	out, err = tmpl.FormatWithInstructions("the text", "")
	require.NoError(t, err)
	assert.Equal(t, "Summarize the text", out)

	inline := Must("{{.FormatInstructions}}\nSummarize {{.Input}}")
	out, err = inline.FormatWithInstructions("the text", "Respond in JSON.")
	require.NoError(t, err)
	assert.Equal(t, "Respond in JSON.\nSummarize the text", out)
}

func TestTypedResult(t *testing.T) {
	out, err := TypedResult.Format("It is sunny.", "FORMAT")
	require.NoError(t, err)
	assert.Contains(t, out, "It is sunny.")
	assert.Contains(t, out, "FORMAT")
}

func TestData(t *testing.T) {
	d := Data(42, "")
	assert.Equal(t, 42, d["Input"])
	assert.NotContains(t, d, "Arg")

	d = Data(question{Question: "q"}, "fi")
	assert.Equal(t, question{Question: "q"}, d["Arg"])
	assert.Equal(t, "fi", d["FormatInstructions"])
}
