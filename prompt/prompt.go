// Package prompt compiles and renders the prompt templates agents send to
// their models.
//
// Templates use text/template syntax and fail on unknown keys. The data
// passed to a template has three fields:
//
//	.Input               the raw input value
//	.Arg                 the input value when it is a struct (for {{.Arg.Field}})
//	.FormatInstructions  output format instructions, empty for text outputs
package prompt

import (
	"fmt"
	"reflect"
	"strings"
	"text/template"

	"github.com/hupe1980/agentpipe/internal/util"
)

// DefaultTemplate renders the input verbatim.
const DefaultTemplate = "{{.Input}}"

// Template is a compiled prompt template.
type Template struct {
	text string
	tmpl *template.Template
}

// New compiles text into a Template.
func New(text string) (*Template, error) {
	tmpl, err := util.ParseTemplate("prompt", text)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt template: %w", err)
	}

	return &Template{text: text, tmpl: tmpl}, nil
}

// Must is like New but panics on error. Intended for package level templates.
func Must(text string) *Template {
	t, err := New(text)
	if err != nil {
		panic(err)
	}

	return t
}

// Text returns the template source.
func (t *Template) Text() string { return t.text }

// Format renders the template for input.
func (t *Template) Format(input any, formatInstructions string) (string, error) {
	out, err := util.ExecuteTemplate(t.tmpl, Data(input, formatInstructions))
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}

	return out, nil
}

// FormatWithInstructions renders the template and appends the format
// instructions on a new line unless the template placed them itself.
func (t *Template) FormatWithInstructions(input any, formatInstructions string) (string, error) {
	out, err := t.Format(input, formatInstructions)
	if err != nil {
		return "", err
	}

	if formatInstructions == "" || strings.Contains(t.text, ".FormatInstructions") {
		return out, nil
	}

	return out + "\n" + formatInstructions, nil
}

// Data builds the template data for input.
func Data(input any, formatInstructions string) map[string]any {
	data := map[string]any{
		"Input":              input,
		"FormatInstructions": formatInstructions,
	}

	if input != nil {
		v := reflect.ValueOf(input)
		if v.Kind() == reflect.Ptr && !v.IsNil() {
			v = v.Elem()
		}

		if v.Kind() == reflect.Struct {
			data["Arg"] = v.Interface()
		}
	}

	return data
}
