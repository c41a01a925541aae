// Package parser turns raw model text into typed values.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/hupe1980/agentpipe/internal/util"
)

// OutputParser converts model text into a value and describes the expected
// format to the model.
type OutputParser interface {
	Parse(text string) (any, error)
	FormatInstructions() string
}

// OutputParserError reports model output that could not be parsed.
type OutputParserError struct {
	Text string
	Err  error
}

func (e *OutputParserError) Error() string {
	return fmt.Sprintf("failed to parse model output: %v", e.Err)
}

func (e *OutputParserError) Unwrap() error { return e.Err }

// For returns the parser for an output type: nil and string yield a
// StringParser, everything else a JSONParser.
func For(t reflect.Type) (OutputParser, error) {
	if t == nil || t == reflect.TypeOf("") {
		return StringParser{}, nil
	}

	return NewJSONParser(t)
}

// StringParser returns the trimmed text unchanged.
type StringParser struct{}

// Parse implements OutputParser.
func (StringParser) Parse(text string) (any, error) { return strings.TrimSpace(text), nil }

// FormatInstructions implements OutputParser.
func (StringParser) FormatInstructions() string { return "" }

// JSONParser decodes a JSON document in the model output into a value of a
// fixed Go type.
type JSONParser struct {
	typ          reflect.Type
	schema       map[string]any
	instructions string
	object       bool
}

// NewJSONParser creates a parser producing values of type t.
func NewJSONParser(t reflect.Type) (*JSONParser, error) {
	if t == nil {
		return nil, fmt.Errorf("json parser requires a type")
	}

	schema, err := util.SchemaFor(t)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output schema: %w", err)
	}

	base := t
	for base.Kind() == reflect.Ptr {
		base = base.Elem()
	}

	return &JSONParser{
		typ:          t,
		schema:       schema,
		instructions: fmt.Sprintf(jsonInstructions, raw),
		object:       base.Kind() == reflect.Struct || base.Kind() == reflect.Map,
	}, nil
}

const jsonInstructions = "The output must be a JSON instance that conforms to the JSON schema below.\n\n" +
	"For example, for the schema {\"properties\": {\"foo\": {\"type\": \"array\", \"items\": {\"type\": \"string\"}}}, \"required\": [\"foo\"]}\n" +
	"the object {\"foo\": [\"bar\", \"baz\"]} is well formatted, while {\"properties\": {\"foo\": [\"bar\", \"baz\"]}} is not.\n\n" +
	"Here is the output schema:\n```\n%s\n```\nReturn only the JSON instance."

// Type returns the produced type.
func (p *JSONParser) Type() reflect.Type { return p.typ }

// FormatInstructions implements OutputParser.
func (p *JSONParser) FormatInstructions() string { return p.instructions }

// Parse implements OutputParser. The returned value has the parser's type,
// not a pointer to it.
func (p *JSONParser) Parse(text string) (any, error) {
	doc, err := extractJSON(text, p.object)
	if err != nil {
		return nil, &OutputParserError{Text: text, Err: err}
	}

	if p.schema["type"] == "object" {
		var fields map[string]any
		if err := json.Unmarshal([]byte(doc), &fields); err != nil {
			return nil, &OutputParserError{Text: text, Err: err}
		}

		if err := util.ValidateParameters(fields, p.schema); err != nil {
			return nil, &OutputParserError{Text: text, Err: err}
		}
	}

	ptr := reflect.New(p.typ)
	if err := json.Unmarshal([]byte(doc), ptr.Interface()); err != nil {
		return nil, &OutputParserError{Text: text, Err: fmt.Errorf("invalid %s: %w", p.typ, err)}
	}

	return ptr.Elem().Interface(), nil
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ExtractJSON finds the JSON document in text: the content of a fenced code
// block when present, else the first balanced object or array.
func ExtractJSON(text string) (string, error) {
	return extractJSON(text, false)
}

// extractJSON is ExtractJSON; with preferObject set, embedded objects win
// over arrays that appear before them.
func extractJSON(text string, preferObject bool) (string, error) {
	text = strings.TrimSpace(text)

	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	if json.Valid([]byte(text)) {
		return text, nil
	}

	if preferObject {
		if doc, ok := scanJSON(text, "{"); ok {
			return doc, nil
		}
	}

	if doc, ok := scanJSON(text, "{["); ok {
		return doc, nil
	}

	return "", fmt.Errorf("no JSON document found in output")
}

// scanJSON returns the first balanced, valid JSON document in text that
// starts with one of the opening brackets in open.
func scanJSON(text, open string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if !strings.ContainsRune(open, rune(text[start])) {
			continue
		}

		if end := balancedEnd(text, start); end > 0 {
			candidate := text[start:end]
			if json.Valid([]byte(candidate)) {
				return compact(candidate), true
			}
		}
	}

	return "", false
}

// balancedEnd returns the index just past the bracket closing text[start],
// skipping string literals, or -1.
func balancedEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}

			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}

	return -1
}

func compact(doc string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(doc)); err != nil {
		return doc
	}

	return buf.String()
}
