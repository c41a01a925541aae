package util

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// SchemaFor reflects a JSON schema for t. Structs are expanded inline and
// fields without omitempty are required. Other kinds (scalars, slices, maps)
// get their plain inline schema. Descriptions come from
// `jsonschema:"description=..."` tags.
func SchemaFor(t reflect.Type) (map[string]any, error) {
	if t == nil {
		return map[string]any{}, nil
	}

	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	reflector := &jsonschema.Reflector{
		ExpandedStruct:             t.Kind() == reflect.Struct,
		DoNotReference:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: false,
	}

	return schemaToMap(reflector.ReflectFromType(t))
}

// ObjectSchema returns the schema of a struct type shaped for tool
// parameters: an object with properties and optional required list.
func ObjectSchema(t reflect.Type) (map[string]any, error) {
	base := t
	for base != nil && base.Kind() == reflect.Ptr {
		base = base.Elem()
	}

	if base == nil || base.Kind() != reflect.Struct {
		return nil, fmt.Errorf("parameters must be a struct, got %v", t)
	}

	schema, err := SchemaFor(t)
	if err != nil {
		return nil, err
	}

	result := map[string]any{
		"type":       "object",
		"properties": schema["properties"],
	}

	if result["properties"] == nil {
		result["properties"] = map[string]any{}
	}

	if required, ok := schema["required"]; ok {
		result["required"] = required
	}

	return result, nil
}

// schemaToMap converts a jsonschema.Schema to map[string]any via a JSON round trip.
func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}

	delete(result, "$schema")
	delete(result, "$id")

	return result, nil
}

// RequiredFields returns the "required" list of a schema regardless of
// whether it was built in Go ([]string) or decoded from JSON ([]any).
func RequiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		fields := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				fields = append(fields, s)
			}
		}

		return fields
	default:
		return nil
	}
}

// ValidateParameters validates parameters against a JSON schema. Only the
// required list and top level property types are checked.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, fieldName := range RequiredFields(schema) {
		if _, exists := params[fieldName]; !exists {
			return &ValidationError{
				Field:   fieldName,
				Message: "required field is missing",
			}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for fieldName, value := range params {
		propSchema, exists := properties[fieldName]
		if !exists {
			continue // Allow extra fields
		}

		propMap, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}

		expectedType, _ := propMap["type"].(string)
		if !isValidType(value, expectedType) {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", expectedType, value),
			}
		}
	}

	return nil
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON numbers decode as float64
			return v == float64(int64(v))
		}

		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}

		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		return reflect.ValueOf(value).Kind() == reflect.Slice
	case "object":
		return reflect.ValueOf(value).Kind() == reflect.Map
	default:
		return true
	}
}
