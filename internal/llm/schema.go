package llm

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

const (
	// FormatJSONObject asks for generic JSON mode: any valid JSON object.
	FormatJSONObject = "json_object"
	// FormatJSONSchema constrains the output to a specific schema.
	FormatJSONSchema = "json_schema"
)

// ResponseFormat describes a structured output constraint.
type ResponseFormat struct {
	Type        string
	Name        string
	Description string
	Schema      map[string]any
	Strict      bool
}

// JSONMode returns a format requesting any valid JSON object.
func JSONMode() *ResponseFormat {
	return &ResponseFormat{Type: FormatJSONObject}
}

// SchemaFormat reflects a JSON schema from a Go struct value and wraps
// it as a strict structured-output constraint. The sample is typically
// a pointer to the zero value of the struct the caller will decode the
// response into.
func SchemaFormat(name, description string, sample any) (*ResponseFormat, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	reflected := reflector.Reflect(sample)
	data, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("marshal reflected schema: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode reflected schema: %w", err)
	}
	delete(schema, "$schema")
	return &ResponseFormat{
		Type:        FormatJSONSchema,
		Name:        name,
		Description: description,
		Schema:      schema,
		Strict:      true,
	}, nil
}
