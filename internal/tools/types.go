package tools

import (
	"context"
	"encoding/json"
)

// Meta provides execution context to tools.
type Meta struct {
	ToolTimeoutSeconds int
	MaxBytes           int
}

// Result is a structured tool execution result.
type Result struct {
	ToolName   string
	Payload    any
	Preview    string
	ByteCount  int
	DurationMs int64
}

// Tool describes a callable tool. The agent discovers tools by name,
// advertises Schema to the model, and invokes Execute with the
// JSON-decoded arguments the model produced.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, input json.RawMessage, meta Meta) (Result, error)
}
