package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openai/openai-go/v3"
)

// DefaultHost is the address of a locally running Ollama daemon.
const DefaultHost = "http://localhost:11434"

// ErrToolChoiceNoTools is returned when tool choice is forced to
// "required" but the request carries no tool definitions.
var ErrToolChoiceNoTools = errors.New("tool_choice 'required' specified but no tools provided")

// ErrJSONOutputUnsupported is returned when JSON output is requested
// from a model whose capability flags deny it.
var ErrJSONOutputUnsupported = errors.New("model does not support JSON output")

// ToolChoice controls whether the model may, must, or must not call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// FinishReason is the normalized reason a completion stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishFunctionCalls FinishReason = "function_calls"
	FinishContentFilter FinishReason = "content_filter"
	FinishUnknown       FinishReason = "unknown"
)

// ToolCall represents a model tool call.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Usage counts tokens consumed by model calls.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Add accumulates another usage sample.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// Request is a simplified chat completion request.
type Request struct {
	Model      string
	Messages   []openai.ChatCompletionMessageParamUnion
	Tools      []openai.ChatCompletionToolUnionParam
	ToolChoice ToolChoice
	Format     *ResponseFormat
}

// Result is a completed model response. Content and ToolCalls are
// mutually exclusive: a response carries either text or tool call
// requests, never both.
type Result struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        Usage
}

// Client is an LLM client interface. Stream delivers incremental text
// deltas through onDelta and returns the same Result type as Create,
// with finish reason and usage populated from the final chunk.
type Client interface {
	Create(ctx context.Context, req Request) (Result, error)
	Stream(ctx context.Context, req Request, onDelta func(string)) (Result, error)
}

func normalizeFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "tool_calls", "function_call", "function_calls":
		return FinishFunctionCalls
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishUnknown
	}
}
