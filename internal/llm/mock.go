package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// MockClient is a deterministic client for tests and demos. The first
// Create call requests a calculator tool call; later calls and Stream
// return a plain text answer.
type MockClient struct {
	mu    sync.Mutex
	calls int
	total Usage
}

// NewMockClient returns a simple mock.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Create(ctx context.Context, req Request) (Result, error) {
	if req.ToolChoice == ToolChoiceRequired && len(req.Tools) == 0 {
		return Result{}, ErrToolChoiceNoTools
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.total.Add(Usage{PromptTokens: 12, CompletionTokens: 8})

	if m.calls == 1 && len(req.Tools) > 0 {
		args, _ := json.Marshal(map[string]any{"a": 6, "b": 7, "operator": "*"})
		return Result{
			ToolCalls:    []ToolCall{{ID: "call_1", Name: "calculator", Arguments: args}},
			FinishReason: FinishFunctionCalls,
			Usage:        Usage{PromptTokens: 12, CompletionTokens: 8},
		}, nil
	}
	return Result{
		Content:      "6 * 7 = 42.",
		FinishReason: FinishStop,
		Usage:        Usage{PromptTokens: 12, CompletionTokens: 8},
	}, nil
}

func (m *MockClient) Stream(ctx context.Context, req Request, onDelta func(string)) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total.Add(Usage{PromptTokens: 12, CompletionTokens: 8})
	content := "6 * 7 = 42."
	if onDelta != nil {
		onDelta(content)
	}
	return Result{Content: content, FinishReason: FinishStop, Usage: Usage{PromptTokens: 12, CompletionTokens: 8}}, nil
}

// TotalUsage returns cumulative usage recorded by the mock.
func (m *MockClient) TotalUsage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
