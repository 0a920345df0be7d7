// Reliability tests against a live local Ollama daemon.
//
// These exercise the full client surface end to end: basic completion,
// streaming, multi-turn conversations, function calling, structured
// output, usage accounting, and concurrent use of a shared client.
// They skip automatically when no daemon is reachable; the deterministic
// coverage of the same paths lives in ollama_test.go.
//
// To run against a non-default daemon:
//
//	OLLAMA_HOST=http://remote:11434 go test ./internal/llm -run TestOllama -v
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lm-cli/internal/tools"
)

const (
	reliabilityModel   = "qwen3:0.6b"
	reliabilityVariant = "llama3.2:1b"
)

func reliabilityHost() string {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		return host
	}
	return DefaultHost
}

// newReliabilityClient skips the test when the daemon is unreachable.
func newReliabilityClient(t *testing.T, model string) *OllamaClient {
	t.Helper()
	host := reliabilityHost()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(host, "/")+"/api/tags", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Skipf("ollama not reachable at %s: %v", host, err)
	}
	_ = resp.Body.Close()
	return NewOllamaClient(model, host, zap.NewNop())
}

func calculatorDefs(t *testing.T) []openai.ChatCompletionToolUnionParam {
	t.Helper()
	registry := tools.NewRegistry(tools.NewCalculatorTool(zap.NewNop()))
	return registry.OpenAITools()
}

func assistantWithToolCalls(calls []ToolCall) openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(calls))
	for _, call := range calls {
		params = append(params, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: string(call.Arguments),
				},
				Type: constant.Function("function"),
			},
		})
	}
	assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: params}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func TestOllamaSimpleCompletion(t *testing.T) {
	client := newReliabilityClient(t, reliabilityModel)

	result, err := client.Create(context.Background(), Request{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("Say 'Hello, World!' and nothing else."),
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	assert.Contains(t, []FinishReason{FinishStop, FinishUnknown}, result.FinishReason)
	assert.Positive(t, result.Usage.PromptTokens)
	assert.Positive(t, result.Usage.CompletionTokens)
}

func TestOllamaStreamingCompletion(t *testing.T) {
	client := newReliabilityClient(t, reliabilityModel)

	var deltas []string
	result, err := client.Stream(context.Background(), Request{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("Count from 1 to 5."),
		},
	}, func(delta string) {
		deltas = append(deltas, delta)
	})
	require.NoError(t, err)
	require.NotEmpty(t, deltas)
	require.NotEmpty(t, result.Content)
	assert.Equal(t, strings.Join(deltas, ""), result.Content)
	assert.Contains(t, []FinishReason{FinishStop, FinishUnknown}, result.FinishReason)
	assert.Positive(t, result.Usage.CompletionTokens)
}

func TestOllamaMultiTurnConversation(t *testing.T) {
	client := newReliabilityClient(t, reliabilityModel)
	ctx := context.Background()

	first, err := client.Create(ctx, Request{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("My name is Alice."),
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.Content)

	second, err := client.Create(ctx, Request{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("My name is Alice."),
			openai.AssistantMessage(first.Content),
			openai.UserMessage("What is my name?"),
		},
	})
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(second.Content), "alice")
}

func TestOllamaBasicFunctionCalling(t *testing.T) {
	client := newReliabilityClient(t, reliabilityModel)

	result, err := client.Create(context.Background(), Request{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("What is 5 plus 7? Use the calculator tool."),
		},
		Tools: calculatorDefs(t),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.ToolCalls)
	call := result.ToolCalls[0]
	assert.Equal(t, "calculator", call.Name)

	var args struct {
		A        float64 `json:"a"`
		B        float64 `json:"b"`
		Operator string  `json:"operator"`
	}
	require.NoError(t, json.Unmarshal(call.Arguments, &args))
	assert.Contains(t, []string{"+", "-", "*", "/"}, args.Operator)
}

func TestOllamaFunctionExecutionFlow(t *testing.T) {
	client := newReliabilityClient(t, reliabilityModel)
	ctx := context.Background()
	calculator := tools.NewCalculatorTool(zap.NewNop())

	question := openai.UserMessage("What is 6 times 7? Use the calculator tool.")
	first, err := client.Create(ctx, Request{
		Messages: []openai.ChatCompletionMessageParamUnion{question},
		Tools:    calculatorDefs(t),
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ToolCalls)
	call := first.ToolCalls[0]

	execution, err := calculator.Execute(ctx, call.Arguments, tools.Meta{})
	require.NoError(t, err)
	output, ok := execution.Payload.(string)
	require.True(t, ok)

	second, err := client.Create(ctx, Request{
		Messages: []openai.ChatCompletionMessageParamUnion{
			question,
			assistantWithToolCalls(first.ToolCalls),
			openai.ToolMessage(output, call.ID),
		},
	})
	require.NoError(t, err)
	assert.Contains(t, second.Content, "42")
}

func TestOllamaStructuredOutput(t *testing.T) {
	client := newReliabilityClient(t, reliabilityModel)
	if !client.ModelInfo().StructuredOutput {
		t.Skipf("model %s does not support structured output", client.Model())
	}

	format, err := SchemaFormat("person", "A person record", &person{})
	require.NoError(t, err)

	result, err := client.Create(context.Background(), Request{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("Generate information about a person named John who is 30 years old and lives in New York."),
		},
		Format: format,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)

	var decoded person
	require.NoError(t, json.Unmarshal([]byte(result.Content), &decoded))
	assert.NotEmpty(t, decoded.Name)
	assert.Positive(t, decoded.Age)
	assert.NotEmpty(t, decoded.City)
}

func TestOllamaJSONMode(t *testing.T) {
	client := newReliabilityClient(t, reliabilityModel)

	result, err := client.Create(context.Background(), Request{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("List 3 colors in JSON format with 'colors' as the key."),
		},
		Format: JSONMode(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Content), &data))
}

func TestOllamaModelVariant(t *testing.T) {
	client := newReliabilityClient(t, reliabilityVariant)

	result, err := client.Create(context.Background(), Request{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("Say hello in one word."),
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	assert.Contains(t, []FinishReason{FinishStop, FinishUnknown}, result.FinishReason)

	withTools, err := client.Create(context.Background(), Request{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("What is 2 plus 2? Use the calculator tool."),
		},
		Tools: calculatorDefs(t),
	})
	require.NoError(t, err)
	assert.True(t, withTools.Content != "" || len(withTools.ToolCalls) > 0)
}

func TestOllamaResponseTime(t *testing.T) {
	client := newReliabilityClient(t, reliabilityModel)

	start := time.Now()
	result, err := client.Create(context.Background(), Request{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage("Hi")},
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	// Generous bound for CI machines without GPUs.
	assert.Less(t, elapsed, 30*time.Second)
}

func TestOllamaConcurrentRequests(t *testing.T) {
	client := newReliabilityClient(t, reliabilityModel)

	const workers = 3
	results := make([]Result, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = client.Create(context.Background(), Request{
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.UserMessage(fmt.Sprintf("Count to %d", i+1)),
				},
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.NotEmpty(t, results[i].Content)
	}
}

func TestOllamaUsageAccumulation(t *testing.T) {
	client := newReliabilityClient(t, reliabilityModel)

	initial := client.TotalUsage()
	_, err := client.Create(context.Background(), Request{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage("Hello")},
	})
	require.NoError(t, err)

	final := client.TotalUsage()
	assert.Greater(t, final.PromptTokens, initial.PromptTokens)
	assert.Greater(t, final.CompletionTokens, initial.CompletionTokens)
}

func TestOllamaActualUsage(t *testing.T) {
	client := newReliabilityClient(t, reliabilityModel)

	result, err := client.Create(context.Background(), Request{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage("Hi there!")},
	})
	require.NoError(t, err)
	require.Positive(t, result.Usage.PromptTokens)
	require.Positive(t, result.Usage.CompletionTokens)

	actual := client.ActualUsage()
	assert.GreaterOrEqual(t, actual.PromptTokens, result.Usage.PromptTokens)
	assert.GreaterOrEqual(t, actual.CompletionTokens, result.Usage.CompletionTokens)
}

func TestOllamaInvalidToolChoice(t *testing.T) {
	// Validation happens before any I/O, so no daemon is needed.
	client := NewOllamaClient(reliabilityModel, reliabilityHost(), zap.NewNop())

	_, err := client.Create(context.Background(), Request{
		Messages:   []openai.ChatCompletionMessageParamUnion{openai.UserMessage("Test")},
		ToolChoice: ToolChoiceRequired,
	})
	require.ErrorIs(t, err, ErrToolChoiceNoTools)
	assert.Contains(t, err.Error(), "no tools provided")
}

func TestOllamaModelInfoAccess(t *testing.T) {
	client := NewOllamaClient(reliabilityModel, reliabilityHost(), zap.NewNop())

	info := client.ModelInfo()
	assert.True(t, info.FunctionCalling)
	assert.True(t, info.JSONOutput)
	assert.False(t, info.Vision)
	assert.Positive(t, info.ContextWindow)
}

func TestOllamaTokenCounting(t *testing.T) {
	client := NewOllamaClient(reliabilityModel, reliabilityHost(), zap.NewNop())
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage("Hello, how are you?"),
	}

	count := client.CountTokens(messages, nil)
	assert.Positive(t, count)

	remaining := client.RemainingTokens(messages, nil)
	assert.Positive(t, remaining)
}
