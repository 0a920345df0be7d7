package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

// OllamaClient implements Client against a local Ollama daemon via its
// OpenAI-compatible endpoint. One instance is safe for concurrent use;
// the usage counters are the only shared mutable state.
type OllamaClient struct {
	client    openai.Client
	model     string
	host      string
	info      ModelInfo
	estimator *tokenEstimator
	logger    *zap.Logger

	mu     sync.Mutex
	total  Usage
	actual Usage
}

// NewOllamaClient constructs a client for one model on a local daemon.
// An empty host selects DefaultHost. The logger is required plumbing;
// nil falls back to a no-op logger.
func NewOllamaClient(model, host string, logger *zap.Logger) *OllamaClient {
	if host == "" {
		host = DefaultHost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := retryablehttp.NewClient()
	retry.RetryMax = 2
	retry.Logger = nil
	client := openai.NewClient(
		// Ollama ignores the key but the SDK requires one.
		option.WithAPIKey("ollama"),
		option.WithBaseURL(strings.TrimSuffix(host, "/")+"/v1"),
		option.WithHTTPClient(retry.StandardClient()),
	)
	return &OllamaClient{
		client:    client,
		model:     model,
		host:      host,
		info:      ResolveModelInfo(model),
		estimator: newTokenEstimator(),
		logger:    logger,
	}
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string { return c.model }

// Host returns the daemon address the client talks to.
func (c *OllamaClient) Host() string { return c.host }

// ModelInfo returns the capability flags for the configured model.
func (c *OllamaClient) ModelInfo() ModelInfo { return c.info }

// Create sends a chat completion request and waits for the full result.
func (c *OllamaClient) Create(ctx context.Context, req Request) (Result, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return Result{}, err
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	result, err := parseChatCompletion(resp)
	if err != nil {
		return Result{}, err
	}
	c.recordUsage(req, result.Usage)
	return result, nil
}

// Stream sends a chat completion request in streaming mode. Text
// deltas are forwarded to onDelta as they arrive; the returned Result
// is complete, carrying the accumulated content or tool calls plus the
// finish reason and usage from the final chunk.
func (c *OllamaClient) Stream(ctx context.Context, req Request, onDelta func(string)) (Result, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return Result{}, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: param.NewOpt(true)}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	var (
		builder   strings.Builder
		toolCalls []ToolCall
		toolArgs  []*strings.Builder
		toolIndex = map[int64]int{}
		finish    string
		usage     Usage
	)
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage = Usage{PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens}
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
			if choice.Delta.Content != "" {
				builder.WriteString(choice.Delta.Content)
				if onDelta != nil {
					onDelta(choice.Delta.Content)
				}
			}
			for _, call := range choice.Delta.ToolCalls {
				pos, seen := toolIndex[call.Index]
				if !seen {
					pos = len(toolCalls)
					toolIndex[call.Index] = pos
					toolCalls = append(toolCalls, ToolCall{})
					toolArgs = append(toolArgs, &strings.Builder{})
				}
				if call.ID != "" {
					toolCalls[pos].ID = call.ID
				}
				if call.Function.Name != "" {
					toolCalls[pos].Name = call.Function.Name
				}
				toolArgs[pos].WriteString(call.Function.Arguments)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return Result{}, fmt.Errorf("chat completion stream: %w", err)
	}
	for pos := range toolCalls {
		toolCalls[pos].Arguments = json.RawMessage(toolArgs[pos].String())
	}

	result := Result{
		Content:      builder.String(),
		ToolCalls:    toolCalls,
		FinishReason: normalizeFinishReason(finish),
		Usage:        usage,
	}
	if len(result.ToolCalls) > 0 {
		result.Content = ""
		if result.FinishReason == FinishUnknown {
			result.FinishReason = FinishFunctionCalls
		}
	}
	c.recordUsage(req, result.Usage)
	return result, nil
}

// CountTokens estimates the token cost of sending the given messages
// and tool definitions to the model.
func (c *OllamaClient) CountTokens(messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolUnionParam) int {
	return c.estimator.estimate(messageCharCount(messages) + toolCharCount(tools))
}

// RemainingTokens reports how much of the model context window is left
// after the given messages and tools. Negative when over budget.
func (c *OllamaClient) RemainingTokens(messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolUnionParam) int {
	return c.info.ContextWindow - c.CountTokens(messages, tools)
}

// TotalUsage returns cumulative usage across all calls on this
// instance, including estimates for calls where the server omitted
// usage. Non-decreasing over the client lifetime.
func (c *OllamaClient) TotalUsage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// ActualUsage returns cumulative server-reported usage only.
func (c *OllamaClient) ActualUsage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actual
}

func (c *OllamaClient) buildParams(req Request) (openai.ChatCompletionNewParams, error) {
	if req.ToolChoice == ToolChoiceRequired && len(req.Tools) == 0 {
		return openai.ChatCompletionNewParams{}, ErrToolChoiceNoTools
	}
	if req.Format != nil && !c.info.JSONOutput {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("%w: %s", ErrJSONOutputUnsupported, c.model)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    req.Messages,
		Tools:       req.Tools,
		Temperature: param.NewOpt(0.2),
	}

	switch req.ToolChoice {
	case ToolChoiceNone:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("none")}
	case ToolChoiceRequired:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("required")}
	case ToolChoiceAuto:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("auto")}
	case "":
		if len(req.Tools) > 0 {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("auto")}
		}
	default:
		return openai.ChatCompletionNewParams{}, fmt.Errorf("invalid tool choice: %q", req.ToolChoice)
	}

	if req.Format != nil {
		format, err := responseFormatParam(req.Format)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		params.ResponseFormat = format
	}
	return params, nil
}

func responseFormatParam(format *ResponseFormat) (openai.ChatCompletionNewParamsResponseFormatUnion, error) {
	switch format.Type {
	case FormatJSONObject:
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}, nil
	case FormatJSONSchema:
		schema := shared.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   format.Name,
			Schema: format.Schema,
			Strict: param.NewOpt(format.Strict),
		}
		if format.Description != "" {
			schema.Description = param.NewOpt(format.Description)
		}
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{JSONSchema: schema},
		}, nil
	default:
		return openai.ChatCompletionNewParamsResponseFormatUnion{}, fmt.Errorf("invalid response format type: %q", format.Type)
	}
}

func parseChatCompletion(resp *openai.ChatCompletion) (Result, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("empty response")
	}
	choice := resp.Choices[0]
	result := Result{
		Content:      choice.Message.Content,
		FinishReason: normalizeFinishReason(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, toolCall := range choice.Message.ToolCalls {
		if toolCall.Type != "function" {
			continue
		}
		fn := toolCall.AsFunction()
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        fn.ID,
			Name:      fn.Function.Name,
			Arguments: json.RawMessage(fn.Function.Arguments),
		})
	}
	if len(result.ToolCalls) > 0 {
		result.Content = ""
	}
	return result, nil
}

// recordUsage feeds the cumulative counters. The total counter always
// grows, substituting estimates when the server omitted usage; the
// actual counter only records server-reported numbers. Reported prompt
// usage also calibrates the token estimator.
func (c *OllamaClient) recordUsage(req Request, usage Usage) {
	promptChars := messageCharCount(req.Messages) + toolCharCount(req.Tools)
	reported := usage.PromptTokens > 0 || usage.CompletionTokens > 0

	total := usage
	if !reported {
		total = Usage{PromptTokens: int64(c.estimator.estimate(promptChars))}
		c.logger.Debug("server omitted usage, estimating",
			zap.String("model", c.model),
			zap.Int64("estimated_prompt_tokens", total.PromptTokens))
	} else {
		c.estimator.record(promptChars, usage.PromptTokens)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.total.Add(total)
	if reported {
		c.actual.Add(usage)
	}
}
