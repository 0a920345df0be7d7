package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lm-cli/internal/config"
	"lm-cli/internal/events"
	"lm-cli/internal/llm"
	"lm-cli/internal/render"
	"lm-cli/internal/tools"
	"lm-cli/internal/util"
	"lm-cli/internal/version"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared/constant"
	"go.uber.org/zap"
)

// RunResult captures run output for JSON mode.
type RunResult struct {
	RunID            string           `json:"run_id"`
	StartedAt        time.Time        `json:"timestamp_start"`
	FinishedAt       time.Time        `json:"timestamp_end"`
	Host             string           `json:"host"`
	Question         string           `json:"question"`
	Model            string           `json:"model"`
	StepsUsed        int              `json:"steps_used"`
	Status           string           `json:"status"`
	FinalAnswer      string           `json:"final_answer"`
	PromptTokens     int64            `json:"prompt_tokens"`
	CompletionTokens int64            `json:"completion_tokens"`
	ToolCalls        []ToolCallRecord `json:"tool_calls"`
	Events           []events.Event   `json:"events"`
}

// ToolCallRecord records tool call history.
type ToolCallRecord struct {
	ToolName   string    `json:"tool_name"`
	Input      any       `json:"input"`
	Output     any       `json:"output"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// usageTracker is satisfied by clients that accumulate token usage
// across calls on one instance.
type usageTracker interface {
	TotalUsage() llm.Usage
}

// Agent runs the orchestration loop.
type Agent struct {
	client   llm.Client
	tools    *tools.Registry
	renderer render.Renderer
	logger   *zap.Logger
	cfg      config.Config
}

// NewAgent constructs an Agent.
func NewAgent(client llm.Client, toolsReg *tools.Registry, renderer render.Renderer, logger *zap.Logger, cfg config.Config) *Agent {
	return &Agent{client: client, tools: toolsReg, renderer: renderer, logger: logger, cfg: cfg}
}

// Run executes the agent loop: ask the model, execute requested tool
// calls, feed results back, and stream the final answer.
func (a *Agent) Run(ctx context.Context, question string) (RunResult, error) {
	started := time.Now()
	runID := uuid.NewString()
	result := RunResult{
		RunID:     runID,
		StartedAt: started,
		Host:      a.cfg.Host,
		Question:  question,
		Model:     a.cfg.Model,
		Status:    "failure",
	}

	emit := func(event events.Event) {
		result.Events = append(result.Events, event)
		if a.renderer != nil {
			a.renderer.Emit(event)
		}
	}

	emit(events.Event{Type: events.RunStarted, Timestamp: time.Now(), Payload: events.RunStartedPayload{
		Version:   version.Version,
		Host:      a.cfg.Host,
		Model:     a.cfg.Model,
		RunID:     runID,
		StartedAt: started,
	}})

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt()),
		openai.DeveloperMessage(developerPrompt(a.tools.Names())),
		openai.UserMessage(question),
	}

	toolDefs := a.tools.OpenAITools()
	toolChoice := llm.ToolChoice("")
	if len(toolDefs) > 0 {
		toolChoice = llm.ToolChoiceAuto
	}

	steps := 0
	for steps < a.cfg.MaxSteps {
		steps++
		response, err := a.client.Create(ctx, llm.Request{Model: a.cfg.Model, Messages: messages, Tools: toolDefs, ToolChoice: toolChoice})
		if err != nil {
			a.logger.Error("model request failed", zap.Error(err))
			emit(events.Event{Type: events.RunError, Timestamp: time.Now(), Payload: events.RunErrorPayload{Message: err.Error()}})
			result.Status = "failure"
			result.StepsUsed = steps
			result.FinishedAt = time.Now()
			return result, err
		}

		if len(response.ToolCalls) == 0 {
			finalAnswer := strings.TrimSpace(response.Content)
			if !a.cfg.JSON && !a.cfg.NoStream {
				streamed, err := a.streamFinal(ctx, llm.Request{Model: a.cfg.Model, Messages: messages, Tools: toolDefs, ToolChoice: toolChoice}, emit)
				if err != nil {
					a.logger.Error("streaming failed", zap.Error(err))
				} else if strings.TrimSpace(streamed) != "" {
					finalAnswer = streamed
				}
			}
			result.FinalAnswer = strings.TrimSpace(finalAnswer)
			result.Status = "success"
			result.StepsUsed = steps
			result.FinishedAt = time.Now()
			a.finish(&result, emit)
			return result, nil
		}

		// append assistant message with tool calls
		toolCallParams := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(response.ToolCalls))
		for _, call := range response.ToolCalls {
			toolCallParams = append(toolCallParams, openai.ChatCompletionMessageToolCallUnionParam{
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
		assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCallParams}
		messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		for _, call := range response.ToolCalls {
			tool, ok := a.tools.Get(call.Name)
			if !ok {
				err := fmt.Errorf("unknown tool: %s", call.Name)
				emit(events.Event{Type: events.ToolCallFailed, Timestamp: time.Now(), Payload: events.ToolCallFinishedPayload{ToolName: call.Name, Status: "error", Preview: err.Error(), ByteCount: len(err.Error())}})
				payloadBytes, _ := json.Marshal(map[string]string{"error": err.Error()})
				messages = append(messages, openai.ToolMessage(string(payloadBytes), call.ID))
				continue
			}
			inputSanitized := sanitizeInput(call.Arguments)
			start := time.Now()
			emit(events.Event{Type: events.ToolCallStarted, Timestamp: start, Payload: events.ToolCallStartedPayload{ToolName: call.Name, Input: inputSanitized, StartedAt: start}})

			meta := tools.Meta{ToolTimeoutSeconds: 10, MaxBytes: a.cfg.Limits.ToolMaxBytes}
			res, err := tool.Execute(ctx, call.Arguments, meta)
			duration := time.Since(start).Milliseconds()
			if err != nil {
				payload := map[string]any{"error": err.Error(), "duration_ms": duration}
				record := ToolCallRecord{ToolName: call.Name, Input: inputSanitized, Output: payload, Status: "error", StartedAt: start, DurationMs: duration}
				result.ToolCalls = append(result.ToolCalls, record)
				emit(events.Event{Type: events.ToolCallFailed, Timestamp: time.Now(), Payload: events.ToolCallFinishedPayload{ToolName: call.Name, Status: "error", Preview: err.Error(), ByteCount: len(err.Error()), DurationMs: duration}})
				payloadBytes, _ := json.Marshal(payload)
				messages = append(messages, openai.ToolMessage(string(payloadBytes), call.ID))
				continue
			}
			res.DurationMs = duration
			record := ToolCallRecord{ToolName: call.Name, Input: inputSanitized, Output: res.Payload, Status: "success", StartedAt: start, DurationMs: duration}
			result.ToolCalls = append(result.ToolCalls, record)

			emit(events.Event{Type: events.ToolCallFinished, Timestamp: time.Now(), Payload: events.ToolCallFinishedPayload{
				ToolName:   call.Name,
				Status:     "success",
				Output:     res.Payload,
				Preview:    util.Preview(res.Preview, 6, meta.MaxBytes),
				ByteCount:  res.ByteCount,
				DurationMs: duration,
			}})

			payloadBytes, _ := json.Marshal(res.Payload)
			messages = append(messages, openai.ToolMessage(string(payloadBytes), call.ID))
		}
	}

	// max steps reached
	warning := "Max steps reached. Provide the best possible partial answer and include a warning."
	messages = append(messages, openai.DeveloperMessage(warning))
	finalAnswer := "Max steps reached; unable to complete."
	if !a.cfg.JSON && !a.cfg.NoStream {
		streamed, err := a.streamFinal(ctx, llm.Request{Model: a.cfg.Model, Messages: messages, Tools: toolDefs, ToolChoice: toolChoice}, emit)
		if err == nil && strings.TrimSpace(streamed) != "" {
			finalAnswer = streamed
		}
	}
	if !strings.Contains(strings.ToLower(finalAnswer), "max steps") {
		finalAnswer = "Max steps reached. " + finalAnswer
	}
	result.FinalAnswer = strings.TrimSpace(finalAnswer)
	result.Status = "partial"
	result.StepsUsed = steps
	result.FinishedAt = time.Now()
	a.finish(&result, emit)
	return result, errors.New("max steps reached")
}

func (a *Agent) finish(result *RunResult, emit func(events.Event)) {
	if tracker, ok := a.client.(usageTracker); ok {
		usage := tracker.TotalUsage()
		result.PromptTokens = usage.PromptTokens
		result.CompletionTokens = usage.CompletionTokens
		emit(events.Event{Type: events.UsageReported, Timestamp: time.Now(), Payload: events.UsageReportedPayload{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
		}})
	}
	emit(events.Event{Type: events.FinalAnswerReady, Timestamp: time.Now(), Payload: events.FinalAnswerPayload{Answer: result.FinalAnswer}})
	emit(events.Event{Type: events.RunFinished, Timestamp: time.Now(), Payload: events.RunFinishedPayload{Status: result.Status, FinishedAt: result.FinishedAt}})
}

func (a *Agent) streamFinal(ctx context.Context, req llm.Request, emit func(events.Event)) (string, error) {
	var builder strings.Builder
	_, err := a.client.Stream(ctx, req, func(delta string) {
		emit(events.Event{Type: events.ModelDelta, Timestamp: time.Now(), Payload: events.ModelDeltaPayload{Delta: delta}})
		builder.WriteString(delta)
	})
	if err != nil {
		return builder.String(), err
	}
	return builder.String(), nil
}

func sanitizeInput(args json.RawMessage) any {
	if len(args) == 0 {
		return map[string]any{}
	}
	var data any
	if err := json.Unmarshal(args, &data); err != nil {
		return map[string]any{"raw": util.RedactSecrets(string(args))}
	}
	if bytes, err := json.Marshal(data); err == nil {
		return util.RedactSecrets(string(bytes))
	}
	return data
}
