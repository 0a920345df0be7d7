package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Calculator error messages are fixed Korean strings, matched by the
// agents that consume this tool. Do not translate or reword them.
const (
	msgInvalidOperandA    = "오류: 첫 번째 숫자가 유효하지 않습니다"
	msgInvalidOperandB    = "오류: 두 번째 숫자가 유효하지 않습니다"
	msgInvalidOperatorArg = "오류: 연산자가 유효하지 않습니다"
	msgDivisionByZero     = "오류: 0으로 나눌 수 없습니다"
	msgInvalidOperator    = "오류: 잘못된 연산자입니다. +, -, *, / 중 하나를 사용하세요. 입력값: '%s'"
	msgUnexpected         = "오류: 예상치 못한 오류가 발생했습니다 - %s"
)

// CalcErrorKind discriminates calculator failures so callers can
// branch without inspecting message text.
type CalcErrorKind int

const (
	ErrInvalidOperandA CalcErrorKind = iota
	ErrInvalidOperandB
	ErrInvalidOperatorArg
	ErrInvalidOperator
	ErrDivisionByZero
)

// CalcError is a tagged calculator failure.
type CalcError struct {
	Kind     CalcErrorKind
	Operator string
}

func (e *CalcError) Error() string {
	switch e.Kind {
	case ErrInvalidOperandA:
		return msgInvalidOperandA
	case ErrInvalidOperandB:
		return msgInvalidOperandB
	case ErrInvalidOperatorArg:
		return msgInvalidOperatorArg
	case ErrDivisionByZero:
		return msgDivisionByZero
	case ErrInvalidOperator:
		return invalidOperatorMessage(e.Operator)
	}
	return unexpectedMessage("unknown error kind")
}

func invalidOperatorMessage(operator string) string {
	return fmt.Sprintf(msgInvalidOperator, operator)
}

func unexpectedMessage(detail string) string {
	return fmt.Sprintf(msgUnexpected, detail)
}

// Calculate performs one arithmetic operation. The error, when
// non-nil, carries a kind the caller can switch on.
func Calculate(a, b float64, operator string) (float64, *CalcError) {
	switch operator {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, &CalcError{Kind: ErrDivisionByZero}
		}
		return a / b, nil
	default:
		return 0, &CalcError{Kind: ErrInvalidOperator, Operator: operator}
	}
}

// Evaluate is the never-fail string form of Calculate: either the
// formatted result or the error message for the failure kind.
func Evaluate(a, b float64, operator string) string {
	result, calcErr := Calculate(a, b, operator)
	if calcErr != nil {
		return calcErr.Error()
	}
	return FormatResult(result)
}

// FormatResult renders a calculation result: integral values without a
// decimal point, everything else rounded to 10 decimal places.
func FormatResult(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	if value == math.Trunc(value) {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	scaled := value * 1e10
	if math.IsInf(scaled, 0) {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	return strconv.FormatFloat(math.Round(scaled)/1e10, 'f', -1, 64)
}

// CalculatorTool performs basic arithmetic for the agent. Execute
// never returns a non-nil error: every failure, including malformed
// arguments, is folded into the result string so an automated caller
// always gets a message it can hand back to the model.
type CalculatorTool struct {
	logger *zap.Logger
}

// NewCalculatorTool constructs the tool with an injected logger.
func NewCalculatorTool(logger *zap.Logger) *CalculatorTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalculatorTool{logger: logger}
}

func (c *CalculatorTool) Name() string { return "calculator" }

func (c *CalculatorTool) Description() string {
	return "기본 산술 연산을 수행하는 계산기 도구 (덧셈, 뺄셈, 곱셈, 나눗셈). 안정적인 오류 처리 기능이 포함되어 있습니다."
}

func (c *CalculatorTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a":        map[string]any{"type": "number", "description": "First number"},
			"b":        map[string]any{"type": "number", "description": "Second number"},
			"operator": map[string]any{"type": "string", "enum": []string{"+", "-", "*", "/"}, "description": "Operator"},
		},
		"required":             []string{"a", "b", "operator"},
		"additionalProperties": false,
	}
}

type calculatorInput struct {
	A        json.RawMessage `json:"a"`
	B        json.RawMessage `json:"b"`
	Operator json.RawMessage `json:"operator"`
}

func (c *CalculatorTool) Execute(ctx context.Context, input json.RawMessage, meta Meta) (Result, error) {
	start := time.Now()
	output := c.evaluateRaw(input)
	return Result{
		ToolName:   c.Name(),
		Payload:    output,
		Preview:    output,
		ByteCount:  len(output),
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

func (c *CalculatorTool) evaluateRaw(input json.RawMessage) string {
	var args calculatorInput
	if err := json.Unmarshal(input, &args); err != nil {
		c.logger.Error("calculator arguments malformed", zap.Error(err))
		return unexpectedMessage(err.Error())
	}
	a, ok := decodeNumber(args.A)
	if !ok {
		c.logger.Warn("calculator operand a invalid", zap.ByteString("a", args.A))
		return msgInvalidOperandA
	}
	b, ok := decodeNumber(args.B)
	if !ok {
		c.logger.Warn("calculator operand b invalid", zap.ByteString("b", args.B))
		return msgInvalidOperandB
	}
	operator, ok := decodeString(args.Operator)
	if !ok {
		c.logger.Warn("calculator operator invalid", zap.ByteString("operator", args.Operator))
		return msgInvalidOperatorArg
	}
	result := Evaluate(a, b, operator)
	c.logger.Debug("calculator evaluated",
		zap.Float64("a", a),
		zap.Float64("b", b),
		zap.String("operator", operator),
		zap.String("result", result))
	return result
}

func decodeNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, false
	}
	return value, true
}

func decodeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}
