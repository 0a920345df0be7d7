package tools

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func execCalculator(t *testing.T, input string) string {
	t.Helper()
	tool := NewCalculatorTool(zap.NewNop())
	res, err := tool.Execute(context.Background(), json.RawMessage(input), Meta{})
	if err != nil {
		t.Fatalf("calculator must never return an error, got: %v", err)
	}
	out, ok := res.Payload.(string)
	if !ok {
		t.Fatalf("expected string payload, got %T", res.Payload)
	}
	return out
}

func TestCalculatorBasicOperations(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`{"a": 6, "b": 7, "operator": "*"}`, "42"},
		{`{"a": 5, "b": 7, "operator": "+"}`, "12"},
		{`{"a": 10, "b": 4, "operator": "-"}`, "6"},
		{`{"a": 9, "b": 2, "operator": "/"}`, "4.5"},
		{`{"a": 2.5, "b": 2, "operator": "*"}`, "5"},
		{`{"a": -3, "b": -4, "operator": "*"}`, "12"},
		{`{"a": 1, "b": 3, "operator": "/"}`, "0.3333333333"},
	}
	for _, tc := range tests {
		if got := execCalculator(t, tc.input); got != tc.want {
			t.Fatalf("calculator(%s) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestCalculatorDivisionByZero(t *testing.T) {
	got := execCalculator(t, `{"a": 1, "b": 0, "operator": "/"}`)
	if got != msgDivisionByZero {
		t.Fatalf("expected division-by-zero message, got %q", got)
	}
}

func TestCalculatorInvalidOperator(t *testing.T) {
	got := execCalculator(t, `{"a": 1, "b": 2, "operator": "%"}`)
	if got != invalidOperatorMessage("%") {
		t.Fatalf("expected invalid-operator message, got %q", got)
	}
	if !strings.Contains(got, "'%'") {
		t.Fatalf("message must quote the offending operator, got %q", got)
	}
}

func TestCalculatorInvalidOperands(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`{"a": "six", "b": 7, "operator": "*"}`, msgInvalidOperandA},
		{`{"b": 7, "operator": "*"}`, msgInvalidOperandA},
		{`{"a": 6, "b": null, "operator": "*"}`, msgInvalidOperandB},
		{`{"a": 6, "b": "seven", "operator": "*"}`, msgInvalidOperandB},
		{`{"a": 6, "b": 7, "operator": 3}`, msgInvalidOperatorArg},
		{`{"a": 6, "b": 7}`, msgInvalidOperatorArg},
	}
	for _, tc := range tests {
		if got := execCalculator(t, tc.input); got != tc.want {
			t.Fatalf("calculator(%s) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestCalculatorMalformedInputNeverErrors(t *testing.T) {
	for _, input := range []string{``, `not json`, `[]`, `{"a":`} {
		tool := NewCalculatorTool(zap.NewNop())
		res, err := tool.Execute(context.Background(), json.RawMessage(input), Meta{})
		if err != nil {
			t.Fatalf("Execute(%q) returned error: %v", input, err)
		}
		out := res.Payload.(string)
		if !strings.HasPrefix(out, "오류:") {
			t.Fatalf("Execute(%q) = %q, want an error message", input, out)
		}
	}
}

// The result string must parse back to the mathematically correct
// value within rounding to 10 decimal places.
func TestCalculateRoundTrip(t *testing.T) {
	operands := []float64{-12.25, -3, -0.5, 0, 0.1, 1, 2.5, 7, 1000.125}
	for _, a := range operands {
		for _, b := range operands {
			for _, operator := range []string{"+", "-", "*", "/"} {
				if operator == "/" && b == 0 {
					continue
				}
				result, calcErr := Calculate(a, b, operator)
				if calcErr != nil {
					t.Fatalf("Calculate(%v, %v, %q) failed: %v", a, b, operator, calcErr)
				}
				parsed, err := strconv.ParseFloat(FormatResult(result), 64)
				if err != nil {
					t.Fatalf("FormatResult(%v) not parseable: %v", result, err)
				}
				if math.Abs(parsed-result) > 1e-10 {
					t.Fatalf("Calculate(%v, %v, %q): formatted %v drifted from %v", a, b, operator, parsed, result)
				}
			}
		}
	}
}

func TestCalculateErrorKinds(t *testing.T) {
	if _, calcErr := Calculate(1, 0, "/"); calcErr == nil || calcErr.Kind != ErrDivisionByZero {
		t.Fatalf("expected ErrDivisionByZero, got %v", calcErr)
	}
	if _, calcErr := Calculate(1, 2, "%"); calcErr == nil || calcErr.Kind != ErrInvalidOperator {
		t.Fatalf("expected ErrInvalidOperator, got %v", calcErr)
	}
	if _, calcErr := Calculate(1, 2, "%"); calcErr.Operator != "%" {
		t.Fatalf("expected operator to be recorded, got %q", calcErr.Operator)
	}
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{42, "42"},
		{-7, "-7"},
		{4.5, "4.5"},
		{5.0, "5"},
		{1.0 / 3.0, "0.3333333333"},
		{2.0 / 3.0, "0.6666666667"},
	}
	for _, tc := range tests {
		if got := FormatResult(tc.value); got != tc.want {
			t.Fatalf("FormatResult(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestEvaluate(t *testing.T) {
	if got := Evaluate(6, 7, "*"); got != "42" {
		t.Fatalf("Evaluate(6, 7, *) = %q, want 42", got)
	}
	if got := Evaluate(1, 0, "/"); got != msgDivisionByZero {
		t.Fatalf("Evaluate(1, 0, /) = %q", got)
	}
}
