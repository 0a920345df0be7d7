package llm

import "testing"

func TestResolveModelInfo(t *testing.T) {
	tests := []struct {
		model           string
		family          string
		functionCalling bool
		jsonOutput      bool
		vision          bool
	}{
		{"qwen3:0.6b", "qwen", true, true, false},
		{"qwen3", "qwen", true, true, false},
		{"llama3.2:1b", "llama", true, true, false},
		{"llama3:8b", "llama", false, true, false},
		{"llava:13b", "llava", false, true, true},
		{"mistral:latest", "mistral", true, true, false},
		{"deepseek-r1:7b", "deepseek", false, true, false},
	}
	for _, tc := range tests {
		info := ResolveModelInfo(tc.model)
		if info.Family != tc.family {
			t.Fatalf("%s: family = %q, want %q", tc.model, info.Family, tc.family)
		}
		if info.FunctionCalling != tc.functionCalling {
			t.Fatalf("%s: function calling = %v, want %v", tc.model, info.FunctionCalling, tc.functionCalling)
		}
		if info.JSONOutput != tc.jsonOutput {
			t.Fatalf("%s: json output = %v, want %v", tc.model, info.JSONOutput, tc.jsonOutput)
		}
		if info.Vision != tc.vision {
			t.Fatalf("%s: vision = %v, want %v", tc.model, info.Vision, tc.vision)
		}
		if info.ContextWindow <= 0 {
			t.Fatalf("%s: context window must be positive", tc.model)
		}
	}
}

func TestResolveModelInfoUnknown(t *testing.T) {
	info := ResolveModelInfo("some-brand-new-model:latest")
	if info.Family != "unknown" {
		t.Fatalf("unexpected family: %q", info.Family)
	}
	if !info.FunctionCalling || !info.JSONOutput {
		t.Fatalf("unknown models default to capable: %+v", info)
	}
	if info.ContextWindow <= 0 {
		t.Fatalf("context window must be positive")
	}
}

func TestTokenEstimatorCalibration(t *testing.T) {
	estimator := newTokenEstimator()

	initial := estimator.estimate(400)
	if initial <= 0 {
		t.Fatalf("expected positive estimate")
	}

	// Server reports 2 chars/token; the ratio must converge downward
	// and estimates must grow accordingly.
	for i := 0; i < 10; i++ {
		estimator.record(400, 200)
	}
	calibrated := estimator.estimate(400)
	if calibrated <= initial {
		t.Fatalf("calibration did not adapt: %d <= %d", calibrated, initial)
	}
	if calibrated < 190 || calibrated > 210 {
		t.Fatalf("expected roughly 200 tokens after calibration, got %d", calibrated)
	}
}
