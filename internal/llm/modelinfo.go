package llm

import "strings"

// ModelInfo describes the static capabilities of a model family.
// Flags gate request features: JSON output and structured output are
// refused up front for models that cannot honor them, and vision
// support is surfaced for callers that attach images.
type ModelInfo struct {
	Family           string
	FunctionCalling  bool
	JSONOutput       bool
	StructuredOutput bool
	Vision           bool
	ContextWindow    int
}

// Known local model families, matched by name prefix. The tag after
// the colon (e.g. "qwen3:0.6b") never participates in matching.
var modelInfoByPrefix = []struct {
	prefix string
	info   ModelInfo
}{
	{"qwen3", ModelInfo{Family: "qwen", FunctionCalling: true, JSONOutput: true, StructuredOutput: true, ContextWindow: 40960}},
	{"qwen2.5", ModelInfo{Family: "qwen", FunctionCalling: true, JSONOutput: true, StructuredOutput: true, ContextWindow: 32768}},
	{"llama3.2", ModelInfo{Family: "llama", FunctionCalling: true, JSONOutput: true, StructuredOutput: true, ContextWindow: 131072}},
	{"llama3.1", ModelInfo{Family: "llama", FunctionCalling: true, JSONOutput: true, StructuredOutput: true, ContextWindow: 131072}},
	{"llama3", ModelInfo{Family: "llama", FunctionCalling: false, JSONOutput: true, ContextWindow: 8192}},
	{"llava", ModelInfo{Family: "llava", JSONOutput: true, Vision: true, ContextWindow: 32768}},
	{"gemma3", ModelInfo{Family: "gemma", JSONOutput: true, Vision: true, ContextWindow: 131072}},
	{"gemma2", ModelInfo{Family: "gemma", JSONOutput: true, ContextWindow: 8192}},
	{"mistral", ModelInfo{Family: "mistral", FunctionCalling: true, JSONOutput: true, ContextWindow: 32768}},
	{"deepseek-r1", ModelInfo{Family: "deepseek", JSONOutput: true, ContextWindow: 131072}},
	{"phi4", ModelInfo{Family: "phi", JSONOutput: true, ContextWindow: 16384}},
	{"phi3", ModelInfo{Family: "phi", JSONOutput: true, ContextWindow: 128000}},
}

// unknownModelInfo is the optimistic default for models not in the
// table. Ollama enforces JSON mode server-side for any model, and most
// current models are tool-capable, so refusing those features for an
// unknown name would reject more valid requests than it saves.
var unknownModelInfo = ModelInfo{
	Family:          "unknown",
	FunctionCalling: true,
	JSONOutput:      true,
	ContextWindow:   8192,
}

// ResolveModelInfo returns capability flags for a model name such as
// "qwen3:0.6b" or "llama3.2:1b".
func ResolveModelInfo(model string) ModelInfo {
	name := model
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		name = name[:idx]
	}
	name = strings.ToLower(strings.TrimSpace(name))
	for _, entry := range modelInfoByPrefix {
		if strings.HasPrefix(name, entry.prefix) {
			return entry.info
		}
	}
	return unknownModelInfo
}
