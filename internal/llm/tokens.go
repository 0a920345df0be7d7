package llm

import (
	"encoding/json"
	"sync"

	"github.com/openai/openai-go/v3"
)

// defaultCharsPerToken is the starting ratio before calibration. 4.0
// overestimates token counts for English text, which errs toward
// truncating early rather than overflowing the model context.
const defaultCharsPerToken = 4.0

// defaultSmoothing is the weight given to each new observation when
// calibrating the ratio against server-reported usage.
const defaultSmoothing = 0.3

// tokenEstimator estimates token counts from character counts. The
// ratio starts conservative and converges toward the real tokenizer
// behavior as actual prompt usage is recorded after each call.
type tokenEstimator struct {
	mu            sync.Mutex
	charsPerToken float64
	smoothing     float64
	observations  int
}

func newTokenEstimator() *tokenEstimator {
	return &tokenEstimator{charsPerToken: defaultCharsPerToken, smoothing: defaultSmoothing}
}

// estimate returns the token count for a character count, rounded up.
func (e *tokenEstimator) estimate(chars int) int {
	if chars <= 0 {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(float64(chars)/e.charsPerToken) + 1
}

// record calibrates the ratio from an observed character count and the
// token count the server reported for it.
func (e *tokenEstimator) record(chars int, tokens int64) {
	if chars <= 0 || tokens <= 0 {
		return
	}
	observed := float64(chars) / float64(tokens)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.observations == 0 {
		e.charsPerToken = observed
	} else {
		e.charsPerToken = e.smoothing*observed + (1-e.smoothing)*e.charsPerToken
	}
	e.observations++
}

// messageCharCount totals the serialized size of the messages. The
// JSON form includes role tags and tool call payloads, which also cost
// tokens, so it is a closer proxy than content length alone.
func messageCharCount(messages []openai.ChatCompletionMessageParamUnion) int {
	total := 0
	for _, message := range messages {
		data, err := json.Marshal(message)
		if err != nil {
			continue
		}
		total += len(data)
	}
	return total
}

func toolCharCount(tools []openai.ChatCompletionToolUnionParam) int {
	total := 0
	for _, tool := range tools {
		data, err := json.Marshal(tool)
		if err != nil {
			continue
		}
		total += len(data)
	}
	return total
}
