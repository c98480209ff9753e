// Package refine polishes raw transcripts through a language model.
//
// Refinement is strictly best-effort: any failure or timeout falls back
// to the original text so the utterance is never lost.
package refine

import (
	"context"
	"net/http"

	"github.com/hushtype/hushtype/internal/types"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer performs chat completions.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, types.Usage, error)
}

// completerConfig holds the parameters shared by all completers.
type completerConfig struct {
	http    *http.Client
	apiKey  string
	baseURL string
	model   string
}

// NewCompleter creates a Completer for the given provider type.
// Unknown types default to the OpenAI wire format.
func NewCompleter(apiType, apiKey, baseURL, model string) Completer {
	cfg := completerConfig{
		http:    &http.Client{},
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
	}

	switch apiType {
	case "claude":
		return &claudeCompleter{cfg: cfg}
	case "openai", "openai-compatible":
		return &openaiCompleter{cfg: cfg, isCompatible: apiType == "openai-compatible"}
	default:
		return &openaiCompleter{cfg: cfg}
	}
}
