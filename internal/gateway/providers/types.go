package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Provider names as recorded in the journal and used for pool lookup.
const (
	ProviderGoogle = "google"
	ProviderGroq   = "groq"
)

// Message is one chat turn in the generic ask body.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Input is the normalized ask payload handed to an adapter. Exactly one of
// Prompt, Messages, or Audio is expected to be populated.
type Input struct {
	Prompt      string
	Messages    []Message
	Audio       []byte
	AudioFormat string
}

// HasAudio reports whether this is a speech-to-text ask.
func (in Input) HasAudio() bool {
	return len(in.Audio) > 0
}

// Flatten reconstructs a single string from the input, used for the cache
// fingerprint and for word-count token estimation. Audio is represented by
// a digest of its bytes so identical uploads share a fingerprint.
func (in Input) Flatten() string {
	if in.HasAudio() {
		sum := sha256.Sum256(in.Audio)
		return "audio:" + hex.EncodeToString(sum[:])
	}
	if len(in.Messages) > 0 {
		parts := make([]string, 0, len(in.Messages))
		for _, m := range in.Messages {
			parts = append(parts, m.Role+": "+m.Content)
		}
		return strings.Join(parts, "\n")
	}
	return in.Prompt
}

// Result is the normalized adapter output. Token counts may be zero when
// the provider does not report usage; the processor then falls back to a
// word-count estimate. AudioSeconds is only set by the speech adapter.
type Result struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	AudioSeconds     float64
}

// Provider is the interface all upstream adapters implement. Generate
// builds the provider wire payload, issues the HTTP call with the given
// credential, and returns a non-empty text result or an error. Empty
// completions are errors, never successes, so they cannot poison the cache.
type Provider interface {
	Name() string
	Generate(ctx context.Context, model string, input Input, credential string) (*Result, error)
}

// Model pattern sets for deterministic provider classification.
var (
	chatModelPrefixes       = []string{"llama", "meta-llama/", "mixtral", "gemma", "qwen", "deepseek", "gpt-", "whisper"}
	generativeModelPrefixes = []string{"gemini", "imagen", "learnlm"}
)

// Classify maps a model name to a provider. Audio always routes to the
// speech provider; chat/completion patterns route to Groq; generative and
// vision patterns, and anything unrecognized, route to Google.
func Classify(model string, hasAudio bool) string {
	if hasAudio {
		return ProviderGroq
	}
	lower := strings.ToLower(model)
	for _, p := range chatModelPrefixes {
		if strings.HasPrefix(lower, p) {
			return ProviderGroq
		}
	}
	for _, p := range generativeModelPrefixes {
		if strings.HasPrefix(lower, p) {
			return ProviderGoogle
		}
	}
	return ProviderGoogle
}

// Registry holds the configured adapters and dispatches by provider name
// and input shape.
type Registry struct {
	google Provider
	groq   Provider
	speech Provider
}

// NewRegistry wires the default adapters.
func NewRegistry() *Registry {
	return &Registry{
		google: NewGoogleProvider(),
		groq:   NewGroqProvider(),
		speech: NewWhisperProvider(),
	}
}

// NewRegistryWith injects adapters. Used by tests.
func NewRegistryWith(google, groq, speech Provider) *Registry {
	return &Registry{google: google, groq: groq, speech: speech}
}

// ForRequest returns the adapter for a classified provider and input.
// Audio asks always use the speech adapter.
func (r *Registry) ForRequest(provider string, input Input) Provider {
	if input.HasAudio() {
		return r.speech
	}
	if provider == ProviderGroq {
		return r.groq
	}
	return r.google
}
