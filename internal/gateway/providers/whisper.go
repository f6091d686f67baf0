package providers

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// DefaultSpeechModel is used when an audio ask carries a non-speech model
// name.
const DefaultSpeechModel = "whisper-large-v3"

// WhisperProvider handles speech-to-text through Groq's Whisper endpoint.
type WhisperProvider struct {
	baseURL string
}

// NewWhisperProvider creates a new speech-to-text adapter
func NewWhisperProvider() *WhisperProvider {
	return &WhisperProvider{baseURL: defaultGroqBaseURL}
}

// NewWhisperProviderWithBaseURL points the adapter at a different endpoint.
// Used by tests.
func NewWhisperProviderWithBaseURL(baseURL string) *WhisperProvider {
	return &WhisperProvider{baseURL: baseURL}
}

// GetProviderName returns the provider name
func (p *WhisperProvider) Name() string {
	return ProviderGroq
}

// Generate transcribes the audio input. The multipart form upload is
// handled by the client library; verbose_json is requested so the audio
// duration is available for cost estimation.
func (p *WhisperProvider) Generate(ctx context.Context, model string, input Input, credential string) (*Result, error) {
	if !input.HasAudio() {
		return nil, fmt.Errorf("speech-to-text requires audio input")
	}

	format := input.AudioFormat
	if format == "" {
		format = "mp3"
	}

	cfg := openai.DefaultConfig(credential)
	cfg.BaseURL = p.baseURL
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: "audio." + format,
		Reader:   bytes.NewReader(input.Audio),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("Whisper API error: %w", err)
	}

	if resp.Text == "" {
		return nil, fmt.Errorf("Whisper returned an empty transcription")
	}

	return &Result{
		Text:         resp.Text,
		AudioSeconds: resp.Duration,
	}, nil
}
