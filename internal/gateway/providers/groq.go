package providers

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const defaultGroqBaseURL = "https://api.groq.com/openai/v1"

// GroqProvider handles chat completions through Groq's OpenAI-compatible
// API.
type GroqProvider struct {
	baseURL string
}

// NewGroqProvider creates a new Groq chat adapter
func NewGroqProvider() *GroqProvider {
	return &GroqProvider{baseURL: defaultGroqBaseURL}
}

// NewGroqProviderWithBaseURL points the adapter at a different endpoint.
// Used by tests.
func NewGroqProviderWithBaseURL(baseURL string) *GroqProvider {
	return &GroqProvider{baseURL: baseURL}
}

// GetProviderName returns the provider name
func (p *GroqProvider) Name() string {
	return ProviderGroq
}

func (p *GroqProvider) client(credential string) *openai.Client {
	cfg := openai.DefaultConfig(credential)
	cfg.BaseURL = p.baseURL
	return openai.NewClientWithConfig(cfg)
}

// Generate makes a chat completion request
func (p *GroqProvider) Generate(ctx context.Context, model string, input Input, credential string) (*Result, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(input.Messages)+1)
	if len(input.Messages) == 0 {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: input.Prompt,
		})
	} else {
		for _, m := range input.Messages {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    m.Role,
				Content: m.Content,
			})
		}
	}

	resp, err := p.client(credential).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("Groq API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("Groq returned no choices")
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return nil, fmt.Errorf("Groq returned an empty completion")
	}

	return &Result{
		Text:             text,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
