package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultGoogleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GoogleProvider handles Gemini generateContent requests
type GoogleProvider struct {
	baseURL    string
	httpClient *http.Client
}

// GeminiRequest represents a request to Gemini's API
type GeminiRequest struct {
	Contents          []GeminiContent         `json:"contents"`
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiContent represents content in Gemini format
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart represents a part of the content
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiGenerationConfig represents generation parameters
type GeminiGenerationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

// GeminiResponse represents a response from Gemini API
type GeminiResponse struct {
	Candidates    []GeminiCandidate `json:"candidates"`
	UsageMetadata GeminiUsage       `json:"usageMetadata"`
}

// GeminiCandidate represents a candidate response
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}

// GeminiUsage represents token usage
type GeminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// NewGoogleProvider creates a new Gemini adapter
func NewGoogleProvider() *GoogleProvider {
	return &GoogleProvider{
		baseURL: defaultGoogleBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// NewGoogleProviderWithBaseURL points the adapter at a different endpoint.
// Used by tests.
func NewGoogleProviderWithBaseURL(baseURL string) *GoogleProvider {
	p := NewGoogleProvider()
	p.baseURL = baseURL
	return p
}

// GetProviderName returns the provider name
func (p *GoogleProvider) Name() string {
	return ProviderGoogle
}

// Generate makes a generateContent request to Gemini
func (p *GoogleProvider) Generate(ctx context.Context, model string, input Input, credential string) (*Result, error) {
	geminiReq := p.convertRequest(input)

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, credential)

	reqBody, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		// The body is kept verbatim so the error classifier can parse the
		// structured payload.
		return nil, fmt.Errorf("Gemini API error (status %d): %s", resp.StatusCode, string(body))
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return p.convertResponse(geminiResp)
}

// convertRequest converts the normalized input to Gemini format. System
// turns become a systemInstruction; assistant turns map to the "model"
// role.
func (p *GoogleProvider) convertRequest(input Input) GeminiRequest {
	geminiReq := GeminiRequest{
		Contents: make([]GeminiContent, 0),
	}

	if len(input.Messages) == 0 {
		geminiReq.Contents = append(geminiReq.Contents, GeminiContent{
			Role:  "user",
			Parts: []GeminiPart{{Text: input.Prompt}},
		})
		return geminiReq
	}

	for _, msg := range input.Messages {
		if msg.Role == "system" {
			geminiReq.SystemInstruction = &GeminiContent{
				Parts: []GeminiPart{{Text: msg.Content}},
			}
			continue
		}
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		geminiReq.Contents = append(geminiReq.Contents, GeminiContent{
			Role:  role,
			Parts: []GeminiPart{{Text: msg.Content}},
		})
	}

	return geminiReq
}

// convertResponse extracts the normalized result. A safety block, zero
// candidates, or an empty text field are all adapter failures.
func (p *GoogleProvider) convertResponse(resp GeminiResponse) (*Result, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("Gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "PROHIBITED_CONTENT" {
		return nil, fmt.Errorf("Gemini blocked the response: finish reason %s", candidate.FinishReason)
	}

	var text string
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}
	if text == "" {
		return nil, fmt.Errorf("Gemini returned an empty completion")
	}

	return &Result{
		Text:             text,
		PromptTokens:     resp.UsageMetadata.PromptTokenCount,
		CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}
