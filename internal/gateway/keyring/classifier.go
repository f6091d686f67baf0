package keyring

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Kind is the closed classification of an upstream provider failure.
type Kind int

const (
	// KindUnknown covers anything not recognized below. Propagated
	// unchanged, never retried.
	KindUnknown Kind = iota
	// KindAuth is a credential rejection: invalid/revoked key, missing
	// permission. Triggers rotation.
	KindAuth
	// KindQuota is a billing or quota exhaustion failure tied to the
	// credential. Triggers rotation.
	KindQuota
	// KindTransient is a retryable upstream condition (5xx, timeout).
	// Does not demote the credential.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Rotates reports whether a failure of this kind should invalidate the
// credential and retry with the next one.
func (k Kind) Rotates() bool {
	return k == KindAuth || k == KindQuota
}

// Classifier maps a provider call error to a Kind. One implementation per
// provider.
type Classifier interface {
	Classify(err error) Kind
}

var (
	authMarkers = []string{
		"api key not valid",
		"api_key_invalid",
		"invalid api key",
		"invalid_api_key",
		"unauthenticated",
		"unauthorized",
		"permission denied",
		"permission_denied",
		"access denied",
	}
	quotaMarkers = []string{
		"quota",
		"resource_exhausted",
		"resource has been exhausted",
		"billing",
		"insufficient_quota",
		"rate limit",
		"rate_limit",
	}
	transientMarkers = []string{
		"timeout",
		"deadline exceeded",
		"unavailable",
		"overloaded",
		"internal error",
		"connection refused",
		"connection reset",
	}
)

// classifyText is the shared substring fallback applied to raw error text.
func classifyText(s string) Kind {
	s = strings.ToLower(s)
	for _, m := range authMarkers {
		if strings.Contains(s, m) {
			return KindAuth
		}
	}
	for _, m := range quotaMarkers {
		if strings.Contains(s, m) {
			return KindQuota
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(s, m) {
			return KindTransient
		}
	}
	return KindUnknown
}

// GoogleClassifier classifies Gemini API failures. It first tries the
// structured error payload embedded in the error text, then falls back to
// substring sniffing on the raw text.
type GoogleClassifier struct{}

type googleErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (GoogleClassifier) Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	text := err.Error()

	if start := strings.Index(text, "{"); start >= 0 {
		var body googleErrorBody
		if json.Unmarshal([]byte(text[start:]), &body) == nil && body.Error.Status != "" {
			switch body.Error.Status {
			case "UNAUTHENTICATED", "PERMISSION_DENIED":
				return KindAuth
			case "RESOURCE_EXHAUSTED":
				return KindQuota
			case "UNAVAILABLE", "DEADLINE_EXCEEDED", "INTERNAL":
				return KindTransient
			}
			if k := classifyText(body.Error.Message); k != KindUnknown {
				return k
			}
		}
	}

	return classifyText(text)
}

// GroqClassifier classifies failures from the OpenAI-compatible Groq API.
// The go-openai client surfaces structured APIError values; the raw text
// fallback covers transport-level failures.
type GroqClassifier struct{}

func (GroqClassifier) Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return KindAuth
		case 402, 429:
			return KindQuota
		case 408, 500, 502, 503, 504:
			return KindTransient
		}
		if apiErr.Type == "insufficient_quota" || apiErr.Type == "billing_not_active" {
			return KindQuota
		}
		if k := classifyText(apiErr.Message); k != KindUnknown {
			return k
		}
	}

	return classifyText(err.Error())
}
