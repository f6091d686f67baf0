package models

import (
	"strings"
	"time"
)

// Request journal statuses. A journal row is terminal either way.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// CallerAccount is the budget/permission record behind a hashed bearer token.
type CallerAccount struct {
	ID                 string
	KeyHash            string
	Name               string
	MonthlyBudgetUSD   float64
	UsageUSD           float64
	ModelPatterns      []string
	RateLimitPerMinute int
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AllowsModel reports whether the account's permission patterns cover the
// given model name. A trailing "*" matches any suffix; a bare "*" matches
// everything.
func (a *CallerAccount) AllowsModel(model string) bool {
	for _, pattern := range a.ModelPatterns {
		if MatchModelPattern(pattern, model) {
			return true
		}
	}
	return false
}

// MatchModelPattern implements the wildcard matching used for both account
// permissions and credential pool scoping.
func MatchModelPattern(pattern, model string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(model, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == model
}

// BudgetExhausted reports whether cumulative usage has reached the monthly
// ceiling.
func (a *CallerAccount) BudgetExhausted() bool {
	return a.UsageUSD >= a.MonthlyBudgetUSD
}

// JournalRecord is one append-only row per processed ask/upload. It is the
// system of record for the status and result read APIs.
type JournalRecord struct {
	ID               string
	RequestID        string
	CorrelationID    string
	AccountID        string
	Model            string
	Provider         string
	Status           string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	LatencyMs        int
	Content          string
	RequestSnapshot  string
	ResponseSnapshot string
	ErrorMessage     *string
	CreatedAt        time.Time
}

// ModelPricing holds per-1k-token rates for a (provider, model) pair.
type ModelPricing struct {
	ID                string
	Provider          string
	Model             string
	InputPer1kTokens  float64
	OutputPer1kTokens float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
