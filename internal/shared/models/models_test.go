package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchModelPattern(t *testing.T) {
	require.True(t, MatchModelPattern("*", "anything"))
	require.True(t, MatchModelPattern("gemini-*", "gemini-2.5-flash"))
	require.True(t, MatchModelPattern("gemini-2.5-flash", "gemini-2.5-flash"))
	require.False(t, MatchModelPattern("gemini-*", "llama-3.1-8b"))
	require.False(t, MatchModelPattern("gemini-2.5-pro", "gemini-2.5-flash"))
}

func TestCallerAccountAllowsModel(t *testing.T) {
	acct := &CallerAccount{ModelPatterns: []string{"gemini-*", "whisper-large-v3"}}

	require.True(t, acct.AllowsModel("gemini-2.5-flash"))
	require.True(t, acct.AllowsModel("whisper-large-v3"))
	require.False(t, acct.AllowsModel("llama-3.1-8b"))

	empty := &CallerAccount{}
	require.False(t, empty.AllowsModel("gemini-2.5-flash"))
}

func TestBudgetExhausted(t *testing.T) {
	acct := &CallerAccount{MonthlyBudgetUSD: 10, UsageUSD: 9.99}
	require.False(t, acct.BudgetExhausted())

	acct.UsageUSD = 10
	require.True(t, acct.BudgetExhausted())

	acct.UsageUSD = 10.01
	require.True(t, acct.BudgetExhausted())
}
