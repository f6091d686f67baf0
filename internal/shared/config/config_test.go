package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GOOGLE_API_KEYS", "k1")

	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadRequiresCredentials(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gateway")
	t.Setenv("GOOGLE_API_KEYS", "")
	t.Setenv("GROQ_API_KEYS", "")
	t.Setenv("POOLS_FILE", "")

	_, err := Load()
	require.ErrorContains(t, err, "credential")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gateway")
	t.Setenv("GOOGLE_API_KEYS", "k1, k2 ,k3")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, []string{"k1", "k2", "k3"}, cfg.GoogleAPIKeys)
	require.Equal(t, "gemini-2.5-flash", cfg.DefaultModel)
	require.Equal(t, 60, cfg.DefaultRateLimit)
	require.True(t, cfg.CacheEnabled)
	require.True(t, cfg.CentralizedRotation)
}

func TestPoolConfigsFromEnv(t *testing.T) {
	cfg := &Config{
		GoogleAPIKeys: []string{"g1", "g2"},
		GroqAPIKeys:   []string{"q1"},
	}

	pools, overrides, err := cfg.PoolConfigs()
	require.NoError(t, err)
	require.Empty(t, overrides)
	require.Len(t, pools, 2)
	require.Equal(t, "google", pools[0].Provider)
	require.Equal(t, "*", pools[0].ModelPattern)
	require.Equal(t, []string{"q1"}, pools[1].Keys)
}

func TestLoadPoolsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.yaml")
	content := `
pools:
  - provider: google
    model_pattern: "gemini-*"
    keys: ["g1", "g2"]
  - provider: groq
    keys: ["q1"]
pricing:
  - provider: google
    model: gemini-2.5-flash
    input_per_1k_tokens: 0.0003
    output_per_1k_tokens: 0.0025
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	pf, err := LoadPools(path)
	require.NoError(t, err)
	require.Len(t, pf.Pools, 2)
	require.Equal(t, "gemini-*", pf.Pools[0].ModelPattern)
	// Missing pattern defaults to match-all.
	require.Equal(t, "*", pf.Pools[1].ModelPattern)
	require.Len(t, pf.Pricing, 1)
	require.Equal(t, 0.0003, pf.Pricing[0].InputPer1kTokens)
}

func TestLoadPoolsFileRejectsEmptyPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pools:\n  - provider: google\n    keys: []\n"), 0o600))

	_, err := LoadPools(path)
	require.Error(t, err)
}
