package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the gateway
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis (optional; in-process fallbacks are used when empty)
	RedisURL string

	// Credential pools. Env lists seed a single "*" pool per provider;
	// PoolsFile overrides them with per-model-pattern pools.
	GoogleAPIKeys []string
	GroqAPIKeys   []string
	PoolsFile     string

	// Ask defaults
	DefaultModel string

	// Rate Limiting
	DefaultRateLimit int

	// Caching
	CacheTTLSeconds int
	CacheEnabled    bool

	// Key rotation. When false the gateway falls back to plain
	// round-robin that never invalidates credentials.
	CentralizedRotation bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		GoogleAPIKeys:       getEnvList("GOOGLE_API_KEYS"),
		GroqAPIKeys:         getEnvList("GROQ_API_KEYS"),
		PoolsFile:           getEnv("POOLS_FILE", ""),
		DefaultModel:        getEnv("DEFAULT_MODEL", "gemini-2.5-flash"),
		DefaultRateLimit:    getEnvInt("DEFAULT_RATE_LIMIT", 60),
		CacheTTLSeconds:     getEnvInt("CACHE_TTL_SECONDS", 3600),
		CacheEnabled:        getEnvBool("CACHE_ENABLED", true),
		CentralizedRotation: getEnvBool("CENTRALIZED_ROTATION", true),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// At least one provider credential is required
	if len(cfg.GoogleAPIKeys) == 0 && len(cfg.GroqAPIKeys) == 0 && cfg.PoolsFile == "" {
		return nil, fmt.Errorf("at least one provider credential is required (GOOGLE_API_KEYS, GROQ_API_KEYS, or POOLS_FILE)")
	}

	return cfg, nil
}

// PoolConfig defines one credential pool scoped to a provider and a model
// name pattern.
type PoolConfig struct {
	Provider     string   `yaml:"provider"`
	ModelPattern string   `yaml:"model_pattern"`
	Keys         []string `yaml:"keys"`
}

// PricingOverride overrides the per-1k-token rates for one model.
type PricingOverride struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	InputPer1kTokens  float64 `yaml:"input_per_1k_tokens"`
	OutputPer1kTokens float64 `yaml:"output_per_1k_tokens"`
}

// PoolsFile is the optional YAML config blob for credential pools and
// pricing overrides.
type PoolsFile struct {
	Pools   []PoolConfig      `yaml:"pools"`
	Pricing []PricingOverride `yaml:"pricing"`
}

// LoadPools reads and parses a pools file.
func LoadPools(path string) (*PoolsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pools file: %w", err)
	}
	var pf PoolsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse pools file: %w", err)
	}
	for i, p := range pf.Pools {
		if p.Provider == "" || len(p.Keys) == 0 {
			return nil, fmt.Errorf("pool %d: provider and keys are required", i)
		}
		if p.ModelPattern == "" {
			pf.Pools[i].ModelPattern = "*"
		}
	}
	return &pf, nil
}

// PoolConfigs returns the effective pool definitions: the pools file when
// set, otherwise one "*" pool per provider seeded from the env key lists.
func (c *Config) PoolConfigs() ([]PoolConfig, []PricingOverride, error) {
	if c.PoolsFile != "" {
		pf, err := LoadPools(c.PoolsFile)
		if err != nil {
			return nil, nil, err
		}
		return pf.Pools, pf.Pricing, nil
	}

	var pools []PoolConfig
	if len(c.GoogleAPIKeys) > 0 {
		pools = append(pools, PoolConfig{Provider: "google", ModelPattern: "*", Keys: c.GoogleAPIKeys})
	}
	if len(c.GroqAPIKeys) > 0 {
		pools = append(pools, PoolConfig{Provider: "groq", ModelPattern: "*", Keys: c.GroqAPIKeys})
	}
	return pools, nil, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
