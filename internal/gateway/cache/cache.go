package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/GTFB/forlifely-sub004/internal/shared/redisstore"
)

// ErrMiss is returned by Get when no entry exists for the fingerprint.
var ErrMiss = errors.New("cache miss")

// Entry is the cached outcome of one computed ask. A cached answer is
// provider-agnostic: it survives credential changes.
type Entry struct {
	RequestID string `json:"requestId"`
	Model     string `json:"model"`
	Content   string `json:"content"`
}

// Cache maps a content fingerprint to a previously computed response with a
// fixed TTL. Redis-backed when a client is provided; otherwise an
// in-process TTL cache covers single-instance deployments.
type Cache struct {
	redis   *redisstore.Client
	local   *gocache.Cache
	ttl     time.Duration
	enabled bool
}

// New creates a cache. redis may be nil.
func New(redis *redisstore.Client, ttl time.Duration, enabled bool) *Cache {
	c := &Cache{
		redis:   redis,
		ttl:     ttl,
		enabled: enabled,
	}
	if redis == nil {
		c.local = gocache.New(ttl, 2*ttl)
	}
	return c
}

// Fingerprint computes the deterministic cache key for (model, flattened
// input).
func Fingerprint(model, flattened string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + flattened))
	return "cache:ask:" + hex.EncodeToString(sum[:])
}

// Get retrieves a cached entry by fingerprint.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	if !c.enabled {
		return nil, ErrMiss
	}

	if c.redis == nil {
		if v, ok := c.local.Get(fingerprint); ok {
			entry := v.(Entry)
			return &entry, nil
		}
		return nil, ErrMiss
	}

	val, err := c.redis.Get(ctx, fingerprint)
	if errors.Is(err, redisstore.ErrNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to deserialize cached entry: %w", err)
	}
	return &entry, nil
}

// Set stores an entry under the fingerprint with the configured TTL.
func (c *Cache) Set(ctx context.Context, fingerprint string, entry *Entry) error {
	if !c.enabled {
		return nil
	}

	if c.redis == nil {
		c.local.Set(fingerprint, *entry, gocache.DefaultExpiration)
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize entry: %w", err)
	}
	return c.redis.Set(ctx, fingerprint, string(data), c.ttl)
}
