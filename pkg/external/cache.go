package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coda-va-server/internal/domain"
)

// CompletionCache stores structured-completion payloads in Redis, keyed by a
// hash of the full request. Extraction and re-ranking prompts repeat across
// retries and replayed interviews, so cache hits skip the expensive LLM
// round trip entirely. A nil *CompletionCache is a valid no-op cache.
type CompletionCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCompletionCache connects to Redis and verifies the connection.
func NewCompletionCache(config domain.CacheConfig) (*CompletionCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CompletionCache{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

type cachedCompletion struct {
	Payload   json.RawMessage `json:"payload"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Get returns the cached completion payload for req, with a hit indicator.
// Corrupted or expired entries are deleted and reported as misses.
func (c *CompletionCache) Get(ctx context.Context, req domain.CompletionRequest) ([]byte, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	key := completionKey(req)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read completion cache: %w", err)
	}

	var cached cachedCompletion
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Payload, true, nil
}

// Set caches payload for req. A zero ttl uses the configured default.
func (c *CompletionCache) Set(ctx context.Context, req domain.CompletionRequest, payload []byte, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := cachedCompletion{
		Payload:   json.RawMessage(payload),
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cached completion: %w", err)
	}

	return c.redis.Set(ctx, completionKey(req), data, ttl).Err()
}

// Ping checks the Redis connection.
func (c *CompletionCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *CompletionCache) Close() error {
	if c == nil {
		return nil
	}
	return c.redis.Close()
}

// completionKey hashes the request so prompt text never appears in Redis
// keys.
func completionKey(req domain.CompletionRequest) string {
	hash := sha256.New()
	hash.Write([]byte(req.SchemaName))
	hash.Write([]byte{0})
	hash.Write([]byte(req.SystemPrompt))
	hash.Write([]byte{0})
	hash.Write([]byte(req.UserPrompt))
	return fmt.Sprintf("completion:%x", hash.Sum(nil)[:16])
}
