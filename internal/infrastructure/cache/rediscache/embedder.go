package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/multimodal-rag/internal/core/ports"
)

const keyPrefix = "mmrag:embed:"

// Config addresses the Redis instance. Entry TTL belongs to the cache user,
// see NewCachedEmbedder.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// CachedEmbedder memoizes text embeddings per model. Redis failures degrade
// to calling the wrapped embedder.
type CachedEmbedder struct {
	inner  ports.Embedder
	client *redis.Client
	model  string
	ttl    time.Duration
}

func NewCachedEmbedder(inner ports.Embedder, client *redis.Client, model string, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{
		inner:  inner,
		client: client,
		model:  model,
		ttl:    ttl,
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.key(text)
	}

	out := make([][]float32, len(texts))
	missing := c.lookup(ctx, keys, out)
	if len(missing) == 0 {
		return out, nil
	}

	missTexts := make([]string, len(missing))
	for i, idx := range missing {
		missTexts[i] = texts[idx]
	}
	vectors, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(missTexts))
	}

	pipe := c.client.Pipeline()
	for i, idx := range missing {
		out[idx] = vectors[i]
		raw, err := json.Marshal(vectors[i])
		if err != nil {
			continue
		}
		pipe.Set(ctx, keys[idx], raw, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("embedding_cache_store_failed", "keys", len(missing), "error", err)
	}
	return out, nil
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// lookup fills hits into out and returns the indexes still missing.
func (c *CachedEmbedder) lookup(ctx context.Context, keys []string, out [][]float32) []int {
	all := make([]int, len(keys))
	for i := range keys {
		all[i] = i
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("embedding_cache_lookup_failed", "keys", len(keys), "error", err)
		}
		return all
	}

	missing := make([]int, 0, len(keys))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, i)
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(s), &vec); err != nil || len(vec) == 0 {
			missing = append(missing, i)
			continue
		}
		out[i] = vec
	}
	return missing
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keyPrefix + c.model + ":" + hex.EncodeToString(sum[:])
}
