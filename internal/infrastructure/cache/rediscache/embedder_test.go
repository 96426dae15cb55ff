package rediscache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingEmbedder struct {
	inputs [][]string
	err    error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.inputs = append(e.inputs, append([]string(nil), texts...))
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := NewClient(context.Background(), Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedEmbedderOnlyEmbedsMisses(t *testing.T) {
	_, client := setupRedis(t)
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, client, "nomic", time.Minute)

	if _, err := cached.Embed(context.Background(), []string{"alpha"}); err != nil {
		t.Fatalf("first Embed() error = %v", err)
	}
	got, err := cached.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("second Embed() error = %v", err)
	}

	if len(inner.inputs) != 2 {
		t.Fatalf("expected 2 inner calls, got %d", len(inner.inputs))
	}
	if len(inner.inputs[1]) != 1 || inner.inputs[1][0] != "beta" {
		t.Fatalf("expected only the miss to be embedded, got %v", inner.inputs[1])
	}
	if got[0][0] != 5 || got[1][0] != 4 {
		t.Fatalf("unexpected vectors %v", got)
	}
}

func TestCachedEmbedderKeysByModel(t *testing.T) {
	_, client := setupRedis(t)
	inner := &countingEmbedder{}

	if _, err := NewCachedEmbedder(inner, client, "model-a", time.Minute).EmbedQuery(context.Background(), "x"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if _, err := NewCachedEmbedder(inner, client, "model-b", time.Minute).EmbedQuery(context.Background(), "x"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(inner.inputs) != 2 {
		t.Fatalf("expected separate cache entries per model, got %d inner calls", len(inner.inputs))
	}
}

func TestCachedEmbedderEntriesExpire(t *testing.T) {
	mr, client := setupRedis(t)
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, client, "nomic", time.Minute)

	_, _ = cached.EmbedQuery(context.Background(), "alpha")
	mr.FastForward(2 * time.Minute)
	_, _ = cached.EmbedQuery(context.Background(), "alpha")

	if len(inner.inputs) != 2 {
		t.Fatalf("expected expired entry to be re-embedded, got %d calls", len(inner.inputs))
	}
}

func TestCachedEmbedderFallsBackWhenRedisDown(t *testing.T) {
	mr, client := setupRedis(t)
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, client, "nomic", time.Minute)
	mr.Close()

	got, err := cached.EmbedQuery(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(got) != 2 || len(inner.inputs) != 1 {
		t.Fatalf("expected inner embedder result, got %v", got)
	}
}

func TestCachedEmbedderPropagatesInnerError(t *testing.T) {
	_, client := setupRedis(t)
	cached := NewCachedEmbedder(&countingEmbedder{err: errors.New("ollama down")}, client, "nomic", time.Minute)

	if _, err := cached.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatalf("expected inner error")
	}
}

func TestCachedEmbedderStoresWithGivenTTL(t *testing.T) {
	mr, client := setupRedis(t)

	explicit := NewCachedEmbedder(&countingEmbedder{}, client, "nomic", 90*time.Second)
	if _, err := explicit.EmbedQuery(context.Background(), "alpha"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if got := mr.TTL(explicit.key("alpha")); got != 90*time.Second {
		t.Fatalf("TTL = %v, want 90s", got)
	}

	defaulted := NewCachedEmbedder(&countingEmbedder{}, client, "other", 0)
	if _, err := defaulted.EmbedQuery(context.Background(), "alpha"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if got := mr.TTL(defaulted.key("alpha")); got != 24*time.Hour {
		t.Fatalf("TTL = %v, want 24h default", got)
	}
}
