package bootstrap

import (
	"testing"
	"time"

	"github.com/kirillkom/multimodal-rag/internal/config"
	"github.com/kirillkom/multimodal-rag/internal/core/usecase"
)

func TestNewRerankerSelectsStrategy(t *testing.T) {
	cases := map[string]string{
		"cross-encoder": usecase.RerankStrategyCrossEncoder,
		"cosine":        usecase.RerankStrategyCosine,
	}
	for strategy, want := range cases {
		cfg := config.Config{RAGRerankStrategy: strategy, RerankerURL: "http://reranker", ImageEmbedderURL: "http://clip"}
		r, err := newReranker(cfg, nil, nil, nil)
		if err != nil {
			t.Fatalf("newReranker(%q) error = %v", strategy, err)
		}
		if r.Name() != want {
			t.Fatalf("newReranker(%q).Name() = %q", strategy, r.Name())
		}
	}

	if _, err := newReranker(config.Config{RAGRerankStrategy: "bm25"}, nil, nil, nil); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestResilienceConfigOverrides(t *testing.T) {
	rc := resilienceConfig(config.Config{ResilienceRetryAttempts: 5, ResilienceBreakerTimeoutMS: 1500})
	if rc.RetryMaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", rc.RetryMaxAttempts)
	}
	if rc.BreakerOpenTimeout != 1500*time.Millisecond {
		t.Fatalf("unexpected breaker timeout %v", rc.BreakerOpenTimeout)
	}

	def := resilienceConfig(config.Config{})
	if def.RetryMaxAttempts != 3 || !def.BreakerEnabled {
		t.Fatalf("expected defaults, got %+v", def)
	}
}
