package httpjson

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/resilience"
)

func TestPostJSONDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/score" {
			http.NotFound(w, r)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type %q", ct)
		}
		_, _ = w.Write([]byte(`{"value":42}`))
	}))
	defer server.Close()

	client := NewClient("scorer", server.URL+"/", time.Second)
	var out struct {
		Value int `json:"value"`
	}
	if err := client.PostJSON(context.Background(), "/score", map[string]any{"q": "x"}, &out, "score"); err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	if out.Value != 42 {
		t.Fatalf("expected decoded value, got %d", out.Value)
	}
}

func TestStatusErrorIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewClient("ollama", server.URL, time.Second).PostJSON(context.Background(), "/api/embed", map[string]any{}, nil, "embed")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("unexpected status %d", statusErr.StatusCode)
	}
	if !strings.Contains(err.Error(), "model unavailable") || !strings.HasPrefix(err.Error(), "ollama embed status") {
		t.Fatalf("unexpected error text %v", err)
	}
}

func TestCallRetriesRetryableStatusAndWrapsTemporary(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient("qdrant", server.URL, time.Second)
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})

	err := Call(context.Background(), exec, "qdrant_search", func(ctx context.Context) error {
		return client.PostJSON(ctx, "/x", map[string]any{}, nil, "search")
	})
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient("reranker", server.URL, time.Second)
	exec := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 3, BreakerEnabled: false})

	err := Call(context.Background(), exec, "rerank", func(ctx context.Context) error {
		return client.PostJSON(ctx, "/rerank", map[string]any{}, nil, "rerank")
	})
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected single attempt, got %d", got)
	}
}

func TestClassifyContextCancellation(t *testing.T) {
	class := Classify(context.Canceled)
	if class.Retryable || class.RecordFailure {
		t.Fatalf("cancellation must be neither retried nor recorded, got %+v", class)
	}
}
