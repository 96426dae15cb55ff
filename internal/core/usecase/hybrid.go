package usecase

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/core/ports"
)

const defaultSearchTopK = 8

// HybridRetriever searches every query variant and merges the results.
type HybridRetriever struct {
	searcher ports.VectorSearcher
	topK     int
}

func NewHybridRetriever(searcher ports.VectorSearcher, topK int) *HybridRetriever {
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	return &HybridRetriever{
		searcher: searcher,
		topK:     topK,
	}
}

// Retrieve concatenates per-variant results in variant order and drops
// repeated candidates by DedupKey, keeping the first occurrence and its
// metadata. A failed variant is logged and skipped; only context
// cancellation aborts the merge.
func (r *HybridRetriever) Retrieve(ctx context.Context, queries []string, filter domain.SearchFilter) ([]domain.Candidate, error) {
	merged := make([]domain.Candidate, 0, len(queries)*r.topK)
	seen := make(map[string]struct{}, len(queries)*r.topK)

	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		results, err := r.searchVariant(ctx, q, filter)
		if err != nil {
			slog.Warn("variant_search_failed", "query", q, "error", err)
			continue
		}

		for _, c := range results {
			key := c.DedupKey()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, c)
		}
	}
	return merged, nil
}

func (r *HybridRetriever) searchVariant(ctx context.Context, query string, filter domain.SearchFilter) ([]domain.Candidate, error) {
	if filter.IsZero() {
		return r.searcher.Search(ctx, query, r.topK, filter)
	}

	results, err := r.searcher.Search(ctx, query, r.topK, filter)
	if err == nil && len(results) > 0 {
		return results, nil
	}
	if err != nil {
		slog.Info("filtered_search_fallback", "query", query, "content_type", filter.ContentType, "error", err)
	}
	return r.searcher.Search(ctx, query, r.topK, domain.SearchFilter{})
}

// LexicalScore is an additive BM25-style signal: each query term present in
// a document adds 1+ln(tf).
func LexicalScore(query string, docs []string) []float64 {
	terms := strings.Fields(strings.ToLower(query))
	scores := make([]float64, len(docs))
	for i, d := range docs {
		tf := make(map[string]int)
		for _, t := range strings.Fields(strings.ToLower(d)) {
			tf[t]++
		}
		var score float64
		for _, t := range terms {
			if n := tf[t]; n > 0 {
				score += 1 + math.Log(float64(n))
			}
		}
		scores[i] = score
	}
	return scores
}
