package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
)

type AdvancedRetrieverOptions struct {
	RerankTopK    int
	FinalTopK     int
	IntentFilters bool
}

// AdvancedRetriever runs intent analysis, expansion, hybrid merge and re-ranking
// and returns the head of the ranking with a trace per result.
type AdvancedRetriever struct {
	hybrid   *HybridRetriever
	reranker Reranker

	rerankTopK    int
	finalTopK     int
	intentFilters bool
}

func NewAdvancedRetriever(hybrid *HybridRetriever, reranker Reranker, opts AdvancedRetrieverOptions) *AdvancedRetriever {
	if opts.RerankTopK <= 0 {
		opts.RerankTopK = 8
	}
	if opts.FinalTopK <= 0 {
		opts.FinalTopK = 5
	}
	return &AdvancedRetriever{
		hybrid:        hybrid,
		reranker:      reranker,
		rerankTopK:    opts.RerankTopK,
		finalTopK:     opts.FinalTopK,
		intentFilters: opts.IntentFilters,
	}
}

func (r *AdvancedRetriever) Strategy() string {
	return "hybrid + " + r.reranker.Name()
}

func (r *AdvancedRetriever) Retrieve(ctx context.Context, query string) ([]domain.RankedResult, error) {
	intent := AnalyzeIntent(query)
	filter := domain.SearchFilter{}
	if r.intentFilters {
		filter = intent.Filter
	}

	candidates, err := r.hybrid.Retrieve(ctx, ExpandQuery(query), filter)
	if err != nil {
		return nil, fmt.Errorf("hybrid retrieve: %w", err)
	}

	ranked, err := r.reranker.Rerank(ctx, query, candidates, r.rerankTopK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("rerank_failed", "strategy", r.reranker.Name(), "candidates", len(candidates), "error", err)
		ranked = lexicalOrder(query, candidates, r.rerankTopK)
	}

	if len(ranked) > r.finalTopK {
		ranked = ranked[:r.finalTopK]
	}
	return withTraces(ranked, intent.QueryType, r.Strategy()), nil
}

// lexicalOrder is the degraded ranking used when the re-ranker is unavailable.
func lexicalOrder(query string, candidates []domain.Candidate, topK int) []domain.Candidate {
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Content
	}
	return orderByScore(candidates, LexicalScore(query, docs), topK)
}

func withTraces(candidates []domain.Candidate, queryType, strategy string) []domain.RankedResult {
	out := make([]domain.RankedResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.RankedResult{
			Candidate: c,
			Trace: domain.ResultTrace{
				QueryType: queryType,
				Strategy:  strategy,
				Metadata:  c.Metadata,
			},
		})
	}
	return out
}
