package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/core/ports"
)

type SelfImprovingOptions struct {
	MaxAttempts            int
	TopK                   int
	SkipBroadeningOnAccept bool
}

// SelfImprovingRetriever retries retrieval with rewritten queries until the
// critic accepts a candidate set or the attempt budget runs out, then runs a
// broader ranked pass that produces the final evidence.
type SelfImprovingRetriever struct {
	searcher ports.VectorSearcher
	critic   *Critic
	advanced *AdvancedRetriever

	maxAttempts            int
	topK                   int
	skipBroadeningOnAccept bool
}

func NewSelfImprovingRetriever(
	searcher ports.VectorSearcher,
	critic *Critic,
	advanced *AdvancedRetriever,
	opts SelfImprovingOptions,
) *SelfImprovingRetriever {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultSearchTopK
	}
	return &SelfImprovingRetriever{
		searcher:               searcher,
		critic:                 critic,
		advanced:               advanced,
		maxAttempts:            opts.MaxAttempts,
		topK:                   opts.TopK,
		skipBroadeningOnAccept: opts.SkipBroadeningOnAccept,
	}
}

type attemptResult struct {
	candidates []domain.Candidate
	critique   domain.CritiqueResult
}

func (r *SelfImprovingRetriever) Retrieve(ctx context.Context, question string) (*domain.RetrievalOutcome, error) {
	query, err := domain.NewQuery(question)
	if err != nil {
		return nil, err
	}

	var last attemptResult
	attempt := 1
	for ; ; attempt++ {
		last, err = r.runAttempt(ctx, query.Current)
		if err != nil {
			return nil, err
		}
		slog.Info("retrieval_attempt",
			"attempt", attempt,
			"query", query.Current,
			"candidates", len(last.candidates),
			"score", last.critique.Score,
			"decision", string(last.critique.Decision),
		)

		if last.critique.Accepted() || attempt >= r.maxAttempts {
			break
		}
		query.Current = RewriteQuery(query.Original, attempt)
	}

	outcome := &domain.RetrievalOutcome{
		Candidates:    last.candidates,
		QueryUsed:     query.Current,
		OriginalQuery: query.Original,
		Attempts:      attempt,
		Confidence:    last.critique.Score,
		Critique:      last.critique,
	}

	if r.skipBroadeningOnAccept && last.critique.Accepted() {
		head := last.candidates
		if len(head) > r.advanced.finalTopK {
			head = head[:r.advanced.finalTopK]
		}
		outcome.Results = withTraces(head, AnalyzeIntent(query.Current).QueryType, "vector + critic")
		return outcome, nil
	}

	results, err := r.advanced.Retrieve(ctx, query.Current)
	if err != nil {
		return nil, fmt.Errorf("broadening pass: %w", err)
	}
	outcome.Results = results
	return outcome, nil
}

// runAttempt treats a failed search as an empty candidate set so the critic
// asks for a retry.
func (r *SelfImprovingRetriever) runAttempt(ctx context.Context, query string) (attemptResult, error) {
	candidates, err := r.searcher.Search(ctx, query, r.topK, domain.SearchFilter{})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attemptResult{}, ctxErr
		}
		slog.Warn("attempt_search_failed", "query", query, "error", err)
		candidates = nil
	}
	return attemptResult{
		candidates: candidates,
		critique:   r.critic.Evaluate(query, candidates),
	}, nil
}
