package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/core/ports"
)

const (
	RerankStrategyCrossEncoder = "cross-encoder"
	RerankStrategyCosine       = "cosine"
)

// Reranker reorders candidates by relevance, highest first, truncated to topK.
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, candidates []domain.Candidate, topK int) ([]domain.Candidate, error)
}

type CrossEncoderReranker struct {
	scorer ports.PairScorer
}

func NewCrossEncoderReranker(scorer ports.PairScorer) *CrossEncoderReranker {
	return &CrossEncoderReranker{scorer: scorer}
}

func (r *CrossEncoderReranker) Name() string { return RerankStrategyCrossEncoder }

func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, candidates []domain.Candidate, topK int) ([]domain.Candidate, error) {
	if len(candidates) == 0 {
		return []domain.Candidate{}, nil
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Content
	}
	scores, err := r.scorer.ScorePairs(ctx, query, docs)
	if err != nil {
		return nil, fmt.Errorf("score pairs: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("score pairs: got %d scores for %d candidates", len(scores), len(candidates))
	}
	return orderByScore(candidates, scores, topK), nil
}

// CosineReranker compares a query embedding with each candidate embedding.
// Candidates that reference an image file are embedded from the image when an
// image embedder is configured.
type CosineReranker struct {
	embedder ports.Embedder
	images   ports.ImageEmbedder
}

func NewCosineReranker(embedder ports.Embedder, images ports.ImageEmbedder) *CosineReranker {
	return &CosineReranker{
		embedder: embedder,
		images:   images,
	}
}

func (r *CosineReranker) Name() string { return RerankStrategyCosine }

func (r *CosineReranker) Rerank(ctx context.Context, query string, candidates []domain.Candidate, topK int) ([]domain.Candidate, error) {
	if len(candidates) == 0 {
		return []domain.Candidate{}, nil
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vectors := make([][]float32, len(candidates))
	textIdx := make([]int, 0, len(candidates))
	texts := make([]string, 0, len(candidates))
	for i, c := range candidates {
		path := c.ImagePath()
		if r.images != nil && c.IsImage() && path != "" {
			v, err := r.images.EmbedImage(ctx, path)
			if err != nil {
				return nil, fmt.Errorf("embed image %s: %w", path, err)
			}
			vectors[i] = v
			continue
		}
		textIdx = append(textIdx, i)
		texts = append(texts, c.Content)
	}

	if len(texts) > 0 {
		embedded, err := r.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed candidates: %w", err)
		}
		if len(embedded) != len(texts) {
			return nil, fmt.Errorf("embed candidates: got %d vectors for %d texts", len(embedded), len(texts))
		}
		for j, idx := range textIdx {
			vectors[idx] = embedded[j]
		}
	}

	scores := make([]float64, len(candidates))
	for i, v := range vectors {
		s, err := cosine(queryVector, v)
		if err != nil {
			return nil, err
		}
		scores[i] = s
	}
	return orderByScore(candidates, scores, topK), nil
}

// orderByScore sorts descending by score. Ties keep their input order.
func orderByScore(candidates []domain.Candidate, scores []float64, topK int) []domain.Candidate {
	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].Score = scores[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out
}

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
