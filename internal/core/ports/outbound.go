package ports

import (
	"context"
	"io"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
)

// VectorSearcher runs a similarity search for query text. Results keep the
// backend order.
type VectorSearcher interface {
	Search(ctx context.Context, queryText string, k int, filter domain.SearchFilter) ([]domain.Candidate, error)
}

// Embedder builds text vectors in the shared embedding space.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ImageEmbedder maps an image into the same space as Embedder.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, path string) ([]float32, error)
}

// PairScorer scores (query, candidate) pairs; higher is more relevant.
type PairScorer interface {
	ScorePairs(ctx context.Context, query string, candidates []string) ([]float64, error)
}

type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, path string) (domain.ImageAnalysis, error)
}

// AnswerGenerator turns an assembled context into the user-facing answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question, context string) (string, error)
}

// ObjectStorage reads stored document assets such as extracted images.
type ObjectStorage interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type TracePublisher interface {
	PublishRetrievalTrace(ctx context.Context, trace domain.RetrievalTrace) error
}

type TraceSubscriber interface {
	SubscribeRetrievalTraces(ctx context.Context, handler func(context.Context, domain.RetrievalTrace) error) error
}

// TraceStore persists retrieval traces for explainability.
type TraceStore interface {
	SaveTrace(ctx context.Context, trace domain.RetrievalTrace) error
	GetTrace(ctx context.Context, id string) (*domain.RetrievalTrace, error)
}
