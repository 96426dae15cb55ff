package ports

import (
	"context"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
)

// QuestionAnswerer is the inbound contract for retrieval-augmented answers.
type QuestionAnswerer interface {
	Ask(ctx context.Context, question string) (*domain.Answer, error)
	AskAgentic(ctx context.Context, question string) (*domain.Answer, error)
	AskMultimodal(ctx context.Context, question string) (*domain.MultimodalAnswer, error)
}

// QueryAnalyzer exposes modality classification without retrieval.
type QueryAnalyzer interface {
	AnalyzeQuery(query string) (domain.QueryAnalysis, domain.RetrievalStrategy, error)
}

// ModalityRetriever serves single-modality lookups.
type ModalityRetriever interface {
	RetrieveImages(ctx context.Context, query string, k int) ([]domain.AnalyzedImage, error)
	RetrieveTables(ctx context.Context, query string, k int) ([]domain.Candidate, error)
}

// TraceReader is the read model for persisted retrieval traces.
type TraceReader interface {
	GetTrace(ctx context.Context, id string) (*domain.RetrievalTrace, error)
}
