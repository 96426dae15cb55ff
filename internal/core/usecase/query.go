package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/core/ports"
)

const (
	noDocumentsContext = "No relevant documents found."
	noAnswerText       = "No relevant documents found to answer the question."
	maxPromptChunks    = 5
	maxAnswerSources   = 3
)

// QueryUseCase answers questions with the self-improving, agentic or
// multimodal retrieval flow.
type QueryUseCase struct {
	classifier    *QueryClassifier
	selfImproving *SelfImprovingRetriever
	agentic       *AgenticRetriever
	multimodal    *MultimodalRetriever
	fusion        *MultimodalFusion
	generator     ports.AnswerGenerator
	publisher     ports.TracePublisher
}

func NewQueryUseCase(
	classifier *QueryClassifier,
	selfImproving *SelfImprovingRetriever,
	agentic *AgenticRetriever,
	multimodal *MultimodalRetriever,
	fusion *MultimodalFusion,
	generator ports.AnswerGenerator,
	publisher ports.TracePublisher,
) *QueryUseCase {
	return &QueryUseCase{
		classifier:    classifier,
		selfImproving: selfImproving,
		agentic:       agentic,
		multimodal:    multimodal,
		fusion:        fusion,
		generator:     generator,
		publisher:     publisher,
	}
}

func (uc *QueryUseCase) Ask(ctx context.Context, question string) (*domain.Answer, error) {
	outcome, err := uc.selfImproving.Retrieve(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("self-improving retrieval: %w", err)
	}

	answer, err := uc.generate(ctx, outcome.QueryUsed, outcome.Results)
	if err != nil {
		return nil, err
	}
	answer.Outcome = *outcome

	uc.publish(ctx, domain.RetrievalTrace{
		Mode:          "self_improving",
		OriginalQuery: outcome.OriginalQuery,
		QueryUsed:     outcome.QueryUsed,
		Attempts:      outcome.Attempts,
		Confidence:    outcome.Confidence,
		Results:       resultTraces(outcome.Results),
	})
	return answer, nil
}

func (uc *QueryUseCase) AskAgentic(ctx context.Context, question string) (*domain.Answer, error) {
	outcome, err := uc.agentic.Retrieve(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("agentic retrieval: %w", err)
	}

	answer, err := uc.generate(ctx, question, outcome.Results)
	if err != nil {
		return nil, err
	}
	answer.Agentic = outcome

	uc.publish(ctx, domain.RetrievalTrace{
		Mode:          "agentic",
		OriginalQuery: question,
		QueryUsed:     question,
		Attempts:      len(outcome.Steps),
		Steps:         outcome.Steps,
		Results:       resultTraces(outcome.Results),
	})
	return answer, nil
}

func (uc *QueryUseCase) AskMultimodal(ctx context.Context, question string) (*domain.MultimodalAnswer, error) {
	retrieved, err := uc.multimodal.Retrieve(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("multimodal retrieval: %w", err)
	}

	answer, err := uc.fusion.Answer(ctx, question, retrieved.Texts, retrieved.Images, retrieved.Tables)
	if err != nil {
		return nil, err
	}
	answer.Analysis = retrieved.Analysis

	uc.publish(ctx, domain.RetrievalTrace{
		Mode:          "multimodal",
		OriginalQuery: question,
		QueryUsed:     question,
		Attempts:      1,
		Confidence:    retrieved.Analysis.Confidence,
		Results:       fusedTraces(answer.Context),
	})
	return answer, nil
}

func (uc *QueryUseCase) AnalyzeQuery(query string) (domain.QueryAnalysis, domain.RetrievalStrategy, error) {
	if _, err := domain.NewQuery(query); err != nil {
		return domain.QueryAnalysis{}, domain.RetrievalStrategy{}, err
	}
	analysis := uc.classifier.Classify(query)
	return analysis, BuildRetrievalStrategy(analysis), nil
}

func (uc *QueryUseCase) RetrieveImages(ctx context.Context, query string, k int) ([]domain.AnalyzedImage, error) {
	candidates, err := uc.multimodal.RetrieveImages(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AnalyzedImage, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, uc.fusion.analyze(ctx, c))
	}
	return out, nil
}

func (uc *QueryUseCase) RetrieveTables(ctx context.Context, query string, k int) ([]domain.Candidate, error) {
	return uc.multimodal.RetrieveTables(ctx, query, k)
}

func (uc *QueryUseCase) generate(ctx context.Context, question string, results []domain.RankedResult) (*domain.Answer, error) {
	if len(results) == 0 {
		return &domain.Answer{
			Text:    noAnswerText,
			Chunks:  []domain.RankedResult{},
			Sources: []domain.AnswerSource{},
		}, nil
	}

	generated, err := GenerateFromChunks(ctx, uc.generator, question, results)
	if err != nil {
		return nil, err
	}
	return &domain.Answer{
		Text:    generated.Answer,
		Chunks:  results,
		Sources: generated.Sources,
	}, nil
}

// GenerateFromChunks answers from the chunk context and cites the top chunks.
// Generator failure is terminal for the question.
func GenerateFromChunks(ctx context.Context, generator ports.AnswerGenerator, question string, results []domain.RankedResult) (domain.GeneratedAnswer, error) {
	text, err := generator.GenerateAnswer(ctx, question, BuildChunkContext(results))
	if err != nil {
		return domain.GeneratedAnswer{}, fmt.Errorf("generate answer: %w", domain.Unavailable("generator", err))
	}
	return domain.GeneratedAnswer{Answer: text, Sources: ChunkSources(results)}, nil
}

// publish is best effort; trace delivery never fails a request.
func (uc *QueryUseCase) publish(ctx context.Context, trace domain.RetrievalTrace) {
	if uc.publisher == nil {
		return
	}
	trace.ID = uuid.NewString()
	trace.CreatedAt = time.Now().UTC()
	if err := uc.publisher.PublishRetrievalTrace(ctx, trace); err != nil {
		slog.Warn("trace_publish_failed", "trace_id", trace.ID, "mode", trace.Mode, "error", err)
	}
}

// BuildChunkContext formats up to five chunks as "[Source: s, Page p]" blocks.
func BuildChunkContext(results []domain.RankedResult) string {
	if len(results) == 0 {
		return noDocumentsContext
	}
	parts := make([]string, 0, maxPromptChunks)
	for i, r := range results {
		if i == maxPromptChunks {
			break
		}
		source := r.MetadataString("source")
		if source == "" {
			source = "Unknown"
		}
		if page := r.Candidate.Page(); page != "" {
			parts = append(parts, fmt.Sprintf("[Source: %s, Page %s]\n%s", source, page, r.Content))
			continue
		}
		parts = append(parts, fmt.Sprintf("[Source: %s]\n%s", source, r.Content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func ChunkSources(results []domain.RankedResult) []domain.AnswerSource {
	out := make([]domain.AnswerSource, 0, maxAnswerSources)
	for i, r := range results {
		if i == maxAnswerSources {
			break
		}
		src := domain.AnswerSource{
			Source: r.MetadataString("source"),
			Page:   r.MetadataString("page_number"),
		}
		if src.Source == "" {
			src.Source = "Unknown"
		}
		if src.Page == "" {
			src.Page = "N/A"
		}
		out = append(out, src)
	}
	return out
}

func resultTraces(results []domain.RankedResult) []domain.ResultTrace {
	out := make([]domain.ResultTrace, 0, len(results))
	for _, r := range results {
		out = append(out, r.Trace)
	}
	return out
}

func fusedTraces(gctx domain.GenerationContext) []domain.ResultTrace {
	out := make([]domain.ResultTrace, 0, len(gctx.Texts)+len(gctx.Images)+len(gctx.Tables))
	add := func(c domain.Candidate) {
		out = append(out, domain.ResultTrace{
			QueryType: string(c.Modality),
			Strategy:  "multimodal fusion",
			Metadata:  c.Metadata,
		})
	}
	for _, c := range gctx.Texts {
		add(c)
	}
	for _, img := range gctx.Images {
		add(img.Candidate)
	}
	for _, c := range gctx.Tables {
		add(c)
	}
	return out
}
