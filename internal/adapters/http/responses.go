package httpadapter

import "github.com/kirillkom/multimodal-rag/internal/core/domain"

type askResponse struct {
	Response      string                `json:"response"`
	SourceChunks  []domain.RankedResult `json:"source_chunks"`
	Sources       []domain.AnswerSource `json:"sources"`
	QueryUsed     string                `json:"query_used"`
	OriginalQuery string                `json:"original_query"`
	Confidence    float64               `json:"confidence"`
	Attempts      int                   `json:"attempts"`
}

func newAskResponse(a *domain.Answer) askResponse {
	return askResponse{
		Response:      a.Text,
		SourceChunks:  nonNilResults(a.Chunks),
		Sources:       nonNilSources(a.Sources),
		QueryUsed:     a.Outcome.QueryUsed,
		OriginalQuery: a.Outcome.OriginalQuery,
		Confidence:    a.Outcome.Confidence,
		Attempts:      a.Outcome.Attempts,
	}
}

type agenticResponse struct {
	Response      string                `json:"response"`
	SourceChunks  []domain.RankedResult `json:"source_chunks"`
	Sources       []domain.AnswerSource `json:"sources"`
	FinalStrategy string                `json:"final_strategy"`
	Steps         []domain.StepRecord   `json:"steps"`
}

func newAgenticResponse(a *domain.Answer) agenticResponse {
	resp := agenticResponse{
		Response:     a.Text,
		SourceChunks: nonNilResults(a.Chunks),
		Sources:      nonNilSources(a.Sources),
		Steps:        []domain.StepRecord{},
	}
	if a.Agentic != nil {
		resp.FinalStrategy = a.Agentic.FinalStrategy
		if a.Agentic.Steps != nil {
			resp.Steps = a.Agentic.Steps
		}
	}
	return resp
}

type multimodalResponse struct {
	Response     string                    `json:"response"`
	TextSources  []domain.MultimodalSource `json:"text_sources"`
	ImageSources []domain.MultimodalSource `json:"image_sources"`
	TableSources []domain.MultimodalSource `json:"table_sources"`
	Confidence   float64                   `json:"confidence"`
	Analysis     domain.QueryAnalysis      `json:"analysis"`
}

func newMultimodalResponse(a *domain.MultimodalAnswer) multimodalResponse {
	resp := multimodalResponse{
		Response:     a.Answer,
		TextSources:  []domain.MultimodalSource{},
		ImageSources: []domain.MultimodalSource{},
		TableSources: []domain.MultimodalSource{},
		Confidence:   a.Analysis.Confidence,
		Analysis:     a.Analysis,
	}
	for _, src := range a.Sources {
		switch src.Type {
		case domain.ContentTypeImage:
			resp.ImageSources = append(resp.ImageSources, src)
		case domain.ContentTypeTable:
			resp.TableSources = append(resp.TableSources, src)
		default:
			resp.TextSources = append(resp.TextSources, src)
		}
	}
	return resp
}

type listResponse[T any] struct {
	Query string `json:"query"`
	Items []T    `json:"items"`
	Count int    `json:"count"`
}

type analysisResponse struct {
	domain.QueryAnalysis
	Strategy domain.RetrievalStrategy `json:"retrieval_strategy"`
}

func nonNilResults(in []domain.RankedResult) []domain.RankedResult {
	if in == nil {
		return []domain.RankedResult{}
	}
	return in
}

func nonNilSources(in []domain.AnswerSource) []domain.AnswerSource {
	if in == nil {
		return []domain.AnswerSource{}
	}
	return in
}
