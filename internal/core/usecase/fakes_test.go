package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
)

type searchCall struct {
	query  string
	k      int
	filter domain.SearchFilter
}

// searcherFake answers by exact query text; unknown queries return nothing.
type searcherFake struct {
	mu       sync.Mutex
	results  map[string][]domain.Candidate
	filtered map[string][]domain.Candidate
	errs     map[string]error
	filterEr error
	calls    []searchCall
}

func (f *searcherFake) Search(_ context.Context, query string, k int, filter domain.SearchFilter) ([]domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, searchCall{query: query, k: k, filter: filter})

	if !filter.IsZero() {
		if f.filterEr != nil {
			return nil, f.filterEr
		}
		return cloneCandidates(f.filtered[query+"|"+filter.ContentType]), nil
	}
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return cloneCandidates(f.results[query]), nil
}

func (f *searcherFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func cloneCandidates(in []domain.Candidate) []domain.Candidate {
	if in == nil {
		return nil
	}
	out := make([]domain.Candidate, len(in))
	copy(out, in)
	return out
}

func cand(content string, meta map[string]any) domain.Candidate {
	return domain.Candidate{Content: content, Modality: domain.ModalityText, Metadata: meta}
}

// scorerFake scores by candidate content; missing entries score 0.
type scorerFake struct {
	scores map[string]float64
	err    error
	calls  int
}

func (f *scorerFake) ScorePairs(_ context.Context, _ string, candidates []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = f.scores[c]
	}
	return out, nil
}

type embedderFake struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type imageEmbedderFake struct {
	vectors map[string][]float32
	paths   []string
}

func (f *imageEmbedderFake) EmbedImage(_ context.Context, path string) ([]float32, error) {
	f.paths = append(f.paths, path)
	v, ok := f.vectors[path]
	if !ok {
		return nil, errors.New("unknown image")
	}
	return v, nil
}

type analyzerFake struct {
	results map[string]domain.ImageAnalysis
	errs    map[string]error
	paths   []string
}

func (f *analyzerFake) AnalyzeImage(_ context.Context, path string) (domain.ImageAnalysis, error) {
	f.paths = append(f.paths, path)
	if err := f.errs[path]; err != nil {
		return domain.ImageAnalysis{}, err
	}
	return f.results[path], nil
}

type generatorFake struct {
	question string
	context  string
	answer   string
	err      error
	calls    int
}

func (f *generatorFake) GenerateAnswer(_ context.Context, question, context string) (string, error) {
	f.calls++
	f.question = question
	f.context = context
	if f.err != nil {
		return "", f.err
	}
	if f.answer == "" {
		return "answer", nil
	}
	return f.answer, nil
}

type publisherFake struct {
	traces []domain.RetrievalTrace
	err    error
}

func (f *publisherFake) PublishRetrievalTrace(_ context.Context, trace domain.RetrievalTrace) error {
	f.traces = append(f.traces, trace)
	return f.err
}

// identityReranker keeps input order and records calls.
type identityReranker struct {
	calls int
	err   error
}

func (r *identityReranker) Name() string { return "identity" }

func (r *identityReranker) Rerank(_ context.Context, _ string, candidates []domain.Candidate, topK int) ([]domain.Candidate, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if topK > 0 && len(candidates) > topK {
		return candidates[:topK], nil
	}
	return candidates, nil
}

func contents(cands []domain.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Content
	}
	return out
}

func resultContents(results []domain.RankedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Content
	}
	return out
}

func joined(items []string) string {
	return strings.Join(items, "|")
}
