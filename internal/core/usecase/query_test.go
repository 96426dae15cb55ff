package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
)

type queryFixture struct {
	searcher  *searcherFake
	generator *generatorFake
	publisher *publisherFake
	analyzer  *analyzerFake
	uc        *QueryUseCase
}

func newQueryFixture(results map[string][]domain.Candidate) *queryFixture {
	fx := &queryFixture{
		searcher:  &searcherFake{results: results},
		generator: &generatorFake{},
		publisher: &publisherFake{},
		analyzer:  &analyzerFake{},
	}
	classifier := NewQueryClassifier(testVocabulary())
	advanced := NewAdvancedRetriever(NewHybridRetriever(fx.searcher, 8), &identityReranker{}, AdvancedRetrieverOptions{})
	fx.uc = NewQueryUseCase(
		classifier,
		NewSelfImprovingRetriever(fx.searcher, NewCritic(0), advanced, SelfImprovingOptions{}),
		NewAgenticRetriever(advanced, 2),
		NewMultimodalRetriever(classifier, fx.searcher, MultimodalRetrieverOptions{}),
		NewMultimodalFusion(fx.analyzer, fx.generator, FusionOptions{}),
		fx.generator,
		fx.publisher,
	)
	return fx
}

func TestAskGeneratesFromRankedChunksAndPublishesTrace(t *testing.T) {
	fx := newQueryFixture(map[string][]domain.Candidate{
		"attention heads": {cand("attention heads attend", map[string]any{"source": "paper.pdf", "page_number": 3.0})},
	})

	answer, err := fx.uc.Ask(context.Background(), "attention heads")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Text != "answer" {
		t.Fatalf("unexpected answer %q", answer.Text)
	}
	if fx.generator.context != "[Source: paper.pdf, Page 3]\nattention heads attend" {
		t.Fatalf("unexpected prompt context %q", fx.generator.context)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].Source != "paper.pdf" || answer.Sources[0].Page != "3" {
		t.Fatalf("unexpected sources %+v", answer.Sources)
	}
	if answer.Outcome.Attempts != 1 {
		t.Fatalf("expected outcome to be attached, got %+v", answer.Outcome)
	}

	if len(fx.publisher.traces) != 1 {
		t.Fatalf("expected one published trace, got %d", len(fx.publisher.traces))
	}
	trace := fx.publisher.traces[0]
	if trace.ID == "" || trace.CreatedAt.IsZero() {
		t.Fatalf("trace must carry id and timestamp, got %+v", trace)
	}
	if trace.Mode != "self_improving" || len(trace.Results) != 1 {
		t.Fatalf("unexpected trace %+v", trace)
	}
}

func TestAskWithoutResultsSkipsGeneration(t *testing.T) {
	fx := newQueryFixture(nil)

	answer, err := fx.uc.Ask(context.Background(), "nothing matches")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Text != noAnswerText {
		t.Fatalf("unexpected answer %q", answer.Text)
	}
	if fx.generator.calls != 0 {
		t.Fatalf("generator must not be called without evidence")
	}
	if answer.Outcome.Attempts != 3 {
		t.Fatalf("expected exhausted attempts, got %d", answer.Outcome.Attempts)
	}
}

func TestAskPublishFailureDoesNotFailRequest(t *testing.T) {
	fx := newQueryFixture(map[string][]domain.Candidate{"cat": {cand("a cat sat", nil)}})
	fx.publisher.err = errors.New("nats down")

	if _, err := fx.uc.Ask(context.Background(), "cat"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
}

func TestAskGeneratorFailureIsUnavailable(t *testing.T) {
	fx := newQueryFixture(map[string][]domain.Candidate{"cat": {cand("a cat sat", nil)}})
	fx.generator.err = errors.New("ollama down")

	_, err := fx.uc.Ask(context.Background(), "cat")
	if !errors.Is(err, domain.ErrCollaboratorUnavailable) {
		t.Fatalf("expected ErrCollaboratorUnavailable, got %v", err)
	}
	if len(fx.publisher.traces) != 0 {
		t.Fatalf("failed requests must not publish traces")
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	fx := newQueryFixture(nil)
	_, err := fx.uc.Ask(context.Background(), "   ")
	if !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestAskAgenticAttachesSteps(t *testing.T) {
	fx := newQueryFixture(map[string][]domain.Candidate{
		"Show the results table table": {cand("table chunk", nil)},
		"Show the results table":       {cand("hybrid chunk", nil)},
	})

	answer, err := fx.uc.AskAgentic(context.Background(), "Show the results table")
	if err != nil {
		t.Fatalf("AskAgentic() error = %v", err)
	}
	if answer.Agentic == nil || answer.Agentic.FinalStrategy != StrategyHybrid {
		t.Fatalf("expected agentic outcome with hybrid final strategy, got %+v", answer.Agentic)
	}
	if len(answer.Agentic.Steps) != 2 {
		t.Fatalf("expected two step records, got %+v", answer.Agentic.Steps)
	}
	if !strings.Contains(fx.generator.context, "hybrid chunk") {
		t.Fatalf("expected hybrid evidence in prompt, got %q", fx.generator.context)
	}
	if fx.publisher.traces[0].Mode != "agentic" || len(fx.publisher.traces[0].Steps) != 2 {
		t.Fatalf("unexpected trace %+v", fx.publisher.traces[0])
	}
}

func TestAskMultimodalFusesModalities(t *testing.T) {
	fx := newQueryFixture(map[string][]domain.Candidate{"figure": {cand("text evidence", nil)}})
	fx.searcher.filtered = map[string][]domain.Candidate{
		"figure|image": {{Content: "plot", Metadata: map[string]any{"path": "/img/plot.png", "page_number": "2"}}},
	}
	fx.analyzer.results = map[string]domain.ImageAnalysis{
		"/img/plot.png": {Caption: "A plot", Status: domain.AnalysisSuccess},
	}

	answer, err := fx.uc.AskMultimodal(context.Background(), "figure")
	if err != nil {
		t.Fatalf("AskMultimodal() error = %v", err)
	}
	if answer.Analysis.Overall != domain.ModalityImage {
		t.Fatalf("expected analysis to be attached, got %+v", answer.Analysis)
	}
	if !strings.Contains(fx.generator.context, "  Caption: A plot") {
		t.Fatalf("expected vision caption in context, got %q", fx.generator.context)
	}
	if trace := fx.publisher.traces[0]; trace.Mode != "multimodal" || len(trace.Results) != 2 {
		t.Fatalf("unexpected trace %+v", trace)
	}
}

func TestAnalyzeQueryReturnsStrategy(t *testing.T) {
	fx := newQueryFixture(nil)

	analysis, strategy, err := fx.uc.AnalyzeQuery("figure")
	if err != nil {
		t.Fatalf("AnalyzeQuery() error = %v", err)
	}
	if analysis.Primary != domain.ModalityImage || !strategy.ImageEnabled || strategy.TableEnabled {
		t.Fatalf("unexpected analysis %+v strategy %+v", analysis, strategy)
	}
	if _, _, err := fx.uc.AnalyzeQuery(""); !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestRetrieveImagesAttachesAnalysis(t *testing.T) {
	fx := newQueryFixture(nil)
	fx.searcher.filtered = map[string][]domain.Candidate{
		"loss curve|image": {{Content: "curve", Metadata: map[string]any{"path": "/img/loss.png"}}},
	}
	fx.analyzer.results = map[string]domain.ImageAnalysis{"/img/loss.png": {Caption: "Loss", Status: domain.AnalysisSuccess}}

	images, err := fx.uc.RetrieveImages(context.Background(), "loss curve", 0)
	if err != nil {
		t.Fatalf("RetrieveImages() error = %v", err)
	}
	if len(images) != 1 || images[0].Analysis == nil || images[0].Analysis.Caption != "Loss" {
		t.Fatalf("unexpected images %+v", images)
	}
	if images[0].Filename != "loss.png" {
		t.Fatalf("unexpected filename %q", images[0].Filename)
	}
}

func TestRetrieveImagesCapsLookupSize(t *testing.T) {
	fx := newQueryFixture(nil)
	many := make([]domain.Candidate, 0, 200)
	for i := range 200 {
		path := fmt.Sprintf("/img/%d.png", i)
		many = append(many, domain.Candidate{Content: path, Metadata: map[string]any{"path": path}})
	}
	fx.searcher.filtered = map[string][]domain.Candidate{"q|image": many}

	images, err := fx.uc.RetrieveImages(context.Background(), "q", 200)
	if err != nil {
		t.Fatalf("RetrieveImages() error = %v", err)
	}
	if len(images) != MaxLookupK || len(fx.analyzer.paths) != MaxLookupK {
		t.Fatalf("expected %d images and vision calls, got %d/%d", MaxLookupK, len(images), len(fx.analyzer.paths))
	}
	if k := fx.searcher.calls[0].k; k != MaxLookupK {
		t.Fatalf("searcher k = %d, want %d", k, MaxLookupK)
	}

	fx.analyzer.paths = nil
	if _, err := fx.uc.RetrieveImages(context.Background(), "q", 0); err != nil {
		t.Fatalf("RetrieveImages() error = %v", err)
	}
	if k := fx.searcher.calls[1].k; k != 5 || len(fx.analyzer.paths) != 5 {
		t.Fatalf("default image lookup: k=%d vision calls=%d, want 5/5", k, len(fx.analyzer.paths))
	}
}

func TestBuildChunkContext(t *testing.T) {
	if got := BuildChunkContext(nil); got != "No relevant documents found." {
		t.Fatalf("unexpected empty context %q", got)
	}

	results := make([]domain.RankedResult, 0, 6)
	for i := 0; i < 6; i++ {
		results = append(results, domain.RankedResult{Candidate: cand(string(rune('a'+i)), nil)})
	}
	results[0].Metadata = map[string]any{"source": "doc.pdf", "page": 2.0}

	got := BuildChunkContext(results)
	blocks := strings.Split(got, "\n\n---\n\n")
	if len(blocks) != 5 {
		t.Fatalf("expected five blocks, got %d", len(blocks))
	}
	if blocks[0] != "[Source: doc.pdf, Page 2]\na" {
		t.Fatalf("unexpected first block %q", blocks[0])
	}
	if blocks[1] != "[Source: Unknown]\nb" {
		t.Fatalf("unexpected second block %q", blocks[1])
	}
}

func TestChunkSourcesDefaults(t *testing.T) {
	results := []domain.RankedResult{
		{Candidate: cand("a", map[string]any{"source": "x.pdf", "page_number": 1.0})},
		{Candidate: cand("b", nil)},
		{Candidate: cand("c", nil)},
		{Candidate: cand("d", nil)},
	}
	got := ChunkSources(results)
	if len(got) != 3 {
		t.Fatalf("expected three sources, got %d", len(got))
	}
	if got[0] != (domain.AnswerSource{Source: "x.pdf", Page: "1"}) {
		t.Fatalf("unexpected first source %+v", got[0])
	}
	if got[1] != (domain.AnswerSource{Source: "Unknown", Page: "N/A"}) {
		t.Fatalf("unexpected default source %+v", got[1])
	}
}

func TestGenerateFromChunksCitesTopThree(t *testing.T) {
	results := make([]domain.RankedResult, 0, 4)
	for i, src := range []string{"a.pdf", "b.pdf", "", "d.pdf"} {
		meta := map[string]any{"page_number": float64(i + 1)}
		if src != "" {
			meta["source"] = src
		}
		results = append(results, domain.RankedResult{Candidate: cand(fmt.Sprintf("chunk %d", i), meta)})
	}
	gen := &generatorFake{answer: "grounded"}

	got, err := GenerateFromChunks(context.Background(), gen, "q", results)
	if err != nil {
		t.Fatalf("GenerateFromChunks() error = %v", err)
	}
	want := domain.GeneratedAnswer{Answer: "grounded", Sources: []domain.AnswerSource{
		{Source: "a.pdf", Page: "1"}, {Source: "b.pdf", Page: "2"}, {Source: "Unknown", Page: "3"},
	}}
	if got.Answer != want.Answer || len(got.Sources) != 3 {
		t.Fatalf("GenerateFromChunks() = %+v, want %+v", got, want)
	}
	for i := range want.Sources {
		if got.Sources[i] != want.Sources[i] {
			t.Fatalf("source %d = %+v, want %+v", i, got.Sources[i], want.Sources[i])
		}
	}

	_, err = GenerateFromChunks(context.Background(), &generatorFake{err: errors.New("ollama down")}, "q", results)
	if !errors.Is(err, domain.ErrCollaboratorUnavailable) {
		t.Fatalf("expected ErrCollaboratorUnavailable, got %v", err)
	}
}
