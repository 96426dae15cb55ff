package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
)

type toolRecorder struct {
	calls []string
	fail  map[string]error
}

func (r *toolRecorder) tools() map[string]RetrievalTool {
	out := make(map[string]RetrievalTool)
	for _, name := range []string{StrategyTable, StrategyFigure, StrategySemantic, StrategyHybrid} {
		out[name] = func(_ context.Context, query string) ([]domain.RankedResult, error) {
			r.calls = append(r.calls, name)
			if err := r.fail[name]; err != nil {
				return nil, err
			}
			return []domain.RankedResult{{Candidate: cand(name+" result", nil)}}, nil
		}
	}
	return out
}

func TestPlanStrategyRuleOrder(t *testing.T) {
	cases := map[string]string{
		"Show the results table":       StrategyTable,
		"compare the two figures":      StrategyTable,
		"draw the architecture diagram": StrategyFigure,
		"Figure 3 shows":               StrategyFigure,
		"explain the method":           StrategySemantic,
		"methodology overview":         StrategySemantic,
		"what is attention":            StrategyHybrid,
	}
	for query, want := range cases {
		if got := PlanStrategy(query); got != want {
			t.Fatalf("PlanStrategy(%q) = %s, want %s", query, got, want)
		}
	}
}

func TestAgenticReflectsToHybridUnderSameStep(t *testing.T) {
	rec := &toolRecorder{}
	r := NewAgenticRetrieverWithTools(rec.tools(), 2)

	outcome, err := r.Retrieve(context.Background(), "Show the results table")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	wantSteps := []domain.StepRecord{{Step: 1, Strategy: StrategyTable}, {Step: 1, Strategy: StrategyHybrid}}
	if !reflect.DeepEqual(outcome.Steps, wantSteps) {
		t.Fatalf("steps = %+v, want %+v", outcome.Steps, wantSteps)
	}
	if outcome.FinalStrategy != StrategyHybrid {
		t.Fatalf("final strategy = %s, want hybrid", outcome.FinalStrategy)
	}
	if got := joined(resultContents(outcome.Results)); got != "hybrid result" {
		t.Fatalf("expected hybrid results to win, got %s", got)
	}
	if got := joined(rec.calls); got != "table|hybrid" {
		t.Fatalf("unexpected tool calls %s", got)
	}
}

func TestAgenticHybridPlanUsesEveryStep(t *testing.T) {
	rec := &toolRecorder{}
	outcome, err := NewAgenticRetrieverWithTools(rec.tools(), 2).Retrieve(context.Background(), "what is attention")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	wantSteps := []domain.StepRecord{{Step: 1, Strategy: StrategyHybrid}, {Step: 2, Strategy: StrategyHybrid}}
	if !reflect.DeepEqual(outcome.Steps, wantSteps) {
		t.Fatalf("steps = %+v, want %+v", outcome.Steps, wantSteps)
	}

	rec = &toolRecorder{}
	outcome, err = NewAgenticRetrieverWithTools(rec.tools(), 1).Retrieve(context.Background(), "what is attention")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(outcome.Steps) != 1 || len(rec.calls) != 1 {
		t.Fatalf("expected a single step, got %+v", outcome.Steps)
	}
}

func TestAgenticToolFailureDegradesToEmptyStep(t *testing.T) {
	rec := &toolRecorder{fail: map[string]error{StrategyFigure: errors.New("tool down")}}
	outcome, err := NewAgenticRetrieverWithTools(rec.tools(), 2).Retrieve(context.Background(), "the diagram")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if outcome.FinalStrategy != StrategyHybrid || len(outcome.Results) != 1 {
		t.Fatalf("expected hybrid reflection results, got %+v", outcome)
	}
}

func TestAgenticRejectsEmptyQuery(t *testing.T) {
	rec := &toolRecorder{}
	_, err := NewAgenticRetrieverWithTools(rec.tools(), 2).Retrieve(context.Background(), " ")
	if !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("expected no tool calls")
	}
}

func TestNewAgenticRetrieverSuffixesSpecialisedTools(t *testing.T) {
	searcher := &searcherFake{results: map[string][]domain.Candidate{
		"the diagram figure": {cand("diagram doc", nil)},
	}}
	advanced := NewAdvancedRetriever(NewHybridRetriever(searcher, 8), &identityReranker{}, AdvancedRetrieverOptions{})

	if _, err := NewAgenticRetriever(advanced, 1).Retrieve(context.Background(), "the diagram"); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if searcher.calls[0].query != "the diagram figure" {
		t.Fatalf("expected figure tool to suffix the query, got %q", searcher.calls[0].query)
	}
}
