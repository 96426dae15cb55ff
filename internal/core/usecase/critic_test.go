package usecase

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
)

func TestCriticEmptyCandidatesRetry(t *testing.T) {
	got := NewCritic(0).Evaluate("anything", nil)
	if got.Score != 0 || got.Decision != domain.DecisionRetry {
		t.Fatalf("Evaluate() = %+v, want score 0 and retry", got)
	}
}

func TestCriticSingleWordMatch(t *testing.T) {
	got := NewCritic(0).Evaluate("cat", []domain.Candidate{cand("a cat sat", nil)})
	if got.Score != 0.5 {
		t.Fatalf("score = %v, want 0.5", got.Score)
	}
	if got.Decision != domain.DecisionGood {
		t.Fatalf("decision = %s, want good", got.Decision)
	}
}

func TestCriticBoundaryIsStrict(t *testing.T) {
	// 19 distinct query tokens, 3 shared: 3 / (19 + 1) == 0.15 exactly.
	words := make([]string, 19)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	query := strings.Join(words, " ")

	got := NewCritic(0).Evaluate(query, []domain.Candidate{cand("w0 w1 w2 other", nil)})
	if got.Score != 0.15 {
		t.Fatalf("score = %v, want 0.15", got.Score)
	}
	if got.Decision != domain.DecisionRetry {
		t.Fatalf("decision at boundary = %s, want retry", got.Decision)
	}
}

func TestCriticOnlyLooksAtFirstFive(t *testing.T) {
	candidates := []domain.Candidate{
		cand("none", nil), cand("none", nil), cand("none", nil), cand("none", nil), cand("none", nil),
		cand("cat", nil),
	}
	got := NewCritic(0).Evaluate("cat", candidates)
	if got.Score != 0 {
		t.Fatalf("expected sixth candidate to be ignored, got score %v", got.Score)
	}
}
