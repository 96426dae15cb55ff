package usecase

import "github.com/kirillkom/multimodal-rag/internal/core/domain"

const (
	defaultCriticThreshold = 0.15
	criticWindow           = 5
)

// Critic judges a candidate set by cheap lexical overlap with the query.
type Critic struct {
	threshold float64
}

func NewCritic(threshold float64) *Critic {
	if threshold <= 0 {
		threshold = defaultCriticThreshold
	}
	return &Critic{threshold: threshold}
}

// Evaluate averages |q ∩ d| / (|q| + 1) over the first five candidates. The
// decision is good only when the average is strictly above the threshold.
func (c *Critic) Evaluate(query string, candidates []domain.Candidate) domain.CritiqueResult {
	if len(candidates) == 0 {
		return domain.CritiqueResult{Score: 0, Decision: domain.DecisionRetry}
	}

	window := candidates
	if len(window) > criticWindow {
		window = window[:criticWindow]
	}

	queryTokens := whitespaceTokenSet(query)
	var total float64
	for _, cand := range window {
		docTokens := whitespaceTokenSet(cand.Content)
		matches := 0
		for token := range queryTokens {
			if _, ok := docTokens[token]; ok {
				matches++
			}
		}
		total += float64(matches) / float64(len(queryTokens)+1)
	}
	score := total / float64(len(window))

	decision := domain.DecisionRetry
	if score > c.threshold {
		decision = domain.DecisionGood
	}
	return domain.CritiqueResult{Score: score, Decision: decision}
}
