package usecase

import (
	"sort"
	"strings"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
)

type keywordSet map[string]struct{}

func newKeywordSet(words []string) keywordSet {
	out := make(keywordSet, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// score is |tokens ∩ set| / |set|, normalized by vocabulary size.
func (k keywordSet) score(tokens map[string]struct{}) (float64, []string) {
	if len(k) == 0 {
		return 0, []string{}
	}
	found := make([]string, 0, 4)
	for token := range tokens {
		if _, ok := k[token]; ok {
			found = append(found, token)
		}
	}
	sort.Strings(found)
	return float64(len(found)) / float64(len(k)), found
}

// QueryClassifier scores a query against the modality vocabularies.
type QueryClassifier struct {
	image    keywordSet
	table    keywordSet
	text     keywordSet
	combined keywordSet
}

func NewQueryClassifier(vocab domain.Vocabulary) *QueryClassifier {
	return &QueryClassifier{
		image:    newKeywordSet(vocab.Image),
		table:    newKeywordSet(vocab.Table),
		text:     newKeywordSet(vocab.Text),
		combined: newKeywordSet(vocab.Combined),
	}
}

type modalityScore struct {
	modality domain.ModalityType
	score    float64
}

func (c *QueryClassifier) Classify(query string) domain.QueryAnalysis {
	tokens := whitespaceTokenSet(query)

	imageScore, imageFound := c.image.score(tokens)
	tableScore, tableFound := c.table.score(tokens)
	textScore, textFound := c.text.score(tokens)
	combinedScore, combinedFound := c.combined.score(tokens)

	// Canonical order breaks ties: image, table, text.
	ranked := []modalityScore{
		{domain.ModalityImage, imageScore},
		{domain.ModalityTable, tableScore},
		{domain.ModalityText, textScore},
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	primary := ranked[0]
	overall := primary.modality
	threshold := 0.3
	if combinedScore > 0 || primary.score < 0.5 {
		overall = domain.ModalityMixed
		threshold = 0
	}

	secondary := make([]domain.ModalityType, 0, 2)
	for _, ms := range ranked[1:] {
		if ms.score > threshold {
			secondary = append(secondary, ms.modality)
		}
	}

	confidence := primary.score
	if combinedScore > confidence {
		confidence = combinedScore
	}

	return domain.QueryAnalysis{
		Query:     query,
		Primary:   primary.modality,
		Secondary: secondary,
		Overall:   overall,
		Scores: map[domain.ModalityType]float64{
			domain.ModalityImage: imageScore,
			domain.ModalityTable: tableScore,
			domain.ModalityText:  textScore,
		},
		CombinedScore: combinedScore,
		Confidence:    confidence,
		KeywordsFound: domain.KeywordMatches{
			Image:    imageFound,
			Table:    tableFound,
			Text:     textFound,
			Combined: combinedFound,
		},
		Recommendation: recommendation(primary.modality, combinedScore),
	}
}

func recommendation(primary domain.ModalityType, combinedScore float64) string {
	switch {
	case combinedScore > 0.3:
		return "Retrieve mixed modalities"
	case primary == domain.ModalityImage:
		return "Search image collection for visual content"
	case primary == domain.ModalityTable:
		return "Search structured data and tables"
	case primary == domain.ModalityText:
		return "Search text chunks with semantic search"
	default:
		return "Retrieve best matching content"
	}
}

// ShouldRetrieveModality reports whether m must be searched for the analysed
// query. Text is always searched. A mixed query also searches its primary
// modality when that modality matched at least one keyword.
func ShouldRetrieveModality(m domain.ModalityType, analysis domain.QueryAnalysis) bool {
	m = m.Canonical()
	switch {
	case m == domain.ModalityText:
		return true
	case m == analysis.Overall:
		return true
	case analysis.HasSecondary(m):
		return true
	case analysis.IsMixed() && m == analysis.Primary && analysis.Scores[m] > 0:
		return true
	default:
		return false
	}
}

func BuildRetrievalStrategy(analysis domain.QueryAnalysis) domain.RetrievalStrategy {
	strategy := domain.RetrievalStrategy{
		Modalities:     []domain.ModalityType{analysis.Overall},
		SemanticWeight: 0.7,
		KeywordWeight:  0.3,
		TextEnabled:    true,
	}
	if len(analysis.Secondary) > 0 {
		strategy.IncludeSecondary = true
		strategy.Modalities = append(strategy.Modalities, analysis.Secondary...)
	}
	if analysis.Confidence < 0.4 {
		strategy.SemanticWeight = 0.5
		strategy.KeywordWeight = 0.5
	}
	strategy.ImageEnabled = ShouldRetrieveModality(domain.ModalityImage, analysis)
	strategy.TableEnabled = ShouldRetrieveModality(domain.ModalityTable, analysis)
	return strategy
}

func whitespaceTokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}
