package usecase

import (
	"strings"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
)

var expansionSuffixes = []string{" explanation", " details", " summary"}

// ExpandQuery returns the query and its fixed suffix variants with duplicates
// removed. Expanding an already expanded query grows it further, so callers
// expand each working query once.
func ExpandQuery(query string) []string {
	out := make([]string, 0, len(expansionSuffixes)+1)
	seen := make(map[string]struct{}, len(expansionSuffixes)+1)
	add := func(q string) {
		if _, ok := seen[q]; ok {
			return
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	add(query)
	for _, suffix := range expansionSuffixes {
		add(query + suffix)
	}
	return out
}

// RewriteQuery derives the working query for the attempt after attemptNumber.
// It always starts from the original text so rewrites never compound.
func RewriteQuery(original string, attemptNumber int) string {
	switch attemptNumber {
	case 1:
		return original + " detailed explanation"
	case 2:
		return original + " research paper"
	default:
		return original + " methodology results figures tables"
	}
}

var (
	tableIntentKeywords  = []string{"table", "results", "statistics", "compare"}
	figureIntentKeywords = []string{"figure", "diagram", "architecture", "visual"}
)

// AnalyzeIntent maps the query to a content type used as a search filter.
func AnalyzeIntent(query string) domain.QueryIntent {
	q := strings.ToLower(query)

	queryType := domain.ContentTypeText
	switch {
	case containsAny(q, tableIntentKeywords):
		queryType = domain.ContentTypeTable
	case containsAny(q, figureIntentKeywords):
		queryType = domain.ContentTypeImageCaption
	}

	return domain.QueryIntent{
		Query:     query,
		QueryType: queryType,
		Filter:    domain.SearchFilter{ContentType: queryType},
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
