package domain

import "strings"

type ModalityType string

const (
	ModalityText   ModalityType = "text"
	ModalityImage  ModalityType = "image"
	ModalityTable  ModalityType = "table"
	ModalityChart  ModalityType = "chart"
	ModalityFigure ModalityType = "figure"
	ModalityMixed  ModalityType = "mixed"
)

// Canonical returns the modality used for routing. Charts and figures are
// served by image retrieval.
func (m ModalityType) Canonical() ModalityType {
	switch m {
	case ModalityChart, ModalityFigure:
		return ModalityImage
	default:
		return m
	}
}

func (m ModalityType) Valid() bool {
	switch m {
	case ModalityText, ModalityImage, ModalityTable, ModalityChart, ModalityFigure, ModalityMixed:
		return true
	default:
		return false
	}
}

// Query keeps the user's original text next to the working text that
// retry attempts rewrite.
type Query struct {
	Original string
	Current  string
}

func NewQuery(text string) (Query, error) {
	if strings.TrimSpace(text) == "" {
		return Query{}, ErrEmptyQuery
	}
	return Query{Original: text, Current: text}, nil
}

type KeywordMatches struct {
	Image    []string `json:"image"`
	Table    []string `json:"table"`
	Text     []string `json:"text"`
	Combined []string `json:"combined"`
}

type QueryAnalysis struct {
	Query          string                   `json:"query"`
	Primary        ModalityType             `json:"primary_modality"`
	Secondary      []ModalityType           `json:"secondary_modalities"`
	Overall        ModalityType             `json:"overall_modality"`
	Confidence     float64                  `json:"confidence"`
	Scores         map[ModalityType]float64 `json:"modality_scores"`
	CombinedScore  float64                  `json:"combined_intent_score"`
	KeywordsFound  KeywordMatches           `json:"keywords_found"`
	Recommendation string                   `json:"recommendation"`
}

func (a QueryAnalysis) IsMixed() bool {
	return a.Overall == ModalityMixed
}

func (a QueryAnalysis) HasSecondary(m ModalityType) bool {
	for _, s := range a.Secondary {
		if s == m {
			return true
		}
	}
	return false
}

type RetrievalStrategy struct {
	Modalities       []ModalityType `json:"modalities_to_search"`
	IncludeSecondary bool           `json:"include_secondary"`
	SemanticWeight   float64        `json:"semantic_search_weight"`
	KeywordWeight    float64        `json:"keyword_search_weight"`
	ImageEnabled     bool           `json:"image_search_enabled"`
	TableEnabled     bool           `json:"table_search_enabled"`
	TextEnabled      bool           `json:"text_search_enabled"`
}

// QueryIntent is the coarse content-type routing used to filter searches.
type QueryIntent struct {
	Query     string       `json:"query"`
	QueryType string       `json:"query_type"`
	Filter    SearchFilter `json:"filters"`
}

const (
	ContentTypeText         = "text"
	ContentTypeTable        = "table"
	ContentTypeImage        = "image"
	ContentTypeImageCaption = "image_caption"
)

// Vocabulary holds the keyword sets used to score query modalities.
type Vocabulary struct {
	Image    []string `yaml:"image"`
	Table    []string `yaml:"table"`
	Text     []string `yaml:"text"`
	Combined []string `yaml:"combined"`
}

func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Image: []string{
			"image", "figure", "photo", "picture", "diagram", "illustration",
			"screenshot", "visual", "show", "see", "look", "display", "plot",
			"graph", "chart", "visualization", "depicted", "shown",
		},
		Table: []string{
			"table", "data", "values", "numbers", "column", "row",
			"spreadsheet", "matrix", "dataset", "statistics", "results",
			"comparison", "benchmark", "metric", "quantitative",
		},
		Text: []string{
			"explain", "what", "how", "why", "definition", "describe",
			"discuss", "state", "mention", "say", "write", "conclude",
			"abstract", "introduction", "section", "paragraph",
		},
		Combined: []string{
			"summarize", "overview", "comprehensive", "detailed", "all",
			"including", "together", "and", "both", "combine",
		},
	}
}
