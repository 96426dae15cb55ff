package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type SearchFilter struct {
	ContentType string `json:"content_type,omitempty"`
}

func (f SearchFilter) IsZero() bool {
	return f.ContentType == ""
}

// Candidate is one retrieved unit. Content equality is the dedup key.
type Candidate struct {
	Content  string         `json:"content"`
	Modality ModalityType   `json:"modality"`
	Distance float64        `json:"distance"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

func (c Candidate) MetadataString(key string) string {
	v, ok := c.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Page returns the page reference stored under page_number or page.
func (c Candidate) Page() string {
	if p := c.MetadataString("page_number"); p != "" {
		return p
	}
	return c.MetadataString("page")
}

const ImageMarker = "[IMAGE]"

// ImagePath returns the stored image reference under path or image_path.
func (c Candidate) ImagePath() string {
	if p := c.MetadataString("path"); p != "" {
		return p
	}
	return c.MetadataString("image_path")
}

// DedupKey identifies a candidate across merged result lists. Content is the
// key; an image without text content is identified by its image reference.
func (c Candidate) DedupKey() string {
	if c.Content != "" {
		return c.Content
	}
	if p := c.ImagePath(); p != "" {
		return ImageMarker + " " + p
	}
	return ""
}

// IsImage reports whether metadata or an inline marker tags the candidate as an image.
func (c Candidate) IsImage() bool {
	if c.Modality.Canonical() == ModalityImage {
		return true
	}
	switch c.MetadataString("content_type") {
	case ContentTypeImage, ContentTypeImageCaption:
		return true
	}
	if c.MetadataString("type") == ContentTypeImage {
		return true
	}
	return strings.Contains(c.Content, ImageMarker)
}

func (c Candidate) IsTable() bool {
	if c.Modality == ModalityTable {
		return true
	}
	return c.MetadataString("content_type") == ContentTypeTable || c.MetadataString("type") == ContentTypeTable
}

type ResultTrace struct {
	QueryType string         `json:"query_type"`
	Strategy  string         `json:"strategy"`
	Metadata  map[string]any `json:"metadata"`
}

type RankedResult struct {
	Candidate
	Trace ResultTrace `json:"trace"`
}

type StepRecord struct {
	Step     int    `json:"step"`
	Strategy string `json:"strategy"`
}

// RetrievalMemory is an append-only step log scoped to one question.
type RetrievalMemory struct {
	steps []StepRecord
}

func (m *RetrievalMemory) Add(step int, strategy string) {
	m.steps = append(m.steps, StepRecord{Step: step, Strategy: strategy})
}

func (m *RetrievalMemory) Last() (StepRecord, bool) {
	if len(m.steps) == 0 {
		return StepRecord{}, false
	}
	return m.steps[len(m.steps)-1], true
}

func (m *RetrievalMemory) Steps() []StepRecord {
	out := make([]StepRecord, len(m.steps))
	copy(out, m.steps)
	return out
}

type Decision string

const (
	DecisionGood  Decision = "good"
	DecisionRetry Decision = "retry"
)

type CritiqueResult struct {
	Score    float64  `json:"score"`
	Decision Decision `json:"decision"`
}

func (c CritiqueResult) Accepted() bool {
	return c.Decision == DecisionGood
}

type RetrievalOutcome struct {
	Candidates    []Candidate    `json:"candidates"`
	Results       []RankedResult `json:"results"`
	QueryUsed     string         `json:"query_used"`
	OriginalQuery string         `json:"original_query"`
	Attempts      int            `json:"attempts"`
	Confidence    float64        `json:"confidence"`
	Critique      CritiqueResult `json:"critique"`
}

func (o RetrievalOutcome) Accepted() bool {
	return o.Critique.Accepted()
}

type AgenticOutcome struct {
	Query         string         `json:"query"`
	FinalStrategy string         `json:"final_strategy"`
	Results       []RankedResult `json:"results"`
	Steps         []StepRecord   `json:"steps"`
}

// RetrievalTrace is the event published after a question has been answered.
type RetrievalTrace struct {
	ID            string        `json:"id"`
	Mode          string        `json:"mode"`
	OriginalQuery string        `json:"original_query"`
	QueryUsed     string        `json:"query_used"`
	Attempts      int           `json:"attempts"`
	Confidence    float64       `json:"confidence"`
	Steps         []StepRecord  `json:"steps"`
	Results       []ResultTrace `json:"results"`
	CreatedAt     time.Time     `json:"created_at"`
}
