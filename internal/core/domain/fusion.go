package domain

type AnalysisStatus string

const (
	AnalysisSuccess AnalysisStatus = "success"
	AnalysisError   AnalysisStatus = "error"
)

type ImageAnalysis struct {
	Caption     string         `json:"caption"`
	Description string         `json:"description"`
	KeyElements string         `json:"key_elements"`
	Status      AnalysisStatus `json:"status"`
}

type AnalyzedImage struct {
	Candidate
	Filename string         `json:"filename"`
	Path     string         `json:"path"`
	Page     string         `json:"page"`
	Analysis *ImageAnalysis `json:"analysis,omitempty"`
}

// GenerationContext is the assembled prompt context plus the candidates it was built from.
type GenerationContext struct {
	Query   string          `json:"query"`
	Context string          `json:"context"`
	Texts   []Candidate     `json:"text_results"`
	Images  []AnalyzedImage `json:"image_results"`
	Tables  []Candidate     `json:"table_results"`
}

type AnswerSource struct {
	Source string `json:"source"`
	Page   string `json:"page"`
}

type GeneratedAnswer struct {
	Answer  string         `json:"answer"`
	Sources []AnswerSource `json:"sources"`
}

type MultimodalSource struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	Filename string `json:"filename,omitempty"`
	Page     string `json:"page,omitempty"`
}

type MultimodalAnswer struct {
	Query    string             `json:"query"`
	Answer   string             `json:"answer"`
	Sources  []MultimodalSource `json:"sources"`
	Analysis QueryAnalysis      `json:"analysis"`
	Context  GenerationContext  `json:"context"`
}

type Answer struct {
	Text    string           `json:"response"`
	Chunks  []RankedResult   `json:"source_chunks"`
	Sources []AnswerSource   `json:"sources"`
	Outcome RetrievalOutcome `json:"-"`
	Agentic *AgenticOutcome  `json:"-"`
}
