package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/core/ports"
)

const (
	textContextHeader  = "TEXT CONTEXT:"
	imageContextHeader = "\nIMAGE CONTEXT:"
	tableContextHeader = "\nTABLE CONTEXT:"
)

type FusionOptions struct {
	MaxTexts      int
	MaxImages     int
	MaxTables     int
	TableMaxChars int
}

// MultimodalFusion partitions candidates by modality, attaches vision
// analysis to images and builds the generation context.
type MultimodalFusion struct {
	analyzer  ports.ImageAnalyzer
	generator ports.AnswerGenerator
	opts      FusionOptions
}

func NewMultimodalFusion(analyzer ports.ImageAnalyzer, generator ports.AnswerGenerator, opts FusionOptions) *MultimodalFusion {
	if opts.MaxTexts <= 0 {
		opts.MaxTexts = 3
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = 2
	}
	if opts.MaxTables <= 0 {
		opts.MaxTables = 2
	}
	if opts.TableMaxChars <= 0 {
		opts.TableMaxChars = 500
	}
	return &MultimodalFusion{
		analyzer:  analyzer,
		generator: generator,
		opts:      opts,
	}
}

// Fuse builds the context in text, image, table order. Vision failures keep
// the image with its filename and page only.
func (f *MultimodalFusion) Fuse(ctx context.Context, query string, texts, images, tables []domain.Candidate) domain.GenerationContext {
	textPart, imagePart, tablePart := partitionByModality(texts, images, tables)

	if len(imagePart) > f.opts.MaxImages {
		imagePart = imagePart[:f.opts.MaxImages]
	}
	analyzed := make([]domain.AnalyzedImage, 0, len(imagePart))
	for _, c := range imagePart {
		analyzed = append(analyzed, f.analyze(ctx, c))
	}

	lines := make([]string, 0, 16)
	if len(textPart) > 0 {
		lines = append(lines, textContextHeader)
		for _, c := range head(textPart, f.opts.MaxTexts) {
			lines = append(lines, c.Content)
		}
	}
	if len(analyzed) > 0 {
		lines = append(lines, imageContextHeader)
		for _, img := range analyzed {
			lines = append(lines, fmt.Sprintf("Figure (Page %s):", img.Page))
			if img.Analysis == nil {
				lines = append(lines, "  File: "+img.Filename)
				continue
			}
			lines = append(lines,
				"  Caption: "+img.Analysis.Caption,
				"  Description: "+img.Analysis.Description,
				"  Key elements: "+img.Analysis.KeyElements,
			)
		}
	}
	if len(tablePart) > 0 {
		lines = append(lines, tableContextHeader)
		for _, c := range head(tablePart, f.opts.MaxTables) {
			lines = append(lines, fmt.Sprintf("Table (Page %s):", pageOrUnknown(c)))
			lines = append(lines, truncateRunes(c.Content, f.opts.TableMaxChars))
		}
	}

	return domain.GenerationContext{
		Query:   query,
		Context: strings.Join(lines, "\n"),
		Texts:   textPart,
		Images:  analyzed,
		Tables:  tablePart,
	}
}

// Answer fuses the candidates and generates the final answer. Generation
// failure is terminal.
func (f *MultimodalFusion) Answer(ctx context.Context, query string, texts, images, tables []domain.Candidate) (*domain.MultimodalAnswer, error) {
	gctx := f.Fuse(ctx, query, texts, images, tables)

	answer, err := f.generator.GenerateAnswer(ctx, query, gctx.Context)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", domain.Unavailable("generator", err))
	}

	return &domain.MultimodalAnswer{
		Query:   query,
		Answer:  answer,
		Sources: multimodalSources(gctx),
		Context: gctx,
	}, nil
}

func (f *MultimodalFusion) analyze(ctx context.Context, c domain.Candidate) domain.AnalyzedImage {
	path := c.ImagePath()
	img := domain.AnalyzedImage{
		Candidate: c,
		Path:      path,
		Filename:  imageFilename(c, path),
		Page:      pageOrUnknown(c),
	}
	if f.analyzer == nil || path == "" {
		return img
	}

	analysis, err := f.analyzer.AnalyzeImage(ctx, path)
	if err != nil || analysis.Status == domain.AnalysisError {
		slog.Warn("vision_analysis_failed", "path", path, "error", err)
		return img
	}
	img.Analysis = &analysis
	return img
}

func multimodalSources(gctx domain.GenerationContext) []domain.MultimodalSource {
	sources := make([]domain.MultimodalSource, 0, 5)
	for _, c := range head(gctx.Texts, 2) {
		sources = append(sources, domain.MultimodalSource{
			Type:    domain.ContentTypeText,
			Content: truncateRunes(c.Content, 200),
		})
	}
	for i, img := range gctx.Images {
		if i == 2 {
			break
		}
		sources = append(sources, domain.MultimodalSource{
			Type:     domain.ContentTypeImage,
			Filename: img.Filename,
			Page:     img.Page,
		})
	}
	for _, c := range head(gctx.Tables, 1) {
		sources = append(sources, domain.MultimodalSource{
			Type: domain.ContentTypeTable,
			Page: pageOrUnknown(c),
		})
	}
	return sources
}

// partitionByModality re-tags every candidate by its own markers and drops
// repeated candidates across the input lists.
func partitionByModality(lists ...[]domain.Candidate) (texts, images, tables []domain.Candidate) {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, c := range list {
			key := c.DedupKey()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			switch {
			case c.IsImage():
				c.Modality = domain.ModalityImage
				images = append(images, c)
			case c.IsTable():
				c.Modality = domain.ModalityTable
				tables = append(tables, c)
			default:
				c.Modality = domain.ModalityText
				texts = append(texts, c)
			}
		}
	}
	return texts, images, tables
}

func head(candidates []domain.Candidate, n int) []domain.Candidate {
	if len(candidates) > n {
		return candidates[:n]
	}
	return candidates
}

func pageOrUnknown(c domain.Candidate) string {
	if p := c.Page(); p != "" {
		return p
	}
	return "unknown"
}

func imageFilename(c domain.Candidate, path string) string {
	if name := c.MetadataString("filename"); name != "" {
		return name
	}
	if path != "" {
		return filepath.Base(path)
	}
	return "unknown"
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
