package usecase

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/core/ports"
)

// MaxLookupK bounds single-modality lookups. Every image returned by a
// lookup costs three vision calls.
const MaxLookupK = 20

type MultimodalRetrieverOptions struct {
	TextTopK  int
	ImageTopK int
	TableTopK int

	// ImageLookupTopK is the default for RetrieveImages when k is unset.
	ImageLookupTopK int
}

// MultimodalRetriever searches the modalities a query analysis asks for.
type MultimodalRetriever struct {
	classifier *QueryClassifier
	searcher   ports.VectorSearcher
	opts       MultimodalRetrieverOptions
}

type MultimodalRetrieval struct {
	Analysis domain.QueryAnalysis
	Texts    []domain.Candidate
	Images   []domain.Candidate
	Tables   []domain.Candidate
}

func NewMultimodalRetriever(classifier *QueryClassifier, searcher ports.VectorSearcher, opts MultimodalRetrieverOptions) *MultimodalRetriever {
	if opts.TextTopK <= 0 {
		opts.TextTopK = 5
	}
	if opts.ImageTopK <= 0 {
		opts.ImageTopK = 3
	}
	if opts.TableTopK <= 0 {
		opts.TableTopK = 3
	}
	if opts.ImageLookupTopK <= 0 {
		opts.ImageLookupTopK = 5
	}
	return &MultimodalRetriever{
		classifier: classifier,
		searcher:   searcher,
		opts:       opts,
	}
}

// Retrieve runs the selected modality searches concurrently. A failing
// modality contributes nothing; the others are kept.
func (r *MultimodalRetriever) Retrieve(ctx context.Context, query string) (*MultimodalRetrieval, error) {
	if _, err := domain.NewQuery(query); err != nil {
		return nil, err
	}

	out := &MultimodalRetrieval{Analysis: r.classifier.Classify(query)}

	g, gctx := errgroup.WithContext(ctx)
	if ShouldRetrieveModality(domain.ModalityText, out.Analysis) {
		g.Go(func() error {
			out.Texts = r.searchModality(gctx, query, domain.ModalityText, r.opts.TextTopK)
			return nil
		})
	}
	if ShouldRetrieveModality(domain.ModalityImage, out.Analysis) {
		g.Go(func() error {
			out.Images = r.searchModality(gctx, query, domain.ModalityImage, r.opts.ImageTopK)
			return nil
		})
	}
	if ShouldRetrieveModality(domain.ModalityTable, out.Analysis) {
		g.Go(func() error {
			out.Tables = r.searchModality(gctx, query, domain.ModalityTable, r.opts.TableTopK)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MultimodalRetriever) RetrieveImages(ctx context.Context, query string, k int) ([]domain.Candidate, error) {
	return r.retrieveSingle(ctx, query, domain.ModalityImage, k, r.opts.ImageLookupTopK)
}

func (r *MultimodalRetriever) RetrieveTables(ctx context.Context, query string, k int) ([]domain.Candidate, error) {
	return r.retrieveSingle(ctx, query, domain.ModalityTable, k, r.opts.TableTopK)
}

func (r *MultimodalRetriever) retrieveSingle(ctx context.Context, query string, modality domain.ModalityType, k, fallbackK int) ([]domain.Candidate, error) {
	if _, err := domain.NewQuery(query); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = fallbackK
	}
	k = min(k, MaxLookupK)
	results, err := r.search(ctx, query, modality, k)
	if err != nil {
		return nil, domain.Unavailable("search "+string(modality), err)
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (r *MultimodalRetriever) searchModality(ctx context.Context, query string, modality domain.ModalityType, k int) []domain.Candidate {
	results, err := r.search(ctx, query, modality, k)
	if err != nil {
		slog.Warn("modality_search_failed", "modality", string(modality), "error", err)
		return nil
	}
	return results
}

func (r *MultimodalRetriever) search(ctx context.Context, query string, modality domain.ModalityType, k int) ([]domain.Candidate, error) {
	filter := domain.SearchFilter{}
	switch modality {
	case domain.ModalityImage:
		filter.ContentType = domain.ContentTypeImage
	case domain.ModalityTable:
		filter.ContentType = domain.ContentTypeTable
	}

	results, err := r.searcher.Search(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}
	if modality != domain.ModalityText {
		for i := range results {
			results[i].Modality = modality
		}
	}
	return results, nil
}
