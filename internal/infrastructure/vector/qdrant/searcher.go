package qdrant

import (
	"context"
	"fmt"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/core/ports"
)

// TextSearcher embeds the query text and runs a vector search.
type TextSearcher struct {
	client   *Client
	embedder ports.Embedder
}

func NewTextSearcher(client *Client, embedder ports.Embedder) *TextSearcher {
	return &TextSearcher{client: client, embedder: embedder}
}

func (s *TextSearcher) Search(ctx context.Context, queryText string, k int, filter domain.SearchFilter) ([]domain.Candidate, error) {
	if k <= 0 {
		return []domain.Candidate{}, nil
	}
	vector, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.client.Search(ctx, vector, k, filter)
}
