package crossencoder

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/multimodal-rag/internal/infrastructure/httpjson"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/resilience"
)

// Client scores (query, document) pairs with a cross-encoder served over HTTP.
type Client struct {
	http     *httpjson.Client
	executor *resilience.Executor
}

func New(baseURL string, executor *resilience.Executor) *Client {
	return &Client{
		http:     httpjson.NewClient("reranker", baseURL, 30*time.Second),
		executor: executor,
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

func (c *Client) ScorePairs(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}

	var resp rerankResponse
	err := httpjson.Call(ctx, c.executor, "rerank_score", func(callCtx context.Context) error {
		return c.http.PostJSON(callCtx, "/rerank", rerankRequest{Query: query, Documents: candidates}, &resp, "rerank")
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Scores) != len(candidates) {
		return nil, fmt.Errorf("reranker returned %d scores for %d documents", len(resp.Scores), len(candidates))
	}
	return resp.Scores, nil
}
