package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/httpjson"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/resilience"
)

const contentPayloadKey = "text"

type Client struct {
	http       *httpjson.Client
	collection string
	executor   *resilience.Executor
}

func New(baseURL, collection string) *Client {
	return NewWithResilience(baseURL, collection, nil)
}

func NewWithResilience(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		http:       httpjson.NewClient("qdrant", baseURL, 60*time.Second),
		collection: collection,
		executor:   executor,
	}
}

type searchResponse struct {
	Result []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Search returns the nearest points as candidates. The collection uses cosine
// similarity, so distance is 1 - score.
func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.Candidate, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if !filter.IsZero() {
		reqBody["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key": "content_type",
					"match": map[string]any{
						"value": filter.ContentType,
					},
				},
			},
		}
	}

	var searchResp searchResponse
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	err := httpjson.Call(ctx, c.executor, "qdrant_search", func(callCtx context.Context) error {
		return c.http.Do(callCtx, http.MethodPost, path, reqBody, &searchResp, "search")
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, toCandidate(r.Score, r.Payload))
	}
	return out, nil
}

func toCandidate(score float64, payload map[string]any) domain.Candidate {
	metadata := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == contentPayloadKey {
			continue
		}
		metadata[k] = v
	}

	modality := domain.ModalityText
	if m := domain.ModalityType(getStringPayload(payload, "modality")); m.Valid() && m != domain.ModalityMixed {
		modality = m.Canonical()
	}
	switch getStringPayload(payload, "content_type") {
	case domain.ContentTypeImage, domain.ContentTypeImageCaption:
		modality = domain.ModalityImage
	case domain.ContentTypeTable:
		modality = domain.ModalityTable
	}

	c := domain.Candidate{
		Content:  getStringPayload(payload, contentPayloadKey),
		Modality: modality,
		Distance: 1 - score,
		Score:    score,
		Metadata: metadata,
	}
	// An image point may carry only its file reference.
	if c.Content == "" && c.IsImage() {
		ref := c.ImagePath()
		if ref == "" {
			ref = c.MetadataString("filename")
		}
		if ref != "" {
			c.Content = domain.ImageMarker + " " + ref
		}
	}
	return c
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
