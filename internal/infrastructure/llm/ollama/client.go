package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/multimodal-rag/internal/infrastructure/httpjson"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/resilience"
)

type Models struct {
	Generation string
	Embedding  string
	Vision     string
}

type Client struct {
	http     *httpjson.Client
	models   Models
	executor *resilience.Executor
}

func New(baseURL string, models Models) *Client {
	return NewWithResilience(baseURL, models, nil)
}

func NewWithResilience(baseURL string, models Models, executor *resilience.Executor) *Client {
	return &Client{
		http:     httpjson.NewClient("ollama", baseURL, 120*time.Second),
		models:   models,
		executor: executor,
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	return httpjson.Call(ctx, c.executor, "ollama_"+operation, func(callCtx context.Context) error {
		return c.http.PostJSON(callCtx, path, payload, out, operation)
	})
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Stream bool     `json:"stream"`
	Images []string `json:"images,omitempty"`
}

func (c *Client) generate(ctx context.Context, req generateRequest, operation string) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", req, &response, operation); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Model() string {
	return e.client.models.Embedding
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.models.Embedding,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question, context string) (string, error) {
	return g.client.generate(ctx, generateRequest{
		Model:  g.client.models.Generation,
		Prompt: buildAnswerPrompt(question, context),
	}, "generate")
}
