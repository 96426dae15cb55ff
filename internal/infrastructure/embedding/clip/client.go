package clip

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/kirillkom/multimodal-rag/internal/core/ports"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/httpjson"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/resilience"
)

const maxImageBytes = 20 << 20

// Client embeds stored images with a CLIP-style sidecar whose vectors share
// the text embedding space.
type Client struct {
	http     *httpjson.Client
	storage  ports.ObjectStorage
	executor *resilience.Executor
}

func New(baseURL string, storage ports.ObjectStorage, executor *resilience.Executor) *Client {
	return &Client{
		http:     httpjson.NewClient("image-embedder", baseURL, 60*time.Second),
		storage:  storage,
		executor: executor,
	}
}

type embedImageRequest struct {
	Filename string `json:"filename"`
	Image    string `json:"image"`
}

type embedImageResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *Client) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	encoded, err := c.readImage(ctx, path)
	if err != nil {
		return nil, err
	}

	var resp embedImageResponse
	req := embedImageRequest{Filename: filepath.Base(path), Image: encoded}
	err = httpjson.Call(ctx, c.executor, "embed_image", func(callCtx context.Context) error {
		return c.http.PostJSON(callCtx, "/embed/image", req, &resp, "embed_image")
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("image embedder returned empty vector for %s", path)
	}
	return resp.Embedding, nil
}

func (c *Client) readImage(ctx context.Context, path string) (string, error) {
	rc, err := c.storage.Open(ctx, path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(raw) > maxImageBytes {
		return "", fmt.Errorf("image %s exceeds %d bytes", path, maxImageBytes)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
