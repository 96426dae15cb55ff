package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/core/ports"
)

const maxImageBytes = 20 << 20

// VisionAnalyzer asks a multimodal model for a caption, a description and the
// key elements of one stored image.
type VisionAnalyzer struct {
	client  *Client
	storage ports.ObjectStorage
}

func NewVisionAnalyzer(client *Client, storage ports.ObjectStorage) *VisionAnalyzer {
	return &VisionAnalyzer{client: client, storage: storage}
}

// AnalyzeImage fails only when the image cannot be read or every prompt
// fails. A failed prompt leaves its field empty.
func (v *VisionAnalyzer) AnalyzeImage(ctx context.Context, path string) (domain.ImageAnalysis, error) {
	encoded, err := readBase64(ctx, v.storage, path)
	if err != nil {
		return domain.ImageAnalysis{Status: domain.AnalysisError}, err
	}

	var answers [len(visionPrompts)]string
	succeeded := 0
	var lastErr error
	for i, prompt := range visionPrompts {
		text, err := v.client.generate(ctx, generateRequest{
			Model:  v.client.models.Vision,
			Prompt: prompt,
			Images: []string{encoded},
		}, "vision")
		if err != nil {
			if ctx.Err() != nil {
				return domain.ImageAnalysis{Status: domain.AnalysisError}, ctx.Err()
			}
			slog.Warn("vision_prompt_failed", "path", path, "prompt_index", i, "error", err)
			lastErr = err
			continue
		}
		answers[i] = text
		succeeded++
	}
	if succeeded == 0 {
		return domain.ImageAnalysis{Status: domain.AnalysisError}, fmt.Errorf("analyze image %s: %w", path, lastErr)
	}

	return domain.ImageAnalysis{
		Caption:     answers[0],
		Description: answers[1],
		KeyElements: answers[2],
		Status:      domain.AnalysisSuccess,
	}, nil
}

func readBase64(ctx context.Context, storage ports.ObjectStorage, path string) (string, error) {
	rc, err := storage.Open(ctx, path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(raw) > maxImageBytes {
		return "", fmt.Errorf("image %s exceeds %d bytes: %w", path, maxImageBytes, domain.ErrInvalidInput)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
