package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/core/ports"
)

// TraceUseCase persists published retrieval traces and serves them back.
type TraceUseCase struct {
	store ports.TraceStore
}

func NewTraceUseCase(store ports.TraceStore) *TraceUseCase {
	return &TraceUseCase{store: store}
}

func (uc *TraceUseCase) RecordTrace(ctx context.Context, trace domain.RetrievalTrace) error {
	if strings.TrimSpace(trace.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record trace", fmt.Errorf("missing id"))
	}
	if trace.CreatedAt.IsZero() {
		trace.CreatedAt = time.Now().UTC()
	}
	if err := uc.store.SaveTrace(ctx, trace); err != nil {
		return fmt.Errorf("save trace %s: %w", trace.ID, err)
	}
	return nil
}

func (uc *TraceUseCase) GetTrace(ctx context.Context, id string) (*domain.RetrievalTrace, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get trace", fmt.Errorf("missing id"))
	}
	return uc.store.GetTrace(ctx, id)
}
