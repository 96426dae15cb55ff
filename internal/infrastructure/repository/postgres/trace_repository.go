package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
)

const traceSchema = `
CREATE TABLE IF NOT EXISTS retrieval_traces (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	original_query TEXT NOT NULL,
	query_used TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	steps JSONB NOT NULL DEFAULT '[]'::jsonb,
	results JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_retrieval_traces_created_at ON retrieval_traces(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_retrieval_traces_mode ON retrieval_traces(mode);
`

type TraceRepository struct {
	db *sql.DB
}

func NewTraceRepository(db *sql.DB) *TraceRepository {
	return &TraceRepository{db: db}
}

func (r *TraceRepository) EnsureSchema(ctx context.Context) error {
	return ensureSchema(ctx, r.db, traceSchema)
}

// SaveTrace ignores redelivered events with a known id.
func (r *TraceRepository) SaveTrace(ctx context.Context, trace domain.RetrievalTrace) error {
	steps := trace.Steps
	if steps == nil {
		steps = []domain.StepRecord{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	results := trace.Results
	if results == nil {
		results = []domain.ResultTrace{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO retrieval_traces (
	id, mode, original_query, query_used, attempts, confidence, steps, results, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING
`,
		trace.ID, trace.Mode, trace.OriginalQuery, trace.QueryUsed, trace.Attempts,
		trace.Confidence, stepsJSON, resultsJSON, trace.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert retrieval trace: %w", err)
	}
	return nil
}

func (r *TraceRepository) GetTrace(ctx context.Context, id string) (*domain.RetrievalTrace, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, mode, original_query, query_used, attempts, confidence, steps, results, created_at
FROM retrieval_traces
WHERE id = $1
`, id)

	var trace domain.RetrievalTrace
	var stepsRaw, resultsRaw []byte
	err := row.Scan(
		&trace.ID, &trace.Mode, &trace.OriginalQuery, &trace.QueryUsed, &trace.Attempts,
		&trace.Confidence, &stepsRaw, &resultsRaw, &trace.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTraceNotFound, "get trace", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan retrieval trace: %w", err)
	}

	if err := json.Unmarshal(stepsRaw, &trace.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal(resultsRaw, &trace.Results); err != nil {
		return nil, fmt.Errorf("unmarshal results: %w", err)
	}
	return &trace, nil
}
