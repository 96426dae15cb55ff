package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
)

const (
	StrategyTable    = "table"
	StrategyFigure   = "figure"
	StrategySemantic = "semantic"
	StrategyHybrid   = "hybrid"
)

// PlanStrategy picks a retrieval tool by ordered substring rules. The first
// matching rule wins.
func PlanStrategy(query string) string {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, []string{"table", "compare", "results"}):
		return StrategyTable
	case containsAny(q, []string{"figure", "diagram"}):
		return StrategyFigure
	case containsAny(q, []string{"explain", "method"}):
		return StrategySemantic
	default:
		return StrategyHybrid
	}
}

// RetrievalTool executes one planned strategy.
type RetrievalTool func(ctx context.Context, query string) ([]domain.RankedResult, error)

// AgenticRetriever plans a tool per step and broadens to hybrid once after
// any specialised tool.
type AgenticRetriever struct {
	tools    map[string]RetrievalTool
	maxSteps int
}

func NewAgenticRetriever(advanced *AdvancedRetriever, maxSteps int) *AgenticRetriever {
	return NewAgenticRetrieverWithTools(map[string]RetrievalTool{
		StrategySemantic: advanced.Retrieve,
		StrategyHybrid:   advanced.Retrieve,
		StrategyTable: func(ctx context.Context, query string) ([]domain.RankedResult, error) {
			return advanced.Retrieve(ctx, query+" table")
		},
		StrategyFigure: func(ctx context.Context, query string) ([]domain.RankedResult, error) {
			return advanced.Retrieve(ctx, query+" figure")
		},
	}, maxSteps)
}

func NewAgenticRetrieverWithTools(tools map[string]RetrievalTool, maxSteps int) *AgenticRetriever {
	if maxSteps <= 0 {
		maxSteps = 2
	}
	return &AgenticRetriever{
		tools:    tools,
		maxSteps: maxSteps,
	}
}

// Retrieve returns the last tool's results. The reflection step is recorded
// under the same step index as the step it broadens.
func (r *AgenticRetriever) Retrieve(ctx context.Context, question string) (*domain.AgenticOutcome, error) {
	if _, err := domain.NewQuery(question); err != nil {
		return nil, err
	}

	memory := &domain.RetrievalMemory{}
	var final []domain.RankedResult

	for step := 1; step <= r.maxSteps; step++ {
		strategy := PlanStrategy(question)
		results, err := r.dispatch(ctx, strategy, question)
		if err != nil {
			return nil, err
		}
		final = results
		memory.Add(step, strategy)

		if strategy == StrategyHybrid {
			continue
		}

		slog.Info("agent_reflection", "step", step, "from", strategy, "to", StrategyHybrid)
		results, err = r.dispatch(ctx, StrategyHybrid, question)
		if err != nil {
			return nil, err
		}
		final = results
		memory.Add(step, StrategyHybrid)
		break
	}

	last, _ := memory.Last()
	slog.Info("agent_finished", "steps", len(memory.Steps()), "final_step", last.Step, "final_strategy", last.Strategy, "results", len(final))
	return &domain.AgenticOutcome{
		Query:         question,
		FinalStrategy: last.Strategy,
		Results:       final,
		Steps:         memory.Steps(),
	}, nil
}

// dispatch treats a failing tool as a step without results.
func (r *AgenticRetriever) dispatch(ctx context.Context, strategy, query string) ([]domain.RankedResult, error) {
	tool, ok := r.tools[strategy]
	if !ok {
		slog.Warn("agent_tool_missing", "strategy", strategy)
		return nil, nil
	}
	results, err := tool(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("agent_tool_failed", "strategy", strategy, "error", err)
		return nil, nil
	}
	return results, nil
}
