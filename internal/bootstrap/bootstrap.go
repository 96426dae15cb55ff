package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/multimodal-rag/internal/config"
	"github.com/kirillkom/multimodal-rag/internal/core/ports"
	"github.com/kirillkom/multimodal-rag/internal/core/usecase"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/cache/rediscache"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/embedding/clip"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/rerank/crossencoder"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/multimodal-rag/internal/observability/metrics"
)

// App is the wired API process.
type App struct {
	Config config.Config

	QueryUC  *usecase.QueryUseCase
	TraceUC  *usecase.TraceUseCase
	Metrics  *metrics.HTTPServerMetrics
	Executor *resilience.Executor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*App, error) {
		closeAll()
		return nil, err
	}

	httpMetrics := metrics.NewHTTPServerMetrics("rag-api")
	executor := resilience.NewObservedExecutor(resilienceConfig(cfg), httpMetrics)

	vocab, err := config.LoadVocabulary(cfg.RAGVocabularyFile)
	if err != nil {
		return fail(fmt.Errorf("load vocabulary: %w", err))
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return fail(fmt.Errorf("init object storage: %w", err))
	}

	ollamaClient := ollama.NewWithResilience(cfg.OllamaURL, ollama.Models{
		Generation: cfg.OllamaGenModel,
		Embedding:  cfg.OllamaEmbedModel,
		Vision:     cfg.OllamaVisionModel,
	}, executor)
	ollamaEmbedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	vision := ollama.NewVisionAnalyzer(ollamaClient, storage)

	var embedder ports.Embedder = ollamaEmbedder
	if cfg.RedisAddr != "" {
		redisClient, err := rediscache.NewClient(ctx, rediscache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return fail(fmt.Errorf("init embedding cache: %w", err))
		}
		closers = append(closers, closeRedis(redisClient))
		embedder = rediscache.NewCachedEmbedder(
			ollamaEmbedder,
			redisClient,
			ollamaEmbedder.Model(),
			time.Duration(cfg.EmbedCacheTTL)*time.Second,
		)
	}

	vectorDB := qdrant.NewWithResilience(cfg.QdrantURL, cfg.QdrantCollection, executor)
	searcher := qdrant.NewTextSearcher(vectorDB, embedder)

	reranker, err := newReranker(cfg, embedder, storage, executor)
	if err != nil {
		return fail(err)
	}

	var publisher ports.TracePublisher
	if cfg.TracePublishEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSTraceSubject, nats.Options{
			Name:               "rag-api",
			ResilienceExecutor: executor,
		})
		if err != nil {
			return fail(fmt.Errorf("init trace queue: %w", err))
		}
		closers = append(closers, queue.Close)
		publisher = queue
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return fail(fmt.Errorf("open postgres: %w", err))
	}
	closers = append(closers, closeDB(db))
	traceRepo := postgres.NewTraceRepository(db)
	if err := traceRepo.EnsureSchema(ctx); err != nil {
		return fail(fmt.Errorf("ensure schema: %w", err))
	}

	classifier := usecase.NewQueryClassifier(vocab)
	advanced := usecase.NewAdvancedRetriever(
		usecase.NewHybridRetriever(searcher, cfg.RAGTopK),
		reranker,
		usecase.AdvancedRetrieverOptions{
			RerankTopK:    cfg.RAGRerankTopK,
			FinalTopK:     cfg.RAGFinalTopK,
			IntentFilters: cfg.RAGIntentFilters,
		},
	)
	selfImproving := usecase.NewSelfImprovingRetriever(
		searcher,
		usecase.NewCritic(cfg.RAGCriticThreshold),
		advanced,
		usecase.SelfImprovingOptions{
			MaxAttempts:            cfg.RAGMaxAttempts,
			TopK:                   cfg.RAGTopK,
			SkipBroadeningOnAccept: cfg.RAGSkipBroadeningOnAccept,
		},
	)
	agentic := usecase.NewAgenticRetriever(advanced, cfg.RAGAgentMaxSteps)
	multimodal := usecase.NewMultimodalRetriever(classifier, searcher, usecase.MultimodalRetrieverOptions{})
	fusion := usecase.NewMultimodalFusion(vision, generator, usecase.FusionOptions{})

	queryUC := usecase.NewQueryUseCase(classifier, selfImproving, agentic, multimodal, fusion, generator, publisher)

	slog.Info("bootstrap_ready",
		"reranker", reranker.Name(),
		"embedding_cache", cfg.RedisAddr != "",
		"trace_publish", cfg.TracePublishEnabled,
		"qdrant_collection", cfg.QdrantCollection,
	)

	return &App{
		Config:   cfg,
		QueryUC:  queryUC,
		TraceUC:  usecase.NewTraceUseCase(traceRepo),
		Metrics:  httpMetrics,
		Executor: executor,
		closeFn:  closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker is the wired trace writer process.
type Worker struct {
	Config config.Config

	Queue   ports.TraceSubscriber
	TraceUC *usecase.TraceUseCase
	Metrics *metrics.WorkerMetrics

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config) (*Worker, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	traceRepo := postgres.NewTraceRepository(db)
	if err := traceRepo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSTraceSubject, nats.Options{Name: "rag-trace-worker"})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init trace queue: %w", err)
	}

	return &Worker{
		Config:  cfg,
		Queue:   queue,
		TraceUC: usecase.NewTraceUseCase(traceRepo),
		Metrics: metrics.NewWorkerMetrics("rag-trace-worker"),
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func newReranker(cfg config.Config, embedder ports.Embedder, storage ports.ObjectStorage, executor *resilience.Executor) (usecase.Reranker, error) {
	switch cfg.RAGRerankStrategy {
	case usecase.RerankStrategyCrossEncoder:
		return usecase.NewCrossEncoderReranker(crossencoder.New(cfg.RerankerURL, executor)), nil
	case usecase.RerankStrategyCosine:
		var images ports.ImageEmbedder
		if cfg.ImageEmbedderURL != "" {
			images = clip.New(cfg.ImageEmbedderURL, storage, executor)
		}
		return usecase.NewCosineReranker(embedder, images), nil
	default:
		return nil, fmt.Errorf("unknown rerank strategy %q", cfg.RAGRerankStrategy)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	if cfg.ResilienceRetryAttempts > 0 {
		rc.RetryMaxAttempts = cfg.ResilienceRetryAttempts
	}
	if cfg.ResilienceBreakerTimeoutMS > 0 {
		rc.BreakerOpenTimeout = time.Duration(cfg.ResilienceBreakerTimeoutMS) * time.Millisecond
	}
	return rc
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

func closeRedis(client *redis.Client) func() {
	return func() { _ = client.Close() }
}
