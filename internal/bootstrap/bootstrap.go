package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/config"
	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/core/ports"
	"github.com/kirillkom/fin-research-assistant/internal/core/usecase"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/cache"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/index/bm25"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/index/flatl2"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/llm/claude"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/marketdata"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/repository/memory"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/specialistpool"
	"github.com/kirillkom/fin-research-assistant/internal/observability/metrics"
)

// App is the fully wired API process.
type App struct {
	Config config.Config

	Orchestrator *usecase.Orchestrator
	NewsSearch   *usecase.NewsSearch
	Retriever    *usecase.HybridRetriever
	Ingestor     *usecase.NewsIngestor
	Metrics      *metrics.HTTPServerMetrics

	closeFn func()
}

// Indexer is the subset used by the ingestion worker and the CLI: both
// retrieval indexes, the ingestor and optionally the article queue.
type Indexer struct {
	Config config.Config

	Retriever *usecase.HybridRetriever
	Ingestor  *usecase.NewsIngestor
	Queue     *nats.Queue
	Metrics   *metrics.WorkerMetrics

	closeFn func()
}

type IndexerOptions struct {
	// Service names the metrics namespace label.
	Service string
	// ConnectQueue dials NATS; the CLI leaves it off for offline commands.
	ConnectQueue bool
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	m := metrics.NewHTTPServerMetrics("api")
	executor := newExecutor(cfg, m)

	searchCache, err := cache.NewNewsCache(cache.Config{
		MaxCost: int64(cfg.SearchCacheMaxCost),
		TTL:     time.Duration(cfg.SearchCacheTTLSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("init search cache: %w", err)
	}

	idx := newIndexes(cfg, executor)
	retriever := usecase.NewHybridRetriever(idx.lexical, idx.embedding, fusionConfig(cfg))
	newsSearch := usecase.NewNewsSearch(retriever, searchCache)
	ingestor := usecase.NewNewsIngestor(idx.lexical, idx.embedding, idx.paths, newsSearch, nil)
	if err := loadSnapshots(ctx, ingestor); err != nil {
		searchCache.Close()
		return nil, err
	}

	market, err := marketdata.NewFileProvider(cfg.MarketDataDir, time.Duration(cfg.MarketDataRefreshSeconds)*time.Second)
	if err != nil {
		searchCache.Close()
		return nil, fmt.Errorf("init market data: %w", err)
	}

	lexicon, err := config.LoadLexicon(cfg.LexiconPath, usecase.DefaultLexicon())
	if err != nil {
		searchCache.Close()
		return nil, fmt.Errorf("load lexicon: %w", err)
	}
	engine := usecase.NewDecisionEngine(lexicon)

	llm := claude.New(claude.Config{
		APIKey:       cfg.AnthropicAPIKey,
		BaseURL:      cfg.AnthropicBaseURL,
		DefaultModel: cfg.GeneralistModel,
		Timeout:      time.Duration(cfg.AnthropicTimeoutSeconds) * time.Second,
	}, executor)
	models := agentModels(cfg)
	generalist := usecase.NewGeneralist(llm, engine, market, newsSearch, models.Generalist)
	specialists := usecase.NewSpecialists(llm, market, newsSearch, models)

	pool, err := specialistpool.New(specialists, specialistpool.Config{
		Workers:       cfg.SpecialistWorkers,
		QueueSize:     cfg.SpecialistQueueSize,
		TTL:           time.Duration(cfg.SpecialistCacheTTLSeconds) * time.Second,
		CacheCapacity: cfg.SpecialistCacheCapacity,
		TaskTimeout:   time.Duration(cfg.SpecialistTaskTimeoutSeconds) * time.Second,
	}, m)
	if err != nil {
		searchCache.Close()
		return nil, fmt.Errorf("init specialist pool: %w", err)
	}

	sessions, db, err := newSessionStore(ctx, cfg)
	if err != nil {
		_ = pool.Shutdown(context.Background(), false)
		searchCache.Close()
		return nil, err
	}

	orchestrator := usecase.NewOrchestrator(engine, generalist, pool, sessions, usecase.OrchestratorConfig{
		SyncTimeout: time.Duration(cfg.SpecialistSyncTimeoutSeconds) * time.Second,
		PeekTimeout: time.Duration(cfg.SpecialistPeekTimeoutMs) * time.Millisecond,
	}, m)

	slog.Info("app_bootstrapped",
		"session_store", cfg.SessionStore,
		"documents", idx.lexical.Len(),
		"specialist_workers", cfg.SpecialistWorkers,
	)

	return &App{
		Config:       cfg,
		Orchestrator: orchestrator,
		NewsSearch:   newsSearch,
		Retriever:    retriever,
		Ingestor:     ingestor,
		Metrics:      m,

		closeFn: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := orchestrator.Close(shutdownCtx); err != nil {
				slog.Warn("specialist_pool_shutdown_failed", "error", err)
			}
			searchCache.Close()
			if db != nil {
				_ = db.Close()
			}
		},
	}, nil
}

func NewIndexer(ctx context.Context, cfg config.Config, opts IndexerOptions) (*Indexer, error) {
	service := opts.Service
	if service == "" {
		service = "worker"
	}
	m := metrics.NewWorkerMetrics(service)
	executor := newExecutor(cfg, m)

	idx := newIndexes(cfg, executor)
	retriever := usecase.NewHybridRetriever(idx.lexical, idx.embedding, fusionConfig(cfg))
	ingestor := usecase.NewNewsIngestor(idx.lexical, idx.embedding, idx.paths, nil, m)
	if err := loadSnapshots(ctx, ingestor); err != nil {
		return nil, err
	}

	var queue *nats.Queue
	if opts.ConnectQueue {
		q, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			QueueGroup:         cfg.NATSQueueGroup,
			BatchSize:          cfg.NATSBatchSize,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		queue = q
	}

	return &Indexer{
		Config:    cfg,
		Retriever: retriever,
		Ingestor:  ingestor,
		Queue:     queue,
		Metrics:   m,

		closeFn: func() {
			if queue != nil {
				queue.Close()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func (i *Indexer) Close() {
	if i.closeFn != nil {
		i.closeFn()
	}
}

// SnapshotFiles lists every file the indexes persist to, for the watcher.
func SnapshotFiles(cfg config.Config) []string {
	var files []string
	if cfg.BM25SnapshotPath != "" {
		files = append(files, cfg.BM25SnapshotPath)
	}
	if cfg.EmbeddingSnapshotPath != "" {
		files = append(files, cfg.EmbeddingSnapshotPath+".vec", cfg.EmbeddingSnapshotPath+".json")
	}
	return files
}

type indexes struct {
	lexical   *bm25.Index
	embedding *flatl2.Index
	paths     usecase.SnapshotPaths
}

func newIndexes(cfg config.Config, executor *resilience.Executor) indexes {
	ollamaClient := ollama.New(cfg.OllamaURL, 60*time.Second, executor)
	embedder := ollama.NewEmbedder(ollamaClient, cfg.OllamaEmbedModel, cfg.EmbeddingDimension)
	return indexes{
		lexical:   bm25.New(),
		embedding: flatl2.New(embedder, cfg.EmbeddingModelID, cfg.EmbeddingDimension),
		paths: usecase.SnapshotPaths{
			Lexical:   cfg.BM25SnapshotPath,
			Embedding: cfg.EmbeddingSnapshotPath,
		},
	}
}

// loadSnapshots starts from the persisted indexes. Missing snapshots mean an
// empty corpus; corrupt ones abort startup.
func loadSnapshots(ctx context.Context, ingestor *usecase.NewsIngestor) error {
	err := ingestor.Reload(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("index_snapshot_missing", "error", err)
		return nil
	default:
		return fmt.Errorf("load index snapshots: %w", err)
	}
}

func newExecutor(cfg config.Config, observer resilience.Observer) *resilience.Executor {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	rc.BreakerEnabled = cfg.ResilienceBreakerEnabled
	return resilience.NewExecutor(rc).WithObserver(observer)
}

func newSessionStore(ctx context.Context, cfg config.Config) (ports.SessionStore, *sql.DB, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.SessionStore)) {
	case "", "memory":
		return memory.NewSessionStore(), nil, nil
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewSessionRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}

func fusionConfig(cfg config.Config) domain.FusionConfig {
	return domain.FusionConfig{
		LexicalWeight:   cfg.HybridLexicalWeight,
		EmbeddingWeight: cfg.HybridEmbeddingWeight,
		KRRF:            cfg.HybridRRFK,
		RetrievalDepth:  cfg.HybridRetrievalDepth,
	}
}

func agentModels(cfg config.Config) usecase.AgentModels {
	models := usecase.DefaultAgentModels()
	if cfg.GeneralistModel != "" {
		models.Generalist.Model = cfg.GeneralistModel
	}
	if cfg.MarketDataModel != "" {
		models.MarketData.Model = cfg.MarketDataModel
	}
	if cfg.NewsModel != "" {
		models.News.Model = cfg.NewsModel
	}
	return models
}
