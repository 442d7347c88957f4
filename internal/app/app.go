// Package app wires configuration, storage, the Genkit provider and the
// pipeline components into one application object. Construction is
// explicit: each dependency is built in order and cleaned up in reverse
// on failure.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benyue1978/ragspace/db"
	"github.com/benyue1978/ragspace/internal/answer"
	"github.com/benyue1978/ragspace/internal/chunker"
	"github.com/benyue1978/ragspace/internal/config"
	"github.com/benyue1978/ragspace/internal/ingest"
	"github.com/benyue1978/ragspace/internal/llm"
	"github.com/benyue1978/ragspace/internal/log"
	"github.com/benyue1978/ragspace/internal/retrieval"
	"github.com/benyue1978/ragspace/internal/source"
	"github.com/benyue1978/ragspace/internal/store"
)

// App holds the assembled application.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool  *pgxpool.Pool
	Store *store.Store

	Embedder *llm.Embedder
	Client   *llm.Client

	Worker    *ingest.Worker
	Status    *ingest.StatusManager
	Retriever *retrieval.Retriever
	Assembler *answer.Assembler
	Generator *answer.Generator

	Files   *source.Files
	Website *source.Website
	GitHub  *source.GitHub
}

// Setup builds the application from configuration: migrations run first,
// then the pool, the Genkit provider and every pipeline component.
func Setup(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.New(log.Config{Level: logLevel()})

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := store.NewPool(ctx, cfg.PostgresURL())
	if err != nil {
		return nil, err
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		pool.Close()
		return nil, fmt.Errorf("initializing genkit")
	}

	retryCfg := llm.RetryConfig{
		MaxRetries:      cfg.RetryAttempts,
		InitialInterval: cfg.RetryInitialBackoff,
		MaxInterval:     cfg.RetryMaxBackoff,
	}

	embedder := llm.NewEmbedder(
		googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel),
		llm.EmbedderConfig{
			BatchSize:   cfg.EmbedBatchSize,
			CallTimeout: cfg.CallTimeout,
			Retry:       retryCfg,
			RateLimit:   cfg.RequestsPerSecond,
		}, logger)

	client := llm.NewClient(g, llm.ClientConfig{
		Model:       cfg.ModelName,
		CallTimeout: cfg.CallTimeout,
		Retry:       retryCfg,
		RateLimit:   cfg.RequestsPerSecond,
	}, logger)

	st := store.New(pool, logger)
	splitter := chunker.New(
		chunker.Limits{Size: cfg.ChunkProse.Size, Overlap: cfg.ChunkProse.Overlap},
		chunker.Limits{Size: cfg.ChunkCode.Size, Overlap: cfg.ChunkCode.Overlap},
		chunker.Limits{Size: cfg.ChunkMarkdown.Size, Overlap: cfg.ChunkMarkdown.Overlap},
	)

	var reranker retrieval.Reranker
	if cfg.RerankEnabled {
		reranker = retrieval.NewLLMReranker(client, logger)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Store:    st,
		Embedder: embedder,
		Client:   client,
		Worker: ingest.NewWorker(st, embedder, splitter, ingest.WorkerConfig{
			PoolSize:   cfg.WorkerPoolSize,
			StaleAfter: cfg.StaleClaimAfter,
		}, logger),
		Status: ingest.NewStatusManager(st, logger),
		Retriever: retrieval.New(st, embedder, reranker, retrieval.Config{
			DefaultTopK:         cfg.DefaultTopK,
			CandidateMultiplier: cfg.RerankOverfetch,
		}, logger),
		Assembler: answer.NewAssembler(cfg.MaxContextLength, logger),
		Generator: answer.NewGenerator(client, cfg.MaxHistoryTurns, logger),
		Files:     source.NewFiles(logger),
		Website:   source.NewWebsite(source.WebsiteConfig{}, logger),
		GitHub:    source.NewGitHub(os.Getenv("GITHUB_TOKEN"), 0, logger),
	}, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("RAGSPACE_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
