// Package ingest turns stored documents into embedded chunks. The Worker
// owns the pending→processing→done|error lifecycle of a single document;
// BatchProcess fans documents out over a bounded goroutine pool. The
// StatusManager exposes the administrative operations around that
// lifecycle.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benyue1978/ragspace/internal/chunker"
	"github.com/benyue1978/ragspace/internal/store"
)

// ErrNotClaimable indicates another worker holds the document or its
// status does not allow processing.
var ErrNotClaimable = errors.New("document not claimable")

// WorkerStore is the store subset the worker needs.
type WorkerStore interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	ListDocuments(ctx context.Context, collection string, status store.Status) ([]store.Document, error)
	ClaimDocument(ctx context.Context, id string, staleAfter time.Duration) (bool, error)
	SetStatus(ctx context.Context, id string, to store.Status) error
	UpsertChunks(ctx context.Context, documentID string, chunks []store.Chunk) error
}

// Embedder turns texts into vectors. Satisfied by *llm.Embedder.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// WorkerConfig tunes the embedding worker.
type WorkerConfig struct {
	PoolSize   int           // concurrent documents in BatchProcess
	StaleAfter time.Duration // processing rows older than this are reclaimable
}

// Worker embeds documents.
type Worker struct {
	store    WorkerStore
	embedder Embedder
	splitter *chunker.Splitter
	cfg      WorkerConfig
	logger   *slog.Logger
}

// NewWorker creates a Worker. splitter and logger may be nil.
func NewWorker(s WorkerStore, e Embedder, splitter *chunker.Splitter, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if splitter == nil {
		splitter = chunker.Default()
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 3
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: s, embedder: e, splitter: splitter, cfg: cfg, logger: logger}
}

// Process embeds a single document end to end: claim, chunk, embed,
// upsert, mark done. Returns ErrNotClaimable when the claim is lost.
// Any failure after the claim, including cancellation, moves the
// document to error so it is never left in processing.
func (w *Worker) Process(ctx context.Context, documentID string) error {
	ok, err := w.store.ClaimDocument(ctx, documentID, w.cfg.StaleAfter)
	if err != nil {
		return fmt.Errorf("claiming %q: %w", documentID, err)
	}
	if !ok {
		return fmt.Errorf("document %q: %w", documentID, ErrNotClaimable)
	}

	if err := w.process(ctx, documentID); err != nil {
		// The status write must survive the cancellation that may have
		// caused the failure.
		failCtx := context.WithoutCancel(ctx)
		if serr := w.store.SetStatus(failCtx, documentID, store.StatusError); serr != nil {
			w.logger.Error("failed to mark document as error",
				"document_id", documentID, "error", serr)
		}
		return err
	}

	if err := w.store.SetStatus(ctx, documentID, store.StatusDone); err != nil {
		return fmt.Errorf("marking %q done: %w", documentID, err)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, documentID string) error {
	doc, err := w.store.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("loading %q: %w", documentID, err)
	}

	profile := chunker.ProfileFor(doc.SourceType, doc.Title)
	pieces := w.splitter.Split(doc.Content, profile)

	w.logger.Debug("chunked document",
		"document_id", doc.ID, "profile", profile, "chunks", len(pieces))

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	vectors, err := w.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %q: %w", documentID, err)
	}

	chunks := make([]store.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = store.Chunk{
			DocumentID:    doc.ID,
			Collection:    doc.Collection,
			DocumentTitle: doc.Title,
			Index:         i,
			Content:       p.Text,
			Embedding:     vectors[i],
			Attribution:   attributionFor(doc, p),
		}
	}

	// An empty document still upserts: the empty set prunes any chunks
	// from a previous ingestion.
	if err := w.store.UpsertChunks(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("storing chunks of %q: %w", documentID, err)
	}
	return nil
}

// BatchResult summarizes a BatchProcess run.
type BatchResult struct {
	Processed int // documents embedded and marked done
	Failed    int // documents that ended up in error
	Skipped   int // claims lost to another worker
}

// BatchProcess embeds every document in the given statuses, optionally
// scoped to a collection. Documents are fed through a jobs channel to
// PoolSize workers; each document is owned by one goroutine end to end
// and the store claim makes duplicate processing impossible. The first
// store enumeration error aborts; per-document failures are counted and
// logged, not returned.
func (w *Worker) BatchProcess(ctx context.Context, collection string, statuses []store.Status) (BatchResult, error) {
	if len(statuses) == 0 {
		statuses = []store.Status{store.StatusPending}
	}

	seen := make(map[string]bool)
	var ids []string
	for _, status := range statuses {
		docs, err := w.store.ListDocuments(ctx, collection, status)
		if err != nil {
			return BatchResult{}, fmt.Errorf("listing %s documents: %w", status, err)
		}
		for _, doc := range docs {
			if !seen[doc.ID] {
				seen[doc.ID] = true
				ids = append(ids, doc.ID)
			}
		}
	}
	if len(ids) == 0 {
		return BatchResult{}, nil
	}

	jobs := make(chan string)
	var processed, failed, skipped atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.PoolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				err := w.Process(ctx, id)
				switch {
				case err == nil:
					processed.Add(1)
				case errors.Is(err, ErrNotClaimable):
					skipped.Add(1)
				default:
					failed.Add(1)
					w.logger.Warn("document processing failed",
						"document_id", id, "error", err)
				}
			}
		}()
	}

feed:
	for _, id := range ids {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- id:
		}
	}
	close(jobs)
	wg.Wait()

	result := BatchResult{
		Processed: int(processed.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
	w.logger.Info("batch processing finished",
		"collection", collection,
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped)
	return result, ctx.Err()
}
