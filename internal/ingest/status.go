package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benyue1978/ragspace/internal/store"
)

// StatusStore is the store subset the status manager needs.
type StatusStore interface {
	CountByStatus(ctx context.Context, collection string) (map[store.Status]int, error)
	ListDocuments(ctx context.Context, collection string, status store.Status) ([]store.Document, error)
	SetStatus(ctx context.Context, id string, to store.Status) error
	MarkPendingForReprocessing(ctx context.Context, collection string) (int, error)
}

// StatusManager exposes administrative operations on the embedding
// lifecycle: inspection, retry of failed documents and whole-collection
// re-embedding. Transition legality lives in the store; this layer only
// chooses which transitions to request.
type StatusManager struct {
	store  StatusStore
	logger *slog.Logger
}

// NewStatusManager creates a StatusManager. logger may be nil.
func NewStatusManager(s StatusStore, logger *slog.Logger) *StatusManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusManager{store: s, logger: logger}
}

// Summary returns per-status document counts, optionally scoped to a
// collection.
func (m *StatusManager) Summary(ctx context.Context, collection string) (map[store.Status]int, error) {
	return m.store.CountByStatus(ctx, collection)
}

// ListPending returns documents awaiting processing.
func (m *StatusManager) ListPending(ctx context.Context, collection string) ([]store.Document, error) {
	return m.store.ListDocuments(ctx, collection, store.StatusPending)
}

// Retry moves a failed document back to pending. Only error→pending is
// legal; anything else returns store.ErrInvalidTransition.
func (m *StatusManager) Retry(ctx context.Context, documentID string) error {
	if err := m.store.SetStatus(ctx, documentID, store.StatusPending); err != nil {
		return fmt.Errorf("retrying %q: %w", documentID, err)
	}
	m.logger.Info("document queued for retry", "document_id", documentID)
	return nil
}

// MarkForReprocessing resets all settled documents of a collection to
// pending so the next processing run re-embeds them. Returns the number
// of documents reset.
func (m *StatusManager) MarkForReprocessing(ctx context.Context, collection string) (int, error) {
	if collection == "" {
		return 0, fmt.Errorf("collection required for reprocessing")
	}
	return m.store.MarkPendingForReprocessing(ctx, collection)
}
