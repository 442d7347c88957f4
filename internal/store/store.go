// Package store persists documents and their embedded chunks in PostgreSQL
// with pgvector.
//
// The store owns all SQL. Callers depend on the narrow interfaces they
// define themselves (the ingest worker, the retriever and the status
// manager each declare what they need); *Store satisfies all of them.
//
// Concurrency: the only contended write is the pending→processing claim,
// implemented as a compare-and-set UPDATE. Chunk upserts are idempotent on
// (document_id, chunk_index) and may be retried freely.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DB is the subset of pgxpool.Pool the store uses. Defined here so tests
// and transactions can substitute implementations.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store manages documents and chunks. Safe for concurrent use.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a Store. logger may be nil.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// CreateDocument inserts a new document with embedding_status=pending.
// An empty ID is filled with a fresh UUID. The ingest worker owns every
// later status transition.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.ParentID != "" && doc.ParentID == doc.ID {
		return ErrSelfParent
	}

	var parentID, sourceURL *string
	if doc.ParentID != "" {
		parentID = &doc.ParentID
	}
	if doc.SourceURL != "" {
		sourceURL = &doc.SourceURL
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO documents (id, collection, title, content, source_type, source_url, parent_id, embedding_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')`,
		doc.ID, doc.Collection, doc.Title, doc.Content, doc.SourceType, sourceURL, parentID,
	)
	if err != nil {
		return fmt.Errorf("inserting document %q: %w", doc.ID, err)
	}

	doc.EmbeddingStatus = StatusPending
	s.logger.Debug("created document",
		"id", doc.ID, "collection", doc.Collection, "source_type", doc.SourceType)
	return nil
}

// GetDocument loads a document by ID. Returns ErrNotFound when absent.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, collection, title, content, source_type, source_url, parent_id,
		       embedding_status, embedding_updated_at, created_at
		FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("loading document %q: %w", id, err)
	}
	return doc, nil
}

// ListDocuments returns documents, optionally filtered by collection and
// status. Empty values mean no filter. Ordered by creation time ascending
// so batch processing is deterministic.
func (s *Store) ListDocuments(ctx context.Context, collection string, status Status) ([]Document, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	query := `
		SELECT id, collection, title, content, source_type, source_url, parent_id,
		       embedding_status, embedding_updated_at, created_at
		FROM documents WHERE 1=1`
	var args []any
	if collection != "" {
		args = append(args, collection)
		query += fmt.Sprintf(" AND collection = $%d", len(args))
	}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND embedding_status = $%d", len(args))
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document; its chunks and child documents go
// with it via ON DELETE CASCADE.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	s.logger.Debug("deleted document", "id", id)
	return nil
}

// ClaimDocument atomically moves a document from pending to processing and
// reports whether the claim succeeded. A document stuck in processing
// longer than staleAfter is treated as abandoned and may be re-claimed.
// At most one caller wins; everyone else gets false.
func (s *Store) ClaimDocument(ctx context.Context, id string, staleAfter time.Duration) (bool, error) {
	cutoff := time.Now().Add(-staleAfter)
	tag, err := s.db.Exec(ctx, `
		UPDATE documents
		SET embedding_status = 'processing', embedding_updated_at = now()
		WHERE id = $1
		  AND (embedding_status = 'pending'
		       OR (embedding_status = 'processing' AND embedding_updated_at < $2))`,
		id, cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("claiming document %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetStatus applies a status transition, enforcing the lifecycle machine:
// the update only matches when the current status is a legal source for
// the target. Returns ErrInvalidTransition when the document exists but
// its current status forbids the move.
func (s *Store) SetStatus(ctx context.Context, id string, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	sources := TransitionSources(to)
	froms := make([]string, len(sources))
	for i, src := range sources {
		froms[i] = string(src)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE documents
		SET embedding_status = $2, embedding_updated_at = now()
		WHERE id = $1 AND embedding_status = ANY($3)`,
		id, string(to), froms,
	)
	if err != nil {
		return fmt.Errorf("updating status of %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		s.logger.Debug("status updated", "id", id, "to", to)
		return nil
	}

	// Distinguish a missing document from an illegal transition.
	var current string
	err = s.db.QueryRow(ctx, `SELECT embedding_status FROM documents WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking status of %q: %w", id, err)
	}
	return fmt.Errorf("%s → %s for document %q: %w", current, to, id, ErrInvalidTransition)
}

// CollectionInfo is a collection name with its document count.
type CollectionInfo struct {
	Name      string
	Documents int
}

// ListCollections returns every collection with its document count,
// alphabetically. Collections exist implicitly through their documents.
func (s *Store) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := s.db.Query(ctx, `
		SELECT collection, count(*) FROM documents
		GROUP BY collection ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var infos []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		var n int64
		if err := rows.Scan(&info.Name, &n); err != nil {
			return nil, fmt.Errorf("scanning collection row: %w", err)
		}
		info.Documents = int(n)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	return infos, nil
}

// MarkPendingForReprocessing resets every done or error document in a
// collection back to pending so the next processing run re-embeds it.
// This is an explicit administrative reset, not a worker transition; the
// lifecycle machine in SetStatus does not apply here. Returns the number
// of documents reset.
func (s *Store) MarkPendingForReprocessing(ctx context.Context, collection string) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE documents
		SET embedding_status = 'pending', embedding_updated_at = now()
		WHERE collection = $1 AND embedding_status IN ('done', 'error')`,
		collection,
	)
	if err != nil {
		return 0, fmt.Errorf("resetting collection %q: %w", collection, err)
	}
	n := int(tag.RowsAffected())
	s.logger.Info("marked collection for reprocessing", "collection", collection, "count", n)
	return n, nil
}

// CountByStatus returns per-status document counts, optionally scoped to a
// collection.
func (s *Store) CountByStatus(ctx context.Context, collection string) (map[Status]int, error) {
	query := `SELECT embedding_status, count(*) FROM documents`
	var args []any
	if collection != "" {
		query += ` WHERE collection = $1`
		args = append(args, collection)
	}
	query += ` GROUP BY embedding_status`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[Status(status)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	return counts, nil
}

// UpsertChunks replaces a document's chunks with the given set, inside one
// transaction. Rows conflict on (document_id, chunk_index) and are
// updated in place; stale rows beyond the new chunk count are deleted, so
// re-ingesting a shrunken document never leaves orphans. Idempotent: a
// retried run after partial failure converges to the same rows.
func (s *Store) UpsertChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning chunk upsert: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		metadata, err := json.Marshal(c.Attribution)
		if err != nil {
			return fmt.Errorf("marshaling attribution for chunk %d: %w", c.Index, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, collection, document_title, chunk_index, content, embedding, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (document_id, chunk_index) DO UPDATE SET
				collection     = EXCLUDED.collection,
				document_title = EXCLUDED.document_title,
				content        = EXCLUDED.content,
				embedding      = EXCLUDED.embedding,
				metadata       = EXCLUDED.metadata`,
			c.ID, documentID, c.Collection, c.DocumentTitle, c.Index,
			c.Content, pgvector.NewVector(c.Embedding), metadata,
		)
		if err != nil {
			return fmt.Errorf("upserting chunk %d of %q: %w", c.Index, documentID, err)
		}
	}

	// Drop trailing rows from a previous, longer ingestion pass.
	_, err = tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1 AND chunk_index >= $2`,
		documentID, len(chunks))
	if err != nil {
		return fmt.Errorf("pruning stale chunks of %q: %w", documentID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk upsert: %w", err)
	}

	s.logger.Debug("upserted chunks", "document_id", documentID, "count", len(chunks))
	return nil
}

// CountChunks returns the number of stored chunks for a document.
func (s *Store) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks of %q: %w", documentID, err)
	}
	return int(n), nil
}

// QueryNearest returns up to limit chunks ordered by ascending cosine
// distance to the query embedding. Chunks without an embedding are
// excluded. Ties break on (document_id, chunk_index) so results are
// deterministic. An empty collections slice searches everything.
func (s *Store) QueryNearest(ctx context.Context, embedding []float32, collections []string, limit int) ([]ScoredChunk, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, document_id, collection, document_title, chunk_index, content, metadata,
		       embedding <=> $1 AS distance
		FROM chunks
		WHERE embedding IS NOT NULL`
	args := []any{pgvector.NewVector(embedding)}
	if len(collections) > 0 {
		args = append(args, collections)
		query += fmt.Sprintf(" AND collection = ANY($%d)", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY distance, document_id, chunk_index LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nearest chunks: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var sc ScoredChunk
		var metadata []byte
		if err := rows.Scan(&sc.ID, &sc.DocumentID, &sc.Collection, &sc.DocumentTitle,
			&sc.Index, &sc.Content, &metadata, &sc.Distance); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if err := json.Unmarshal(metadata, &sc.Attribution); err != nil {
			s.logger.Warn("unparsable chunk attribution", "chunk_id", sc.ID, "error", err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying nearest chunks: %w", err)
	}
	return results, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var doc Document
	var sourceURL, parentID *string
	err := row.Scan(&doc.ID, &doc.Collection, &doc.Title, &doc.Content, &doc.SourceType,
		&sourceURL, &parentID, &doc.EmbeddingStatus, &doc.EmbeddingUpdatedAt, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if sourceURL != nil {
		doc.SourceURL = *sourceURL
	}
	if parentID != nil {
		doc.ParentID = *parentID
	}
	return &doc, nil
}
