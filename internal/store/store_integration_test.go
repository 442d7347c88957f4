package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/benyue1978/ragspace/internal/log"
	"github.com/benyue1978/ragspace/internal/store"
	"github.com/benyue1978/ragspace/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/testcontainers/testcontainers-go.(*Reaper).connect.func1"),
	)
}

// testVec returns a 768-dim embedding pointing mostly along one axis, so
// cosine distances between different seeds are large and stable.
func testVec(axis int) []float32 {
	v := make([]float32, 768)
	v[axis%768] = 1
	return v
}

func newDoc(collection, title string) *store.Document {
	return &store.Document{
		Collection: collection,
		Title:      title,
		Content:    "content of " + title,
		SourceType: store.SourceTypeFile,
	}
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := store.New(pool, log.NewNop())

	t.Run("document lifecycle", func(t *testing.T) {
		doc := newDoc("docs", "lifecycle")
		if err := s.CreateDocument(ctx, doc); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}
		if doc.ID == "" {
			t.Fatal("CreateDocument did not assign an ID")
		}
		if doc.EmbeddingStatus != store.StatusPending {
			t.Errorf("new document status = %q, want pending", doc.EmbeddingStatus)
		}

		got, err := s.GetDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("GetDocument: %v", err)
		}
		if got.Title != "lifecycle" || got.Collection != "docs" {
			t.Errorf("GetDocument = %+v, want title/collection round-tripped", got)
		}
		if got.EmbeddingStatus != store.StatusPending {
			t.Errorf("stored status = %q, want pending", got.EmbeddingStatus)
		}

		if err := s.DeleteDocument(ctx, doc.ID); err != nil {
			t.Fatalf("DeleteDocument: %v", err)
		}
		if _, err := s.GetDocument(ctx, doc.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetDocument after delete = %v, want ErrNotFound", err)
		}
		if err := s.DeleteDocument(ctx, doc.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("DeleteDocument twice = %v, want ErrNotFound", err)
		}
	})

	t.Run("get missing document", func(t *testing.T) {
		_, err := s.GetDocument(ctx, "00000000-0000-0000-0000-000000000000")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("self parent rejected", func(t *testing.T) {
		doc := newDoc("docs", "selfie")
		doc.ID = "11111111-1111-1111-1111-111111111111"
		doc.ParentID = doc.ID
		if err := s.CreateDocument(ctx, doc); !errors.Is(err, store.ErrSelfParent) {
			t.Errorf("err = %v, want ErrSelfParent", err)
		}
	})

	t.Run("parent cascade", func(t *testing.T) {
		parent := newDoc("repos", "repo root")
		parent.SourceType = store.SourceTypeGitHubRepo
		if err := s.CreateDocument(ctx, parent); err != nil {
			t.Fatalf("create parent: %v", err)
		}
		child := newDoc("repos", "repo file")
		child.SourceType = store.SourceTypeGitHubFile
		child.ParentID = parent.ID
		if err := s.CreateDocument(ctx, child); err != nil {
			t.Fatalf("create child: %v", err)
		}

		if err := s.DeleteDocument(ctx, parent.ID); err != nil {
			t.Fatalf("delete parent: %v", err)
		}
		if _, err := s.GetDocument(ctx, child.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("child after parent delete = %v, want ErrNotFound", err)
		}
	})

	t.Run("list documents filters", func(t *testing.T) {
		a := newDoc("list-a", "first")
		b := newDoc("list-a", "second")
		c := newDoc("list-b", "third")
		for _, d := range []*store.Document{a, b, c} {
			if err := s.CreateDocument(ctx, d); err != nil {
				t.Fatalf("CreateDocument: %v", err)
			}
		}

		docs, err := s.ListDocuments(ctx, "list-a", "")
		if err != nil {
			t.Fatalf("ListDocuments: %v", err)
		}
		if len(docs) != 2 {
			t.Fatalf("len = %d, want 2", len(docs))
		}

		docs, err = s.ListDocuments(ctx, "list-b", store.StatusPending)
		if err != nil {
			t.Fatalf("ListDocuments: %v", err)
		}
		if len(docs) != 1 || docs[0].Title != "third" {
			t.Errorf("got %d docs, want exactly the pending list-b document", len(docs))
		}

		if _, err := s.ListDocuments(ctx, "", "bogus"); !errors.Is(err, store.ErrInvalidStatus) {
			t.Errorf("invalid status filter err = %v, want ErrInvalidStatus", err)
		}
	})

	t.Run("claim is exclusive", func(t *testing.T) {
		doc := newDoc("claims", "contested")
		if err := s.CreateDocument(ctx, doc); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.ClaimDocument(ctx, doc.ID, 10*time.Minute)
				if err != nil {
					t.Errorf("ClaimDocument: %v", err)
					return
				}
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		if wins.Load() != 1 {
			t.Errorf("claim winners = %d, want exactly 1", wins.Load())
		}

		got, err := s.GetDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("GetDocument: %v", err)
		}
		if got.EmbeddingStatus != store.StatusProcessing {
			t.Errorf("status after claim = %q, want processing", got.EmbeddingStatus)
		}
	})

	t.Run("stale processing reclaim", func(t *testing.T) {
		doc := newDoc("claims", "abandoned")
		if err := s.CreateDocument(ctx, doc); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}
		if ok, err := s.ClaimDocument(ctx, doc.ID, 10*time.Minute); err != nil || !ok {
			t.Fatalf("first claim = (%v, %v), want (true, nil)", ok, err)
		}

		// Fresh processing row: not reclaimable.
		if ok, err := s.ClaimDocument(ctx, doc.ID, 10*time.Minute); err != nil || ok {
			t.Errorf("fresh reclaim = (%v, %v), want (false, nil)", ok, err)
		}

		// With a cutoff in the future the row counts as stale.
		time.Sleep(20 * time.Millisecond)
		if ok, err := s.ClaimDocument(ctx, doc.ID, 10*time.Millisecond); err != nil || !ok {
			t.Errorf("stale reclaim = (%v, %v), want (true, nil)", ok, err)
		}
	})

	t.Run("status machine enforced", func(t *testing.T) {
		doc := newDoc("status", "machine")
		if err := s.CreateDocument(ctx, doc); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}

		// pending cannot jump straight to done.
		if err := s.SetStatus(ctx, doc.ID, store.StatusDone); !errors.Is(err, store.ErrInvalidTransition) {
			t.Errorf("pending→done err = %v, want ErrInvalidTransition", err)
		}

		if err := s.SetStatus(ctx, doc.ID, store.StatusProcessing); err != nil {
			t.Fatalf("pending→processing: %v", err)
		}
		if err := s.SetStatus(ctx, doc.ID, store.StatusError); err != nil {
			t.Fatalf("processing→error: %v", err)
		}
		if err := s.SetStatus(ctx, doc.ID, store.StatusPending); err != nil {
			t.Fatalf("error→pending (retry): %v", err)
		}
		if err := s.SetStatus(ctx, doc.ID, store.StatusProcessing); err != nil {
			t.Fatalf("pending→processing again: %v", err)
		}
		if err := s.SetStatus(ctx, doc.ID, store.StatusDone); err != nil {
			t.Fatalf("processing→done: %v", err)
		}

		// done is terminal.
		if err := s.SetStatus(ctx, doc.ID, store.StatusProcessing); !errors.Is(err, store.ErrInvalidTransition) {
			t.Errorf("done→processing err = %v, want ErrInvalidTransition", err)
		}
		if err := s.SetStatus(ctx, doc.ID, store.StatusPending); !errors.Is(err, store.ErrInvalidTransition) {
			t.Errorf("done→pending err = %v, want ErrInvalidTransition", err)
		}

		if err := s.SetStatus(ctx, "00000000-0000-0000-0000-000000000000", store.StatusProcessing); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("missing doc err = %v, want ErrNotFound", err)
		}
		if err := s.SetStatus(ctx, doc.ID, "bogus"); !errors.Is(err, store.ErrInvalidStatus) {
			t.Errorf("bogus status err = %v, want ErrInvalidStatus", err)
		}
	})

	t.Run("count by status", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if err := s.CreateDocument(ctx, newDoc("counts", "doc")); err != nil {
				t.Fatalf("CreateDocument: %v", err)
			}
		}
		counts, err := s.CountByStatus(ctx, "counts")
		if err != nil {
			t.Fatalf("CountByStatus: %v", err)
		}
		if counts[store.StatusPending] != 3 {
			t.Errorf("pending count = %d, want 3", counts[store.StatusPending])
		}
	})

	t.Run("chunk upsert idempotent and pruning", func(t *testing.T) {
		doc := newDoc("chunks", "chunked")
		if err := s.CreateDocument(ctx, doc); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}

		mkChunks := func(n int) []store.Chunk {
			chunks := make([]store.Chunk, n)
			for i := range chunks {
				chunks[i] = store.Chunk{
					DocumentID:    doc.ID,
					Collection:    doc.Collection,
					DocumentTitle: doc.Title,
					Index:         i,
					Content:       "chunk body",
					Embedding:     testVec(i),
					Attribution: store.Attribution{
						SourceType:    store.SourceTypeFile,
						DocumentTitle: doc.Title,
						StartLine:     i + 1,
						EndLine:       i + 2,
					},
				}
			}
			return chunks
		}

		if err := s.UpsertChunks(ctx, doc.ID, mkChunks(5)); err != nil {
			t.Fatalf("first upsert: %v", err)
		}
		if n, _ := s.CountChunks(ctx, doc.ID); n != 5 {
			t.Errorf("count after first upsert = %d, want 5", n)
		}

		// Retrying the same set changes nothing.
		if err := s.UpsertChunks(ctx, doc.ID, mkChunks(5)); err != nil {
			t.Fatalf("retry upsert: %v", err)
		}
		if n, _ := s.CountChunks(ctx, doc.ID); n != 5 {
			t.Errorf("count after retry = %d, want 5", n)
		}

		// A shorter re-ingestion prunes trailing rows.
		if err := s.UpsertChunks(ctx, doc.ID, mkChunks(2)); err != nil {
			t.Fatalf("shrinking upsert: %v", err)
		}
		if n, _ := s.CountChunks(ctx, doc.ID); n != 2 {
			t.Errorf("count after shrink = %d, want 2", n)
		}
	})

	t.Run("query nearest", func(t *testing.T) {
		doc := newDoc("search", "vectors")
		if err := s.CreateDocument(ctx, doc); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}

		chunks := []store.Chunk{
			{DocumentID: doc.ID, Collection: "search", DocumentTitle: doc.Title,
				Index: 0, Content: "exact match", Embedding: testVec(0)},
			{DocumentID: doc.ID, Collection: "search", DocumentTitle: doc.Title,
				Index: 1, Content: "orthogonal", Embedding: testVec(1)},
			{DocumentID: doc.ID, Collection: "search", DocumentTitle: doc.Title,
				Index: 2, Content: "also orthogonal", Embedding: testVec(2)},
		}
		if err := s.UpsertChunks(ctx, doc.ID, chunks); err != nil {
			t.Fatalf("UpsertChunks: %v", err)
		}

		got, err := s.QueryNearest(ctx, testVec(0), []string{"search"}, 2)
		if err != nil {
			t.Fatalf("QueryNearest: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		if got[0].Content != "exact match" {
			t.Errorf("nearest = %q, want the identical vector first", got[0].Content)
		}
		if got[0].Distance >= got[1].Distance {
			t.Errorf("distances not ascending: %v then %v", got[0].Distance, got[1].Distance)
		}

		// Collection filter excludes everything else.
		got, err = s.QueryNearest(ctx, testVec(0), []string{"no-such-collection"}, 5)
		if err != nil {
			t.Fatalf("QueryNearest: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("filtered query returned %d chunks, want 0", len(got))
		}

		// Zero limit is a no-op.
		got, err = s.QueryNearest(ctx, testVec(0), nil, 0)
		if err != nil || got != nil {
			t.Errorf("limit 0 = (%v, %v), want (nil, nil)", got, err)
		}
	})
}
