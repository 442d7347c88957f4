package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/benyue1978/ragspace/internal/log"
	"github.com/benyue1978/ragspace/internal/store"
)

// statusMockStore extends mockStore with the StatusStore methods.
type statusMockStore struct {
	*mockStore
}

func (m *statusMockStore) CountByStatus(ctx context.Context, collection string) (map[store.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[store.Status]int)
	for id, d := range m.docs {
		if collection != "" && d.Collection != collection {
			continue
		}
		counts[m.statuses[id]]++
	}
	return counts, nil
}

func (m *statusMockStore) MarkPendingForReprocessing(ctx context.Context, collection string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, d := range m.docs {
		if d.Collection != collection {
			continue
		}
		if s := m.statuses[id]; s == store.StatusDone || s == store.StatusError {
			m.statuses[id] = store.StatusPending
			n++
		}
	}
	return n, nil
}

func newStatusFixture() (*statusMockStore, *StatusManager) {
	ms := &statusMockStore{mockStore: newMockStore(
		doc("d1", "docs", store.SourceTypeFile, "a.txt", "x"),
		doc("d2", "docs", store.SourceTypeFile, "b.txt", "x"),
		doc("d3", "docs", store.SourceTypeFile, "c.txt", "x"),
		doc("d4", "other", store.SourceTypeFile, "d.txt", "x"),
	)}
	ms.statuses["d2"] = store.StatusDone
	ms.statuses["d3"] = store.StatusError
	return ms, NewStatusManager(ms, log.NewNop())
}

func TestStatusSummary(t *testing.T) {
	_, mgr := newStatusFixture()

	counts, err := mgr.Summary(context.Background(), "docs")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	want := map[store.Status]int{
		store.StatusPending: 1,
		store.StatusDone:    1,
		store.StatusError:   1,
	}
	for status, n := range want {
		if counts[status] != n {
			t.Errorf("counts[%s] = %d, want %d", status, counts[status], n)
		}
	}
}

func TestStatusListPending(t *testing.T) {
	_, mgr := newStatusFixture()

	docs, err := mgr.ListPending(context.Background(), "docs")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "d1" {
		t.Errorf("pending = %v, want just d1", docs)
	}
}

func TestStatusRetry(t *testing.T) {
	ms, mgr := newStatusFixture()

	if err := mgr.Retry(context.Background(), "d3"); err != nil {
		t.Fatalf("Retry on error document: %v", err)
	}
	if got := ms.status("d3"); got != store.StatusPending {
		t.Errorf("status = %q, want pending", got)
	}

	// Only error→pending is allowed.
	if err := mgr.Retry(context.Background(), "d2"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Retry on done document = %v, want ErrInvalidTransition", err)
	}
	if err := mgr.Retry(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Retry on missing document = %v, want ErrNotFound", err)
	}
}

func TestStatusMarkForReprocessing(t *testing.T) {
	ms, mgr := newStatusFixture()

	n, err := mgr.MarkForReprocessing(context.Background(), "docs")
	if err != nil {
		t.Fatalf("MarkForReprocessing: %v", err)
	}
	if n != 2 {
		t.Errorf("reset count = %d, want 2 (done + error)", n)
	}
	for _, id := range []string{"d1", "d2", "d3"} {
		if got := ms.status(id); got != store.StatusPending {
			t.Errorf("status[%s] = %q, want pending", id, got)
		}
	}
	if got := ms.status("d4"); got != store.StatusPending {
		t.Errorf("other collection document changed: %q", got)
	}

	if _, err := mgr.MarkForReprocessing(context.Background(), ""); err == nil {
		t.Error("expected error for empty collection")
	}
}
