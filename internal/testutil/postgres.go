// Package testutil provides shared helpers for integration tests that
// need a real PostgreSQL instance with the pgvector extension.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/benyue1978/ragspace/db"
	"github.com/benyue1978/ragspace/internal/store"
)

// SetupTestDB starts a disposable pgvector-enabled PostgreSQL container,
// runs the schema migrations, and returns a ready connection pool. The
// returned cleanup function terminates the container; call it with defer.
//
// Tests that use this helper should be skipped in short mode.
func SetupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("ragspace_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	connURL, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("getting connection string: %v", err)
	}

	if err := db.Migrate(connURL); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("running migrations: %v", err)
	}

	pool, err := store.NewPool(ctx, connURL)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("creating pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminating container: %v", err)
		}
	}
	return pool, cleanup
}
