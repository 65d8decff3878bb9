// Package pgtest opens a migrated, empty Postgres database for store tests.
package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"taxidispatch/internal/infra"
)

const dsnEnv = "DISPATCH_TEST_DSN"

// Open skips the test unless DISPATCH_TEST_DSN is set. Tables are truncated before returning,
// so packages sharing one database must run with `go test -p 1`.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skip(dsnEnv + " not set; skipping DB-backed tests")
	}
	if err := infra.Migrate(dsn); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	ctx := context.Background()
	db, err := infra.NewDB(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	if _, err := db.Exec(ctx, "TRUNCATE TABLE invoices, trips, passengers, drivers"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}
