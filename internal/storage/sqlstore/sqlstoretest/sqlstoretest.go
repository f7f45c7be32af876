// Package sqlstoretest opens migrated stores for tests.
package sqlstoretest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aanand-mishra/courses-api/internal/storage/sqlstore"
)

// Open returns a store backed by a fresh SQLite file in a temp dir.
// It is closed when the test ends.
func Open(t testing.TB) *sqlstore.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "courses.db")
	return open(t, sqlstore.DriverSQLite, dsn)
}

// OpenPostgres connects to TEST_DATABASE_URL and skips the test when it
// is not set. The database should be empty: migrations are applied to it.
func OpenPostgres(t testing.TB) *sqlstore.Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	return open(t, sqlstore.DriverPostgres, dsn)
}

func open(t testing.TB, driver, dsn string) *sqlstore.Store {
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, driver, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx, zap.NewNop()))
	return store
}
