// Package sqlstore provides the storage.Storage implementation on top of
// database/sql. Two drivers are supported:
//
//   - "sqlite3" (github.com/mattn/go-sqlite3): a single file on disk, the
//     default for local runs and for tests.
//   - "pgx" (github.com/jackc/pgx/v5/stdlib) - PostgreSQL.
//
// Queries are written once with "?" placeholders and rebound to the
// driver's placeholder format by squirrel, so both drivers share every
// line of SQL. The schema lives in migrations/ and is applied by goose.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/aanand-mishra/courses-api/internal/storage"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store owns the connection pool. Its embedded Queries run outside any
// transaction; WithTx hands out Queries bound to a *sql.Tx.
type Store struct {
	*Queries
	db      *sql.DB
	dialect string
}

var _ storage.Storage = (*Store)(nil)

// Open connects to the database described by driver and dsn and checks
// the connection with a ping.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		ph      sq.PlaceholderFormat
		dialect string
	)
	switch driver {
	case DriverSQLite:
		ph, dialect = sq.Question, "sqlite3"
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, fmt.Errorf("sqlstore.Open: %w", err)
		}
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
		ph, dialect = sq.Dollar, "postgres"
	default:
		return nil, fmt.Errorf("sqlstore.Open: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore.Open: open db: %w", err)
	}

	// SQLite allows one writer at a time. A single connection makes every
	// transaction wait its turn instead of failing with SQLITE_BUSY.
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore.Open: ping: %w", err)
	}

	return &Store{
		Queries: newQueries(db, ph),
		db:      db,
		dialect: dialect,
	}, nil
}

// ensureSQLiteDir creates the directory of a file DSN. SQLite creates
// the database file but not its parent directories.
func ensureSQLiteDir(dsn string) error {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	return nil
}

// sqliteDSN turns on foreign keys and a busy timeout unless the caller
// already chose values for them.
func sqliteDSN(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "_foreign_keys") && !strings.Contains(dsn, "_fk") {
		params = append(params, "_foreign_keys=on")
	}
	if !strings.Contains(dsn, "_busy_timeout") && !strings.Contains(dsn, "_timeout") {
		params = append(params, "_busy_timeout=5000")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Migrate applies every pending migration embedded in the binary.
func (s *Store) Migrate(ctx context.Context, log *zap.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log.Sugar()})
	if err := goose.SetDialect(s.dialect); err != nil {
		return fmt.Errorf("sqlstore.Migrate: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("sqlstore.Migrate: apply migrations: %w", err)
	}
	return nil
}

// WithTx runs fn in a transaction. A panic inside fn rolls back and
// propagates.
func (s *Store) WithTx(ctx context.Context, fn func(q storage.Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("WithTx: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(s.Queries.withTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("WithTx: commit: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation recognizes duplicate-key errors from both drivers.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// gooseLogger routes migration output through zap.
type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Infof(strings.TrimSpace(format), v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Fatalf(strings.TrimSpace(format), v...)
}
