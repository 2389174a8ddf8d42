// Package store is the relational side of the synchronizer.
//
// It owns the canonical schema (one table set per scope plus the global
// tool table), maps (scope, resource kind) pairs to tables, and exposes
// parameterized queries usable either directly (autocommit) or inside a
// single transaction.
//
// Two drivers are supported, selected from the connection URL:
//
//	postgres://... / postgresql://...   → PostgreSQL via pgx
//	file:path.db / sqlite://path / path → embedded SQLite (ncruces, WAL)
//
// Queries are written with '?' placeholders and rebound per driver.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Dialect identifies the SQL backend behind a DB.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// String returns a human-readable representation of the dialect.
func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}

const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"

// DB is one storage session. Embedded Queries run in autocommit mode.
type DB struct {
	*Queries

	conn    *sqlx.DB
	dialect Dialect
}

// Queries runs statements against either the database or a transaction.
type Queries struct {
	q       sqlx.ExtContext
	dialect Dialect
}

// Open connects to the database named by url and verifies the connection.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	database, err := store.Open("file:.ccsync/agents.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
func Open(url string) (*DB, error) {
	driver, dsn, dialect, err := parseURL(url)
	if err != nil {
		return nil, err
	}

	if dialect == DialectSQLite {
		if path := sqlitePath(dsn); path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dialect == DialectSQLite {
		// Single writer; also keeps per-connection pragmas trivially consistent.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(4)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	return &DB{
		Queries: &Queries{q: conn, dialect: dialect},
		conn:    conn,
		dialect: dialect,
	}, nil
}

// parseURL maps a connection URL to a driver name and DSN.
func parseURL(url string) (driver, dsn string, dialect Dialect, err error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return "", "", 0, fmt.Errorf("database url is empty")
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "pgx", url, DialectPostgres, nil
	case strings.HasPrefix(url, "sqlite://"):
		dsn = "file:" + strings.TrimPrefix(url, "sqlite://")
	case strings.HasPrefix(url, "file:"):
		dsn = url
	case strings.Contains(url, "://"):
		return "", "", 0, fmt.Errorf("unsupported database url scheme: %s", url)
	default:
		dsn = "file:" + url
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return "sqlite3", dsn + sep + sqlitePragmas, DialectSQLite, nil
}

// sqlitePath extracts the filesystem path from a sqlite DSN, or "" for
// in-memory databases.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

// Dialect returns the backend of the database.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Close releases the connection pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// WithTx runs fn inside a single transaction. The transaction commits when
// fn returns nil and rolls back on error or panic. fn must only use the
// Queries it is given.
func (db *DB) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&Queries{q: tx, dialect: db.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Exec runs a raw statement with the dialect's bind vars. Constraint
// violations come back as ErrConstraint.
func (q *Queries) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.exec(ctx, query, args...)
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := q.q.ExecContext(ctx, q.q.Rebind(query), args...)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

func (q *Queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q.q, dest, q.q.Rebind(query), args...)
}

func (q *Queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.q, dest, q.q.Rebind(query), args...)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// now returns the timestamp stored in created_at/updated_at columns.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
