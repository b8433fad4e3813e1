// Package sqlite is the SQLite storage backend of the data-access layer.
// It backs single-node deployments and integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
	_ "github.com/mattn/go-sqlite3"

	"tombstone/internal/orm"
	"tombstone/pkg/logger"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

var _ orm.Backend = (*DB)(nil)

// DB is a SQLite database usable as an orm.Backend.
type DB struct {
	db *sql.DB
}

// Open opens the database at dsn and enables foreign keys.
// An in-memory database is pinned to a single connection so every statement
// sees the same data.
func Open(ctx context.Context, dsn string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dsn == MemoryDSN {
		sqlDB.SetMaxOpenConns(1)
	}

	if _, err := sqlDB.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db: sqlDB}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Raw returns the underlying *sql.DB (schema setup, diagnostics).
func (d *DB) Raw() *sql.DB {
	return d.db
}

type txKey struct{}

// RunInTransaction executes fn within a transaction.
// A transaction already present in ctx is reused.
func (d *DB) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Querier returns the transaction in ctx, or the database.
func (d *DB) Querier(ctx context.Context) orm.Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return querier{conn: tx}
	}
	return querier{conn: d.db}
}

// Dialect implements orm.Backend.
func (d *DB) Dialect() orm.Dialect {
	return orm.DialectSQLite
}

// conn is satisfied by both *sql.DB and *sql.Tx.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type querier struct {
	conn conn
}

func (q querier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected()
}

func (q querier) Select(ctx context.Context, dest any, query string, args ...any) error {
	return sqlscan.Select(ctx, q.conn, dest, query, args...)
}
