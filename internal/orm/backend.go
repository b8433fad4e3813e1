// Package orm is the data-access layer entities are persisted through.
//
// A DbContext persists a unit of work (changes.Tracker) in one transaction and
// runs registered persist hooks around it; EntitySet reads entities back with
// the model's default predicates ANDed into every query.
package orm

import (
	"context"

	"github.com/Masterminds/squirrel"

	"tombstone/internal/core/tx"
)

// Querier executes statements on the connection or transaction bound to ctx.
type Querier interface {
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Select scans all result rows into dest (pointer to slice).
	Select(ctx context.Context, dest any, query string, args ...any) error
}

// Backend is a storage engine the DbContext can drive.
type Backend interface {
	tx.Manager

	// Querier returns the transaction in ctx, or the pool when there is none.
	Querier(ctx context.Context) Querier

	// Dialect returns the SQL dialect of the backend.
	Dialect() Dialect
}

// Dialect captures the SQL differences between backends.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Placeholder returns the bind parameter format of the dialect.
func (d Dialect) Placeholder() squirrel.PlaceholderFormat {
	if d == DialectPostgres {
		return squirrel.Dollar
	}
	return squirrel.Question
}

// Builder returns a squirrel builder with the dialect's placeholder format.
func (d Dialect) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(d.Placeholder())
}

// ContainsFold returns a case-insensitive substring condition.
// SQLite LIKE is already case-insensitive for ASCII.
func (d Dialect) ContainsFold(col string, pattern string, negate bool) squirrel.Sqlizer {
	if d == DialectPostgres {
		if negate {
			return squirrel.NotILike{col: pattern}
		}
		return squirrel.ILike{col: pattern}
	}
	if negate {
		return squirrel.NotLike{col: pattern}
	}
	return squirrel.Like{col: pattern}
}
