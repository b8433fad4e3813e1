// Package tx defines the transaction contract shared by storage backends.
// The data-access layer depends on this interface; pgx and database/sql
// implementations live in infrastructure/storage.
package tx

import (
	"context"
)

// Manager runs work inside a database transaction.
type Manager interface {
	// RunInTransaction executes fn within a transaction carried by ctx.
	// The transaction is rolled back when fn returns an error and committed otherwise.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
