// Package domain provides the query contracts shared by data-access code and callers.
package domain

import (
	"github.com/Masterminds/squirrel"

	"tombstone/internal/core/id"
	"tombstone/internal/domain/filter"
)

// --- Filter & Pagination ---

// ListFilter contains common filtering options for list operations.
// Every condition is ANDed with the default predicates of the entity type.
type ListFilter struct {
	// IDs filters by specific IDs
	IDs []id.ID

	// Where is an arbitrary caller predicate
	Where squirrel.Sqlizer

	// AdvancedFilters are column conditions on whitelisted columns
	AdvancedFilters []filter.Item

	// IgnoreQueryFilters bypasses the default predicates of the entity type,
	// e.g. to include soft-deleted rows
	IgnoreQueryFilters bool

	// OrderBy specifies sorting (e.g., "name", "-deleted_at")
	OrderBy string

	// Pagination
	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{
		Limit: 50,
	}
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}
