// Package entity provides the base types shared by all persisted entities.
package entity

import (
	"context"

	"tombstone/internal/core/id"
)

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants (without database access).
type Validatable interface {
	// Validate checks entity invariants.
	// Returns nil if valid, AppError with details otherwise.
	Validate(ctx context.Context) error
}

///////////////////
// Base Entity   //
///////////////////

// BaseEntity contains the key and concurrency token of every entity.
type BaseEntity struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version" json:"version"`
}

// NewBaseEntity creates a new BaseEntity with generated ID.
func NewBaseEntity() BaseEntity {
	return BaseEntity{
		ID:      id.New(),
		Version: 1,
	}
}

// SetVersion updates the version number (used by the data-access layer after sync).
func (b *BaseEntity) SetVersion(v int) {
	b.Version = v
}

// GetVersion returns the current concurrency token.
func (b *BaseEntity) GetVersion() int {
	return b.Version
}

// Versioned is implemented by entities carrying an optimistic-locking version.
type Versioned interface {
	GetVersion() int
	SetVersion(v int)
}
