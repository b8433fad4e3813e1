// Package id provides UUIDv7 identifiers for persisted entities.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// New generates a new time-ordered UUIDv7.
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to V4 if V7 fails (should never happen)
		return uuid.New()
	}
	return id
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// Nil returns zero-value UUID.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if ID is zero-value.
func IsNil(id ID) bool {
	return id == uuid.Nil
}

// FromValue converts a column value (ID, *ID, string or bytes) into an ID.
func FromValue(v any) (ID, error) {
	switch t := v.(type) {
	case ID:
		return t, nil
	case *ID:
		if t == nil {
			return uuid.Nil, fmt.Errorf("nil id")
		}
		return *t, nil
	case string:
		return uuid.Parse(t)
	case []byte:
		if len(t) == 16 {
			return uuid.FromBytes(t)
		}
		return uuid.ParseBytes(t)
	default:
		return uuid.Nil, fmt.Errorf("unsupported id type %T", v)
	}
}
