package entity

import "time"

// SoftDeletable marks an entity type whose deletion is rewritten into an update.
// Any type satisfying it is hidden from default reads once its flag is set.
//
// Entities embed SoftDeleteFields or implement the methods over their own fields.
type SoftDeletable interface {
	// IsDeleted reports the deleted flag.
	IsDeleted() bool

	// GetDeletedAt returns the deletion timestamp, nil while active.
	GetDeletedAt() *time.Time

	// GetDeletedBy returns the identifier of the deleting actor, if the caller set one.
	GetDeletedBy() *string

	// MarkSoftDeleted sets the flag and the timestamp. DeletedBy is left as is.
	MarkSoftDeleted(at time.Time)
}

// Column names used by SoftDeleteFields.
const (
	ColumnIsDeleted = "is_deleted"
	ColumnDeletedAt = "deleted_at"
	ColumnDeletedBy = "deleted_by"
)

// SoftDeleteFields is the embeddable implementation of SoftDeletable.
type SoftDeleteFields struct {
	// Deleted is the soft-delete flag
	Deleted bool `db:"is_deleted" json:"isDeleted" softdelete:"flag"`

	// DeletedAt is set together with Deleted
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty" softdelete:"at"`

	// DeletedBy is populated by the caller before deletion, never automatically
	DeletedBy *string `db:"deleted_by" json:"deletedBy,omitempty" softdelete:"by"`
}

var _ SoftDeletable = (*SoftDeleteFields)(nil)

// IsDeleted returns true if entity has been soft-deleted.
func (s *SoftDeleteFields) IsDeleted() bool {
	return s.Deleted
}

// GetDeletedAt returns the deletion timestamp.
func (s *SoftDeleteFields) GetDeletedAt() *time.Time {
	return s.DeletedAt
}

// GetDeletedBy returns the deleting actor.
func (s *SoftDeleteFields) GetDeletedBy() *string {
	return s.DeletedBy
}

// MarkSoftDeleted sets the flag and the UTC deletion timestamp.
func (s *SoftDeleteFields) MarkSoftDeleted(at time.Time) {
	at = at.UTC()
	s.Deleted = true
	s.DeletedAt = &at
}

// SetDeletedBy records who deletes the entity. Call before removing it.
func (s *SoftDeleteFields) SetDeletedBy(actor string) {
	if actor == "" {
		s.DeletedBy = nil
		return
	}
	s.DeletedBy = &actor
}

// Restore clears the flag and the timestamp.
// The entity still has to be marked modified and saved by the caller.
func (s *SoftDeleteFields) Restore() {
	s.Deleted = false
	s.DeletedAt = nil
	s.DeletedBy = nil
}
