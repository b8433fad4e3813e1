package softdelete

import (
	"fmt"
	"reflect"

	"github.com/Masterminds/squirrel"

	"tombstone/internal/core/apperror"
	"tombstone/internal/core/entity"
	"tombstone/internal/metadata"
)

// FilterName names the predicate attached by InstallFilters.
const FilterName = "soft_delete"

// TagKey is the struct tag key marking soft-delete fields ("flag", "at", "by").
const TagKey = "softdelete"

var softDeletableType = reflect.TypeFor[entity.SoftDeletable]()

// Columns are the storage columns of the soft-delete fields of one entity type.
type Columns struct {
	Flag string
	At   string
	By   string
}

// IsSoftDeletable reports whether the entity type implements the marker.
func IsSoftDeletable(def *metadata.EntityDef) bool {
	return def.Implements(softDeletableType)
}

// ColumnsOf resolves the soft-delete columns of def from `softdelete` tags,
// falling back to the conventional column names.
func ColumnsOf(def *metadata.EntityDef) (Columns, error) {
	cols := Columns{
		Flag: resolveColumn(def, "flag", entity.ColumnIsDeleted),
		At:   resolveColumn(def, "at", entity.ColumnDeletedAt),
		By:   resolveColumn(def, "by", entity.ColumnDeletedBy),
	}
	if cols.Flag == "" {
		return Columns{}, apperror.NewValidation("soft-deletable entity has no deleted flag column").
			WithDetail("entity", def.Name).
			WithDetail("type", def.Type.String())
	}
	return cols, nil
}

func resolveColumn(def *metadata.EntityDef, role, fallback string) string {
	if col, ok := def.TaggedColumn(TagKey, role); ok {
		return col
	}
	if def.HasColumn(fallback) {
		return fallback
	}
	return ""
}

// NotDeletedPredicate builds "flag == false" in CEL and SQL form.
func NotDeletedPredicate(flagColumn string) (metadata.Predicate, error) {
	return metadata.NewPredicate(
		FilterName,
		fmt.Sprintf("%s.%s == false", metadata.RowVariable, flagColumn),
		squirrel.Eq{flagColumn: false},
	)
}

// InstallFilters attaches the not-deleted predicate to every registered
// soft-deletable entity type. Call it once, before Build. Types without the
// marker get no predicate. A built model is rejected with MODEL_FROZEN.
func InstallFilters(b *metadata.Builder) error {
	if b.Frozen() {
		return apperror.NewModelFrozen("install soft delete filters")
	}

	for _, def := range b.Entities() {
		if !IsSoftDeletable(def) {
			continue
		}

		cols, err := ColumnsOf(def)
		if err != nil {
			return err
		}

		p, err := NotDeletedPredicate(cols.Flag)
		if err != nil {
			return fmt.Errorf("soft delete filter for %s: %w", def.Name, err)
		}

		if err := b.HasQueryFilter(def.Type, p); err != nil {
			return err
		}
	}
	return nil
}
