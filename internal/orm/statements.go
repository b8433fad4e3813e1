package orm

import (
	"fmt"

	"github.com/Masterminds/squirrel"

	"tombstone/internal/metadata"
)

// statements builds the SQL issued for tracked entries.
type statements struct {
	dialect Dialect
}

func (s statements) builder() squirrel.StatementBuilderType {
	return s.dialect.Builder()
}

// insert builds INSERT of every mapped column.
func (s statements) insert(def *metadata.EntityDef, values map[string]any) (squirrel.InsertBuilder, error) {
	data := make(map[string]any, len(def.Fields))
	for _, col := range def.Columns() {
		if val, ok := values[col]; ok {
			data[col] = val
		}
	}
	if len(data) == 0 {
		return squirrel.InsertBuilder{}, fmt.Errorf("no db tags found in %s", def.Type)
	}

	return s.builder().
		Insert(def.Table).
		SetMap(data), nil
}

// update builds UPDATE of every non-key column. Versioned entities get an
// optimistic lock on the version they were loaded with.
func (s statements) update(def *metadata.EntityDef, values map[string]any) (squirrel.UpdateBuilder, error) {
	entityID, ok := values[metadata.KeyColumn]
	if !ok {
		return squirrel.UpdateBuilder{}, fmt.Errorf("entity %s has no 'id' field with db tag", def.Type)
	}

	data := make(map[string]any, len(def.Fields))
	for _, col := range def.Columns() {
		if col == metadata.KeyColumn || col == def.VersionColumn {
			continue
		}
		if val, ok := values[col]; ok {
			data[col] = val
		}
	}

	q := s.builder().
		Update(def.Table).
		SetMap(data).
		Where(squirrel.Eq{metadata.KeyColumn: entityID})

	if def.VersionColumn != "" {
		version, ok := values[def.VersionColumn].(int)
		if !ok {
			return squirrel.UpdateBuilder{}, fmt.Errorf("entity %s has no int 'version' field", def.Type)
		}
		q = q.
			Set(def.VersionColumn, squirrel.Expr(def.VersionColumn+" + 1")).
			Where(squirrel.Eq{def.VersionColumn: version})
	}

	return q, nil
}

// delete builds DELETE by key.
func (s statements) delete(def *metadata.EntityDef, values map[string]any) (squirrel.DeleteBuilder, error) {
	entityID, ok := values[metadata.KeyColumn]
	if !ok {
		return squirrel.DeleteBuilder{}, fmt.Errorf("entity %s has no 'id' field with db tag", def.Type)
	}
	return s.builder().
		Delete(def.Table).
		Where(squirrel.Eq{metadata.KeyColumn: entityID}), nil
}

// selectFrom builds SELECT of every mapped column.
func (s statements) selectFrom(def *metadata.EntityDef) squirrel.SelectBuilder {
	return s.builder().
		Select(def.Columns()...).
		From(def.Table)
}

// withQueryFilters ANDs the default predicates of def into q.
func withQueryFilters(q squirrel.SelectBuilder, def *metadata.EntityDef) squirrel.SelectBuilder {
	for _, p := range def.QueryFilters() {
		q = q.Where(conjunct(p.SQL))
	}
	return q
}

// conjunct parenthesizes s, so a top-level OR in it stays inside its own
// term of the WHERE conjunction.
func conjunct(s squirrel.Sqlizer) squirrel.Sqlizer {
	return squirrel.And{s}
}
