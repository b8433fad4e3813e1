// Package metadata describes the persisted entity types: their tables, mapped
// columns and the default query predicates attached during model configuration.
//
// A Builder is used once at startup; Build freezes it into a read-only Model
// that is safe for concurrent use.
package metadata

import (
	"reflect"

	"tombstone/internal/core/apperror"
)

// EntityDef describes a persisted entity type.
// Fields are read-only once the model is built.
type EntityDef struct {
	// Name is the logical entity name (audit, logs)
	Name string
	// Table is the storage table
	Table string
	// Type is the struct type (never a pointer)
	Type reflect.Type
	// Fields are the mapped fields in declaration order
	Fields []FieldDef
	// VersionColumn is set when the entity carries an optimistic-locking version
	VersionColumn string

	filters []Predicate
}

// Columns returns mapped column names in declaration order.
func (d *EntityDef) Columns() []string {
	cols := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		cols[i] = f.Column
	}
	return cols
}

// QueryFilters returns the default predicates ANDed into every query.
func (d *EntityDef) QueryFilters() []Predicate {
	out := make([]Predicate, len(d.filters))
	copy(out, d.filters)
	return out
}

// HasQueryFilters reports whether any default predicate is attached.
func (d *EntityDef) HasQueryFilters() bool {
	return len(d.filters) > 0
}

// Implements reports whether a pointer to the entity type implements iface.
func (d *EntityDef) Implements(iface reflect.Type) bool {
	return reflect.PointerTo(d.Type).Implements(iface) || d.Type.Implements(iface)
}

// Builder collects entity definitions during model configuration.
type Builder struct {
	defs   map[reflect.Type]*EntityDef
	order  []*EntityDef
	frozen bool
}

// NewBuilder creates an empty model builder.
func NewBuilder() *Builder {
	return &Builder{
		defs: make(map[reflect.Type]*EntityDef),
	}
}

// Register adds entity type T (struct or pointer to struct) mapped to table.
func Register[T any](b *Builder, table string) (*EntityDef, error) {
	return b.Entity(reflect.TypeFor[T](), table, "")
}

// Entity adds an entity type mapped to table. Registering a type twice
// returns the existing definition when the table matches.
func (b *Builder) Entity(t reflect.Type, table, name string) (*EntityDef, error) {
	if b.frozen {
		return nil, apperror.NewModelFrozen("register entity")
	}

	def, err := Inspect(t, table, name)
	if err != nil {
		return nil, err
	}

	if existing, ok := b.defs[def.Type]; ok {
		if existing.Table != def.Table {
			return nil, apperror.NewConflict("entity type registered with another table").
				WithDetail("type", def.Type.String()).
				WithDetail("table", existing.Table)
		}
		return existing, nil
	}

	b.defs[def.Type] = def
	b.order = append(b.order, def)
	return def, nil
}

// Entities returns registered definitions in registration order.
func (b *Builder) Entities() []*EntityDef {
	out := make([]*EntityDef, len(b.order))
	copy(out, b.order)
	return out
}

// HasQueryFilter attaches a default predicate to an entity type.
func (b *Builder) HasQueryFilter(t reflect.Type, p Predicate) error {
	if b.frozen {
		return apperror.NewModelFrozen("add query filter")
	}

	def, ok := b.defs[structType(t)]
	if !ok {
		return apperror.NewUnknownEntity(t.String())
	}

	for i, existing := range def.filters {
		if existing.Name == p.Name {
			def.filters[i] = p
			return nil
		}
	}
	def.filters = append(def.filters, p)
	return nil
}

// Frozen reports whether Build has been called.
func (b *Builder) Frozen() bool {
	return b.frozen
}

// Build freezes the builder and returns the read-only model.
func (b *Builder) Build() (*Model, error) {
	if b.frozen {
		return nil, apperror.NewModelFrozen("build")
	}
	b.frozen = true

	m := &Model{
		defs:  make(map[reflect.Type]*EntityDef, len(b.defs)),
		order: make([]*EntityDef, len(b.order)),
	}
	for t, def := range b.defs {
		m.defs[t] = def
	}
	copy(m.order, b.order)
	return m, nil
}

// Model is the frozen set of entity definitions.
type Model struct {
	defs  map[reflect.Type]*EntityDef
	order []*EntityDef
}

// Lookup returns the definition for an entity value or pointer.
func (m *Model) Lookup(entity any) (*EntityDef, bool) {
	if entity == nil {
		return nil, false
	}
	return m.LookupType(reflect.TypeOf(entity))
}

// LookupType returns the definition for a struct or pointer type.
func (m *Model) LookupType(t reflect.Type) (*EntityDef, bool) {
	def, ok := m.defs[structType(t)]
	return def, ok
}

// MustLookup returns the definition or an UNKNOWN_ENTITY error.
func (m *Model) MustLookup(entity any) (*EntityDef, error) {
	if def, ok := m.Lookup(entity); ok {
		return def, nil
	}
	return nil, apperror.NewUnknownEntity(reflect.TypeOf(entity).String())
}

// Entities returns all definitions in registration order.
func (m *Model) Entities() []*EntityDef {
	out := make([]*EntityDef, len(m.order))
	copy(out, m.order)
	return out
}

func structType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
