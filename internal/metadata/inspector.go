package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"tombstone/internal/core/apperror"
)

// Conventional column names recognised by the inspector.
const (
	KeyColumn     = "id"
	VersionColumn = "version"
)

// FieldDef describes one mapped struct field.
type FieldDef struct {
	// Name is the Go field name
	Name string
	// Column is the "db" tag value
	Column string
	// Tag is the full struct tag, for add-ons reading their own keys
	Tag reflect.StructTag
}

// Inspect analyzes a struct type and returns its EntityDef.
// table is required; name defaults to the snake_case type name.
func Inspect(t reflect.Type, table, name string) (*EntityDef, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, apperror.NewValidation("entity must be a struct").
			WithDetail("type", t.String())
	}
	if table == "" {
		return nil, apperror.NewValidation("table name is required").
			WithDetail("type", t.String())
	}
	if name == "" {
		name = snakeCase(t.Name())
	}

	def := &EntityDef{
		Name:   name,
		Table:  table,
		Type:   t,
		Fields: fieldsOf(t),
	}

	seen := make(map[string]struct{}, len(def.Fields))
	for _, f := range def.Fields {
		if _, dup := seen[f.Column]; dup {
			return nil, apperror.NewValidation(fmt.Sprintf("duplicate column %q", f.Column)).
				WithDetail("type", t.String())
		}
		seen[f.Column] = struct{}{}
	}

	if _, ok := seen[KeyColumn]; !ok {
		return nil, apperror.NewValidation("entity has no 'id' column").
			WithDetail("type", t.String())
	}
	if _, ok := seen[VersionColumn]; ok {
		def.VersionColumn = VersionColumn
	}

	return def, nil
}

// TaggedColumn returns the column whose struct tag key has the given value,
// e.g. TaggedColumn("softdelete", "flag").
func (d *EntityDef) TaggedColumn(key, value string) (string, bool) {
	for _, f := range d.Fields {
		if f.Tag.Get(key) == value {
			return f.Column, true
		}
	}
	return "", false
}

// HasColumn reports whether the entity maps col.
func (d *EntityDef) HasColumn(col string) bool {
	for _, f := range d.Fields {
		if f.Column == col {
			return true
		}
	}
	return false
}

func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
