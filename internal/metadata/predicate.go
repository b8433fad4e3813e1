package metadata

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/cel-go/cel"
)

// RowVariable is the CEL variable bound to an entity's column map.
const RowVariable = "row"

// Predicate is a default query condition attached to an entity type.
// It carries two equivalent forms: SQL for the storage backend and a CEL
// program over the column map for tracked, in-memory entities.
type Predicate struct {
	// Name identifies the predicate; attaching a second predicate with the same name replaces it
	Name string
	// Expr is the CEL source, e.g. `row.is_deleted == false`
	Expr string
	// SQL is the form ANDed into SELECT statements
	SQL squirrel.Sqlizer

	program cel.Program
}

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

func rowEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable(RowVariable, cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

// NewPredicate compiles expr and pairs it with its SQL form.
func NewPredicate(name, expr string, sql squirrel.Sqlizer) (Predicate, error) {
	if name == "" {
		return Predicate{}, fmt.Errorf("predicate name is required")
	}
	if sql == nil {
		return Predicate{}, fmt.Errorf("predicate %s: sql form is required", name)
	}

	env, err := rowEnv()
	if err != nil {
		return Predicate{}, fmt.Errorf("create cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Predicate{}, fmt.Errorf("compile predicate %s: %w", name, iss.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return Predicate{}, fmt.Errorf("program predicate %s: %w", name, err)
	}

	return Predicate{
		Name:    name,
		Expr:    expr,
		SQL:     sql,
		program: prg,
	}, nil
}

// Matches evaluates the predicate against an entity instance.
func (p Predicate) Matches(entity any) (bool, error) {
	if p.program == nil {
		return false, fmt.Errorf("predicate %s is not compiled", p.Name)
	}

	row := celRow(ColumnValues(entity))
	out, _, err := p.program.Eval(map[string]any{RowVariable: row})
	if err != nil {
		return false, fmt.Errorf("evaluate predicate %s: %w", p.Name, err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("predicate %s returned %T, want bool", p.Name, out.Value())
	}
	return b, nil
}

// celRow normalizes column values to types the CEL runtime understands.
func celRow(values map[string]any) map[string]any {
	row := make(map[string]any, len(values))
	for k, v := range values {
		row[k] = celValue(v)
	}
	return row
}

func celValue(v any) any {
	if v == nil {
		return nil
	}
	if t, ok := v.(time.Time); ok {
		return t
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return celValue(rv.Elem().Interface())
	}

	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}
