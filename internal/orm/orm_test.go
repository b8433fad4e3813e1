package orm

import (
	"context"
	"reflect"
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/require"

	"tombstone/internal/core/id"
	"tombstone/internal/metadata"
)

type gadget struct {
	ID        id.ID  `db:"id"`
	Version   int    `db:"version"`
	Name      string `db:"name"`
	IsDeleted bool   `db:"is_deleted"`
}

func (g *gadget) GetVersion() int  { return g.Version }
func (g *gadget) SetVersion(v int) { g.Version = v }

type tag struct {
	ID    id.ID  `db:"id"`
	Label string `db:"label"`
}

func testModel(t *testing.T, withFilter bool) *metadata.Model {
	t.Helper()
	b := metadata.NewBuilder()
	_, err := metadata.Register[gadget](b, "gadgets")
	require.NoError(t, err)
	_, err = metadata.Register[tag](b, "tags")
	require.NoError(t, err)

	if withFilter {
		p, err := metadata.NewPredicate("not_deleted", "row.is_deleted == false", squirrel.Eq{"is_deleted": false})
		require.NoError(t, err)
		require.NoError(t, b.HasQueryFilter(reflect.TypeFor[gadget](), p))
	}

	model, err := b.Build()
	require.NoError(t, err)
	return model
}

type execCall struct {
	sql  string
	args []any
}

// fakeBackend records statements; every Exec affects `affected` rows.
type fakeBackend struct {
	affected  int64
	execErr   error
	calls     []execCall
	committed int
	rolled    int
}

func (b *fakeBackend) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		b.rolled++
		return err
	}
	b.committed++
	return nil
}

func (b *fakeBackend) Querier(ctx context.Context) Querier { return fakeQuerier{b: b} }

func (b *fakeBackend) Dialect() Dialect { return DialectPostgres }

type fakeQuerier struct {
	b *fakeBackend
}

func (q fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	q.b.calls = append(q.b.calls, execCall{sql: sql, args: args})
	if q.b.execErr != nil {
		return 0, q.b.execErr
	}
	return q.b.affected, nil
}

func (q fakeQuerier) Select(ctx context.Context, dest any, sql string, args ...any) error {
	return nil
}
