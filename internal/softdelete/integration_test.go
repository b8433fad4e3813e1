package softdelete

import (
	"context"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tombstone/internal/core/apperror"
	"tombstone/internal/core/changes"
	"tombstone/internal/core/entity"
	"tombstone/internal/domain"
	"tombstone/internal/domain/filter"
	"tombstone/internal/infrastructure/storage/sqlite"
	"tombstone/internal/metadata"
	"tombstone/internal/orm"
	"tombstone/pkg/logger"
)

const testSchema = `
CREATE TABLE archive_items (
	id         TEXT PRIMARY KEY,
	version    INTEGER NOT NULL DEFAULT 1,
	is_deleted BOOLEAN NOT NULL DEFAULT 0,
	deleted_at TIMESTAMP NULL,
	deleted_by TEXT NULL,
	name       TEXT NOT NULL
);
CREATE TABLE plain_items (
	id      TEXT PRIMARY KEY,
	version INTEGER NOT NULL DEFAULT 1,
	name    TEXT NOT NULL
);`

type testEnv struct {
	ctx     context.Context
	backend *sqlite.DB
	db      *orm.DbContext
	clock   *testclock.Clock
	archive *orm.EntitySet[archiveItem]
	plain   *orm.EntitySet[plainItem]
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	backend, err := sqlite.Open(ctx, sqlite.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	_, err = backend.Raw().ExecContext(ctx, testSchema)
	require.NoError(t, err)

	b := metadata.NewBuilder()
	_, err = metadata.Register[archiveItem](b, "archive_items")
	require.NoError(t, err)
	_, err = metadata.Register[plainItem](b, "plain_items")
	require.NoError(t, err)
	require.NoError(t, InstallFilters(b))
	model, err := b.Build()
	require.NoError(t, err)

	clk := testclock.NewClock(fixedNow)
	db := orm.New(backend, model, orm.WithLogger(logger.Nop()))
	NewRewriter(WithClock(clk), WithLogger(logger.Nop())).Register(db.Hooks())

	return &testEnv{
		ctx:     ctx,
		backend: backend,
		db:      db,
		clock:   clk,
		archive: orm.MustSet[archiveItem](db),
		plain:   orm.MustSet[plainItem](db),
	}
}

func (e *testEnv) insertArchive(t *testing.T, names ...string) []*archiveItem {
	t.Helper()
	uow := changes.NewTracker()
	items := make([]*archiveItem, 0, len(names))
	for _, name := range names {
		item := &archiveItem{BaseEntity: entity.NewBaseEntity(), Name: name}
		uow.Add(item)
		items = append(items, item)
	}
	require.NoError(t, e.db.SaveChanges(e.ctx, uow))
	return items
}

func (e *testEnv) remove(t *testing.T, entities ...any) {
	t.Helper()
	uow := changes.NewTracker()
	for _, ent := range entities {
		uow.Remove(ent)
	}
	require.NoError(t, e.db.SaveChanges(e.ctx, uow))
}

func TestSoftDelete_SingleEntity(t *testing.T) {
	env := setupEnv(t)
	item := env.insertArchive(t, "a")[0]

	env.remove(t, item)

	// the row survives with the flag and timestamp set
	stored, err := env.archive.Find(env.ctx, item.ID, orm.IgnoreQueryFilters())
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())
	require.NotNil(t, stored.GetDeletedAt())
	assert.True(t, fixedNow.Equal(*stored.GetDeletedAt()))
	assert.Nil(t, stored.GetDeletedBy())
	assert.Equal(t, 2, stored.Version)

	// the in-memory entity was synchronised
	assert.True(t, item.IsDeleted())
	assert.Equal(t, 2, item.Version)

	// and default reads no longer see it
	_, err = env.archive.Find(env.ctx, item.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestSoftDelete_DefaultVisibility(t *testing.T) {
	env := setupEnv(t)
	items := env.insertArchive(t, "a", "b", "c")

	env.remove(t, items[0], items[2])

	visible, err := env.archive.List(env.ctx, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, visible.Items, 1)
	assert.Equal(t, items[1].ID, visible.Items[0].ID)
	assert.Equal(t, int64(1), visible.TotalCount)

	all, err := env.archive.List(env.ctx, domain.ListFilter{IgnoreQueryFilters: true, OrderBy: "name"})
	require.NoError(t, err)
	require.Len(t, all.Items, 3)
	assert.Equal(t, int64(3), all.TotalCount)
	assert.Equal(t, "a", all.Items[0].Name)
	assert.True(t, all.Items[0].IsDeleted())
	assert.False(t, all.Items[1].IsDeleted())

	count, err := env.archive.Count(env.ctx, domain.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSoftDelete_CallerPredicateIsAnded(t *testing.T) {
	env := setupEnv(t)
	items := env.insertArchive(t, "a", "b")
	env.remove(t, items[0])

	res, err := env.archive.List(env.ctx, domain.ListFilter{Where: squirrel.Eq{"name": "a"}})
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	res, err = env.archive.List(env.ctx, domain.ListFilter{
		Where:              squirrel.Eq{"name": "a"},
		IgnoreQueryFilters: true,
	})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
}

func TestSoftDelete_CallerDisjunctionIsAnded(t *testing.T) {
	env := setupEnv(t)
	items := env.insertArchive(t, "a", "b", "c")
	env.remove(t, items[1])

	tests := []struct {
		name   string
		filter domain.ListFilter
		want   []string
	}{
		{
			name:   "raw or",
			filter: domain.ListFilter{Where: squirrel.Expr("name = ? OR name = ?", "a", "b")},
			want:   []string{"a"},
		},
		{
			name:   "squirrel or",
			filter: domain.ListFilter{Where: squirrel.Or{squirrel.Eq{"name": "b"}, squirrel.Eq{"name": "c"}}},
			want:   []string{"c"},
		},
		{
			name: "advanced filter",
			filter: domain.ListFilter{AdvancedFilters: []filter.Item{
				{Field: "name", Operator: filter.InList, Value: []string{"a", "b"}},
			}},
			want: []string{"a"},
		},
		{
			name: "or with advanced filter",
			filter: domain.ListFilter{
				Where: squirrel.Expr("name = ? OR name = ?", "a", "b"),
				AdvancedFilters: []filter.Item{
					{Field: "name", Operator: filter.Contains, Value: "b"},
				},
			},
			want: []string{},
		},
		{
			name: "bypass keeps the or",
			filter: domain.ListFilter{
				Where:              squirrel.Expr("name = ? OR name = ?", "a", "b"),
				IgnoreQueryFilters: true,
			},
			want: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.filter
			f.OrderBy = "name"

			res, err := env.archive.List(env.ctx, f)
			require.NoError(t, err)
			names := make([]string, 0, len(res.Items))
			for _, item := range res.Items {
				names = append(names, item.Name)
				if !tt.filter.IgnoreQueryFilters {
					assert.False(t, item.IsDeleted(), item.Name)
				}
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, int64(len(tt.want)), res.TotalCount)

			count, err := env.archive.Count(env.ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.want)), count)
		})
	}
}

func TestSoftDelete_PreservesCallerDeletedBy(t *testing.T) {
	env := setupEnv(t)
	item := env.insertArchive(t, "a")[0]

	item.SetDeletedBy("user-42")
	env.remove(t, item)

	stored, err := env.archive.Find(env.ctx, item.ID, orm.IgnoreQueryFilters())
	require.NoError(t, err)
	require.NotNil(t, stored.GetDeletedBy())
	assert.Equal(t, "user-42", *stored.GetDeletedBy())
}

func TestSoftDelete_UpdateDoesNotFlag(t *testing.T) {
	env := setupEnv(t)
	item := env.insertArchive(t, "a")[0]

	item.Name = "renamed"
	uow := changes.NewTracker()
	uow.Update(item)
	require.NoError(t, env.db.SaveChanges(env.ctx, uow))

	stored, err := env.archive.Find(env.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Name)
	assert.False(t, stored.IsDeleted())
	assert.Nil(t, stored.GetDeletedAt())
}

func TestSoftDelete_NonMarkerIsHardDeleted(t *testing.T) {
	env := setupEnv(t)
	plain := &plainItem{BaseEntity: entity.NewBaseEntity(), Name: "p"}
	uow := changes.NewTracker()
	uow.Add(plain)
	require.NoError(t, env.db.SaveChanges(env.ctx, uow))

	env.remove(t, plain)

	count, err := env.plain.Count(env.ctx, domain.ListFilter{IgnoreQueryFilters: true})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSoftDelete_MixedUnitOfWork(t *testing.T) {
	env := setupEnv(t)
	archived := env.insertArchive(t, "a")[0]
	plain := &plainItem{BaseEntity: entity.NewBaseEntity(), Name: "p"}
	uow := changes.NewTracker()
	uow.Add(plain)
	require.NoError(t, env.db.SaveChanges(env.ctx, uow))

	env.remove(t, archived, plain)

	all, err := env.archive.Count(env.ctx, domain.ListFilter{IgnoreQueryFilters: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), all)

	plains, err := env.plain.Count(env.ctx, domain.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, plains)
}

func TestSoftDelete_Restore(t *testing.T) {
	env := setupEnv(t)
	item := env.insertArchive(t, "a")[0]
	env.remove(t, item)

	stored, err := env.archive.Find(env.ctx, item.ID, orm.IgnoreQueryFilters())
	require.NoError(t, err)
	stored.Restore()

	uow := changes.NewTracker()
	uow.Update(stored)
	require.NoError(t, env.db.SaveChanges(env.ctx, uow))

	visible, err := env.archive.Find(env.ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, visible.IsDeleted())
	assert.Nil(t, visible.GetDeletedAt())
	assert.Equal(t, 3, visible.Version)
}

func TestSoftDelete_StaleVersion(t *testing.T) {
	env := setupEnv(t)
	item := env.insertArchive(t, "a")[0]

	stale := *item
	item.Name = "renamed"
	uow := changes.NewTracker()
	uow.Update(item)
	require.NoError(t, env.db.SaveChanges(env.ctx, uow))

	uow = changes.NewTracker()
	uow.Remove(&stale)
	err := env.db.SaveChanges(env.ctx, uow)
	assert.True(t, apperror.IsConcurrentModification(err))

	visible, err := env.archive.Find(env.ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, visible.IsDeleted())
}

func TestSoftDelete_LocalView(t *testing.T) {
	env := setupEnv(t)
	items := env.insertArchive(t, "a", "b")

	uow := changes.NewTracker()
	uow.Attach(items[0])
	uow.Remove(items[1])
	fresh := &archiveItem{BaseEntity: entity.NewBaseEntity(), Name: "c"}
	uow.Add(fresh)

	local, err := env.archive.Local(uow)
	require.NoError(t, err)
	assert.ElementsMatch(t, []*archiveItem{items[0], fresh}, local)

	// after the rewrite the entry is Modified but flagged, so still hidden
	NewRewriter(WithClock(env.clock)).Rewrite(uow)
	local, err = env.archive.Local(uow)
	require.NoError(t, err)
	assert.ElementsMatch(t, []*archiveItem{items[0], fresh}, local)

	local, err = env.archive.Local(uow, orm.IgnoreQueryFilters())
	require.NoError(t, err)
	assert.Len(t, local, 3)
}

func TestPurger_RemovesExpiredRows(t *testing.T) {
	env := setupEnv(t)
	items := env.insertArchive(t, "old", "recent", "active")

	env.remove(t, items[0])
	// the rewriter shares the clock, so the second delete is stamped a day later
	env.clock.Advance(24 * time.Hour)
	env.remove(t, items[1])

	env.clock.Advance(12 * time.Hour)
	purger := NewPurger(env.backend, env.db.Model(),
		WithPurgeClock(env.clock),
		WithPurgeLogger(logger.Nop()),
	)

	removed, err := purger.Purge(env.ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"archive_items": 1}, removed)

	_, err = env.archive.Find(env.ctx, items[0].ID, orm.IgnoreQueryFilters())
	assert.True(t, apperror.IsNotFound(err))

	recent, err := env.archive.Find(env.ctx, items[1].ID, orm.IgnoreQueryFilters())
	require.NoError(t, err)
	assert.True(t, recent.IsDeleted())

	_, err = env.archive.Find(env.ctx, items[2].ID)
	require.NoError(t, err)
}

func TestPurger_InvalidRetention(t *testing.T) {
	env := setupEnv(t)
	purger := NewPurger(env.backend, env.db.Model(), WithPurgeLogger(logger.Nop()))

	for _, retention := range []time.Duration{0, -time.Hour} {
		_, err := purger.Purge(env.ctx, retention)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation), retention.String())
	}
}
