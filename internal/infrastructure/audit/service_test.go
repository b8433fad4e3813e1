package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tombstone/internal/core/changes"
	appctx "tombstone/internal/core/context"
	"tombstone/internal/core/entity"
	"tombstone/internal/core/id"
	"tombstone/internal/infrastructure/storage/sqlite"
	"tombstone/internal/metadata"
	"tombstone/internal/orm"
	"tombstone/internal/softdelete"
	"tombstone/pkg/logger"
)

const testSchema = `
CREATE TABLE sys_audit (
	id                 TEXT PRIMARY KEY,
	entity_type        TEXT NOT NULL,
	entity_id          TEXT NOT NULL,
	action             TEXT NOT NULL,
	actor_id           TEXT NOT NULL DEFAULT '',
	changes            BLOB NULL,
	changes_compressed BLOB NULL,
	compression_algo   TEXT NOT NULL,
	created_at         TIMESTAMP NOT NULL
);
CREATE TABLE notes (
	id         TEXT PRIMARY KEY,
	version    INTEGER NOT NULL DEFAULT 1,
	is_deleted BOOLEAN NOT NULL DEFAULT 0,
	deleted_at TIMESTAMP NULL,
	deleted_by TEXT NULL,
	body       TEXT NOT NULL
);
CREATE TABLE tags (
	id    TEXT PRIMARY KEY,
	label TEXT NOT NULL
);`

type note struct {
	entity.BaseEntity
	entity.SoftDeleteFields
	Body string `db:"body"`
}

type tag struct {
	ID    id.ID  `db:"id"`
	Label string `db:"label"`
}

var startTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	ctx   context.Context
	db    *orm.DbContext
	audit *Service
	clock *testclock.Clock
}

func setupEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	ctx := appctx.WithActor(context.Background(), &appctx.Actor{ID: "user-7"})

	backend, err := sqlite.Open(ctx, sqlite.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	_, err = backend.Raw().ExecContext(ctx, testSchema)
	require.NoError(t, err)

	b := metadata.NewBuilder()
	_, err = metadata.Register[note](b, "notes")
	require.NoError(t, err)
	_, err = metadata.Register[tag](b, "tags")
	require.NoError(t, err)
	require.NoError(t, softdelete.InstallFilters(b))
	model, err := b.Build()
	require.NoError(t, err)

	clk := testclock.NewClock(startTime)
	db := orm.New(backend, model, orm.WithLogger(logger.Nop()))
	softdelete.NewRewriter(softdelete.WithClock(clk), softdelete.WithLogger(logger.Nop())).Register(db.Hooks())

	svc, err := NewService(backend, model, append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	svc.Register(db.Hooks())

	return &testEnv{ctx: ctx, db: db, audit: svc, clock: clk}
}

func (e *testEnv) save(t *testing.T, track func(uow *changes.Tracker)) {
	t.Helper()
	uow := changes.NewTracker()
	track(uow)
	require.NoError(t, e.db.SaveChanges(e.ctx, uow))
	e.clock.Advance(time.Minute)
}

func TestService_RecordsLifecycle(t *testing.T) {
	env := setupEnv(t)
	n := &note{BaseEntity: entity.NewBaseEntity(), Body: "hello"}

	env.save(t, func(uow *changes.Tracker) { uow.Add(n) })
	n.Body = "edited"
	env.save(t, func(uow *changes.Tracker) { uow.Update(n) })
	env.save(t, func(uow *changes.Tracker) { uow.Remove(n) })

	history, err := env.audit.History(env.ctx, "note", n.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, ActionSoftDelete, history[0].Action)
	assert.Equal(t, ActionUpdate, history[1].Action)
	assert.Equal(t, ActionCreate, history[2].Action)
	assert.True(t, startTime.Equal(history[2].CreatedAt))

	for _, e := range history {
		assert.Equal(t, n.ID, e.EntityID)
		assert.Equal(t, "user-7", e.ActorID)
		assert.Equal(t, CompressionNone, e.CompressionAlgo)
	}

	snap, err := history[0].Snapshot()
	require.NoError(t, err)
	assert.Equal(t, true, snap["is_deleted"])
	assert.Equal(t, "edited", snap["body"])

	limited, err := env.audit.History(env.ctx, "note", n.ID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, ActionSoftDelete, limited[0].Action)
}

func TestService_HardDeleteOfPlainEntity(t *testing.T) {
	env := setupEnv(t)
	tg := &tag{ID: id.New(), Label: "x"}

	env.save(t, func(uow *changes.Tracker) { uow.Add(tg) })
	env.save(t, func(uow *changes.Tracker) { uow.Remove(tg) })

	history, err := env.audit.History(env.ctx, "tag", tg.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ActionDelete, history[0].Action)
	assert.Equal(t, ActionCreate, history[1].Action)
}

func TestService_CompressesLargeSnapshots(t *testing.T) {
	env := setupEnv(t, WithCompressThreshold(64))
	n := &note{BaseEntity: entity.NewBaseEntity(), Body: strings.Repeat("lorem ipsum ", 50)}

	env.save(t, func(uow *changes.Tracker) { uow.Add(n) })

	history, err := env.audit.History(env.ctx, "note", n.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, CompressionZstd, history[0].CompressionAlgo)
	assert.Nil(t, history[0].ChangesCompressed)

	snap, err := history[0].Snapshot()
	require.NoError(t, err)
	assert.Equal(t, n.Body, snap["body"])
}

func TestService_FailedSaveLeavesNoAudit(t *testing.T) {
	env := setupEnv(t)
	n := &note{BaseEntity: entity.NewBaseEntity(), Body: "never stored"}

	uow := changes.NewTracker()
	uow.Update(n)
	assert.Error(t, env.db.SaveChanges(env.ctx, uow))

	history, err := env.audit.History(env.ctx, "note", n.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestActionOf(t *testing.T) {
	uow := changes.NewTracker()
	added := uow.Add(&tag{ID: id.New()})
	unchanged := uow.Attach(&tag{ID: id.New()})
	modified := uow.Update(&tag{ID: id.New()})
	deleted := uow.Remove(&tag{ID: id.New()})
	rewritten := uow.Remove(&tag{ID: id.New()})
	rewritten.SetState(changes.Modified)

	tests := []struct {
		name   string
		entry  *changes.Entry
		want   Action
		wantOK bool
	}{
		{"added", added, ActionCreate, true},
		{"unchanged", unchanged, "", false},
		{"modified", modified, ActionUpdate, true},
		{"deleted", deleted, ActionDelete, true},
		{"rewritten delete", rewritten, ActionSoftDelete, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := actionOf(tt.entry)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
