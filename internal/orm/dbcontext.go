package orm

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tombstone/internal/core/apperror"
	"tombstone/internal/core/changes"
	"tombstone/internal/core/entity"
	"tombstone/internal/metadata"
	"tombstone/pkg/logger"
)

var tracer = otel.Tracer("tombstone/orm")

// DbContext persists units of work against a backend using a frozen model.
// It is safe for concurrent use; each unit of work must not be shared.
type DbContext struct {
	backend Backend
	model   *metadata.Model
	hooks   *changes.HookRegistry
	stmts   statements
	log     *logger.Logger
}

// Option configures a DbContext.
type Option func(*DbContext)

// WithLogger sets the logger used for persist diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(db *DbContext) {
		db.log = l
	}
}

// New creates a DbContext.
func New(backend Backend, model *metadata.Model, opts ...Option) *DbContext {
	db := &DbContext{
		backend: backend,
		model:   model,
		hooks:   changes.NewHookRegistry(),
		stmts:   statements{dialect: backend.Dialect()},
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Backend returns the storage backend.
func (db *DbContext) Backend() Backend {
	return db.backend
}

// Model returns the frozen model.
func (db *DbContext) Model() *metadata.Model {
	return db.model
}

// Hooks returns the hook registry for external registration.
func (db *DbContext) Hooks() *changes.HookRegistry {
	return db.hooks
}

func (db *DbContext) logger(ctx context.Context) *logger.Logger {
	if db.log != nil {
		return db.log.WithContext(ctx)
	}
	return logger.FromContext(ctx)
}

// SaveChanges persists every pending entry of uow in one transaction.
//
// Before-persist hooks run first and may rewrite entry states. Entities are
// then validated and one statement per entry is issued in tracking order;
// after-persist hooks run inside the same transaction. On success versions are
// synchronised and uow is reset via AcceptChanges. A nil uow is a no-op.
func (db *DbContext) SaveChanges(ctx context.Context, uow *changes.Tracker) error {
	if uow == nil {
		return nil
	}

	ctx, span := tracer.Start(ctx, "orm.SaveChanges",
		trace.WithAttributes(attribute.Int("uow.entries", uow.Len())))
	defer span.End()

	if err := db.hooks.RunBeforePersist(ctx, uow); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "before persist hook")
		return err
	}

	entries := uow.Entries()
	if err := db.validate(ctx, entries); err != nil {
		return err
	}

	var stats saveStats
	err := db.backend.RunInTransaction(ctx, func(ctx context.Context) error {
		q := db.backend.Querier(ctx)
		for _, e := range entries {
			if err := db.persist(ctx, q, e); err != nil {
				return err
			}
			stats.count(e.State())
		}
		return db.hooks.RunAfterPersist(ctx, uow)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save changes")
		return err
	}

	for _, e := range entries {
		if e.State() != changes.Modified {
			continue
		}
		if def, ok := db.model.Lookup(e.Entity()); ok && def.VersionColumn != "" {
			if v, ok := e.Entity().(entity.Versioned); ok {
				v.SetVersion(v.GetVersion() + 1)
			}
		}
	}
	uow.AcceptChanges()

	span.SetAttributes(
		attribute.Int("uow.inserted", stats.inserted),
		attribute.Int("uow.updated", stats.updated),
		attribute.Int("uow.deleted", stats.deleted),
	)
	db.logger(ctx).Debugw("changes saved",
		"inserted", stats.inserted,
		"updated", stats.updated,
		"deleted", stats.deleted,
	)
	return nil
}

// validate runs entity self-validation for inserts and updates.
func (db *DbContext) validate(ctx context.Context, entries []*changes.Entry) error {
	for _, e := range entries {
		if e.State() != changes.Added && e.State() != changes.Modified {
			continue
		}
		v, ok := e.Entity().(entity.Validatable)
		if !ok {
			continue
		}
		if err := v.Validate(ctx); err != nil {
			if _, isApp := apperror.AsAppError(err); isApp {
				return err
			}
			return apperror.NewValidation(err.Error()).WithCause(err)
		}
	}
	return nil
}

// persist issues the statement for one entry.
func (db *DbContext) persist(ctx context.Context, q Querier, e *changes.Entry) error {
	state := e.State()
	if state != changes.Added && state != changes.Modified && state != changes.Deleted {
		return nil
	}

	def, err := db.model.MustLookup(e.Entity())
	if err != nil {
		return err
	}
	values := metadata.ColumnValues(e.Entity())

	switch state {
	case changes.Added:
		stmt, err := db.stmts.insert(def, values)
		if err != nil {
			return err
		}
		sql, args, err := stmt.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert %s: %w", def.Table, err)
		}

	case changes.Modified:
		stmt, err := db.stmts.update(def, values)
		if err != nil {
			return err
		}
		sql, args, err := stmt.ToSql()
		if err != nil {
			return fmt.Errorf("build update: %w", err)
		}
		affected, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("update %s: %w", def.Table, err)
		}
		if affected == 0 {
			if def.VersionColumn != "" {
				return apperror.NewConcurrentModification(def.Name, values[metadata.KeyColumn])
			}
			return apperror.NewNotFound(def.Name, values[metadata.KeyColumn])
		}

	case changes.Deleted:
		stmt, err := db.stmts.delete(def, values)
		if err != nil {
			return err
		}
		sql, args, err := stmt.ToSql()
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		affected, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("delete %s: %w", def.Table, err)
		}
		if affected == 0 {
			return apperror.NewNotFound(def.Name, values[metadata.KeyColumn])
		}
	}

	return nil
}

type saveStats struct {
	inserted, updated, deleted int
}

func (s *saveStats) count(state changes.State) {
	switch state {
	case changes.Added:
		s.inserted++
	case changes.Modified:
		s.updated++
	case changes.Deleted:
		s.deleted++
	}
}
