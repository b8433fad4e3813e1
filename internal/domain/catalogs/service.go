package catalogs

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"tombstone/internal/core/apperror"
	"tombstone/internal/core/changes"
	appctx "tombstone/internal/core/context"
	"tombstone/internal/core/entity"
	"tombstone/internal/core/id"
	"tombstone/internal/domain"
	"tombstone/internal/orm"
	"tombstone/internal/softdelete"
)

// actorRecorder is implemented by soft-deletable entities that record who
// deleted them (entity.SoftDeleteFields).
type actorRecorder interface {
	SetDeletedBy(actor string)
}

// restorer is implemented by entities that can leave the soft-deleted state.
type restorer interface {
	entity.SoftDeletable
	Restore()
}

// Service provides CRUD for catalog entities of struct type T.
// Every call persists its own unit of work.
type Service[T any] struct {
	db    *orm.DbContext
	set   *orm.EntitySet[T]
	hooks *HookRegistry[*T]

	// entityName for error messages
	entityName string
}

// NewService creates a catalog service. T must be registered in the model.
func NewService[T any](db *orm.DbContext) (*Service[T], error) {
	set, err := orm.Set[T](db)
	if err != nil {
		return nil, err
	}
	return &Service[T]{
		db:         db,
		set:        set,
		hooks:      NewHookRegistry[*T](),
		entityName: set.Def().Name,
	}, nil
}

// Hooks returns the hook registry for external registration.
func (s *Service[T]) Hooks() *HookRegistry[*T] {
	return s.hooks
}

// Set returns the underlying entity set.
func (s *Service[T]) Set() *orm.EntitySet[T] {
	return s.set
}

// Create inserts a new entity.
func (s *Service[T]) Create(ctx context.Context, e *T) error {
	uow := changes.NewTracker()
	uow.Add(e)

	if err := s.hooks.Run(ctx, BeforeCreate, uow, e); err != nil {
		return err
	}
	if err := s.db.SaveChanges(ctx, uow); err != nil {
		return fmt.Errorf("create %s: %w", s.entityName, err)
	}
	return nil
}

// GetByID retrieves a visible entity by ID.
func (s *Service[T]) GetByID(ctx context.Context, entityID id.ID, opts ...orm.QueryOption) (*T, error) {
	e, err := s.set.Find(ctx, entityID, opts...)
	if err != nil {
		return nil, s.normalizeGetErr(err, entityID.String())
	}
	return e, nil
}

// List retrieves visible entities with filtering.
func (s *Service[T]) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*T], error) {
	return s.set.List(ctx, filter)
}

// ListDeleted retrieves soft-deleted entities only.
func (s *Service[T]) ListDeleted(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*T], error) {
	if !softdelete.IsSoftDeletable(s.set.Def()) {
		return domain.ListResult[*T]{Items: []*T{}, Limit: filter.Limit, Offset: filter.Offset}, nil
	}
	cols, err := softdelete.ColumnsOf(s.set.Def())
	if err != nil {
		return domain.ListResult[*T]{}, err
	}

	deleted := squirrel.Eq{cols.Flag: true}
	if filter.Where != nil {
		filter.Where = squirrel.And{filter.Where, deleted}
	} else {
		filter.Where = deleted
	}
	filter.IgnoreQueryFilters = true
	return s.set.List(ctx, filter)
}

// Update persists changes of an existing entity under optimistic locking.
func (s *Service[T]) Update(ctx context.Context, e *T) error {
	uow := changes.NewTracker()
	uow.Update(e)

	if err := s.hooks.Run(ctx, BeforeUpdate, uow, e); err != nil {
		return err
	}
	if err := s.db.SaveChanges(ctx, uow); err != nil {
		return fmt.Errorf("update %s: %w", s.entityName, err)
	}
	return nil
}

// Delete removes an entity. The actor in ctx, if any, is recorded as the
// deleting actor of soft-deletable entities.
func (s *Service[T]) Delete(ctx context.Context, entityID id.ID) error {
	return s.DeleteAs(ctx, entityID, appctx.GetActorID(ctx))
}

// DeleteAs removes an entity on behalf of actor. Soft-deletable entities are
// flagged by the soft-delete hook; others are removed from storage.
func (s *Service[T]) DeleteAs(ctx context.Context, entityID id.ID, actor string) error {
	e, err := s.GetByID(ctx, entityID)
	if err != nil {
		return err
	}

	if rec, ok := any(e).(actorRecorder); ok && actor != "" {
		rec.SetDeletedBy(actor)
	}

	uow := changes.NewTracker()
	uow.Remove(e)

	if err := s.hooks.Run(ctx, BeforeDelete, uow, e); err != nil {
		return err
	}
	if err := s.db.SaveChanges(ctx, uow); err != nil {
		return fmt.Errorf("delete %s: %w", s.entityName, err)
	}
	return nil
}

// Restore brings a soft-deleted entity back into default reads.
func (s *Service[T]) Restore(ctx context.Context, entityID id.ID) (*T, error) {
	e, err := s.GetByID(ctx, entityID, orm.IgnoreQueryFilters())
	if err != nil {
		return nil, err
	}

	r, ok := any(e).(restorer)
	if !ok {
		return nil, apperror.NewValidation("entity does not support restore").
			WithDetail("entity", s.entityName)
	}
	if !r.IsDeleted() {
		return e, nil
	}

	r.Restore()
	if err := s.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service[T]) normalizeGetErr(err error, entityID any) error {
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound(s.entityName, entityID)
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	return apperror.NewInternal(err).WithDetail("entity", s.entityName).WithDetail("id", entityID)
}
