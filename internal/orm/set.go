package orm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/Masterminds/squirrel"

	"tombstone/internal/core/apperror"
	"tombstone/internal/core/changes"
	"tombstone/internal/core/id"
	"tombstone/internal/domain"
	"tombstone/internal/metadata"
)

// EntitySet reads entities of struct type T.
type EntitySet[T any] struct {
	db  *DbContext
	def *metadata.EntityDef
}

// Set returns the EntitySet of T. T must be registered in the model.
func Set[T any](db *DbContext) (*EntitySet[T], error) {
	def, ok := db.model.LookupType(reflect.TypeFor[T]())
	if !ok {
		return nil, apperror.NewUnknownEntity(reflect.TypeFor[T]().String())
	}
	return &EntitySet[T]{db: db, def: def}, nil
}

// MustSet is Set for wiring code where a missing registration is a programming error.
func MustSet[T any](db *DbContext) *EntitySet[T] {
	s, err := Set[T](db)
	if err != nil {
		panic(err)
	}
	return s
}

// Def returns the entity definition.
func (s *EntitySet[T]) Def() *metadata.EntityDef {
	return s.def
}

// QueryOption adjusts a single read.
type QueryOption func(*queryOptions)

type queryOptions struct {
	ignoreFilters bool
}

// IgnoreQueryFilters bypasses the default predicates for one read.
func IgnoreQueryFilters() QueryOption {
	return func(o *queryOptions) {
		o.ignoreFilters = true
	}
}

func collectOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// baseSelect creates the SELECT with default predicates applied unless ignored.
func (s *EntitySet[T]) baseSelect(ignoreFilters bool) squirrel.SelectBuilder {
	q := s.db.stmts.selectFrom(s.def)
	if !ignoreFilters {
		q = withQueryFilters(q, s.def)
	}
	return q
}

// Find retrieves an entity by ID.
func (s *EntitySet[T]) Find(ctx context.Context, entityID id.ID, opts ...QueryOption) (*T, error) {
	o := collectOptions(opts)

	q := s.baseSelect(o.ignoreFilters).
		Where(squirrel.Eq{metadata.KeyColumn: entityID}).
		Limit(1)

	items, err := s.selectAll(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", s.def.Name, err)
	}
	if len(items) == 0 {
		return nil, apperror.NewNotFound(s.def.Name, entityID.String())
	}
	return items[0], nil
}

// Query builds the filtered SELECT for filter without pagination and ordering.
func (s *EntitySet[T]) Query(filter domain.ListFilter) (squirrel.SelectBuilder, error) {
	q := s.baseSelect(filter.IgnoreQueryFilters)

	if len(filter.IDs) > 0 {
		q = q.Where(squirrel.Eq{metadata.KeyColumn: filter.IDs})
	}
	if filter.Where != nil {
		q = q.Where(conjunct(filter.Where))
	}

	return applyAdvancedFilters(q, s.db.backend.Dialect(), s.def, filter.AdvancedFilters)
}

// List retrieves entities with filtering and pagination.
func (s *EntitySet[T]) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*T], error) {
	result := domain.ListResult[*T]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q, err := s.Query(filter)
	if err != nil {
		return result, err
	}

	total, err := s.count(ctx, q)
	if err != nil {
		return result, err
	}
	result.TotalCount = total

	orderBy, err := parseOrderBy(s.def, filter.OrderBy)
	if err != nil {
		return result, err
	}
	q = q.OrderBy(orderBy)

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	items, err := s.selectAll(ctx, q)
	if err != nil {
		return result, fmt.Errorf("list %s: %w", s.def.Name, err)
	}
	result.Items = items
	return result, nil
}

// Count returns the number of rows matching filter.
func (s *EntitySet[T]) Count(ctx context.Context, filter domain.ListFilter) (int64, error) {
	q, err := s.Query(filter)
	if err != nil {
		return 0, err
	}
	return s.count(ctx, q)
}

func (s *EntitySet[T]) count(ctx context.Context, q squirrel.SelectBuilder) (int64, error) {
	countQ := s.db.backend.Dialect().Builder().
		Select("COUNT(*)").
		FromSelect(q, "sub")

	sql, args, err := countQ.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var counts []int64
	if err := s.db.backend.Querier(ctx).Select(ctx, &counts, sql, args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.def.Name, err)
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0], nil
}

func (s *EntitySet[T]) selectAll(ctx context.Context, q squirrel.SelectBuilder) ([]*T, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*T
	if err := s.db.backend.Querier(ctx).Select(ctx, &items, sql, args...); err != nil {
		return nil, err
	}
	return items, nil
}

// Local returns the entities of T tracked by uow that a query would see:
// pending deletions are excluded and the default predicates are evaluated in memory.
func (s *EntitySet[T]) Local(uow *changes.Tracker, opts ...QueryOption) ([]*T, error) {
	if uow == nil {
		return nil, nil
	}
	o := collectOptions(opts)
	filters := s.def.QueryFilters()

	var out []*T
	for _, e := range uow.Entries() {
		ent, ok := e.Entity().(*T)
		if !ok {
			continue
		}
		if e.State() == changes.Deleted || e.State() == changes.Detached {
			continue
		}

		visible := true
		if !o.ignoreFilters {
			for _, p := range filters {
				match, err := p.Matches(ent)
				if err != nil {
					return nil, err
				}
				if !match {
					visible = false
					break
				}
			}
		}
		if visible {
			out = append(out, ent)
		}
	}
	return out, nil
}
