package warehouse

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"tombstone/internal/core/changes"
	"tombstone/internal/domain"
	"tombstone/internal/domain/catalogs"
	"tombstone/internal/orm"
)

// Service provides business logic for the Warehouse catalog.
type Service struct {
	*catalogs.Service[Warehouse]
}

// NewService creates a new Warehouse service.
func NewService(db *orm.DbContext) (*Service, error) {
	base, err := catalogs.NewService[Warehouse](db)
	if err != nil {
		return nil, err
	}

	svc := &Service{Service: base}
	base.Hooks().OnBeforeCreate(svc.clearOtherDefaults)
	base.Hooks().OnBeforeUpdate(svc.clearOtherDefaults)
	base.Hooks().OnBeforeDelete(svc.deactivate)

	return svc, nil
}

// GetDefault returns the default warehouse.
func (s *Service) GetDefault(ctx context.Context) (*Warehouse, error) {
	filter := domain.DefaultListFilter()
	filter.Where = squirrel.Eq{"is_default": true}
	filter.Limit = 1

	res, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return nil, nil
	}
	return res.Items[0], nil
}

// clearOtherDefaults resets the default flag of every other visible warehouse
// in the same unit of work.
func (s *Service) clearOtherDefaults(ctx context.Context, uow *changes.Tracker, wh *Warehouse) error {
	if !wh.IsDefault {
		return nil
	}

	res, err := s.List(ctx, domain.ListFilter{
		Where: squirrel.And{
			squirrel.Eq{"is_default": true},
			squirrel.NotEq{"id": wh.ID},
		},
	})
	if err != nil {
		return fmt.Errorf("load default warehouses: %w", err)
	}

	for _, other := range res.Items {
		other.IsDefault = false
		uow.Update(other)
	}
	return nil
}

// deactivate clears the operational flags; they are saved together with the
// soft-delete update, so a restored warehouse has to be reactivated explicitly.
func (s *Service) deactivate(_ context.Context, _ *changes.Tracker, wh *Warehouse) error {
	wh.IsActive = false
	wh.IsDefault = false
	return nil
}
