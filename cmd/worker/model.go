package main

import (
	"tombstone/internal/domain/catalogs/unit"
	"tombstone/internal/domain/catalogs/warehouse"
	"tombstone/internal/metadata"
	"tombstone/internal/softdelete"
)

// setupModel registers the catalog entities and installs the soft-delete filters.
func setupModel() (*metadata.Model, error) {
	b := metadata.NewBuilder()

	if _, err := metadata.Register[warehouse.Warehouse](b, warehouse.Table); err != nil {
		return nil, err
	}
	if _, err := metadata.Register[unit.Unit](b, unit.Table); err != nil {
		return nil, err
	}

	if err := softdelete.InstallFilters(b); err != nil {
		return nil, err
	}
	return b.Build()
}
