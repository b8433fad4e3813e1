// Package softdelete turns entity deletion into a flagged update and hides
// flagged rows from default reads.
//
// Two procedures plug into the data-access layer:
//
//   - Rewriter.BeforePersist runs as a before-persist hook. Every pending
//     delete of an entity implementing entity.SoftDeletable becomes an update
//     that sets the flag and the UTC deletion timestamp. Other entries,
//     including deletes of non-marker entities, are left alone.
//   - InstallFilters runs once during model configuration and attaches the
//     predicate "flag == false" to every marker type. Reads AND it into their
//     own conditions unless they ask to ignore query filters.
//
// DeletedBy is never written here; callers set it before removing the entity.
//
// Wiring:
//
//	b := metadata.NewBuilder()
//	_, _ = metadata.Register[warehouse.Warehouse](b, "cat_warehouses")
//	if err := softdelete.InstallFilters(b); err != nil { ... }
//	model, _ := b.Build()
//
//	db := orm.New(backend, model)
//	softdelete.NewRewriter().Register(db.Hooks())
package softdelete
