package softdelete

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/juju/clock"

	"tombstone/internal/core/apperror"
	"tombstone/internal/metadata"
	"tombstone/internal/orm"
	"tombstone/pkg/logger"
)

// Purger hard-deletes soft-deleted rows once their retention has expired.
type Purger struct {
	backend orm.Backend
	model   *metadata.Model
	clock   clock.Clock
	log     *logger.Logger
}

// PurgeOption configures a Purger.
type PurgeOption func(*Purger)

// WithPurgeClock sets the time source for the retention cutoff.
func WithPurgeClock(c clock.Clock) PurgeOption {
	return func(p *Purger) {
		p.clock = c
	}
}

// WithPurgeLogger sets the logger.
func WithPurgeLogger(l *logger.Logger) PurgeOption {
	return func(p *Purger) {
		p.log = l
	}
}

// NewPurger creates a Purger over every soft-deletable type of model.
func NewPurger(backend orm.Backend, model *metadata.Model, opts ...PurgeOption) *Purger {
	p := &Purger{
		backend: backend,
		model:   model,
		clock:   clock.WallClock,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Purge removes rows flagged deleted before now-retention, in one transaction.
// It returns the number of removed rows per table.
func (p *Purger) Purge(ctx context.Context, retention time.Duration) (map[string]int64, error) {
	if retention <= 0 {
		return nil, apperror.NewValidation("retention must be positive").
			WithDetail("retention", retention.String())
	}

	cutoff := p.clock.Now().UTC().Add(-retention)
	removed := make(map[string]int64)

	err := p.backend.RunInTransaction(ctx, func(ctx context.Context) error {
		q := p.backend.Querier(ctx)
		for _, def := range p.model.Entities() {
			if !IsSoftDeletable(def) {
				continue
			}
			n, err := p.purgeTable(ctx, q, def, cutoff)
			if err != nil {
				return err
			}
			removed[def.Table] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := p.logger(ctx)
	for table, n := range removed {
		if n > 0 {
			log.Infow("purged soft-deleted rows", "table", table, "rows", n, "cutoff", cutoff)
		}
	}
	return removed, nil
}

func (p *Purger) purgeTable(ctx context.Context, q orm.Querier, def *metadata.EntityDef, cutoff time.Time) (int64, error) {
	cols, err := ColumnsOf(def)
	if err != nil {
		return 0, err
	}
	if cols.At == "" {
		return 0, nil
	}

	sql, args, err := p.backend.Dialect().Builder().
		Delete(def.Table).
		Where(squirrel.Eq{cols.Flag: true}).
		Where(squirrel.Lt{cols.At: cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge: %w", err)
	}

	n, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", def.Table, err)
	}
	return n, nil
}

func (p *Purger) logger(ctx context.Context) *logger.Logger {
	if p.log != nil {
		return p.log.WithContext(ctx)
	}
	return logger.FromContext(ctx).WithComponent("softdelete.purge")
}
