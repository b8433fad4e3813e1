package softdelete

import (
	"context"

	"github.com/juju/clock"

	"tombstone/internal/core/changes"
	"tombstone/internal/core/entity"
	"tombstone/pkg/logger"
)

// Rewriter converts pending deletes of soft-deletable entities into updates.
// It performs no I/O and keeps no state between calls.
type Rewriter struct {
	clock clock.Clock
	log   *logger.Logger
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithClock sets the time source for deletion timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Rewriter) {
		r.clock = c
	}
}

// WithLogger sets the logger; the context logger is used otherwise.
func WithLogger(l *logger.Logger) Option {
	return func(r *Rewriter) {
		r.log = l
	}
}

// NewRewriter creates a Rewriter using the wall clock.
func NewRewriter(opts ...Option) *Rewriter {
	r := &Rewriter{clock: clock.WallClock}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs the rewriter as a before-persist hook.
func (r *Rewriter) Register(hooks *changes.HookRegistry) {
	hooks.OnBeforePersist(r.BeforePersist)
}

// BeforePersist rewrites the unit of work in place. A nil uow is a no-op.
// It never fails; the error return satisfies changes.Hook.
func (r *Rewriter) BeforePersist(ctx context.Context, uow *changes.Tracker) error {
	rewritten := r.Rewrite(uow)
	if rewritten > 0 {
		r.logger(ctx).Debugw("soft delete rewrite", "entries", rewritten)
	}
	return nil
}

// Rewrite flips every Deleted entry whose entity is SoftDeletable to Modified
// and stamps it. It returns the number of rewritten entries.
func (r *Rewriter) Rewrite(uow *changes.Tracker) int {
	if uow == nil {
		return 0
	}

	now := r.clock.Now().UTC()
	rewritten := 0
	for _, e := range uow.EntriesInState(changes.Deleted) {
		sd, ok := e.Entity().(entity.SoftDeletable)
		if !ok {
			continue
		}
		e.SetState(changes.Modified)
		sd.MarkSoftDeleted(now)
		rewritten++
	}
	return rewritten
}

func (r *Rewriter) logger(ctx context.Context) *logger.Logger {
	if r.log != nil {
		return r.log.WithContext(ctx)
	}
	return logger.FromContext(ctx).WithComponent("softdelete")
}
