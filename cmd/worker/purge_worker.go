package main

import (
	"context"
	"time"

	"github.com/juju/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appctx "tombstone/internal/core/context"
	"tombstone/pkg/logger"
)

var tracer = otel.Tracer("tombstone/worker")

// purger is the part of softdelete.Purger the worker drives.
type purger interface {
	Purge(ctx context.Context, retention time.Duration) (map[string]int64, error)
}

// PurgeWorker runs the retention purge on a fixed interval.
type PurgeWorker struct {
	purger    purger
	retention time.Duration
	interval  time.Duration
	clock     clock.Clock
	log       *logger.Logger
}

// NewPurgeWorker creates a worker that runs p every interval, removing rows
// soft-deleted more than retention ago.
func NewPurgeWorker(p purger, retention, interval time.Duration, clk clock.Clock, log *logger.Logger) *PurgeWorker {
	return &PurgeWorker{
		purger:    p,
		retention: retention,
		interval:  interval,
		clock:     clk,
		log:       log.WithComponent("worker"),
	}
}

// Run purges once immediately and then every interval until ctx is cancelled.
func (w *PurgeWorker) Run(ctx context.Context) {
	for {
		w.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-w.clock.After(w.interval):
		}
	}
}

// runOnce returns the total number of purged rows.
func (w *PurgeWorker) runOnce(ctx context.Context) int64 {
	ctx, span := tracer.Start(ctx, "worker.Purge",
		trace.WithAttributes(attribute.String("retention", w.retention.String())))
	defer span.End()

	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext(ctx))
	log := w.log.WithContext(ctx)

	removed, err := w.purger.Purge(ctx, w.retention)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purge")
		if ctx.Err() == nil {
			log.Errorw("purge failed", "error", err)
		}
		return 0
	}

	var total int64
	for _, n := range removed {
		total += n
	}
	span.SetAttributes(attribute.Int64("purged.rows", total))
	log.Debugw("purge completed", "tables", len(removed), "rows", total)
	return total
}
