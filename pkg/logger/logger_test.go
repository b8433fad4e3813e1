package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "tombstone/internal/core/context"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{zap.New(core).Sugar()}, logs
}

func TestFromContext_AddsTraceAndActor(t *testing.T) {
	log, logs := observed(zapcore.DebugLevel)

	ctx := WithLogger(context.Background(), log)
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", RunID: "r-1"})
	ctx = appctx.WithActor(ctx, &appctx.Actor{ID: "user-9"})

	Info(ctx, "purged", "rows", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "purged", entries[0].Message)
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "r-1", fields["run_id"])
	assert.Equal(t, "user-9", fields["actor_id"])
	assert.EqualValues(t, 3, fields["rows"])
}

func TestWithContext_RunWithoutTrace(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)
	ctx := appctx.WithTrace(context.Background(), appctx.NewTraceContext(context.Background()))

	log.WithContext(ctx).Infow("tick")

	fields := logs.All()[0].ContextMap()
	assert.NotEmpty(t, fields["run_id"])
	assert.NotContains(t, fields, "trace_id")
	assert.NotContains(t, fields, "actor_id")
}

func TestFromContext_RespectsLevel(t *testing.T) {
	log, logs := observed(zapcore.WarnLevel)
	ctx := WithLogger(context.Background(), log)

	Debug(ctx, "hidden")
	Info(ctx, "hidden")
	Warn(ctx, "shown")
	Error(ctx, "shown")

	assert.Equal(t, 2, logs.FilterMessage("shown").Len())
	assert.Zero(t, logs.FilterMessage("hidden").Len())
}

func TestWithComponent(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)

	log.WithComponent("purge").With("table", "cat_warehouses").Infow("done")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "purge", fields["component"])
	assert.Equal(t, "cat_warehouses", fields["table"])
}

func TestFromContext_ComponentKeepsContextFields(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), log)
	ctx = appctx.WithActor(ctx, &appctx.Actor{ID: "user-9"})

	FromContext(ctx).WithComponent("softdelete").Infow("rewritten", "count", 2)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "softdelete", fields["component"])
	assert.Equal(t, "user-9", fields["actor_id"])
	assert.EqualValues(t, 2, fields["count"])
}

func TestFromContext_WithoutLoggerUsesDefault(t *testing.T) {
	log := FromContext(context.Background())
	require.NotNil(t, log)
	assert.True(t, log.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))

	other := WithLogger(context.Background(), Nop())
	assert.False(t, FromContext(other).Desugar().Core().Enabled(zapcore.ErrorLevel))
}

func TestNew_FallsBackToInfo(t *testing.T) {
	log, err := New(Config{Level: "verbose", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.True(t, log.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))
}
