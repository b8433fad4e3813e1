// Package audit records persisted entity changes in sys_audit.
//
// The service registers as an after-persist hook, so audit rows are written
// in the same transaction as the changes they describe. A delete rewritten
// into an update by the soft-delete hook is recorded as "soft_delete".
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/juju/clock"
	"github.com/klauspost/compress/zstd"

	"tombstone/internal/core/changes"
	appctx "tombstone/internal/core/context"
	"tombstone/internal/core/id"
	"tombstone/internal/metadata"
	"tombstone/internal/orm"
)

// Table is the audit log table.
const Table = "sys_audit"

// DefaultCompressThreshold is the snapshot size above which zstd is applied.
const DefaultCompressThreshold = 10 * 1024

var auditColumns = []string{
	"id", "entity_type", "entity_id", "action", "actor_id",
	"changes", "changes_compressed", "compression_algo", "created_at",
}

// Service provides audit logging.
type Service struct {
	backend           orm.Backend
	model             *metadata.Model
	clock             clock.Clock
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source for created_at.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithCompressThreshold sets the snapshot size in bytes above which snapshots
// are compressed.
func WithCompressThreshold(n int) Option {
	return func(s *Service) {
		s.compressThreshold = n
	}
}

// NewService creates an audit service writing through backend.
func NewService(backend orm.Backend, model *metadata.Model, opts ...Option) (*Service, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	s := &Service{
		backend:           backend,
		model:             model,
		clock:             clock.WallClock,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: DefaultCompressThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register installs the service as an after-persist hook.
func (s *Service) Register(hooks *changes.HookRegistry) {
	hooks.OnAfterPersist(s.AfterPersist)
}

// AfterPersist writes one audit row per persisted entry.
func (s *Service) AfterPersist(ctx context.Context, uow *changes.Tracker) error {
	if uow == nil {
		return nil
	}

	for _, e := range uow.Entries() {
		action, ok := actionOf(e)
		if !ok {
			continue
		}

		def, err := s.model.MustLookup(e.Entity())
		if err != nil {
			return err
		}

		values := metadata.ColumnValues(e.Entity())
		entityID, err := id.FromValue(values[metadata.KeyColumn])
		if err != nil {
			return fmt.Errorf("audit %s: %w", def.Name, err)
		}

		snapshot, err := json.Marshal(values)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}

		if err := s.Log(ctx, Entry{
			EntityType: def.Name,
			EntityID:   entityID,
			Action:     action,
			Changes:    snapshot,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Log records an audit entry. Missing ID, actor and timestamp are filled in.
func (s *Service) Log(ctx context.Context, entry Entry) error {
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.ActorID == "" {
		entry.ActorID = appctx.GetActorID(ctx)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now().UTC()
	}

	entry.CompressionAlgo = CompressionNone
	if s.compressThreshold > 0 && len(entry.Changes) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(entry.Changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}

	sql, args, err := s.backend.Dialect().Builder().
		Insert(Table).
		Columns(auditColumns...).
		Values(
			entry.ID, entry.EntityType, entry.EntityID, entry.Action, entry.ActorID,
			nullableBytes(entry.Changes), nullableBytes(entry.ChangesCompressed),
			entry.CompressionAlgo, entry.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}

	if _, err := s.backend.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// History returns the newest-first audit entries of one entity.
// Compressed snapshots are returned decompressed.
func (s *Service) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]Entry, error) {
	q := s.backend.Dialect().Builder().
		Select(auditColumns...).
		From(Table).
		Where(squirrel.Eq{"entity_type": entityType, "entity_id": entityID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var entries []Entry
	if err := s.backend.Querier(ctx).Select(ctx, &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		if e.CompressionAlgo == CompressionZstd && len(e.ChangesCompressed) > 0 {
			decompressed, err := s.decoder.DecodeAll(e.ChangesCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress changes: %w", err)
			}
			e.Changes = decompressed
			e.ChangesCompressed = nil
		}
	}
	return entries, nil
}

// actionOf maps a persisted entry to its audit action.
func actionOf(e *changes.Entry) (Action, bool) {
	switch e.State() {
	case changes.Added:
		return ActionCreate, true
	case changes.Modified:
		if e.Requested() == changes.Deleted {
			return ActionSoftDelete, true
		}
		return ActionUpdate, true
	case changes.Deleted:
		return ActionDelete, true
	}
	return "", false
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
