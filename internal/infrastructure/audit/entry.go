package audit

import (
	"encoding/json"
	"time"

	"tombstone/internal/core/id"
)

// Action is the type of audited operation.
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionSoftDelete Action = "soft_delete"
	ActionDelete     Action = "delete"
)

// CompressionAlgo is the algorithm applied to a stored snapshot.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// Entry is one sys_audit row. Changes holds the JSON column snapshot.
type Entry struct {
	ID                id.ID           `db:"id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	Action            Action          `db:"action"`
	ActorID           string          `db:"actor_id"`
	Changes           []byte          `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// Snapshot decodes the stored column values.
func (e Entry) Snapshot() (map[string]any, error) {
	if len(e.Changes) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(e.Changes, &out); err != nil {
		return nil, err
	}
	return out, nil
}
