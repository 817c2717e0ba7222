package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/messis/internal/models"
)

// DiscoveredEntry is one checkpointed identifier from Phase 1.
type DiscoveredEntry struct {
	ID           models.Identifier `badgerhold:"key"`
	RunID        string
	DiscoveredAt time.Time
}

// HarvestedEntry marks one identifier whose output row has been written.
type HarvestedEntry struct {
	ID          models.Identifier `badgerhold:"key"`
	RunID       string
	HarvestedAt time.Time
}

// CheckpointStorage is the durable progress log for both phases. Writes are
// flushed before returning; replaying the same entries twice must not change
// the resulting sets. RecordHarvested is safe under concurrent invocation.
type CheckpointStorage interface {
	RecordDiscovered(ctx context.Context, ids []models.Identifier) error
	LoadDiscovered(ctx context.Context) (models.IdentifierSet, error)
	RecordHarvested(ctx context.Context, id models.Identifier) error
	LoadHarvested(ctx context.Context) (models.IdentifierSet, error)
	Close() error
}

// RecordStore is the append-only tabular output keyed by identifier. Keys
// enumerates existing identifiers cheaply so a resumed harvest can diff
// without loading full row content.
type RecordStore interface {
	Append(rec models.Record) error
	Keys() (models.IdentifierSet, error)
	Close() error
}
