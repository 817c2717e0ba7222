package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/messis/internal/interfaces"
	"github.com/ternarybob/messis/internal/models"
)

// CheckpointStorage implements the CheckpointStorage interface on Badger.
// Entries are keyed by identifier, so recording the same identifier twice
// is an upsert and the loaded sets never carry duplicates.
type CheckpointStorage struct {
	db     *BadgerDB
	runID  string
	logger arbor.ILogger
}

var _ interfaces.CheckpointStorage = (*CheckpointStorage)(nil)

// NewCheckpointStorage creates a new CheckpointStorage instance. The run ID
// tags every entry recorded by this process.
func NewCheckpointStorage(db *BadgerDB, logger arbor.ILogger) *CheckpointStorage {
	return &CheckpointStorage{
		db:     db,
		runID:  uuid.New().String(),
		logger: logger,
	}
}

// RecordDiscovered upserts the given identifiers into the discovered set.
func (s *CheckpointStorage) RecordDiscovered(ctx context.Context, ids []models.Identifier) error {
	now := time.Now()

	for _, id := range ids {
		entry := interfaces.DiscoveredEntry{
			ID:           id,
			RunID:        s.runID,
			DiscoveredAt: now,
		}
		if err := s.db.Store().Upsert(id, &entry); err != nil {
			return fmt.Errorf("failed to record discovered identifier %s: %w", id, err)
		}
	}

	s.logger.Debug().Int("count", len(ids)).Msg("Recorded discovered identifiers")
	return nil
}

// LoadDiscovered returns every identifier ever discovered.
func (s *CheckpointStorage) LoadDiscovered(ctx context.Context) (models.IdentifierSet, error) {
	var entries []interfaces.DiscoveredEntry
	if err := s.db.Store().Find(&entries, nil); err != nil {
		return nil, fmt.Errorf("failed to load discovered identifiers: %w", err)
	}

	set := models.IdentifierSet{}
	for _, entry := range entries {
		set.Add(entry.ID)
	}
	return set, nil
}

// RecordHarvested marks one identifier's output row as written. Badgerhold
// serializes the upsert internally, so concurrent callers are safe.
func (s *CheckpointStorage) RecordHarvested(ctx context.Context, id models.Identifier) error {
	entry := interfaces.HarvestedEntry{
		ID:          id,
		RunID:       s.runID,
		HarvestedAt: time.Now(),
	}
	if err := s.db.Store().Upsert(id, &entry); err != nil {
		return fmt.Errorf("failed to record harvested identifier %s: %w", id, err)
	}
	return nil
}

// LoadHarvested returns every identifier marked harvested.
func (s *CheckpointStorage) LoadHarvested(ctx context.Context) (models.IdentifierSet, error) {
	var entries []interfaces.HarvestedEntry
	if err := s.db.Store().Find(&entries, nil); err != nil {
		return nil, fmt.Errorf("failed to load harvested identifiers: %w", err)
	}

	set := models.IdentifierSet{}
	for _, entry := range entries {
		set.Add(entry.ID)
	}
	return set, nil
}

// Close closes the underlying database.
func (s *CheckpointStorage) Close() error {
	return s.db.Close()
}
