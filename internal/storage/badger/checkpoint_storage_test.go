package badger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/messis/internal/common"
	"github.com/ternarybob/messis/internal/models"
)

func newTestCheckpoint(t *testing.T) *CheckpointStorage {
	t.Helper()

	db, err := NewBadgerDB(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)

	storage := NewCheckpointStorage(db, common.GetLogger())
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestCheckpointStorage_DiscoveredRoundTrip(t *testing.T) {
	storage := newTestCheckpoint(t)
	ctx := context.Background()

	ids := []models.Identifier{"00000003", "00000001", "00000002"}
	require.NoError(t, storage.RecordDiscovered(ctx, ids))

	loaded, err := storage.LoadDiscovered(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Identifier{"00000001", "00000002", "00000003"}, loaded.Sorted())
}

func TestCheckpointStorage_RecordDiscoveredIdempotent(t *testing.T) {
	storage := newTestCheckpoint(t)
	ctx := context.Background()

	ids := []models.Identifier{"00000001", "00000002"}
	require.NoError(t, storage.RecordDiscovered(ctx, ids))
	require.NoError(t, storage.RecordDiscovered(ctx, ids))

	loaded, err := storage.LoadDiscovered(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestCheckpointStorage_HarvestedSeparateFromDiscovered(t *testing.T) {
	storage := newTestCheckpoint(t)
	ctx := context.Background()

	require.NoError(t, storage.RecordDiscovered(ctx, []models.Identifier{"00000001", "00000002"}))
	require.NoError(t, storage.RecordHarvested(ctx, "00000001"))

	harvested, err := storage.LoadHarvested(ctx)
	require.NoError(t, err)
	assert.True(t, harvested.Contains("00000001"))
	assert.False(t, harvested.Contains("00000002"))

	discovered, err := storage.LoadDiscovered(ctx)
	require.NoError(t, err)
	assert.Len(t, discovered, 2)
}

func TestCheckpointStorage_ConcurrentRecordHarvested(t *testing.T) {
	storage := newTestCheckpoint(t)
	ctx := context.Background()

	ids := []models.Identifier{
		"00000001", "00000002", "00000003", "00000004", "00000005",
		"00000006", "00000007", "00000008", "00000009", "00000010",
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id models.Identifier) {
			defer wg.Done()
			assert.NoError(t, storage.RecordHarvested(ctx, id))
		}(id)
	}
	wg.Wait()

	harvested, err := storage.LoadHarvested(ctx)
	require.NoError(t, err)
	assert.Len(t, harvested, len(ids))
}

func TestNewBadgerDB_ResetOnStartup(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewBadgerDB(common.GetLogger(), &common.BadgerConfig{Path: dir})
	require.NoError(t, err)
	storage := NewCheckpointStorage(db, common.GetLogger())
	require.NoError(t, storage.RecordDiscovered(ctx, []models.Identifier{"00000001"}))
	require.NoError(t, storage.Close())

	// Reopen with reset: previous state is gone.
	db, err = NewBadgerDB(common.GetLogger(), &common.BadgerConfig{Path: dir, ResetOnStartup: true})
	require.NoError(t, err)
	storage = NewCheckpointStorage(db, common.GetLogger())
	defer storage.Close()

	loaded, err := storage.LoadDiscovered(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestNewBadgerDB_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewBadgerDB(common.GetLogger(), &common.BadgerConfig{Path: dir})
	require.NoError(t, err)
	storage := NewCheckpointStorage(db, common.GetLogger())
	require.NoError(t, storage.RecordDiscovered(ctx, []models.Identifier{"00000001", "00000002"}))
	require.NoError(t, storage.RecordHarvested(ctx, "00000001"))
	require.NoError(t, storage.Close())

	db, err = NewBadgerDB(common.GetLogger(), &common.BadgerConfig{Path: dir})
	require.NoError(t, err)
	storage = NewCheckpointStorage(db, common.GetLogger())
	defer storage.Close()

	discovered, err := storage.LoadDiscovered(ctx)
	require.NoError(t, err)
	assert.Len(t, discovered, 2)

	harvested, err := storage.LoadHarvested(ctx)
	require.NoError(t, err)
	assert.True(t, harvested.Contains("00000001"))
}
