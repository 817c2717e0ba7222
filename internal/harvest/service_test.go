package harvest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/messis/internal/catalog"
	"github.com/ternarybob/messis/internal/catalogtest"
	"github.com/ternarybob/messis/internal/common"
	"github.com/ternarybob/messis/internal/models"
)

func sixIdentifiers() []models.Identifier {
	return []models.Identifier{
		"00000001", "00000002", "00000003", "00000004", "00000005", "00000006",
	}
}

func newHarvestFixture(t *testing.T, server *catalogtest.Server, concurrency int) (*common.Config, *catalogtest.MemoryCheckpoint, *catalogtest.MemoryRecordStore) {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Catalog = server.Config()
	config.HTTP.RequestTimeout = 5 * time.Second
	config.Harvest.Concurrency = concurrency
	config.Harvest.RetryAttempts = 3
	config.Harvest.InitialBackoff = time.Millisecond
	config.Harvest.MaxBackoff = 5 * time.Millisecond

	checkpoint := catalogtest.NewMemoryCheckpoint()
	records := catalogtest.NewMemoryRecordStore()
	return config, checkpoint, records
}

func newService(config *common.Config, checkpoint *catalogtest.MemoryCheckpoint, records *catalogtest.MemoryRecordStore) *Service {
	parser := catalog.NewParser(config.Catalog)
	return NewService(config, parser, nil, checkpoint, records, common.GetLogger())
}

func discover(t *testing.T, checkpoint *catalogtest.MemoryCheckpoint, ids []models.Identifier) {
	t.Helper()
	require.NoError(t, checkpoint.RecordDiscovered(context.Background(), ids))
}

func TestService_HarvestAllWithTransientFailure(t *testing.T) {
	ids := sixIdentifiers()
	server := catalogtest.New(map[string][]models.Identifier{"a": ids})
	defer server.Close()

	// The fourth identifier fails once; the retry succeeds.
	server.FailLookups["00000004"] = 1

	config, checkpoint, records := newHarvestFixture(t, server, 3)
	discover(t, checkpoint, ids)

	summary, err := newService(config, checkpoint, records).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Discovered)
	assert.Equal(t, 0, summary.AlreadyDone)
	assert.Equal(t, 6, summary.Harvested)
	assert.Empty(t, summary.Unharvestable)

	keys, err := records.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 6)
	for _, rec := range records.Records {
		assert.Equal(t, "RECORD "+string(rec.ID), rec.Fields["Name"])
		assert.Equal(t, "ACTIVE", rec.Fields["Status"])
	}
}

func TestService_UnharvestableAfterExhaustedRetries(t *testing.T) {
	ids := sixIdentifiers()
	server := catalogtest.New(map[string][]models.Identifier{"a": ids})
	defer server.Close()

	server.FailLookups["00000002"] = 100

	config, checkpoint, records := newHarvestFixture(t, server, 2)
	discover(t, checkpoint, ids)

	summary, err := newService(config, checkpoint, records).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Harvested)
	assert.Equal(t, []models.Identifier{"00000002"}, summary.Unharvestable)

	keys, err := records.Keys()
	require.NoError(t, err)
	assert.False(t, keys.Contains("00000002"))
}

func TestService_ResumeSkipsAlreadyStoredRecords(t *testing.T) {
	ids := sixIdentifiers()
	server := catalogtest.New(map[string][]models.Identifier{"a": ids})
	defer server.Close()

	config, checkpoint, records := newHarvestFixture(t, server, 1)
	discover(t, checkpoint, ids)

	for _, id := range ids[:3] {
		require.NoError(t, records.Append(models.Record{ID: id, Fields: map[string]string{"Name": "seeded"}}))
	}

	before := server.Requests
	summary, err := newService(config, checkpoint, records).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.AlreadyDone)
	assert.Equal(t, 3, summary.Harvested)

	// Each remaining identifier costs exactly one landing page, one lookup
	// postback and one selection postback; done ones cost nothing.
	assert.Equal(t, 9, server.Requests-before)

	keys, err := records.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 6)
}

// cancelAfterStore cancels the run's context once n records were appended,
// simulating an operator interrupt mid-harvest.
type cancelAfterStore struct {
	*catalogtest.MemoryRecordStore
	cancel context.CancelFunc
	after  int
}

func (c *cancelAfterStore) Append(rec models.Record) error {
	if err := c.MemoryRecordStore.Append(rec); err != nil {
		return err
	}
	if len(c.MemoryRecordStore.Records) == c.after {
		c.cancel()
	}
	return nil
}

func TestService_InterruptThenResume(t *testing.T) {
	ids := sixIdentifiers()
	server := catalogtest.New(map[string][]models.Identifier{"a": ids})
	defer server.Close()

	config, checkpoint, records := newHarvestFixture(t, server, 1)
	discover(t, checkpoint, ids)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupted := &cancelAfterStore{MemoryRecordStore: records, cancel: cancel, after: 3}

	parser := catalog.NewParser(config.Catalog)
	first := NewService(config, parser, nil, checkpoint, interrupted, common.GetLogger())

	summary, err := first.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, summary.Harvested)

	keys, kerr := records.Keys()
	require.NoError(t, kerr)
	require.Len(t, keys, 3)

	// Resume completes the remaining half without refetching the done ones.
	second := newService(config, checkpoint, records)
	summary, err = second.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.AlreadyDone)
	assert.Equal(t, 3, summary.Harvested)

	keys, kerr = records.Keys()
	require.NoError(t, kerr)
	assert.Len(t, keys, 6)
}

func TestService_HarvestedMarkWithoutRowIsRefetched(t *testing.T) {
	ids := []models.Identifier{"00000001", "00000002"}
	server := catalogtest.New(map[string][]models.Identifier{"a": ids})
	defer server.Close()

	config, checkpoint, records := newHarvestFixture(t, server, 1)
	discover(t, checkpoint, ids)

	// A mark with no output row cannot happen under append-then-mark; if
	// the state shows up anyway, the identifier is simply fetched again.
	require.NoError(t, checkpoint.RecordHarvested(context.Background(), "00000001"))

	summary, err := newService(config, checkpoint, records).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Harvested)

	keys, err := records.Keys()
	require.NoError(t, err)
	assert.True(t, keys.Contains("00000001"))
}

func TestService_HarvestedNeverDiscoveredIsFatal(t *testing.T) {
	ids := []models.Identifier{"00000001"}
	server := catalogtest.New(map[string][]models.Identifier{"a": ids})
	defer server.Close()

	config, checkpoint, records := newHarvestFixture(t, server, 1)
	discover(t, checkpoint, ids)
	require.NoError(t, checkpoint.RecordHarvested(context.Background(), "99999999"))

	_, err := newService(config, checkpoint, records).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint inconsistent")
}

func TestService_NothingDiscovered(t *testing.T) {
	server := catalogtest.New(map[string][]models.Identifier{})
	defer server.Close()

	config, checkpoint, records := newHarvestFixture(t, server, 1)

	_, err := newService(config, checkpoint, records).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run discovery first")
}

func TestService_EverythingAlreadyDone(t *testing.T) {
	ids := sixIdentifiers()
	server := catalogtest.New(map[string][]models.Identifier{"a": ids})
	defer server.Close()

	config, checkpoint, records := newHarvestFixture(t, server, 1)
	discover(t, checkpoint, ids)
	for _, id := range ids {
		require.NoError(t, records.Append(models.Record{ID: id}))
	}

	before := server.Requests
	summary, err := newService(config, checkpoint, records).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, summary.AlreadyDone)
	assert.Equal(t, 0, summary.Harvested)
	assert.Equal(t, 0, server.Requests-before)
}
