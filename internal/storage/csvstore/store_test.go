package csvstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/messis/internal/common"
	"github.com/ternarybob/messis/internal/models"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "records.csv")
	store, err := Open(common.OutputConfig{Path: path}, common.GetLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func record(id models.Identifier, fields map[string]string) models.Record {
	return models.Record{ID: id, Fields: fields}
}

func TestStore_AppendAndKeys(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Append(record("00000001", map[string]string{"Name": "ADAMS", "Status": "ACTIVE"})))
	require.NoError(t, store.Append(record("00000002", map[string]string{"Name": "BAKER", "Status": "RELEASED"})))

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []models.Identifier{"00000001", "00000002"}, keys.Sorted())
}

func TestStore_HeaderStableAndSorted(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.Append(record("00000001", map[string]string{
		"Status": "ACTIVE", "Name": "ADAMS", "Location": "UNIT 4",
	})))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	// Identifier first, then field names alphabetically.
	assert.Equal(t, "identifier,Location,Name,Status", lines[0])
	assert.Equal(t, "00000001,UNIT 4,ADAMS,ACTIVE", lines[1])
}

func TestStore_MissingFieldsWriteEmptyCells(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.Append(record("00000001", map[string]string{"Name": "ADAMS", "Status": "ACTIVE"})))
	require.NoError(t, store.Append(record("00000002", map[string]string{"Name": "BAKER"})))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "00000002,BAKER,", lines[2])
}

func TestStore_FlushedRowSurvivesWithoutClose(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.Append(record("00000001", map[string]string{"Name": "ADAMS"})))

	// Read the file while the store is still open; the row must already
	// be on disk.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "00000001")
}

func TestStore_ReopenAppendsUnderExistingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")

	store, err := Open(common.OutputConfig{Path: path}, common.GetLogger())
	require.NoError(t, err)
	require.NoError(t, store.Append(record("00000001", map[string]string{"Name": "ADAMS", "Status": "ACTIVE"})))
	require.NoError(t, store.Close())

	store, err = Open(common.OutputConfig{Path: path}, common.GetLogger())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append(record("00000002", map[string]string{"Name": "BAKER", "Status": "RELEASED"})))

	data, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	// One header only, both rows under it.
	assert.Equal(t, "identifier,Name,Status", lines[0])
	assert.Equal(t, "00000002,BAKER,RELEASED", lines[2])

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestStore_KeysDeduplicatesRows(t *testing.T) {
	store, _ := newTestStore(t)

	// A crash between append and checkpoint can replay a row.
	require.NoError(t, store.Append(record("00000001", map[string]string{"Name": "ADAMS"})))
	require.NoError(t, store.Append(record("00000001", map[string]string{"Name": "ADAMS"})))

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestStore_KeysOnMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	store, err := Open(common.OutputConfig{Path: path}, common.GetLogger())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Opening created the file; delete it to simulate a first run where
	// the output does not exist yet.
	require.NoError(t, os.Remove(path))

	store, err = Open(common.OutputConfig{Path: path}, common.GetLogger())
	require.NoError(t, err)
	defer store.Close()

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_QuotedValues(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Append(record("00000001", map[string]string{"Name": `ADAMS, ALICE "AL"`})))

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.True(t, keys.Contains("00000001"))
}
