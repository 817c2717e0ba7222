package catalogtest

import (
	"context"
	"sync"

	"github.com/ternarybob/messis/internal/interfaces"
	"github.com/ternarybob/messis/internal/models"
)

// MemoryCheckpoint is an in-memory interfaces.CheckpointStorage for tests.
type MemoryCheckpoint struct {
	mu         sync.Mutex
	discovered models.IdentifierSet
	harvested  models.IdentifierSet

	// DiscoverErr, when set, is returned from RecordDiscovered.
	DiscoverErr error
}

var _ interfaces.CheckpointStorage = (*MemoryCheckpoint)(nil)

func NewMemoryCheckpoint() *MemoryCheckpoint {
	return &MemoryCheckpoint{
		discovered: models.IdentifierSet{},
		harvested:  models.IdentifierSet{},
	}
}

func (m *MemoryCheckpoint) RecordDiscovered(ctx context.Context, ids []models.Identifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DiscoverErr != nil {
		return m.DiscoverErr
	}
	for _, id := range ids {
		m.discovered.Add(id)
	}
	return nil
}

func (m *MemoryCheckpoint) LoadDiscovered(ctx context.Context) (models.IdentifierSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := models.IdentifierSet{}
	for id := range m.discovered {
		out.Add(id)
	}
	return out, nil
}

func (m *MemoryCheckpoint) RecordHarvested(ctx context.Context, id models.Identifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.harvested.Add(id)
	return nil
}

func (m *MemoryCheckpoint) LoadHarvested(ctx context.Context) (models.IdentifierSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := models.IdentifierSet{}
	for id := range m.harvested {
		out.Add(id)
	}
	return out, nil
}

func (m *MemoryCheckpoint) Close() error { return nil }

// MemoryRecordStore is an in-memory interfaces.RecordStore for tests. It
// keeps append order and tolerates duplicate identifiers the way the CSV
// store does.
type MemoryRecordStore struct {
	mu      sync.Mutex
	Records []models.Record

	// AppendErr, when set, is returned from Append.
	AppendErr error
}

var _ interfaces.RecordStore = (*MemoryRecordStore)(nil)

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{}
}

func (m *MemoryRecordStore) Append(rec models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Records = append(m.Records, rec)
	return nil
}

func (m *MemoryRecordStore) Keys() (models.IdentifierSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := models.IdentifierSet{}
	for _, rec := range m.Records {
		keys.Add(rec.ID)
	}
	return keys, nil
}

func (m *MemoryRecordStore) Close() error { return nil }
