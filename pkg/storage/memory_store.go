package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"interview-monitor/pkg/errors"
)

// MemoryStore keeps records in process. Used when Redis is disabled.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]SessionRecord
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]SessionRecord)}
}

func (m *MemoryStore) Save(ctx context.Context, record SessionRecord) error {
	if record.SessionID == "" {
		return errors.NewInvalidInput("session record has no session id")
	}
	record.LastUpdate = time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.SessionID] = record
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[sessionID]
	if !ok {
		return SessionRecord{}, errors.NewNotFound("session record not found", map[string]interface{}{
			"session_id": sessionID,
		})
	}
	return record, nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	return nil
}

// List returns records for monitorID, or all records when monitorID is empty, oldest first
func (m *MemoryStore) List(ctx context.Context, monitorID string) ([]SessionRecord, error) {
	m.mu.RLock()
	out := make([]SessionRecord, 0, len(m.records))
	for _, r := range m.records {
		if monitorID == "" || r.MonitorID == monitorID {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()

	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

func sortRecords(records []SessionRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
}
