package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error {
	return nil
}

// Save stores rec keyed by its session id.
func (m *MemStore) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Session.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, rec.Session.ID)
	}
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now()
	}
	m.records[rec.Session.ID] = rec
	return nil
}

// Load returns the record for sessionID.
func (m *MemStore) Load(_ context.Context, sessionID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return rec, nil
}

// List returns summaries sorted by session id.
func (m *MemStore) List(_ context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, summarize(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

// AgentSessions scans every record's participant list.
func (m *MemStore) AgentSessions(_ context.Context, agentID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, rec := range m.records {
		for _, a := range rec.Session.Agents {
			if a == agentID {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op.
func (m *MemStore) Close() error { return nil }
