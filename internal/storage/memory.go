package storage

import (
	"context"
	"sync"

	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

// MemoryStore keeps generations in process memory
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[schedule.Generation]*schedule.Snapshot
	saves     int
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[schedule.Generation]*schedule.Snapshot),
	}
}

// Load returns a copy of the stored generation, or nil
func (m *MemoryStore) Load(_ context.Context, gen schedule.Generation) (*schedule.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[gen].Clone(), nil
}

// Save stores a copy of snap. A nil snapshot removes the generation.
func (m *MemoryStore) Save(_ context.Context, gen schedule.Generation, snap *schedule.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if snap == nil {
		delete(m.snapshots, gen)
		return nil
	}
	m.snapshots[gen] = snap.Clone()
	return nil
}

// Saves returns how many Save calls were made
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
