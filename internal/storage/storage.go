package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

// cachedSnapshot is the durable shape of one generation: the bundle schema plus the time it was cached
type cachedSnapshot struct {
	*schedule.Snapshot
	CachedAt time.Time `json:"cachedAt"`
}

func encodeSnapshot(snap *schedule.Snapshot, cachedAt time.Time) ([]byte, error) {
	data, err := json.MarshalIndent(cachedSnapshot{Snapshot: snap, CachedAt: cachedAt}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*schedule.Snapshot, error) {
	doc := cachedSnapshot{Snapshot: &schedule.Snapshot{}}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	snap := doc.Snapshot
	if snap.Records == nil {
		snap.Records = make([]*schedule.Record, 0)
	}
	for _, r := range snap.Records {
		r.Normalize()
	}
	return snap, nil
}

// FileStore keeps each generation in its own JSON file
type FileStore struct {
	dataDir string
}

// New creates a FileStore, creating dataDir if needed. A leading ~/ is expanded.
func New(dataDir string) (*FileStore, error) {
	if strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, dataDir[2:])
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &FileStore{
		dataDir: dataDir,
	}, nil
}

// Dir returns the resolved data directory
func (s *FileStore) Dir() string {
	return s.dataDir
}

func (s *FileStore) path(gen schedule.Generation) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("schedule_%s.json", gen))
}

// Load reads a generation. A missing file yields nil without error.
func (s *FileStore) Load(_ context.Context, gen schedule.Generation) (*schedule.Snapshot, error) {
	data, err := os.ReadFile(s.path(gen))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s snapshot: %w", gen, err)
	}
	return decodeSnapshot(data)
}

// Save writes a generation. A nil snapshot removes it.
func (s *FileStore) Save(_ context.Context, gen schedule.Generation, snap *schedule.Snapshot) error {
	path := s.path(gen)

	if snap == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s snapshot: %w", gen, err)
		}
		return nil
	}

	data, err := encodeSnapshot(snap, time.Now().UTC())
	if err != nil {
		return err
	}

	// Written to a temp file and renamed into place
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s snapshot: %w", gen, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s snapshot: %w", gen, err)
	}
	return nil
}
