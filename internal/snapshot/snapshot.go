// Package snapshot persists the current day's working set as a whole-file
// JSON snapshot. Writes are atomic (temp file + rename) so a failed write
// leaves the previous snapshot intact.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"titra/internal/domain"
)

var (
	// ErrCorrupt marks a snapshot that cannot be decoded. Callers recover by
	// re-materializing today's set; the error is diagnostic, not fatal.
	ErrCorrupt = errors.New("schedule snapshot is corrupted")
)

const schemaVersion = 1

// WorkingSet is the persisted form of today's events. Day is the calendar day
// (2006-01-02) the set was materialized for; an empty Day means no snapshot
// exists yet.
type WorkingSet struct {
	SchemaVer int            `json:"schema_ver"`
	Day       string         `json:"day"`
	Events    []domain.Event `json:"events"`
}

// Store reads and writes the snapshot file.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Write replaces the snapshot atomically.
func (s *Store) Write(ws WorkingSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws.SchemaVer = schemaVersion
	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load returns the persisted working set. A missing file yields an empty set
// and no error; an undecodable or incompatible file yields ErrCorrupt.
func (s *Store) Load() (WorkingSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ws WorkingSet
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return WorkingSet{SchemaVer: schemaVersion}, nil
		}
		return ws, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &ws); err != nil {
		return WorkingSet{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if ws.SchemaVer != schemaVersion {
		return WorkingSet{}, fmt.Errorf("%w: schema version %d", ErrCorrupt, ws.SchemaVer)
	}
	return ws, nil
}

// Exists reports whether a snapshot file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}
