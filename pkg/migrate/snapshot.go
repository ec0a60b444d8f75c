// ABOUTME: Pre-migration snapshot capture and JSON persistence
// ABOUTME: The snapshot is the sole state rollback depends on

package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Snapshot captures the identifying state of the corpus before a
// migration run. Books and legacy chapters are never mutated by the
// migration, so rollback needs only this record plus bulk deletes.
//
// The engine owns at most one active snapshot at a time. It lives in
// process memory unless the host persists it with Save.
type Snapshot struct {
	TakenAt            time.Time `json:"takenAt"`
	BookIDs            []string  `json:"bookIds"`
	BookCount          int       `json:"bookCount"`
	LegacyChapterCount int       `json:"legacyChapterCount"`
	Options            Options   `json:"options"`
}

// Save writes the snapshot to path as JSON so rollback can survive a
// process restart
func (s *Snapshot) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot previously written by Save
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	return &snap, nil
}
