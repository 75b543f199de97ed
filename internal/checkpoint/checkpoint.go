// Package checkpoint persists partial run progress so an interrupted
// bootstrap can resume without repeating completed installs. A checkpoint is
// bound to the plan content hash: it is honored only when the freshly
// computed plan hashes identically, otherwise the run starts clean. Stale or
// mismatched checkpoints are advisory and never block a run.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/repoforge/bootstrap/internal/errors"
)

// Checkpoint records the progress of one run.
type Checkpoint struct {
	Timestamp time.Time `json:"timestamp"`
	PlanHash  string    `json:"plan_hash"`
	Completed []string  `json:"completed"` // step ids that finished successfully
	Failed    []string  `json:"failed"`    // step ids that failed
}

// Done reports whether a step id completed in the checkpointed run.
func (c *Checkpoint) Done(stepID string) bool {
	for _, id := range c.Completed {
		if id == stepID {
			return true
		}
	}
	return false
}

// Store reads and writes checkpoints under a cache directory, one file per
// repository.
type Store struct {
	dir string
}

// NewStore places checkpoints under the user cache directory
// (~/.cache/bootstrap on Linux).
func NewStore() (*Store, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return nil, errors.Wrap(err, "locating cache directory")
	}
	return NewStoreAt(filepath.Join(base, "bootstrap")), nil
}

// NewStoreAt places checkpoints under dir. Used by tests.
func NewStoreAt(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the checkpoint file path for a repository root. Distinct
// repositories get distinct files.
func (s *Store) Path(repoRoot string) string {
	sum := sha256.Sum256([]byte(repoRoot))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:8])+".json")
}

// Save writes the checkpoint for repoRoot atomically.
func (s *Store) Save(repoRoot string, cp *Checkpoint) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, "creating checkpoint directory")
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}

	path := s.Path(repoRoot)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "writing checkpoint")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "replacing checkpoint")
	}
	return nil
}

// Load returns the checkpoint for repoRoot if one exists and its plan hash
// matches planHash. A missing file, unreadable content, or hash mismatch all
// return (nil, false, nil): resuming is best-effort.
func (s *Store) Load(repoRoot, planHash string) (*Checkpoint, bool, error) {
	data, err := os.ReadFile(s.Path(repoRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "reading checkpoint")
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		// Corrupt checkpoint: treat as absent.
		return nil, false, nil
	}
	if cp.PlanHash != planHash {
		return nil, false, nil
	}
	return &cp, true, nil
}

// Clear removes the checkpoint for repoRoot. Removing a checkpoint that
// does not exist is not an error.
func (s *Store) Clear(repoRoot string) error {
	err := os.Remove(s.Path(repoRoot))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing checkpoint")
	}
	return nil
}
