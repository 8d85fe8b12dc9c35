package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/runbookctl/engine/internal/schema"
	"github.com/runbookctl/engine/pkg/orcherrors"
)

const artifactSuffix = ".msgpack"

// FSStore persists artifact messages under <base>/runs/<run_id>/artifacts/.
// Writes use the donor's write-temp-then-rename pattern so a reader
// never observes a half-written file even if the process is killed
// mid-save.
type FSStore struct {
	baseDir string
}

// NewFSStore returns a Store rooted at baseDir, creating it if absent.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{baseDir: baseDir}, nil
}

// RunDir returns the directory holding everything this store keeps
// for one run; Clear removes it. The state package does not use it:
// state.Manager computes its own <base>/runs/<run_id>/_system path
// from the base directory it was given.
func (s *FSStore) RunDir(runID string) string {
	return filepath.Join(s.baseDir, "runs", runID)
}

func (s *FSStore) artifactsDir(runID string) string {
	return filepath.Join(s.RunDir(runID), "artifacts")
}

func (s *FSStore) artifactPath(runID, key string) string {
	return filepath.Join(s.artifactsDir(runID), key+artifactSuffix)
}

func (s *FSStore) Save(runID, key string, msg schema.Message) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	dir := s.artifactsDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}

	finalPath := s.artifactPath(runID, key)
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *FSStore) Get(runID, key string) (schema.Message, error) {
	if err := ValidateKey(key); err != nil {
		return schema.Message{}, err
	}
	data, err := os.ReadFile(s.artifactPath(runID, key))
	if err != nil {
		if os.IsNotExist(err) {
			return schema.Message{}, orcherrors.NewNotFoundError(runID, key)
		}
		return schema.Message{}, err
	}
	var msg schema.Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return schema.Message{}, err
	}
	return msg, nil
}

func (s *FSStore) Exists(runID, key string) bool {
	if err := ValidateKey(key); err != nil {
		return false
	}
	_, err := os.Stat(s.artifactPath(runID, key))
	return err == nil
}

func (s *FSStore) Delete(runID, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := os.Remove(s.artifactPath(runID, key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FSStore) ListKeys(runID, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.artifactsDir(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(e.Name(), artifactSuffix)
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FSStore) Clear(runID string) error {
	err := os.RemoveAll(s.RunDir(runID))
	if err != nil {
		return err
	}
	return nil
}
