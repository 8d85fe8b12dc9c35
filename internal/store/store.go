// Package store persists artifact Messages keyed by (run_id, artifact
// id). The default implementation is a filesystem layout under a base
// directory; an S3-backed implementation is also provided for
// deployments that want run state off the local disk.
package store

import (
	"fmt"
	"strings"

	"github.com/runbookctl/engine/internal/schema"
)

// Store is the persistence contract the executor and resume path use
// to read and write artifact Messages. Implementations must make Save
// atomic: a reader must never observe a partially-written value.
type Store interface {
	Save(runID, key string, msg schema.Message) error
	Get(runID, key string) (schema.Message, error)
	Exists(runID, key string) bool
	Delete(runID, key string) error
	// ListKeys returns every artifact key stored for runID whose name
	// starts with prefix ("" matches all keys), per §4.8's
	// list_keys(run_id, prefix="").
	ListKeys(runID, prefix string) ([]string, error)
	Clear(runID string) error
}

// ValidateKey rejects artifact ids that would escape their run's
// namespace if used directly as a path or object-key segment.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("artifact store: key must not be empty")
	}
	if strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return fmt.Errorf("artifact store: key %q contains a path separator or '..'", key)
	}
	return nil
}
