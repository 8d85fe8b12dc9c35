// Package fs implements the "fs" connector: it walks a local file or
// directory tree and extracts a flat listing of its entries. It is
// the engine's simplest illustrative connector, exercising the
// registry.ConnectorFactory contract against nothing but the standard
// library.
package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/runbookctl/engine/internal/registry"
	"github.com/runbookctl/engine/internal/schema"
)

// OutputSchema is the schema every fs connector instance produces.
var OutputSchema = schema.Schema{Name: "filesystem_entries", Version: "v1"}

// Entry describes one file or directory found under the configured path.
type Entry struct {
	Path    string    `msgpack:"path"`
	IsDir   bool      `msgpack:"is_dir"`
	Size    int64     `msgpack:"size"`
	ModTime time.Time `msgpack:"mod_time"`
}

type connector struct{}

func (c *connector) Name() string               { return "fs" }
func (c *connector) OutputSchema() schema.Schema { return OutputSchema }

// Extract walks properties["path"] and returns one Entry per file or
// directory found, including the root itself.
func (c *connector) Extract(properties map[string]any) (schema.Message, error) {
	root, ok := properties["path"].(string)
	if !ok || root == "" {
		return schema.Message{}, fmt.Errorf("fs connector: properties.path is required")
	}

	var entries []any
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Path:    path,
			IsDir:   d.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return schema.Message{}, fmt.Errorf("fs connector: walking %q: %w", root, err)
	}

	return schema.Message{
		ID:      "fs:" + root,
		Content: entries,
		Schema:  OutputSchema,
	}, nil
}

type factory struct{}

// Factory returns the registry.ConnectorFactory for the "fs" connector.
func Factory() registry.ConnectorFactory { return factory{} }

func (factory) ComponentClass() registry.Metadata {
	return registry.Metadata{
		Name:          "fs",
		OutputSchemas: []schema.Schema{OutputSchema},
	}
}

// CanCreate reports whether properties names a path that exists on
// disk, so a misconfigured runbook fails at execution with a clear
// "declined to run" error rather than a generic extraction failure.
func (factory) CanCreate(properties map[string]any) bool {
	root, ok := properties["path"].(string)
	if !ok || root == "" {
		return false
	}
	_, err := os.Stat(root)
	return err == nil
}

func (factory) Create(map[string]any) (registry.Connector, error) {
	return &connector{}, nil
}
