package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractListsFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("world"), 0o644))

	c := &connector{}
	msg, err := c.Extract(map[string]any{"path": dir})
	require.NoError(t, err)
	require.Equal(t, OutputSchema, msg.Schema)

	entries, ok := msg.Content.([]any)
	require.True(t, ok)
	require.GreaterOrEqual(t, len(entries), 4) // root, a.txt, sub, sub/b.txt
}

func TestExtractRequiresPathProperty(t *testing.T) {
	c := &connector{}
	_, err := c.Extract(map[string]any{})
	require.Error(t, err)
}

func TestFactoryCanCreateChecksPathExists(t *testing.T) {
	f := Factory()
	dir := t.TempDir()
	require.True(t, f.CanCreate(map[string]any{"path": dir}))
	require.False(t, f.CanCreate(map[string]any{"path": filepath.Join(dir, "missing")}))
	require.False(t, f.CanCreate(map[string]any{}))
}
