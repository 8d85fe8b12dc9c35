package sourcetree

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func initRepoWithCommit(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	filePath := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(filePath, []byte("hello"), 0o644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)

	_, err = wt.Commit("initial commit\n", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir
}

func TestExtractReadsCommitHistoryFromExistingRepo(t *testing.T) {
	dir := initRepoWithCommit(t)

	c := &connector{}
	msg, err := c.Extract(map[string]any{"path": dir})
	require.NoError(t, err)
	require.Equal(t, OutputSchema, msg.Schema)

	commits, ok := msg.Content.([]any)
	require.True(t, ok)
	require.Len(t, commits, 1)
	require.Equal(t, "initial commit\n", commits[0].(Commit).Message)
}

func TestFactoryCanCreateRequiresPathOrURL(t *testing.T) {
	f := Factory()
	dir := initRepoWithCommit(t)
	require.True(t, f.CanCreate(map[string]any{"path": dir}))
	require.False(t, f.CanCreate(map[string]any{}))

	missing := filepath.Join(t.TempDir(), "not-cloned-yet")
	require.True(t, f.CanCreate(map[string]any{"path": missing, "url": "https://example.com/repo.git"}))
	require.False(t, f.CanCreate(map[string]any{"path": missing}))
}
