package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/runbookctl/engine/pkg/orcherrors"
)

func TestSaveLoadMetadataRoundTrips(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	meta := RunMetadata{RunID: "run-1", RunbookPath: "x.yaml", RunbookHash: "abc", StartTime: time.Now(), Status: StatusRunning}
	require.NoError(t, m.SaveMetadata(meta))

	got, err := m.LoadMetadata("run-1")
	require.NoError(t, err)
	require.Equal(t, meta.RunID, got.RunID)
	require.Equal(t, meta.Status, got.Status)
}

func TestSaveLoadExecutionStateRoundTrips(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	s := NewExecutionState([]string{"a", "b", "c"})
	s.Completed["a"] = true
	delete(s.NotStarted, "a")
	require.NoError(t, m.SaveState("run-1", s))

	got, err := m.LoadState("run-1")
	require.NoError(t, err)
	require.True(t, got.Completed["a"])
	require.True(t, got.NotStarted["b"])
	require.False(t, got.LastCheckpoint.IsZero())
}

func writeRunbookFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPrepareResumeRejectsRunningStatus(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	rbPath := writeRunbookFile(t, "name: x\n")
	hash, err := HashRunbook(rbPath)
	require.NoError(t, err)

	require.NoError(t, m.SaveMetadata(RunMetadata{RunID: "run-1", RunbookHash: hash, Status: StatusRunning}))
	require.NoError(t, m.SaveState("run-1", NewExecutionState(nil)))

	_, _, err = m.PrepareResume("run-1", rbPath, nil)
	require.ErrorIs(t, err, ErrRunNotResumable)
}

func TestPrepareResumeDetectsChangedRunbook(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	rbPath := writeRunbookFile(t, "name: x\n")
	require.NoError(t, m.SaveMetadata(RunMetadata{RunID: "run-1", RunbookHash: "stale-hash", Status: StatusFailed}))
	require.NoError(t, m.SaveState("run-1", NewExecutionState(nil)))

	_, _, err = m.PrepareResume("run-1", rbPath, nil)
	require.Error(t, err)
	var changedErr *orcherrors.RunbookChangedError
	require.ErrorAs(t, err, &changedErr)
}

func TestPrepareResumeSucceedsOnMatchingHash(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	rbPath := writeRunbookFile(t, "name: x\n")
	hash, err := HashRunbook(rbPath)
	require.NoError(t, err)

	require.NoError(t, m.SaveMetadata(RunMetadata{RunID: "run-1", RunbookHash: hash, Status: StatusFailed}))
	require.NoError(t, m.SaveState("run-1", NewExecutionState([]string{"a"})))

	meta, execState, err := m.PrepareResume("run-1", rbPath, []string{"a"})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, meta.Status)
	require.True(t, execState.NotStarted["a"])
}

func TestPrepareResumeRejectsArtifactSetMismatch(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	rbPath := writeRunbookFile(t, "name: x\n")
	hash, err := HashRunbook(rbPath)
	require.NoError(t, err)

	require.NoError(t, m.SaveMetadata(RunMetadata{RunID: "run-1", RunbookHash: hash, Status: StatusFailed}))
	require.NoError(t, m.SaveState("run-1", NewExecutionState([]string{"a"})))

	_, _, err = m.PrepareResume("run-1", rbPath, []string{"a", "b__deadbeef__out"})
	require.Error(t, err)
	var mismatchErr *orcherrors.ExecutionStateMismatchError
	require.ErrorAs(t, err, &mismatchErr)
	require.Equal(t, []string{"b__deadbeef__out"}, mismatchErr.Missing)
}
