package state

import (
	"errors"
	"sort"

	"github.com/runbookctl/engine/pkg/orcherrors"
)

// ErrRunNotResumable is returned when a resume is attempted against a
// run whose metadata still shows status "running" — either it is
// genuinely still executing elsewhere, or a prior process crashed
// without marking it failed, and an operator must resolve that by hand
// before resuming.
var ErrRunNotResumable = errors.New("state: run is still marked running")

// PrepareResume loads a run's metadata and execution state and
// validates the preconditions a resume requires: the run must not be
// "running", the runbook at runbookPath must hash identically to the
// one the run started with, the execution state's four buckets must
// remain disjoint, and their union must equal planArtifactIDs exactly
// (precondition 3) — a mismatch means the plan rebuilt for this resume
// names a different artifact set than the interrupted run recorded,
// most commonly because a child-runbook namespace changed.
func (m *Manager) PrepareResume(runID, runbookPath string, planArtifactIDs []string) (RunMetadata, ExecutionState, error) {
	meta, err := m.LoadMetadata(runID)
	if err != nil {
		return RunMetadata{}, ExecutionState{}, err
	}
	if meta.Status == StatusRunning {
		return RunMetadata{}, ExecutionState{}, ErrRunNotResumable
	}

	currentHash, err := HashRunbook(runbookPath)
	if err != nil {
		return RunMetadata{}, ExecutionState{}, err
	}
	if currentHash != meta.RunbookHash {
		return RunMetadata{}, ExecutionState{}, orcherrors.NewRunbookChangedError(runID, meta.RunbookHash, currentHash)
	}

	execState, err := m.LoadState(runID)
	if err != nil {
		return RunMetadata{}, ExecutionState{}, err
	}
	if err := setsDisjoint(execState); err != nil {
		return RunMetadata{}, ExecutionState{}, err
	}
	if err := matchesArtifactSet(runID, execState, planArtifactIDs); err != nil {
		return RunMetadata{}, ExecutionState{}, err
	}

	return meta, execState, nil
}

// matchesArtifactSet implements §4.9 precondition 3: the union of
// execState's four buckets must equal planArtifactIDs exactly.
func matchesArtifactSet(runID string, execState ExecutionState, planArtifactIDs []string) error {
	inState := make(map[string]bool, len(execState.Completed)+len(execState.NotStarted)+len(execState.Failed)+len(execState.Skipped))
	for _, bucket := range []map[string]bool{execState.Completed, execState.NotStarted, execState.Failed, execState.Skipped} {
		for id := range bucket {
			inState[id] = true
		}
	}

	inPlan := make(map[string]bool, len(planArtifactIDs))
	for _, id := range planArtifactIDs {
		inPlan[id] = true
	}

	var missing, extra []string
	for id := range inPlan {
		if !inState[id] {
			missing = append(missing, id)
		}
	}
	for id := range inState {
		if !inPlan[id] {
			extra = append(extra, id)
		}
	}

	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		return orcherrors.NewExecutionStateMismatchError(runID, missing, extra)
	}
	return nil
}
