// Package executor drives the compiled ExecutionPlan: it dispatches
// artifacts as soon as their dependencies are satisfied, bounded to
// the runbook's configured concurrency, contains each artifact's
// failure to its own branch of the DAG, and checkpoints progress after
// every completion so a crashed run can resume without redoing
// finished work.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runbookctl/engine/internal/dag"
	"github.com/runbookctl/engine/internal/notify"
	"github.com/runbookctl/engine/internal/obslog"
	"github.com/runbookctl/engine/internal/plan"
	"github.com/runbookctl/engine/internal/registry"
	"github.com/runbookctl/engine/internal/result"
	"github.com/runbookctl/engine/internal/runbook"
	"github.com/runbookctl/engine/internal/schema"
	"github.com/runbookctl/engine/internal/state"
	"github.com/runbookctl/engine/internal/store"
	"github.com/runbookctl/engine/pkg/orcherrors"
)

// CostTracker exposes a running spend total, typically backed by the
// optional LLM service factory. A nil CostTracker disables cost_limit
// enforcement; the config field is still accepted, just never tripped.
type CostTracker interface {
	Spent() float64
}

// Executor runs one ExecutionPlan to completion or failure.
type Executor struct {
	Plan        *plan.Plan
	Registry    *registry.Registry
	Store       store.Store
	State       *state.Manager
	Logger      obslog.Logger
	CostTracker CostTracker
	Notify      notify.Adapter
}

// New builds an Executor. costTracker may be nil. The Notify adapter
// defaults to notify.Nop(); set Executor.Notify after construction to
// publish RunCompletedEvents to a real downstream adapter.
func New(p *plan.Plan, reg *registry.Registry, st store.Store, stateMgr *state.Manager, logger obslog.Logger, costTracker CostTracker) *Executor {
	return &Executor{Plan: p, Registry: reg, Store: st, State: stateMgr, Logger: logger, CostTracker: costTracker, Notify: notify.Nop()}
}

// Run starts a fresh execution of e.Plan under runID.
func (e *Executor) Run(ctx context.Context, runID string) (*result.Result, error) {
	ids := sortedArtifactIDs(e.Plan.Artifacts)
	hash, err := state.HashRunbook(e.Plan.Runbook.SourcePath)
	if err != nil {
		return nil, err
	}
	meta := state.RunMetadata{
		RunID:       runID,
		RunbookPath: e.Plan.Runbook.SourcePath,
		RunbookHash: hash,
		StartTime:   time.Now(),
		Status:      state.StatusRunning,
	}
	if err := e.State.SaveMetadata(meta); err != nil {
		return nil, err
	}
	execState := state.NewExecutionState(ids)
	if err := e.State.SaveState(runID, execState); err != nil {
		return nil, err
	}
	return e.execute(ctx, runID, meta, execState)
}

// Resume continues a previously interrupted execution of e.Plan under
// runID, skipping work state.Manager.PrepareResume reports as already
// completed.
func (e *Executor) Resume(ctx context.Context, runID string) (*result.Result, error) {
	ids := sortedArtifactIDs(e.Plan.Artifacts)
	meta, execState, err := e.State.PrepareResume(runID, e.Plan.Runbook.SourcePath, ids)
	if err != nil {
		return nil, err
	}
	meta.Status = state.StatusRunning
	if err := e.State.SaveMetadata(meta); err != nil {
		return nil, err
	}
	return e.execute(ctx, runID, meta, execState)
}

func sortedArtifactIDs(artifacts map[string]*runbook.ArtifactDefinition) []string {
	ids := make([]string, 0, len(artifacts))
	for id := range artifacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// run holds the mutable bookkeeping shared by every goroutine
// dispatched for one execute() call.
type run struct {
	e         *Executor
	runID     string
	mu        sync.Mutex
	completed map[string]bool
	failed    map[string]bool
	skipped   map[string]bool
	messages  map[string]schema.Message
	res       *result.Result
	nonOptionalFailed bool
}

func (e *Executor) execute(ctx context.Context, runID string, meta state.RunMetadata, execState state.ExecutionState) (*result.Result, error) {
	if e.Plan.Runbook.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.Plan.Runbook.Config.Timeout)*time.Second)
		defer cancel()
	}

	r := &run{
		e:         e,
		runID:     runID,
		completed: copySet(execState.Completed),
		failed:    copySet(execState.Failed),
		skipped:   copySet(execState.Skipped),
		messages:  make(map[string]schema.Message),
		res:       result.New(runID),
	}

	sorter := e.Plan.DAG.CreateSorter()
	r.seedResumeState(sorter)

	maxConcurrency := e.Plan.Runbook.Config.EffectiveMaxConcurrency()
	sem := make(chan struct{}, maxConcurrency)
	events := make(chan struct{}, len(e.Plan.Artifacts)+1)
	var wg sync.WaitGroup

	stoppedReason := ""

dispatch:
	for sorter.IsActive() {
		select {
		case <-ctx.Done():
			stoppedReason = "timeout"
			break dispatch
		default:
		}

		if e.CostTracker != nil && e.Plan.Runbook.Config.CostLimit > 0 && e.CostTracker.Spent() > e.Plan.Runbook.Config.CostLimit {
			stoppedReason = "cost_limit"
			break dispatch
		}

		ready := sorter.GetReady()
		for _, id := range ready {
			id := id
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				r.produce(ctx, id, sorter)
				select {
				case events <- struct{}{}:
				default:
				}
			}()
		}

		if len(ready) == 0 {
			select {
			case <-events:
			case <-ctx.Done():
				stoppedReason = "timeout"
				break dispatch
			}
		}
	}
	wg.Wait()

	status := state.StatusCompleted
	switch {
	case stoppedReason == "timeout":
		status = state.StatusFailed
		r.res.AddWarning("run stopped: timeout exceeded")
	case stoppedReason == "cost_limit":
		status = state.StatusFailed
		r.res.AddWarning("run stopped: cost_limit exceeded")
	case r.nonOptionalFailed:
		status = state.StatusFailed
	}
	r.res.Status = status

	now := time.Now()
	meta.Status = status
	meta.EndTime = &now
	if err := e.State.SaveMetadata(meta); err != nil {
		return r.res, err
	}
	if err := e.State.SaveState(runID, r.snapshotExecutionState()); err != nil {
		return r.res, err
	}

	e.publishCompletion(ctx, r.res)

	return r.res, nil
}

// publishCompletion notifies e.Notify of the finished run. Publish
// errors are logged, never returned: a downstream notification sink
// being unreachable must not turn an otherwise-successful run into a
// failure.
func (e *Executor) publishCompletion(ctx context.Context, res *result.Result) {
	var failedCount, skippedCount int
	for _, a := range res.Artifacts {
		switch a.Outcome {
		case result.OutcomeFailed:
			failedCount++
		case result.OutcomeSkipped:
			skippedCount++
		}
	}
	event := notify.FromResult(res.RunID, string(res.Status), len(res.Artifacts), failedCount, skippedCount)
	if err := e.Notify.Publish(ctx, event); err != nil {
		e.Logger.Warn(ctx, "run completion notification failed", "run_id", res.RunID, "error", err.Error())
	}
}

func copySet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		if v {
			out[k] = true
		}
	}
	return out
}

func (r *run) snapshotExecutionState() state.ExecutionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	notStarted := make(map[string]bool)
	for id := range r.e.Plan.Artifacts {
		if !r.completed[id] && !r.failed[id] && !r.skipped[id] {
			notStarted[id] = true
		}
	}
	return state.ExecutionState{
		Completed:  copySet(r.completed),
		NotStarted: notStarted,
		Failed:     copySet(r.failed),
		Skipped:    copySet(r.skipped),
	}
}

// seedResumeState replays a prior run's terminal buckets into a fresh
// sorter: completed ids are marked done without re-executing, and
// failed/skipped ids cascade a skip over everything that depends on
// them, matching what the original run would have done had it kept
// going.
func (r *run) seedResumeState(sorter *dag.Sorter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.completed {
		sorter.Done(id)
		if msg, err := r.e.Store.Get(r.runID, id); err == nil {
			r.messages[id] = msg
		}
		r.res.Artifacts[id] = &result.ArtifactResult{ArtifactID: id, Outcome: result.OutcomeCompleted, Origin: r.e.originOf(id)}
	}
	for id := range r.failed {
		r.markFailedLocked(id, sorter, "")
	}
	for id := range r.skipped {
		r.markSkippedLocked(id, sorter)
	}
}

// settledLocked reports whether id has already reached a terminal
// bucket. Callers must hold r.mu.
func (r *run) settledLocked(id string) bool {
	return r.completed[id] || r.failed[id] || r.skipped[id]
}

func (r *run) markFailedLocked(id string, sorter *dag.Sorter, errMsg string) {
	if r.completed[id] {
		return
	}
	if !r.failed[id] {
		r.failed[id] = true
		sorter.Done(id)
		r.res.Artifacts[id] = &result.ArtifactResult{ArtifactID: id, Outcome: result.OutcomeFailed, Origin: r.e.originOf(id), Error: errMsg}
	}
	r.propagateSkipLocked(id, sorter)
}

func (r *run) markSkippedLocked(id string, sorter *dag.Sorter) {
	if r.settledLocked(id) {
		return
	}
	r.skipped[id] = true
	sorter.Done(id)
	r.res.Artifacts[id] = &result.ArtifactResult{ArtifactID: id, Outcome: result.OutcomeSkipped, Origin: r.e.originOf(id)}
	r.propagateSkipLocked(id, sorter)
}

func (r *run) propagateSkipLocked(id string, sorter *dag.Sorter) {
	for _, dep := range r.e.Plan.DAG.Dependents(id) {
		if !r.settledLocked(dep) {
			r.markSkippedLocked(dep, sorter)
		}
	}
}

// originOf reports whether id was produced by the root runbook or by
// a flattened child, using the namespacing convention
// "<prefix>__<unique_id>__<original_id>" the flattener applies.
func (e *Executor) originOf(id string) string {
	name, ok := childNameFromID(id)
	if !ok {
		return "parent"
	}
	return "child:" + name
}

func childNameFromID(id string) (string, bool) {
	idx := strings.Index(id, "__")
	if idx < 0 {
		return "", false
	}
	return id[:idx], true
}

// produce resolves one artifact's content, stores it, and updates the
// run's bookkeeping. It is safe to call concurrently for unrelated ids.
func (r *run) produce(ctx context.Context, id string, sorter *dag.Sorter) {
	r.mu.Lock()
	if r.settledLocked(id) {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	a := r.e.Plan.Artifacts[id]
	start := time.Now()

	msg, err := r.e.produceMessage(ctx, r, id, a)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.e.Logger.Error(ctx, "artifact production failed", "run_id", r.runID, "artifact_id", id, "origin", r.e.originOf(id), "error", err.Error())
		errMsg := err.Error()
		r.markFailedLocked(id, sorter, errMsg)
		if !a.Optional {
			r.nonOptionalFailed = true
		} else {
			r.res.AddWarning(fmt.Sprintf("artifact %q failed (optional): %s", id, errMsg))
		}
		if err := r.e.State.SaveState(r.runID, r.snapshotExecutionStateLocked()); err != nil {
			r.e.Logger.Warn(ctx, "checkpoint write failed", "run_id", r.runID, "error", err.Error())
		}
		return
	}

	duration := time.Since(start)
	ec := schema.ExecutionContext{
		Status:          schema.StatusSuccess,
		Origin:          r.e.originOf(id),
		DurationSeconds: durationSeconds(duration),
	}
	if alias, ok := r.e.Plan.ReversedAliases[id]; ok {
		ec.Alias = alias
	}
	stored := msg.WithExecution(ec)

	if err := r.e.Store.Save(r.runID, id, stored); err != nil {
		r.markFailedLocked(id, sorter, err.Error())
		r.nonOptionalFailed = true
		if err := r.e.State.SaveState(r.runID, r.snapshotExecutionStateLocked()); err != nil {
			r.e.Logger.Warn(ctx, "checkpoint write failed", "run_id", r.runID, "error", err.Error())
		}
		return
	}

	r.messages[id] = stored
	r.completed[id] = true
	sorter.Done(id)
	r.res.Artifacts[id] = &result.ArtifactResult{
		ArtifactID: id,
		Outcome:    result.OutcomeCompleted,
		Origin:     ec.Origin,
		Alias:      ec.Alias,
		Duration:   duration,
		Redacted:   r.e.Plan.Redacted[id],
	}

	if err := r.e.State.SaveState(r.runID, r.snapshotExecutionStateLocked()); err != nil {
		r.e.Logger.Warn(ctx, "checkpoint write failed", "run_id", r.runID, "error", err.Error())
	}
}

func durationSeconds(d time.Duration) *float64 {
	s := d.Seconds()
	return &s
}

// snapshotExecutionStateLocked is snapshotExecutionState for callers
// that already hold r.mu.
func (r *run) snapshotExecutionStateLocked() state.ExecutionState {
	notStarted := make(map[string]bool)
	for id := range r.e.Plan.Artifacts {
		if !r.completed[id] && !r.failed[id] && !r.skipped[id] {
			notStarted[id] = true
		}
	}
	return state.ExecutionState{
		Completed:  copySet(r.completed),
		NotStarted: notStarted,
		Failed:     copySet(r.failed),
		Skipped:    copySet(r.skipped),
	}
}

// produceMessage resolves the content for one artifact according to
// its production method, gathering already-produced upstream messages
// from r.messages (populated in dependency order by the dispatch loop).
func (e *Executor) produceMessage(ctx context.Context, r *run, id string, a *runbook.ArtifactDefinition) (schema.Message, error) {
	switch a.Kind() {
	case runbook.ProductionSource:
		return e.produceFromSource(id, a)
	case runbook.ProductionReuse:
		return e.produceFromReuse(a)
	case runbook.ProductionInputs:
		return e.produceFromInputs(r, id, a)
	default:
		return schema.Message{}, orcherrors.NewSchemaError(id, "artifact has no recognised production method")
	}
}

func (e *Executor) produceFromSource(id string, a *runbook.ArtifactDefinition) (schema.Message, error) {
	factory, ok := e.Registry.Connector(a.Source.Type)
	if !ok {
		return schema.Message{}, orcherrors.NewComponentNotFoundError("connector", a.Source.Type)
	}
	if !factory.CanCreate(a.Source.Properties) {
		return schema.Message{}, fmt.Errorf("connector %q declined to run for artifact %q (missing configuration or credentials)", a.Source.Type, id)
	}
	conn, err := factory.Create(a.Source.Properties)
	if err != nil {
		return schema.Message{}, err
	}
	return conn.Extract(a.Source.Properties)
}

func (e *Executor) produceFromReuse(a *runbook.ArtifactDefinition) (schema.Message, error) {
	return e.Store.Get(a.Reuse.FromRun, a.Reuse.Artifact)
}

func (e *Executor) produceFromInputs(r *run, id string, a *runbook.ArtifactDefinition) (schema.Message, error) {
	r.mu.Lock()
	collected := make(map[string]schema.Message, len(a.Inputs))
	for _, ref := range a.Inputs {
		if msg, ok := r.messages[ref]; ok {
			collected[ref] = msg
		}
	}
	r.mu.Unlock()

	inputs := make([]schema.Message, 0, len(a.Inputs))
	for _, ref := range a.Inputs {
		msg, ok := collected[ref]
		if !ok {
			return schema.Message{}, fmt.Errorf("artifact %q: upstream input %q was not produced", id, ref)
		}
		inputs = append(inputs, msg)
	}

	if a.Process != nil {
		factory, ok := e.Registry.Analyser(a.Process.Type)
		if !ok {
			return schema.Message{}, orcherrors.NewComponentNotFoundError("analyser", a.Process.Type)
		}
		if !factory.CanCreate(a.Process.Properties) {
			return schema.Message{}, fmt.Errorf("analyser %q declined to run for artifact %q", a.Process.Type, id)
		}
		analyser, err := factory.Create(a.Process.Properties)
		if err != nil {
			return schema.Message{}, err
		}
		outputSchema := e.Plan.ArtifactSchemas[id]
		return analyser.Process(inputs, outputSchema)
	}

	return concatenateMerge(inputs)
}

// concatenateMerge implements §4.10.1: combine every input's content
// into a single list under a freshly minted message id, keeping the
// shared schema.
func concatenateMerge(inputs []schema.Message) (schema.Message, error) {
	if len(inputs) == 0 {
		return schema.Message{}, fmt.Errorf("concatenate merge: no inputs to merge")
	}
	content := make([]any, 0, len(inputs))
	for _, msg := range inputs {
		if list, ok := msg.Content.([]any); ok {
			content = append(content, list...)
		} else {
			content = append(content, msg.Content)
		}
	}
	return schema.Message{
		ID:      uuid.New().String(),
		Content: content,
		Schema:  inputs[0].Schema,
	}, nil
}
