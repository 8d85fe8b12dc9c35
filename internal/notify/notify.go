// Package notify defines the run-completion notification boundary:
// after an ExecutionResult is finalised, the executor publishes a
// RunCompletedEvent to its configured Adapter.
// Grounded on the pack's adapter.Adapter event-bus boundary; absent
// configuration, Nop satisfies the same interface as a no-op.
package notify

import "context"

// RunCompletedEvent is published once per finished run.
type RunCompletedEvent struct {
	RunID         string `json:"run_id"`
	Status        string `json:"status"`
	ArtifactCount int    `json:"artifact_count"`
	FailedCount   int    `json:"failed_count"`
	SkippedCount  int    `json:"skipped_count"`
}

// Adapter publishes run completion events to a downstream system.
type Adapter interface {
	Publish(ctx context.Context, event *RunCompletedEvent) error
	Close() error
}

type nopAdapter struct{}

// Nop returns an Adapter that discards every event, the default when
// no notification target is configured.
func Nop() Adapter { return nopAdapter{} }

func (nopAdapter) Publish(context.Context, *RunCompletedEvent) error { return nil }
func (nopAdapter) Close() error                                      { return nil }

// FromResult builds a RunCompletedEvent from a finalised result.Result
// shaped value. Taking the counts directly rather than the whole
// result type keeps this package independent of internal/result.
func FromResult(runID, status string, artifactCount, failedCount, skippedCount int) *RunCompletedEvent {
	return &RunCompletedEvent{
		RunID:         runID,
		Status:        status,
		ArtifactCount: artifactCount,
		FailedCount:   failedCount,
		SkippedCount:  skippedCount,
	}
}
