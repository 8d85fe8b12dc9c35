// Package orcherrors defines the typed error taxonomy raised by the
// runbook planner and executor. Each variant corresponds to one row of
// the engine's error propagation table: plan-time errors are returned
// once from the planner; the executor and artifact store also build
// some of these types at execution time, where the executor records
// them against the failing artifact instead of aborting the run.
package orcherrors

import "fmt"

// ParseError reports malformed runbook YAML.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func NewParseError(path string, line int, err error) error {
	return &ParseError{Path: path, Line: line, Err: err}
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse error: %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports a structural or cross-field validation failure
// in a parsed runbook (§3 invariants 1-5, reuse schema requirement).
type SchemaError struct {
	Field   string
	Message string
}

func NewSchemaError(field, message string) error {
	return &SchemaError{Field: field, Message: message}
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema error: %s", e.Message)
	}
	return fmt.Sprintf("schema error: %s: %s", e.Field, e.Message)
}

// MissingEnvVarError reports a ${VAR} substitution with no process
// environment entry and no default.
type MissingEnvVarError struct {
	Name string
}

func NewMissingEnvVarError(name string) error {
	return &MissingEnvVarError{Name: name}
}

func (e *MissingEnvVarError) Error() string {
	return fmt.Sprintf("missing environment variable: %s", e.Name)
}

// InvalidPathError reports a child_runbook path that is absolute or
// escapes its search root via "..".
type InvalidPathError struct {
	Path   string
	Reason string
}

func NewInvalidPathError(path, reason string) error {
	return &InvalidPathError{Path: path, Reason: reason}
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

// ChildRunbookNotFoundError reports a child_runbook path that resolved
// against neither the parent directory nor any template_paths entry.
type ChildRunbookNotFoundError struct {
	Path         string
	SearchedDirs []string
}

func NewChildRunbookNotFoundError(path string, searched []string) error {
	return &ChildRunbookNotFoundError{Path: path, SearchedDirs: searched}
}

func (e *ChildRunbookNotFoundError) Error() string {
	return fmt.Sprintf("child runbook %q not found in %v", e.Path, e.SearchedDirs)
}

// CircularRunbookError reports a child_runbook chain that revisits an
// already-open runbook file.
type CircularRunbookError struct {
	Cycle []string
}

func NewCircularRunbookError(cycle []string) error {
	return &CircularRunbookError{Cycle: cycle}
}

func (e *CircularRunbookError) Error() string {
	return fmt.Sprintf("circular child_runbook reference: %v", e.Cycle)
}

// MissingInputMappingError reports an input_mapping that omits a
// required child input or references an undeclared one. The schema of
// a bound artifact is not compared with the declared input_schema.
type MissingInputMappingError struct {
	ChildPath string
	Missing   []string
	Unknown   []string
}

func NewMissingInputMappingError(childPath string, missing, unknown []string) error {
	return &MissingInputMappingError{ChildPath: childPath, Missing: missing, Unknown: unknown}
}

func (e *MissingInputMappingError) Error() string {
	return fmt.Sprintf("input_mapping for %q: missing=%v unknown=%v", e.ChildPath, e.Missing, e.Unknown)
}

// CycleError reports a cycle found while building or sorting the
// artifact dependency DAG.
type CycleError struct {
	Cycle []string
}

func NewCycleError(cycle []string) error {
	return &CycleError{Cycle: cycle}
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %v", e.Cycle)
}

// MissingArtifactError reports an `inputs` reference to an id absent
// from the flattened artifact set.
type MissingArtifactError struct {
	Referrer string
	Missing  string
}

func NewMissingArtifactError(referrer, missing string) error {
	return &MissingArtifactError{Referrer: referrer, Missing: missing}
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("artifact %q references unknown input %q", e.Referrer, e.Missing)
}

// ComponentNotFoundError reports a `source.type` or `process.type`
// naming a connector or analyser absent from the registry.
type ComponentNotFoundError struct {
	Kind string // "connector" | "analyser"
	Name string
}

func NewComponentNotFoundError(kind, name string) error {
	return &ComponentNotFoundError{Kind: kind, Name: name}
}

func (e *ComponentNotFoundError) Error() string {
	return fmt.Sprintf("%s %q is not registered", e.Kind, e.Name)
}

// SchemaCompatibilityError reports that an analyser's declared
// input_requirements contain no combination matching the schemas
// provided by an artifact's upstream inputs.
type SchemaCompatibilityError struct {
	ArtifactID string
	Provided   []string
	Available  [][]string
}

func NewSchemaCompatibilityError(artifactID string, provided []string, available [][]string) error {
	return &SchemaCompatibilityError{ArtifactID: artifactID, Provided: provided, Available: available}
}

func (e *SchemaCompatibilityError) Error() string {
	return fmt.Sprintf("artifact %q: provided schemas %v match none of %v", e.ArtifactID, e.Provided, e.Available)
}

// RunbookChangedError reports that a resumed run's stored runbook hash
// no longer matches the current parent runbook file.
type RunbookChangedError struct {
	RunID    string
	Stored   string
	Computed string
}

func NewRunbookChangedError(runID, stored, computed string) error {
	return &RunbookChangedError{RunID: runID, Stored: stored, Computed: computed}
}

func (e *RunbookChangedError) Error() string {
	return fmt.Sprintf("run %s: runbook changed since last execution (stored=%s current=%s)", e.RunID, e.Stored, e.Computed)
}

// ExecutionStateMismatchError reports that a resumed run's stored
// execution state does not cover exactly the plan's current artifact
// id set, e.g. because the plan's child-runbook namespacing changed
// between the interrupted run and the resume attempt.
type ExecutionStateMismatchError struct {
	RunID   string
	Missing []string // in the plan, absent from the stored state
	Extra   []string // in the stored state, absent from the plan
}

func NewExecutionStateMismatchError(runID string, missing, extra []string) error {
	return &ExecutionStateMismatchError{RunID: runID, Missing: missing, Extra: extra}
}

func (e *ExecutionStateMismatchError) Error() string {
	return fmt.Sprintf("run %s: execution state does not match plan artifacts (missing=%v extra=%v)", e.RunID, e.Missing, e.Extra)
}

// NotFoundError reports a missing key in the artifact store.
type NotFoundError struct {
	RunID string
	Key   string
}

func NewNotFoundError(runID, key string) error {
	return &NotFoundError{RunID: runID, Key: key}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact store: %s/%s not found", e.RunID, e.Key)
}
