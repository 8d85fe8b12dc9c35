// Package schema defines the Schema and Message types that flow
// between connectors, analysers, and the artifact store. The engine
// treats Message.Content as opaque; only components interpret it.
package schema

import (
	"fmt"
	"strings"
)

// Schema identifies a data shape by name and version. Two schemas are
// compatible iff both fields are character-identical.
type Schema struct {
	Name    string `yaml:"name" msgpack:"name"`
	Version string `yaml:"version" msgpack:"version"`
}

// String renders the schema in its textual "name/version" form.
func (s Schema) String() string {
	return s.Name + "/" + s.Version
}

// Equal reports structural equality of two schemas.
func (s Schema) Equal(other Schema) bool {
	return s.Name == other.Name && s.Version == other.Version
}

// Parse decodes a "name/version" string into a Schema.
func Parse(text string) (Schema, error) {
	idx := strings.LastIndex(text, "/")
	if idx <= 0 || idx == len(text)-1 {
		return Schema{}, fmt.Errorf("invalid schema reference %q: want \"name/version\"", text)
	}
	return Schema{Name: text[:idx], Version: text[idx+1:]}, nil
}

// InputRequirement names one schema an analyser accepts among upstream
// inputs. It is immutable and used as a map/set element via Key().
type InputRequirement struct {
	SchemaName string
	Version    string
}

// Key returns a hashable representation suitable for set membership.
func (r InputRequirement) Key() string {
	return r.SchemaName + "/" + r.Version
}

// RequirementSet is an unordered set of InputRequirement, compared by
// exact membership (§4.7 step 5: "frozenset" matching).
type RequirementSet map[string]struct{}

// NewRequirementSet builds a RequirementSet from a list of schemas.
func NewRequirementSet(schemas ...Schema) RequirementSet {
	set := make(RequirementSet, len(schemas))
	for _, s := range schemas {
		set[s.String()] = struct{}{}
	}
	return set
}

// Equal reports whether two requirement sets contain exactly the same
// elements.
func (s RequirementSet) Equal(other RequirementSet) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}

func (s RequirementSet) Slice() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// Status enumerates the lifecycle of a Message's execution context.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ExecutionContext is attached to a Message by the executor before
// storage, recording provenance and outcome.
type ExecutionContext struct {
	Status          Status   `msgpack:"status"`
	Origin          string   `msgpack:"origin"` // "parent" or "child:<runbook_name>"
	Alias           string   `msgpack:"alias,omitempty"`
	Error           string   `msgpack:"error,omitempty"`
	DurationSeconds *float64 `msgpack:"duration_seconds,omitempty"`
}

// Message is the unit of data produced by a connector or analyser and
// stored under (run_id, artifact_id). Once created by its producer it
// is immutable, except that the executor returns an updated copy with
// Extensions.Execution set before storing.
type Message struct {
	ID         string     `msgpack:"id"`
	Content    any        `msgpack:"content"`
	Schema     Schema     `msgpack:"schema"`
	Extensions Extensions `msgpack:"extensions"`
}

// Extensions carries out-of-band metadata alongside a Message's
// content. Execution is absent until the executor tags the message.
type Extensions struct {
	Execution *ExecutionContext `msgpack:"execution,omitempty"`
}

// WithExecution returns a shallow copy of m with Extensions.Execution
// set, leaving the original untouched (messages are immutable after
// creation by their producer).
func (m Message) WithExecution(ec ExecutionContext) Message {
	out := m
	out.Extensions = Extensions{Execution: &ec}
	return out
}
