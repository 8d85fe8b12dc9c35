// Package plan builds an immutable ExecutionPlan from a parsed root
// runbook: it flattens child runbooks, compiles the artifact
// dependency DAG, validates every reference, and resolves the output
// schema each artifact will produce before a single message flows.
package plan

import (
	"sort"

	"github.com/runbookctl/engine/internal/dag"
	"github.com/runbookctl/engine/internal/flatten"
	"github.com/runbookctl/engine/internal/registry"
	"github.com/runbookctl/engine/internal/runbook"
	"github.com/runbookctl/engine/internal/schema"
	"github.com/runbookctl/engine/pkg/orcherrors"
)

// Plan is the immutable result handed to the executor. Nothing on it
// is mutated after Build returns; the executor reads it concurrently
// from many goroutines.
type Plan struct {
	Runbook         *runbook.Runbook
	DAG             *dag.DAG
	Artifacts       map[string]*runbook.ArtifactDefinition
	ArtifactSchemas map[string]schema.Schema
	Aliases         map[string]string
	ReversedAliases map[string]string
	Redacted        map[string]bool
}

// Build flattens rb, compiles its dependency graph, and resolves every
// artifact's output schema. reg supplies the connector and analyser
// metadata needed for schema resolution and component lookup.
func Build(rb *runbook.Runbook, rbPath string, reg *registry.Registry) (*Plan, error) {
	flat, err := flatten.Flatten(rb, rbPath)
	if err != nil {
		return nil, err
	}

	graph := dag.New()
	for id, a := range flat.Artifacts {
		graph.AddNode(id)
		for _, ref := range a.Inputs {
			if _, ok := flat.Artifacts[ref]; !ok {
				return nil, orcherrors.NewMissingArtifactError(id, ref)
			}
			graph.AddEdge(id, ref)
		}
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	r := &resolver{artifacts: flat.Artifacts, reg: reg, schemas: make(map[string]schema.Schema)}
	for _, id := range sortedIDs(flat.Artifacts) {
		if _, err := r.resolve(id, nil); err != nil {
			return nil, err
		}
	}

	return &Plan{
		Runbook:         rb,
		DAG:             graph,
		Artifacts:       flat.Artifacts,
		ArtifactSchemas: r.schemas,
		Aliases:         flat.Aliases,
		ReversedAliases: flat.ReversedAliases,
		Redacted:        flat.Redacted,
	}, nil
}

func sortedIDs(artifacts map[string]*runbook.ArtifactDefinition) []string {
	ids := make([]string, 0, len(artifacts))
	for id := range artifacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// resolver resolves each artifact's output schema exactly once,
// memoizing results and recursing into dependencies as needed. The
// DAG is already known acyclic, so the visiting set below only guards
// against resolving the same id twice, never against infinite
// recursion.
type resolver struct {
	artifacts map[string]*runbook.ArtifactDefinition
	reg       *registry.Registry
	schemas   map[string]schema.Schema
}

func (r *resolver) resolve(id string, visiting map[string]bool) (schema.Schema, error) {
	if s, ok := r.schemas[id]; ok {
		return s, nil
	}
	if visiting == nil {
		visiting = make(map[string]bool)
	}
	visiting[id] = true

	a := r.artifacts[id]
	switch a.Kind() {
	case runbook.ProductionSource:
		s, err := r.resolveSource(id, a)
		if err != nil {
			return schema.Schema{}, err
		}
		r.schemas[id] = s
		return s, nil

	case runbook.ProductionReuse:
		s, err := schema.Parse(a.OutputSchema)
		if err != nil {
			return schema.Schema{}, orcherrors.NewSchemaError(id, err.Error())
		}
		r.schemas[id] = s
		return s, nil

	case runbook.ProductionInputs:
		s, err := r.resolveDerived(id, a, visiting)
		if err != nil {
			return schema.Schema{}, err
		}
		r.schemas[id] = s
		return s, nil
	}

	return schema.Schema{}, orcherrors.NewSchemaError(id, "artifact has no recognised production method")
}

func (r *resolver) resolveSource(id string, a *runbook.ArtifactDefinition) (schema.Schema, error) {
	factory, ok := r.reg.Connector(a.Source.Type)
	if !ok {
		return schema.Schema{}, orcherrors.NewComponentNotFoundError("connector", a.Source.Type)
	}
	meta := factory.ComponentClass()
	if len(meta.OutputSchemas) == 0 {
		return schema.Schema{}, orcherrors.NewSchemaError(id, "connector "+a.Source.Type+" declares no output schema")
	}
	return meta.OutputSchemas[0], nil
}

func (r *resolver) resolveDerived(id string, a *runbook.ArtifactDefinition, visiting map[string]bool) (schema.Schema, error) {
	provided := make([]schema.Schema, 0, len(a.Inputs))
	for _, ref := range a.Inputs {
		if _, done := r.schemas[ref]; visiting[ref] && !done {
			// the DAG validated acyclic already; a repeat here would
			// mean resolve was re-entered for a node still in
			// progress, which cannot happen once the graph is acyclic.
			continue
		}
		s, err := r.resolve(ref, visiting)
		if err != nil {
			return schema.Schema{}, err
		}
		provided = append(provided, s)
	}

	var resolved schema.Schema
	if a.Process == nil {
		s, err := r.resolveConcatenate(id, provided)
		if err != nil {
			return schema.Schema{}, err
		}
		resolved = s
	} else {
		factory, ok := r.reg.Analyser(a.Process.Type)
		if !ok {
			return schema.Schema{}, orcherrors.NewComponentNotFoundError("analyser", a.Process.Type)
		}
		meta := factory.ComponentClass()

		want := schema.NewRequirementSet(provided...)
		matched := false
		for _, allowed := range meta.InputRequirements {
			if allowed.Equal(want) {
				if len(meta.OutputSchemas) == 0 {
					return schema.Schema{}, orcherrors.NewSchemaError(id, "analyser "+a.Process.Type+" declares no output schema")
				}
				resolved = meta.OutputSchemas[0]
				matched = true
				break
			}
		}
		if !matched {
			available := make([][]string, 0, len(meta.InputRequirements))
			for _, allowed := range meta.InputRequirements {
				available = append(available, allowed.Slice())
			}
			return schema.Schema{}, orcherrors.NewSchemaCompatibilityError(id, want.Slice(), available)
		}
	}

	// output_schema overrides only the resulting schema value; the
	// factory lookup and requirement-set match above must still run so
	// a bad process.type or mismatched inputs is still rejected.
	if a.OutputSchema != "" {
		s, err := schema.Parse(a.OutputSchema)
		if err != nil {
			return schema.Schema{}, orcherrors.NewSchemaError(id, err.Error())
		}
		return s, nil
	}

	return resolved, nil
}

// resolveConcatenate handles an artifact with multiple inputs and no
// process: §4.10.1's concatenate merge requires every input to share
// one schema, which becomes the merged artifact's schema.
func (r *resolver) resolveConcatenate(id string, provided []schema.Schema) (schema.Schema, error) {
	if len(provided) == 0 {
		return schema.Schema{}, orcherrors.NewSchemaError(id, "artifact has no inputs to resolve a schema from")
	}
	first := provided[0]
	for _, s := range provided[1:] {
		if !s.Equal(first) {
			return schema.Schema{}, orcherrors.NewSchemaCompatibilityError(id, schemaStrings(provided), nil)
		}
	}
	return first, nil
}

func schemaStrings(schemas []schema.Schema) []string {
	out := make([]string, len(schemas))
	for i, s := range schemas {
		out[i] = s.String()
	}
	return out
}
