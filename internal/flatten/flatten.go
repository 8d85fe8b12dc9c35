// Package flatten resolves child_runbook directives into a single,
// namespaced artifact set at plan time (§4.5). It is driven by the
// Planner and never runs during execution.
package flatten

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/runbookctl/engine/internal/runbook"
	"github.com/runbookctl/engine/pkg/orcherrors"
)

// Result is the flattener's output: a single artifact set with
// namespaced ids, plus the alias bookkeeping the executor and result
// aggregator need to label child-originated artifacts.
type Result struct {
	Artifacts map[string]*runbook.ArtifactDefinition
	// Aliases maps a parent-visible name to the namespaced id that
	// backs it, for every child_runbook directive encountered at any
	// nesting depth. Root-level entries are keyed by the artifact id
	// that carried the directive (e.g. "analysis" in scenario F).
	Aliases map[string]string
	// ReversedAliases is the inverse of Aliases, used to tag a
	// produced Message's ExecutionContext.Alias.
	ReversedAliases map[string]string
	// Redacted marks namespaced artifact ids whose content must be
	// shown as "[REDACTED]" in logs and exported results because they
	// were bound to a sensitive child input.
	Redacted map[string]bool
}

// childLoader parses a runbook from a resolved file path. Production
// code passes runbook.Parse; tests can substitute an in-memory loader.
type childLoader func(path string) (*runbook.Runbook, error)

// Flatten resolves every child_runbook directive reachable from root,
// returning the flattened artifact set and alias bookkeeping.
func Flatten(root *runbook.Runbook, rootPath string) (*Result, error) {
	return flattenWith(root, rootPath, runbook.Parse)
}

func flattenWith(root *runbook.Runbook, rootPath string, load childLoader) (*Result, error) {
	out := &Result{
		Artifacts:       make(map[string]*runbook.ArtifactDefinition),
		Aliases:         make(map[string]string),
		ReversedAliases: make(map[string]string),
		Redacted:        make(map[string]bool),
	}

	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		absRoot = rootPath
	}

	f := &flattener{load: load, out: out}
	if err := f.process(root, rootPath, "", true, nil, []string{absRoot}); err != nil {
		return nil, err
	}
	return out, nil
}

type flattener struct {
	load childLoader
	out  *Result
}

// process flattens one runbook scope. nsPrefix is the namespace this
// scope's artifacts are emitted under ("" for the root); isRoot
// disables the naming scheme entirely so the root scope keeps its
// original artifact ids. bindings maps this scope's declared input
// names (only meaningful when !isRoot) to already-namespaced ids
// supplied by the caller. ancestorPaths tracks resolved child-runbook
// paths currently open, for cycle detection.
func (f *flattener) process(rb *runbook.Runbook, rbPath, nsPrefix string, isRoot bool, bindings map[string]string, ancestorPaths []string) error {
	var scopeNS string
	if isRoot {
		scopeNS = ""
	} else {
		scopeNS = nsPrefix
	}

	localID := make(map[string]string, len(rb.Artifacts))  // original id -> namespaced id (non-child artifacts only)
	localAlias := make(map[string]string, len(rb.Artifacts)) // original id -> aliased namespaced id (child_runbook artifacts)

	for id, a := range rb.Artifacts {
		if a.ChildRunbook != nil {
			continue
		}
		localID[id] = scopeNS + id
	}

	for id, a := range rb.Artifacts {
		if a.ChildRunbook == nil {
			continue
		}
		aliasTarget, err := f.processChild(rb, rbPath, scopeNS, id, a, localID, localAlias, ancestorPaths)
		if err != nil {
			return err
		}
		localAlias[id] = aliasTarget

		aliasKey := scopeNS + id
		f.out.Aliases[aliasKey] = aliasTarget
		f.out.ReversedAliases[aliasTarget] = aliasKey
	}

	resolve := func(ref string) string {
		if !isRoot {
			if target, ok := bindings[ref]; ok {
				return target
			}
		}
		if target, ok := localID[ref]; ok {
			return target
		}
		if target, ok := localAlias[ref]; ok {
			return target
		}
		return scopeNS + ref
	}

	for id, a := range rb.Artifacts {
		if a.ChildRunbook != nil {
			continue
		}
		emitted := cloneArtifact(a)
		emitted.ID = scopeNS + id
		if a.Inputs != nil {
			rewritten := make([]string, len(a.Inputs))
			for i, ref := range a.Inputs {
				rewritten[i] = resolve(ref)
			}
			emitted.Inputs = rewritten
		}
		f.out.Artifacts[emitted.ID] = emitted
	}

	return nil
}

// processChild resolves, parses, validates, and recurses into one
// child_runbook directive, returning the namespaced id that backs its
// declared output.
func (f *flattener) processChild(
	parent *runbook.Runbook,
	parentPath, scopeNS, artifactID string,
	a *runbook.ArtifactDefinition,
	localID, localAlias map[string]string,
	ancestorPaths []string,
) (string, error) {
	spec := a.ChildRunbook

	resolvedPath, searched, err := resolveChildPath(parentPath, parent.Config.TemplatePaths, spec.Path)
	if err != nil {
		return "", err
	}
	if resolvedPath == "" {
		return "", orcherrors.NewChildRunbookNotFoundError(spec.Path, searched)
	}

	for _, ancestor := range ancestorPaths {
		if ancestor == resolvedPath {
			return "", orcherrors.NewCircularRunbookError(append(append([]string{}, ancestorPaths...), resolvedPath))
		}
	}

	child, err := f.load(resolvedPath)
	if err != nil {
		return "", err
	}

	if err := validateInputMapping(child, spec); err != nil {
		return "", err
	}

	// The namespace uid must be deterministic, not random: a resume
	// rebuilds the plan from scratch via the same Flatten call, and its
	// flattened artifact ids must match the interrupted run's recorded
	// execution state exactly (§4.9 precondition 3). Deriving it from
	// the directive's identity within its parent scope, rather than
	// from a fresh random source, makes repeated flattening of the same
	// runbook idempotent.
	uid := childNamespaceUID(scopeNS, artifactID, resolvedPath)
	childNS := scopeNS + child.Name + "__" + uid + "__"

	bindings := make(map[string]string, len(spec.InputMapping))
	for childInputName, parentRef := range spec.InputMapping {
		resolved := parentRef
		if target, ok := localID[parentRef]; ok {
			resolved = target
		} else if target, ok := localAlias[parentRef]; ok {
			resolved = target
		} else {
			resolved = scopeNS + parentRef
		}
		bindings[childInputName] = resolved

		if decl, ok := child.Inputs[childInputName]; ok && decl.Sensitive {
			f.out.Redacted[resolved] = true
		}
	}

	if err := f.process(child, resolvedPath, childNS, false, bindings, append(ancestorPaths, resolvedPath)); err != nil {
		return "", err
	}

	if spec.Output != "" {
		outDecl, ok := child.Outputs[spec.Output]
		if !ok {
			return "", orcherrors.NewSchemaError(artifactID, "child_runbook.output references an undeclared child output")
		}
		return childNS + outDecl.Artifact, nil
	}

	// output_mapping fans a child's several declared outputs out to
	// several parent-visible names at once; each pair gets its own
	// global alias entry. The directive artifact's own id still needs
	// one representative target for any sibling that references it
	// directly via `inputs`, so the first mapping pair (in map order)
	// doubles as that fallback.
	if len(spec.OutputMapping) == 0 {
		return "", orcherrors.NewSchemaError(artifactID, "child_runbook requires output or output_mapping")
	}

	var fallback string
	for childOutputName, parentName := range spec.OutputMapping {
		outDecl, ok := child.Outputs[childOutputName]
		if !ok {
			return "", orcherrors.NewSchemaError(artifactID, "output_mapping references an undeclared child output "+childOutputName)
		}
		target := childNS + outDecl.Artifact
		f.out.Aliases[parentName] = target
		f.out.ReversedAliases[target] = parentName
		if fallback == "" {
			fallback = target
		}
	}
	return fallback, nil
}

// childNamespaceUID derives a stable 8-character namespace token for
// one child_runbook directive from its identity within the flattened
// tree: the scope it's declared in, the artifact id that carries the
// directive, and the resolved path of the child runbook it points at.
// Two directives that differ in any of those three always get
// different namespaces; the same directive always gets the same one.
func childNamespaceUID(scopeNS, artifactID, resolvedPath string) string {
	sum := sha256.Sum256([]byte(scopeNS + "\x00" + artifactID + "\x00" + resolvedPath))
	return hex.EncodeToString(sum[:])[:8]
}

func validateInputMapping(child *runbook.Runbook, spec *runbook.ChildRunbookSpec) error {
	var missing, unknown []string

	for name, decl := range child.Inputs {
		_, mapped := spec.InputMapping[name]
		if !mapped && !decl.Optional {
			missing = append(missing, name)
		}
	}
	for name := range spec.InputMapping {
		if _, declared := child.Inputs[name]; !declared {
			unknown = append(unknown, name)
		}
	}

	if len(missing) > 0 || len(unknown) > 0 {
		return orcherrors.NewMissingInputMappingError(spec.Path, missing, unknown)
	}
	return nil
}

// resolveChildPath implements §4.5.1: the path must be relative and
// contain no ".." segment, and is searched for first under the
// parent runbook's directory, then under each template_paths entry in
// order.
func resolveChildPath(parentRunbookPath string, templatePaths []string, childPath string) (string, []string, error) {
	if filepath.IsAbs(childPath) {
		return "", nil, orcherrors.NewInvalidPathError(childPath, "must be relative")
	}
	for _, segment := range strings.Split(filepath.ToSlash(childPath), "/") {
		if segment == ".." {
			return "", nil, orcherrors.NewInvalidPathError(childPath, "must not contain '..'")
		}
	}

	parentDir := filepath.Dir(parentRunbookPath)
	searchDirs := append([]string{parentDir}, joinDirs(parentDir, templatePaths)...)

	var searched []string
	for _, dir := range searchDirs {
		candidate := filepath.Join(dir, childPath)
		searched = append(searched, candidate)
		if fileExists(candidate) {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				abs = candidate
			}
			return abs, searched, nil
		}
	}
	return "", searched, nil
}

func joinDirs(base string, rel []string) []string {
	out := make([]string, len(rel))
	for i, r := range rel {
		out[i] = filepath.Join(base, r)
	}
	return out
}

func cloneArtifact(a *runbook.ArtifactDefinition) *runbook.ArtifactDefinition {
	clone := *a
	if a.Inputs != nil {
		clone.Inputs = append([]string(nil), a.Inputs...)
	}
	return &clone
}
