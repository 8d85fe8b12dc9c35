package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runbookctl/engine/internal/registry"
	"github.com/runbookctl/engine/internal/runbook"
	"github.com/runbookctl/engine/internal/schema"
	"github.com/runbookctl/engine/pkg/orcherrors"
)

type stubConnectorFactory struct {
	meta registry.Metadata
}

func (f stubConnectorFactory) ComponentClass() registry.Metadata        { return f.meta }
func (f stubConnectorFactory) CanCreate(map[string]any) bool            { return true }
func (f stubConnectorFactory) Create(map[string]any) (registry.Connector, error) {
	return nil, nil
}

type stubAnalyserFactory struct {
	meta registry.Metadata
}

func (f stubAnalyserFactory) ComponentClass() registry.Metadata { return f.meta }
func (f stubAnalyserFactory) CanCreate(map[string]any) bool     { return true }
func (f stubAnalyserFactory) Create(map[string]any) (registry.Analyser, error) {
	return nil, nil
}

func testRegistry() *registry.Registry {
	reg := registry.New()
	reg.RegisterConnector("fs", stubConnectorFactory{meta: registry.Metadata{
		Name:          "fs",
		OutputSchemas: []schema.Schema{{Name: "text", Version: "v1"}},
	}})
	reg.RegisterAnalyser("classifier", stubAnalyserFactory{meta: registry.Metadata{
		Name:              "classifier",
		InputRequirements: []schema.RequirementSet{schema.NewRequirementSet(schema.Schema{Name: "text", Version: "v1"})},
		OutputSchemas:     []schema.Schema{{Name: "classified", Version: "v1"}},
	}})
	return reg
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const scenarioADoc = `
name: scenario-a
description: source then analyser
artifacts:
  src:
    source:
      type: fs
      properties:
        path: /data
  out:
    inputs: src
    process:
      type: classifier
    output: true
`

func TestBuildResolvesSchemasAlongDAG(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scenario-a.yaml", scenarioADoc)
	rb, err := runbook.Parse(path)
	require.NoError(t, err)

	p, err := Build(rb, path, testRegistry())
	require.NoError(t, err)

	require.Equal(t, schema.Schema{Name: "text", Version: "v1"}, p.ArtifactSchemas["src"])
	require.Equal(t, schema.Schema{Name: "classified", Version: "v1"}, p.ArtifactSchemas["out"])
	require.ElementsMatch(t, []string{"src"}, p.DAG.DependsOn("out"))
}

const missingRefDoc = `
name: missing-ref
description: references an artifact that does not exist
artifacts:
  out:
    inputs: nonexistent
    process:
      type: classifier
    output: true
`

func TestBuildReportsMissingArtifactReference(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "missing-ref.yaml", missingRefDoc)
	rb, err := runbook.Parse(path)
	require.NoError(t, err)

	_, err = Build(rb, path, testRegistry())
	require.Error(t, err)
	var missingErr *orcherrors.MissingArtifactError
	require.ErrorAs(t, err, &missingErr)
}

const unknownConnectorDoc = `
name: unknown-connector
description: references an unregistered connector type
artifacts:
  src:
    source:
      type: mysql
      properties: {}
`

func TestBuildReportsUnknownConnector(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "unknown-connector.yaml", unknownConnectorDoc)
	rb, err := runbook.Parse(path)
	require.NoError(t, err)

	_, err = Build(rb, path, testRegistry())
	require.Error(t, err)
	var notFoundErr *orcherrors.ComponentNotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	require.Equal(t, "connector", notFoundErr.Kind)
}

const schemaMismatchDoc = `
name: schema-mismatch
description: analyser input_requirements do not match the upstream schema
artifacts:
  src:
    reuse:
      from_run: 11111111-1111-1111-1111-111111111111
      artifact: other
    output_schema: binary/v1
  out:
    inputs: src
    process:
      type: classifier
    output: true
`

func TestBuildReportsSchemaCompatibilityMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "schema-mismatch.yaml", schemaMismatchDoc)
	rb, err := runbook.Parse(path)
	require.NoError(t, err)

	_, err = Build(rb, path, testRegistry())
	require.Error(t, err)
	var compatErr *orcherrors.SchemaCompatibilityError
	require.ErrorAs(t, err, &compatErr)
}

const overrideWithBadProcessDoc = `
name: override-bad-process
description: output_schema override must not bypass process.type validation
artifacts:
  src:
    source:
      type: fs
      properties:
        path: /data
  out:
    inputs: src
    process:
      type: does-not-exist
    output_schema: binary/v1
    output: true
`

func TestBuildOutputSchemaOverrideStillValidatesProcessType(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "override-bad-process.yaml", overrideWithBadProcessDoc)
	rb, err := runbook.Parse(path)
	require.NoError(t, err)

	_, err = Build(rb, path, testRegistry())
	require.Error(t, err)
	var notFoundErr *orcherrors.ComponentNotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	require.Equal(t, "analyser", notFoundErr.Kind)
}

const overrideWithMismatchedInputsDoc = `
name: override-mismatched-inputs
description: output_schema override must not bypass the input_requirements match
artifacts:
  src:
    reuse:
      from_run: 11111111-1111-1111-1111-111111111111
      artifact: other
    output_schema: binary/v1
  out:
    inputs: src
    process:
      type: classifier
    output_schema: binary/v1
    output: true
`

func TestBuildOutputSchemaOverrideStillValidatesInputRequirements(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "override-mismatched-inputs.yaml", overrideWithMismatchedInputsDoc)
	rb, err := runbook.Parse(path)
	require.NoError(t, err)

	_, err = Build(rb, path, testRegistry())
	require.Error(t, err)
	var compatErr *orcherrors.SchemaCompatibilityError
	require.ErrorAs(t, err, &compatErr)
}

const overrideSubstitutesResolvedSchemaDoc = `
name: override-substitutes
description: a valid process/inputs combo still has its schema replaced by the override
artifacts:
  src:
    source:
      type: fs
      properties:
        path: /data
  out:
    inputs: src
    process:
      type: classifier
    output_schema: binary/v1
    output: true
`

func TestBuildOutputSchemaOverrideReplacesResolvedSchema(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "override-substitutes.yaml", overrideSubstitutesResolvedSchemaDoc)
	rb, err := runbook.Parse(path)
	require.NoError(t, err)

	p, err := Build(rb, path, testRegistry())
	require.NoError(t, err)
	require.Equal(t, schema.Schema{Name: "binary", Version: "v1"}, p.ArtifactSchemas["out"])
}

const cycleDoc = `
name: cycle
description: a directly depends on itself through two artifacts
artifacts:
  a:
    inputs: b
    process:
      type: classifier
  b:
    inputs: a
    process:
      type: classifier
`

func TestBuildReportsDependencyCycle(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cycle.yaml", cycleDoc)
	rb, err := runbook.Parse(path)
	require.NoError(t, err)

	_, err = Build(rb, path, testRegistry())
	require.Error(t, err)
	var cycleErr *orcherrors.CycleError
	require.ErrorAs(t, err, &cycleErr)
}
