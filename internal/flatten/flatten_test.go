package flatten

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runbookctl/engine/internal/runbook"
	"github.com/runbookctl/engine/pkg/orcherrors"
)

func writeRunbook(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const parentDoc = `
name: parent
description: parent
artifacts:
  src:
    source:
      type: fs
      properties:
        path: /data
  analysis:
    inputs: src
    child_runbook:
      path: child.yaml
      input_mapping:
        doc: src
      output: validated
`

const childDoc = `
name: child
description: child
inputs:
  doc:
    input_schema: text/plain
outputs:
  validated:
    artifact: findings
artifacts:
  validated:
    inputs: doc
    process:
      type: classifier
  findings:
    inputs: validated
    process:
      type: extractor
`

func TestFlattenNamespacesChildArtifactsAndRecordsAlias(t *testing.T) {
	dir := t.TempDir()
	writeRunbook(t, dir, "child.yaml", childDoc)
	parentPath := writeRunbook(t, dir, "parent.yaml", parentDoc)

	parent, err := runbook.Parse(parentPath)
	require.NoError(t, err)

	result, err := Flatten(parent, parentPath)
	require.NoError(t, err)

	require.Contains(t, result.Artifacts, "src")
	_, directivePresent := result.Artifacts["analysis"]
	require.False(t, directivePresent, "the artifact carrying child_runbook must not be emitted")

	var validatedID, findingsID string
	for id := range result.Artifacts {
		if strings.HasSuffix(id, "__validated") {
			validatedID = id
		}
		if strings.HasSuffix(id, "__findings") {
			findingsID = id
		}
	}
	require.NotEmpty(t, validatedID)
	require.NotEmpty(t, findingsID)
	require.True(t, strings.HasPrefix(validatedID, "child__"))

	require.Equal(t, []string{"src"}, result.Artifacts[validatedID].Inputs)
	require.Equal(t, []string{validatedID}, result.Artifacts[findingsID].Inputs)

	require.Equal(t, findingsID, result.Aliases["analysis"])
	require.Equal(t, "analysis", result.ReversedAliases[findingsID])
}

const sensitiveChildDoc = `
name: secretchild
description: secretchild
inputs:
  doc:
    input_schema: text/plain
    sensitive: true
outputs:
  validated:
    artifact: out
artifacts:
  out:
    inputs: doc
    process:
      type: classifier
`

const sensitiveParentDoc = `
name: parent
description: parent
artifacts:
  src:
    source:
      type: fs
      properties:
        path: /data
  analysis:
    inputs: src
    child_runbook:
      path: child.yaml
      input_mapping:
        doc: src
      output: validated
`

func TestFlattenMarksSensitiveBindingForRedaction(t *testing.T) {
	dir := t.TempDir()
	writeRunbook(t, dir, "child.yaml", sensitiveChildDoc)
	parentPath := writeRunbook(t, dir, "parent.yaml", sensitiveParentDoc)

	parent, err := runbook.Parse(parentPath)
	require.NoError(t, err)

	result, err := Flatten(parent, parentPath)
	require.NoError(t, err)
	require.True(t, result.Redacted["src"])
}

const missingMappingParentDoc = `
name: parent
description: parent
artifacts:
  analysis:
    inputs: src
    child_runbook:
      path: child.yaml
      output: validated
`

func TestFlattenMissingRequiredInputMappingErrors(t *testing.T) {
	dir := t.TempDir()
	writeRunbook(t, dir, "child.yaml", childDoc)
	parentPath := writeRunbook(t, dir, "parent.yaml", missingMappingParentDoc)

	parent, err := runbook.Parse(parentPath)
	require.NoError(t, err)

	_, err = Flatten(parent, parentPath)
	require.Error(t, err)
	var mappingErr *orcherrors.MissingInputMappingError
	require.ErrorAs(t, err, &mappingErr)
	require.Contains(t, mappingErr.Missing, "doc")
}

const escapingPathParentDoc = `
name: parent
description: parent
artifacts:
  analysis:
    inputs: src
    child_runbook:
      path: ../escape.yaml
      input_mapping:
        doc: src
      output: validated
`

func TestFlattenRejectsPathEscapingSearchRoot(t *testing.T) {
	dir := t.TempDir()
	parentPath := writeRunbook(t, dir, "parent.yaml", escapingPathParentDoc)

	parent, err := runbook.Parse(parentPath)
	require.NoError(t, err)

	_, err = Flatten(parent, parentPath)
	require.Error(t, err)
	var pathErr *orcherrors.InvalidPathError
	require.ErrorAs(t, err, &pathErr)
}

const missingChildParentDoc = `
name: parent
description: parent
artifacts:
  analysis:
    inputs: src
    child_runbook:
      path: does-not-exist.yaml
      input_mapping:
        doc: src
      output: validated
`

func TestFlattenReportsChildRunbookNotFound(t *testing.T) {
	dir := t.TempDir()
	parentPath := writeRunbook(t, dir, "parent.yaml", missingChildParentDoc)

	parent, err := runbook.Parse(parentPath)
	require.NoError(t, err)

	_, err = Flatten(parent, parentPath)
	require.Error(t, err)
	var notFoundErr *orcherrors.ChildRunbookNotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

const cycleRootDoc = `
name: root
description: root
outputs:
  out:
    artifact: result
artifacts:
  link:
    inputs: seed
    child_runbook:
      path: a.yaml
      input_mapping:
        doc: seed
      output: out
  result:
    inputs: link
    process:
      type: noop
`

const cycleADoc = `
name: a
description: a
inputs:
  doc:
    input_schema: text/plain
outputs:
  out:
    artifact: result
artifacts:
  back:
    inputs: doc
    child_runbook:
      path: root.yaml
      input_mapping:
        doc: doc
      output: out
  result:
    inputs: back
    process:
      type: noop
`

func TestFlattenDetectsCircularChildRunbookReference(t *testing.T) {
	dir := t.TempDir()
	writeRunbook(t, dir, "a.yaml", cycleADoc)
	rootPath := writeRunbook(t, dir, "root.yaml", cycleRootDoc)

	root, err := runbook.Parse(rootPath)
	require.NoError(t, err)

	_, err = Flatten(root, rootPath)
	require.Error(t, err)
	var cycleErr *orcherrors.CircularRunbookError
	require.ErrorAs(t, err, &cycleErr)
}
