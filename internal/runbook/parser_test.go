package runbook

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runbookctl/engine/pkg/orcherrors"
)

const scenarioA = `
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

func TestParseBytesScenarioA(t *testing.T) {
	rb, err := ParseBytes([]byte(scenarioA), "scenario-a.yaml")
	require.NoError(t, err)
	require.Equal(t, "scenario-a", rb.Name)
	require.Len(t, rb.Artifacts, 2)

	src := rb.Artifacts["src"]
	require.Equal(t, ProductionSource, src.Kind())
	require.Equal(t, "fs", src.Source.Type)

	out := rb.Artifacts["out"]
	require.Equal(t, ProductionInputs, out.Kind())
	require.Equal(t, []string{"src"}, out.Inputs)
	require.NotNil(t, out.Process)
	require.True(t, out.Output)
}

func TestParseBytesEnvSubstitution(t *testing.T) {
	old := osLookupEnv
	osLookupEnv = func(name string) (string, bool) {
		if name == "DATA_PATH" {
			return "/srv/data", true
		}
		return "", false
	}
	defer func() { osLookupEnv = old }()

	doc := `
name: env-test
description: substitutes env vars
artifacts:
  src:
    source:
      type: fs
      properties:
        path: "${DATA_PATH}/in"
`
	rb, err := ParseBytes([]byte(doc), "env-test.yaml")
	require.NoError(t, err)
	require.Equal(t, "/srv/data/in", rb.Artifacts["src"].Source.Properties["path"])
}

func TestParseBytesMissingEnvVarFails(t *testing.T) {
	old := osLookupEnv
	osLookupEnv = func(string) (string, bool) { return "", false }
	defer func() { osLookupEnv = old }()

	doc := `
name: env-missing
description: fails without default
artifacts:
  src:
    source:
      type: fs
      properties:
        path: "${MISSING_VAR}"
`
	_, err := ParseBytes([]byte(doc), "env-missing.yaml")
	require.Error(t, err)
	var envErr *orcherrors.MissingEnvVarError
	require.ErrorAs(t, err, &envErr)
	require.Equal(t, "MISSING_VAR", envErr.Name)
}

func TestParseBytesRejectsMultipleProductionMethods(t *testing.T) {
	doc := `
name: bad
description: violates exactly-one-of
artifacts:
  src:
    source:
      type: fs
      properties: {}
    inputs: other
`
	_, err := ParseBytes([]byte(doc), "bad.yaml")
	require.Error(t, err)
	var schemaErr *orcherrors.SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestParseBytesRejectsUnknownFields(t *testing.T) {
	doc := `
name: bad
description: unknown top-level field
unexpected_field: true
artifacts:
  src:
    source:
      type: fs
      properties: {}
`
	_, err := ParseBytes([]byte(doc), "bad.yaml")
	require.Error(t, err)
}

func TestParseBytesRejectsUnknownNestedArtifactField(t *testing.T) {
	// src still satisfies the exactly-one-of-source/inputs/reuse
	// invariant on its own, so this only fails if the nested
	// "outptu_schema" typo is actually rejected by strict decoding
	// rather than silently dropped.
	doc := `
name: bad
description: typo'd key nested inside an artifact
artifacts:
  src:
    source:
      type: fs
      properties: {}
    outptu_schema: fs_listing/1
`
	_, err := ParseBytes([]byte(doc), "bad.yaml")
	require.Error(t, err)
}

func TestParseBytesReuseRequiresOutputSchema(t *testing.T) {
	doc := `
name: reuse-test
description: reuse without output_schema
artifacts:
  src:
    reuse:
      from_run: 11111111-1111-1111-1111-111111111111
      artifact: other
`
	_, err := ParseBytes([]byte(doc), "reuse.yaml")
	require.Error(t, err)
}
