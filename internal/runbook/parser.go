package runbook

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/runbookctl/engine/pkg/orcherrors"
)

// Parse reads path, substitutes environment variables, strict-decodes
// the YAML into a Runbook, and enforces the cross-field invariants of
// §3. The parser is stateless and pure over (file bytes, environment
// snapshot); its only I/O is the initial read.
func Parse(path string) (*Runbook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, orcherrors.NewParseError(path, 0, err)
	}
	return ParseBytes(raw, path)
}

// ParseBytes parses runbook YAML already in memory, attributing parse
// errors to path for diagnostics.
func ParseBytes(raw []byte, path string) (*Runbook, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, orcherrors.NewParseError(path, extractLine(err), err)
	}
	if doc.Kind == 0 {
		return nil, orcherrors.NewParseError(path, 0, fmt.Errorf("empty document"))
	}

	if err := substituteEnvInTree(&doc, osLookupEnv); err != nil {
		return nil, err
	}

	var rb Runbook
	dec := yaml.NewDecoder(bytes.NewReader(mustMarshal(&doc)))
	dec.KnownFields(true)
	if err := dec.Decode(&rb); err != nil {
		return nil, orcherrors.NewParseError(path, extractLine(err), err)
	}
	rb.SourcePath = path

	for id, artifact := range rb.Artifacts {
		if artifact != nil {
			artifact.ID = id
		}
	}

	if err := validateStruct(&rb); err != nil {
		return nil, err
	}
	if err := validateInvariants(&rb); err != nil {
		return nil, err
	}

	return &rb, nil
}

// mustMarshal re-serialises a substituted node tree so the strict
// KnownFields decoder can run over it; substitution happens on the
// node tree because it must see the raw string scalars before the
// tagged-union artifact decoder consumes them.
func mustMarshal(node *yaml.Node) []byte {
	out, err := yaml.Marshal(node)
	if err != nil {
		// node was itself produced by a successful yaml.Unmarshal, so
		// re-marshalling it cannot fail under any input this parser
		// accepts.
		panic(fmt.Sprintf("runbook: re-marshal of validated node tree failed: %v", err))
	}
	return out
}

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

func extractLine(err error) int {
	if err == nil {
		return 0
	}
	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}
	var line int
	fmt.Sscanf(matches[1], "%d", &line)
	return line
}

var (
	validatorInitOnce sync.Once
	validatorInst     *validator.Validate
)

// sharedValidator configures and returns the package's validator
// instance, mirroring the donor's sync.Once-guarded accessor.
func sharedValidator() *validator.Validate {
	validatorInitOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("schema_ref", func(fl validator.FieldLevel) bool {
			return schemaRefPattern.MatchString(fl.Field().String())
		})
		validatorInst = v
	})
	return validatorInst
}

var schemaRefPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.+-]+$`)

func validateStruct(rb *Runbook) error {
	if err := sharedValidator().Struct(rb); err != nil {
		return orcherrors.NewSchemaError("", err.Error())
	}
	return nil
}

// validateInvariants enforces §3's cross-field rules that go-playground
// validator's struct tags cannot express (exactly-one-of across three
// independently-typed fields, runbook-level input/output consistency).
func validateInvariants(rb *Runbook) error {
	hasTopLevelInputs := len(rb.Inputs) > 0

	for id, a := range rb.Artifacts {
		if a == nil {
			return orcherrors.NewSchemaError(id, "artifact definition is empty")
		}

		// Invariant 1: exactly one of source/inputs/reuse.
		count := 0
		if a.Source != nil {
			count++
		}
		if a.Inputs != nil {
			count++
		}
		if a.Reuse != nil {
			count++
		}
		if count != 1 {
			return orcherrors.NewSchemaError(id, "exactly one of source, inputs, reuse must be set")
		}

		// at most one of process/child_runbook
		if a.Process != nil && a.ChildRunbook != nil {
			return orcherrors.NewSchemaError(id, "at most one of process, child_runbook may be set")
		}

		// Invariant 2: child_runbook requires inputs, forbids source and process.
		if a.ChildRunbook != nil {
			if a.Inputs == nil {
				return orcherrors.NewSchemaError(id, "child_runbook requires inputs")
			}
			if a.Source != nil {
				return orcherrors.NewSchemaError(id, "child_runbook forbids source")
			}
			// Invariant 3: output XOR output_mapping.
			hasOutput := a.ChildRunbook.Output != ""
			hasMapping := len(a.ChildRunbook.OutputMapping) > 0
			if hasOutput == hasMapping {
				return orcherrors.NewSchemaError(id, "child_runbook requires exactly one of output, output_mapping")
			}
		}

		// Invariant 4: a reusable (inputs-declaring) runbook must not have source artifacts.
		if hasTopLevelInputs && a.Source != nil {
			return orcherrors.NewSchemaError(id, "runbook declaring inputs must not contain source artifacts")
		}

		// Open-question decision D.1: reused artifacts must declare output_schema.
		if a.Reuse != nil && strings.TrimSpace(a.OutputSchema) == "" {
			return orcherrors.NewSchemaError(id, "reuse artifacts must declare output_schema")
		}

		if a.OutputSchema != "" && !schemaRefPattern.MatchString(a.OutputSchema) {
			return orcherrors.NewSchemaError(id, fmt.Sprintf("output_schema %q is not a valid \"name/version\" reference", a.OutputSchema))
		}
	}

	// Invariant 5: declared outputs reference an artifact in the same runbook.
	for name, out := range rb.Outputs {
		if _, ok := rb.Artifacts[out.Artifact]; !ok {
			return orcherrors.NewSchemaError(fmt.Sprintf("outputs.%s", name), fmt.Sprintf("references unknown artifact %q", out.Artifact))
		}
	}

	// Input declarations: default requires optional.
	for name, decl := range rb.Inputs {
		if decl.HasDefault() && !decl.Optional {
			return orcherrors.NewSchemaError(fmt.Sprintf("inputs.%s", name), "default requires optional=true")
		}
		if !schemaRefPattern.MatchString(decl.InputSchema) {
			return orcherrors.NewSchemaError(fmt.Sprintf("inputs.%s", name), fmt.Sprintf("input_schema %q is not a valid \"name/version\" reference", decl.InputSchema))
		}
	}

	return nil
}
