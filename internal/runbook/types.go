// Package runbook defines the typed runbook model and the parser that
// produces it from YAML. The production method of an ArtifactDefinition
// (source | inputs | reuse) and the optional processing method
// (process | child_runbook) are independent optional fields; they are
// not a tagged union. The parser's validateInvariants checks after
// decoding that exactly one production method and at most one
// processing method is set.
package runbook

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// Runbook is the top-level declarative document (§6.1).
type Runbook struct {
	Name        string                         `yaml:"name" validate:"required,min=1,max=200"`
	Description string                         `yaml:"description" validate:"required"`
	Contact     string                         `yaml:"contact,omitempty"`
	Config      RunbookConfig                  `yaml:"config,omitempty"`
	Inputs      map[string]InputDeclaration    `yaml:"inputs,omitempty" validate:"omitempty,dive"`
	Outputs     map[string]OutputDeclaration   `yaml:"outputs,omitempty" validate:"omitempty,dive"`
	Artifacts   map[string]*ArtifactDefinition `yaml:"artifacts" validate:"required,min=1,dive"`

	// SourcePath is the filesystem path this runbook was parsed from.
	// Populated by the parser, not by YAML decoding.
	SourcePath string `yaml:"-"`
}

// RunbookConfig holds global execution parameters (§6.1).
type RunbookConfig struct {
	Timeout        int      `yaml:"timeout,omitempty" validate:"omitempty,min=1"`
	CostLimit      float64  `yaml:"cost_limit,omitempty" validate:"omitempty,gt=0"`
	MaxConcurrency int      `yaml:"max_concurrency,omitempty" validate:"omitempty,min=1,max=1024"`
	TemplatePaths  []string `yaml:"template_paths,omitempty"`
}

// DefaultMaxConcurrency is applied when config.max_concurrency is unset.
const DefaultMaxConcurrency = 10

// EffectiveMaxConcurrency returns MaxConcurrency or the default.
func (c RunbookConfig) EffectiveMaxConcurrency() int {
	if c.MaxConcurrency <= 0 {
		return DefaultMaxConcurrency
	}
	return c.MaxConcurrency
}

// InputDeclaration describes a runbook input, present only on runbooks
// designed to be used as a child_runbook.
type InputDeclaration struct {
	InputSchema string `yaml:"input_schema" validate:"required"`
	Optional    bool   `yaml:"optional,omitempty"`
	Default     any    `yaml:"default,omitempty"`
	Sensitive   bool   `yaml:"sensitive,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// HasDefault reports whether Default holds a non-nil value. The zero
// value of `any` and an explicit `null` are indistinguishable through
// this field, so `default: null` counts as no default;
// validateInvariants in parser.go relies on this method.
func (d InputDeclaration) HasDefault() bool {
	return d.Default != nil
}

// OutputDeclaration exposes a local artifact under a runbook-level name.
type OutputDeclaration struct {
	Artifact    string `yaml:"artifact" validate:"required"`
	Description string `yaml:"description,omitempty"`
}

// SourceSpec configures a connector invocation.
type SourceSpec struct {
	Type       string         `yaml:"type" validate:"required"`
	Properties map[string]any `yaml:"properties,omitempty"`
}

// ReuseSpec references a message produced by a prior run.
type ReuseSpec struct {
	FromRun  string `yaml:"from_run" validate:"required"`
	Artifact string `yaml:"artifact" validate:"required"`
}

// ProcessSpec configures an analyser invocation.
type ProcessSpec struct {
	Type       string         `yaml:"type" validate:"required"`
	Properties map[string]any `yaml:"properties,omitempty"`
}

// ChildRunbookSpec embeds a child runbook as a processing step.
type ChildRunbookSpec struct {
	Path          string            `yaml:"path" validate:"required"`
	InputMapping  map[string]string `yaml:"input_mapping,omitempty"`
	Output        string            `yaml:"output,omitempty"`
	OutputMapping map[string]string `yaml:"output_mapping,omitempty"`
}

// MergeStrategy is fixed at "concatenate" in this phase of the engine.
type MergeStrategy string

const MergeConcatenate MergeStrategy = "concatenate"

// ArtifactDefinition is the unit of work declared under `artifacts:`.
// Exactly one of Source/Inputs/Reuse is set (production method); at
// most one of Process/ChildRunbook is set (processing method). These
// are independently-optional fields; UnmarshalYAML does not check the
// rule, validateInvariants in parser.go enforces it after decoding.
type ArtifactDefinition struct {
	ID          string `yaml:"-"`
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Contact     string `yaml:"contact,omitempty"`

	Source *SourceSpec `yaml:"-"`
	Inputs []string    `yaml:"-"`
	Reuse  *ReuseSpec  `yaml:"-"`

	Process      *ProcessSpec      `yaml:"-"`
	ChildRunbook *ChildRunbookSpec `yaml:"-"`

	Merge        MergeStrategy `yaml:"-"`
	OutputSchema string        `yaml:"output_schema,omitempty"`
	Output       bool          `yaml:"output,omitempty"`
	Optional     bool          `yaml:"optional,omitempty"`
}

// ProductionKind identifies which of Source/Inputs/Reuse is set.
type ProductionKind int

const (
	ProductionUnknown ProductionKind = iota
	ProductionSource
	ProductionInputs
	ProductionReuse
)

// Kind reports which production method this artifact uses.
func (a *ArtifactDefinition) Kind() ProductionKind {
	switch {
	case a.Source != nil:
		return ProductionSource
	case a.Reuse != nil:
		return ProductionReuse
	case a.Inputs != nil:
		return ProductionInputs
	default:
		return ProductionUnknown
	}
}

type rawArtifact struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Contact     string `yaml:"contact"`

	Source *SourceSpec `yaml:"source"`
	Inputs yaml.Node   `yaml:"inputs"`
	Reuse  *ReuseSpec  `yaml:"reuse"`

	Process      *ProcessSpec      `yaml:"process"`
	ChildRunbook *ChildRunbookSpec `yaml:"child_runbook"`

	Merge        string `yaml:"merge"`
	OutputSchema string `yaml:"output_schema"`
	Output       bool   `yaml:"output"`
	Optional     bool   `yaml:"optional"`
}

// UnmarshalYAML decodes an artifact definition, resolving `inputs`
// (a bare string or a list of strings in the runbook file) into a
// normalised []string, the way the donor's Step.UnmarshalYAML decodes
// a base struct first and then branches on which type-specific key is
// present.
func (a *ArtifactDefinition) UnmarshalYAML(value *yaml.Node) error {
	var raw rawArtifact
	if err := strictDecodeNode(value, &raw); err != nil {
		return err
	}

	a.Name = raw.Name
	a.Description = raw.Description
	a.Contact = raw.Contact
	a.Source = raw.Source
	a.Reuse = raw.Reuse
	a.Process = raw.Process
	a.ChildRunbook = raw.ChildRunbook
	a.OutputSchema = raw.OutputSchema
	a.Output = raw.Output
	a.Optional = raw.Optional

	if raw.Merge == "" {
		a.Merge = MergeConcatenate
	} else {
		a.Merge = MergeStrategy(raw.Merge)
	}

	switch raw.Inputs.Kind {
	case 0:
		a.Inputs = nil
	case yaml.ScalarNode:
		var single string
		if err := raw.Inputs.Decode(&single); err != nil {
			return err
		}
		a.Inputs = []string{single}
	case yaml.SequenceNode:
		var list []string
		if err := raw.Inputs.Decode(&list); err != nil {
			return err
		}
		a.Inputs = list
	}

	return nil
}

// strictDecodeNode decodes node into out with unknown-field rejection.
// node.Decode does not inherit the outer yaml.Decoder's KnownFields
// setting (it is a Decoder-level option, not a Node-level one), so a
// typo'd key nested inside an artifact would otherwise decode
// silently. Re-marshalling the node and decoding it through a fresh
// strict Decoder mirrors the top-level strict decode in parser.go.
func strictDecodeNode(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// hasYAMLKey reports whether a mapping node has the given key,
// case-sensitively, mirroring the donor's presence-detection helper
// used to distinguish an explicit zero value from an absent key.
func hasYAMLKey(node *yaml.Node, key string) bool {
	if node == nil || node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}
