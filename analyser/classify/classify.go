// Package classify implements the "classify" analyser: it scans the
// entries produced by the fs connector for filenames matching a set
// of sensitive-file patterns and emits a compliance classification
// summary. The tally-by-category shape is grounded on the donor
// verify command's per-status result aggregation, adapted from
// step-status counts to finding-category counts.
package classify

import (
	"path/filepath"
	"strings"

	"github.com/runbookctl/engine/connector/fs"
	"github.com/runbookctl/engine/internal/registry"
	"github.com/runbookctl/engine/internal/schema"
)

// OutputSchema is the schema the classify analyser produces.
var OutputSchema = schema.Schema{Name: "classification_summary", Version: "v1"}

// defaultSensitivePatterns are glob patterns checked against each
// entry's base filename.
var defaultSensitivePatterns = []string{
	"*.pem", "*.key", "id_rsa", "id_rsa.*", ".env", ".env.*", "*.p12", "*credentials*",
}

// Finding records one entry that matched a sensitive-file pattern.
type Finding struct {
	Path    string `msgpack:"path"`
	Pattern string `msgpack:"pattern"`
}

// Summary is the classify analyser's output content.
type Summary struct {
	TotalEntries int       `msgpack:"total_entries"`
	Findings     []Finding `msgpack:"findings"`
}

type analyser struct {
	patterns []string
}

func (a *analyser) Name() string { return "classify" }

func (a *analyser) InputRequirements() []schema.RequirementSet {
	return []schema.RequirementSet{schema.NewRequirementSet(fs.OutputSchema)}
}

func (a *analyser) OutputSchemas() []schema.Schema { return []schema.Schema{OutputSchema} }

// Process matches every fs.Entry in inputs against a.patterns and
// returns one Summary message.
func (a *analyser) Process(inputs []schema.Message, outputSchema schema.Schema) (schema.Message, error) {
	summary := Summary{}

	for _, msg := range inputs {
		entries, ok := msg.Content.([]any)
		if !ok {
			continue
		}
		for _, raw := range entries {
			entry, ok := raw.(fs.Entry)
			if !ok || entry.IsDir {
				continue
			}
			summary.TotalEntries++
			base := filepath.Base(entry.Path)
			if pattern, matched := matchAny(a.patterns, base); matched {
				summary.Findings = append(summary.Findings, Finding{Path: entry.Path, Pattern: pattern})
			}
		}
	}

	return schema.Message{
		ID:      "classify:summary",
		Content: summary,
		Schema:  outputSchema,
	}, nil
}

func matchAny(patterns []string, name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if ok, _ := filepath.Match(strings.ToLower(p), lower); ok {
			return p, true
		}
	}
	return "", false
}

type factory struct{}

// Factory returns the registry.AnalyserFactory for the "classify" analyser.
func Factory() registry.AnalyserFactory { return factory{} }

func (factory) ComponentClass() registry.Metadata {
	return registry.Metadata{
		Name:              "classify",
		InputRequirements: (&analyser{}).InputRequirements(),
		OutputSchemas:     []schema.Schema{OutputSchema},
	}
}

func (factory) CanCreate(map[string]any) bool { return true }

func (factory) Create(properties map[string]any) (registry.Analyser, error) {
	patterns := defaultSensitivePatterns
	if raw, ok := properties["patterns"].([]any); ok && len(raw) > 0 {
		custom := make([]string, 0, len(raw))
		for _, p := range raw {
			if s, ok := p.(string); ok {
				custom = append(custom, s)
			}
		}
		if len(custom) > 0 {
			patterns = custom
		}
	}
	return &analyser{patterns: patterns}, nil
}
