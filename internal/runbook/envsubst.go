package runbook

import (
	"os"
	"regexp"
	"strings"

	"github.com/runbookctl/engine/pkg/orcherrors"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default}, mirroring the
// corpus's config-expansion helpers but, per spec §4.4 step 2, treating
// an unset variable with no default as a hard error rather than
// silently substituting the empty string.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// substituteEnv replaces every ${VAR} / ${VAR:-default} occurrence in
// s using lookupEnv. The first missing, default-less variable aborts
// the whole substitution with a MissingEnvVarError.
func substituteEnv(s string, lookupEnv func(string) (string, bool)) (string, error) {
	var firstErr error
	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		hasDefault := strings.Contains(match, ":-")
		defaultVal := groups[2]

		if val, ok := lookupEnv(name); ok {
			return val
		}
		if hasDefault {
			return defaultVal
		}
		firstErr = orcherrors.NewMissingEnvVarError(name)
		return match
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// substituteEnvInTree walks a decoded YAML node tree in place,
// applying substituteEnv to every scalar string value. It runs before
// the typed decode so substitutions are visible to field-level
// validators and to the tagged-union artifact decoder.
func substituteEnvInTree(node *yaml.Node, lookupEnv func(string) (string, bool)) error {
	if node == nil {
		return nil
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!str" {
		substituted, err := substituteEnv(node.Value, lookupEnv)
		if err != nil {
			return err
		}
		node.Value = substituted
		return nil
	}
	for _, child := range node.Content {
		if err := substituteEnvInTree(child, lookupEnv); err != nil {
			return err
		}
	}
	return nil
}

// osLookupEnv adapts os.LookupEnv to the lookupEnv function signature
// used above, kept as a named value so tests can substitute a fake
// environment without mutating process state.
var osLookupEnv = os.LookupEnv
