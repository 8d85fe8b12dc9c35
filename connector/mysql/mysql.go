// Package mysql registers the "mysql" connector type name without
// implementing database I/O: per the engine's scope, connecting to
// external collaborators like a production database is left to
// deployment-specific plugins built against this same
// registry.ConnectorFactory contract. CanCreate always reports false,
// so a runbook naming "mysql" fails fast with a clear "declined to
// run" error rather than silently doing nothing.
package mysql

import (
	"fmt"

	"github.com/runbookctl/engine/internal/registry"
)

type factory struct{}

// Factory returns the stub registry.ConnectorFactory for "mysql".
func Factory() registry.ConnectorFactory { return factory{} }

func (factory) ComponentClass() registry.Metadata {
	return registry.Metadata{Name: "mysql"}
}

func (factory) CanCreate(map[string]any) bool { return false }

func (factory) Create(map[string]any) (registry.Connector, error) {
	return nil, fmt.Errorf("mysql connector: not implemented in this engine build")
}
