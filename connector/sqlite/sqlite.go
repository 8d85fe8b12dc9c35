// Package sqlite registers the "sqlite" connector type name as an
// external-collaborator stub, for the same reason connector/mysql
// does: database I/O is out of this engine's scope. CanCreate always
// reports false.
package sqlite

import (
	"fmt"

	"github.com/runbookctl/engine/internal/registry"
)

type factory struct{}

// Factory returns the stub registry.ConnectorFactory for "sqlite".
func Factory() registry.ConnectorFactory { return factory{} }

func (factory) ComponentClass() registry.Metadata {
	return registry.Metadata{Name: "sqlite"}
}

func (factory) CanCreate(map[string]any) bool { return false }

func (factory) Create(map[string]any) (registry.Connector, error) {
	return nil, fmt.Errorf("sqlite connector: not implemented in this engine build")
}
