// Package registry implements the two-tier component registry that
// maps the textual component-type names used in a runbook's `type:`
// fields to connector and analyser factories. Per §9, a Registry is
// an explicitly-passed instance, never a package-level global — it is
// built once at process start from whatever plugin source the driver
// chooses and handed to the planner and executor.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/runbookctl/engine/internal/schema"
)

// Metadata describes a connector or analyser factory's identity and
// capabilities, returned by ComponentClass().
type Metadata struct {
	Name string
	// InputRequirements lists the accepted combinations of upstream
	// schemas for an analyser. Empty for connectors.
	InputRequirements []schema.RequirementSet
	// OutputSchemas lists the schema(s) the component can produce.
	// Connectors declare exactly one.
	OutputSchemas []schema.Schema
	// ComplianceTags are optional framework tags (e.g. "gdpr", "ccpa").
	ComplianceTags []string
}

// ConnectorFactory produces Connector instances for a named source type.
type ConnectorFactory interface {
	ComponentClass() Metadata
	CanCreate(config map[string]any) bool
	Create(config map[string]any) (Connector, error)
}

// AnalyserFactory produces Analyser instances for a named process type.
type AnalyserFactory interface {
	ComponentClass() Metadata
	CanCreate(config map[string]any) bool
	Create(config map[string]any) (Analyser, error)
}

// Connector extracts a single Message from an external system.
type Connector interface {
	Name() string
	OutputSchema() schema.Schema
	Extract(config map[string]any) (schema.Message, error)
}

// Analyser derives a Message from one or more upstream Messages.
type Analyser interface {
	Name() string
	InputRequirements() []schema.RequirementSet
	OutputSchemas() []schema.Schema
	Process(inputs []schema.Message, outputSchema schema.Schema) (schema.Message, error)
}

// Registry holds the discovered connector and analyser factories. The
// zero value is not usable; construct with New.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]ConnectorFactory
	analysers  map[string]AnalyserFactory
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		connectors: make(map[string]ConnectorFactory),
		analysers:  make(map[string]AnalyserFactory),
	}
}

// RegisterConnector adds a connector factory under name. A duplicate
// name replaces the prior registration, mirroring a plugin reload.
func (r *Registry) RegisterConnector(name string, f ConnectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[name] = f
}

// RegisterAnalyser adds an analyser factory under name.
func (r *Registry) RegisterAnalyser(name string, f AnalyserFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analysers[name] = f
}

// Connector looks up a connector factory by name.
func (r *Registry) Connector(name string) (ConnectorFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.connectors[name]
	return f, ok
}

// Analyser looks up an analyser factory by name.
func (r *Registry) Analyser(name string) (AnalyserFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.analysers[name]
	return f, ok
}

// ConnectorNames returns the registered connector type names, sorted
// for deterministic diagnostics.
func (r *Registry) ConnectorNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for n := range r.connectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AnalyserNames returns the registered analyser type names, sorted.
func (r *Registry) AnalyserNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.analysers))
	for n := range r.analysers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Source describes where a Registry's factories come from: any slice
// of factories the driver has already discovered (entry points,
// manifest file, directory scan are all equally valid upstream of
// this type).
type Source struct {
	Connectors map[string]ConnectorFactory
	Analysers  map[string]AnalyserFactory
}

// FromSource builds a Registry from a pre-discovered Source, the
// engine's only requirement on plugin discovery (§4.3).
func FromSource(src Source) *Registry {
	r := New()
	for name, f := range src.Connectors {
		r.RegisterConnector(name, f)
	}
	for name, f := range src.Analysers {
		r.RegisterAnalyser(name, f)
	}
	return r
}

// ErrUnknownComponent is returned by lookups that callers choose not
// to convert into orcherrors.ComponentNotFoundError (e.g. internal
// diagnostics).
func ErrUnknownComponent(kind, name string) error {
	return fmt.Errorf("%s %q is not registered", kind, name)
}
