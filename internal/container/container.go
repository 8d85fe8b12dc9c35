// Package container implements the engine's service container: a
// typed, lazy, lifetime-aware registry for infrastructure services
// such as the LLM client. Per §9's design notes, a Container is
// created per execution and passed explicitly; it is never a process
// global.
package container

import (
	"fmt"
	"sync"
)

// Lifetime controls whether a registered factory's product is cached.
type Lifetime int

const (
	// Singleton services are created once per Container and cached.
	Singleton Lifetime = iota
	// Transient services are created fresh on every Get call.
	Transient
)

// Factory produces a service instance of unspecified type T, wrapped
// behind the any-typed entry below so the container can hold a
// heterogeneous set of services keyed by type name.
type Factory interface {
	// Create produces a new instance, or an error if construction fails.
	Create() (any, error)
	// CanCreate reports whether the factory's dependencies are
	// currently satisfiable (e.g. an API key is configured). A false
	// result is not an error: Get returns (nil, nil) so callers can
	// degrade gracefully.
	CanCreate() bool
}

type entry struct {
	factory  Factory
	lifetime Lifetime

	once     sync.Once
	cached   any
	cacheErr error
}

// Container is a typed registry of named services. The zero value is
// not usable; construct with New.
type Container struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty Container.
func New() *Container {
	return &Container{entries: make(map[string]*entry)}
}

// Register records factory under name with the given lifetime. A
// second Register call for the same name replaces the prior
// registration, discarding any cached singleton instance.
func (c *Container) Register(name string, factory Factory, lifetime Lifetime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = &entry{factory: factory, lifetime: lifetime}
}

// Get resolves the named service. If no factory is registered, it
// returns an error. If the factory reports CanCreate() == false, Get
// returns (nil, nil): the service is unavailable, not broken, and
// callers must handle absence. A Create() error is returned verbatim.
func (c *Container) Get(name string) (any, error) {
	c.mu.Lock()
	e, ok := c.entries[name]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("container: no service registered for %q", name)
	}

	if !e.factory.CanCreate() {
		return nil, nil
	}

	if e.lifetime == Transient {
		return e.factory.Create()
	}

	e.once.Do(func() {
		e.cached, e.cacheErr = e.factory.Create()
	})
	return e.cached, e.cacheErr
}

// Has reports whether a factory is registered under name, regardless
// of current availability.
func (c *Container) Has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[name]
	return ok
}
