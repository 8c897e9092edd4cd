// Package registry defines the component lookup contract used to resolve handlers and configuration, and a lazy container that satisfies it.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	ErrUnbound      = errors.New("component is not bound")
	ErrWrongType    = errors.New("component has an unexpected type")
	ErrFactory      = errors.New("component factory failed")
	ErrNilComponent = errors.New("nil factory function")
)

// Well-known keys.
const (
	KeyDBOptions          = "dbOptions"
	KeyCacheConnectionURL = "cacheConnectionUrl"
	KeyStream             = "stream"
)

// Registry resolves components by key.
type Registry interface {
	// Has reports whether a component bound to key can be resolved.
	Has(key string) bool
	// Get resolves the component bound to key, failing with a [*ResolutionError] if it's not bound.
	Get(key string) (any, error)
}

// Binder is a [Registry] that also accepts new bindings.
type Binder interface {
	Registry
	Set(key string, value any)
}

// ResolutionError is returned when a key can't be resolved to a usable component.
type ResolutionError struct {
	Key    string
	Reason error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve '%s': %v", e.Key, e.Reason)
}

func (e *ResolutionError) Unwrap() error {
	return e.Reason
}

// Unbound creates a [*ResolutionError] for a key that has no binding.
func Unbound(key string) error {
	return &ResolutionError{Key: key, Reason: ErrUnbound}
}

// RouteKey is the key under which a handler for the given method and path is bound.
func RouteKey(method, path string) string {
	return "route:" + strings.ToUpper(method) + " " + path
}

// Resolve gets a component from the [Registry] and asserts its type.
func Resolve[T any](r Registry, key string) (T, error) {
	var mt T
	raw, err := r.Get(key)
	if err != nil {
		return mt, err
	}
	val, ok := raw.(T)
	if !ok {
		return mt, &ResolutionError{Key: key, Reason: fmt.Errorf("%w: expected %T, but got %T", ErrWrongType, mt, raw)}
	}
	return val, nil
}

// Factory lazily constructs a component. It may resolve other components from the [Registry].
type Factory func(r Registry) (any, error)

type binding struct {
	build   sync.Mutex
	built   bool
	value   any
	factory Factory
}

var _ Binder = (*Container)(nil)

// Container is a concurrency-safe [Binder].
// Components bound with [Container.Provide] are built on first use and cached as singletons.
type Container struct {
	mux      sync.RWMutex
	bindings map[string]*binding
}

func New() *Container {
	return &Container{bindings: map[string]*binding{}}
}

// Set binds a ready instance to key, replacing any previous binding.
func (c *Container) Set(key string, value any) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.bindings[key] = &binding{built: true, value: value}
}

// Provide binds a [Factory] to key, replacing any previous binding.
// The factory is run at most once successfully. A failed construction is not cached, so the next Get will try again.
func (c *Container) Provide(key string, factory Factory) {
	if factory == nil {
		panic(ErrNilComponent)
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	c.bindings[key] = &binding{factory: factory}
}

func (c *Container) Has(key string) bool {
	c.mux.RLock()
	defer c.mux.RUnlock()
	_, ok := c.bindings[key]
	return ok
}

func (c *Container) Get(key string) (any, error) {
	c.mux.RLock()
	b, ok := c.bindings[key]
	c.mux.RUnlock()
	if !ok {
		return nil, Unbound(key)
	}

	// The container lock is released so factories can resolve their own dependencies.
	b.build.Lock()
	defer b.build.Unlock()
	if b.built {
		return b.value, nil
	}
	val, err := b.factory(c)
	if err != nil {
		return nil, &ResolutionError{Key: key, Reason: fmt.Errorf("%w: %v", ErrFactory, err)}
	}
	b.value = val
	b.built = true
	return val, nil
}

// Keys returns all bound keys, sorted.
func (c *Container) Keys() []string {
	c.mux.RLock()
	defer c.mux.RUnlock()
	keys := make([]string, 0, len(c.bindings))
	for key := range c.bindings {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
