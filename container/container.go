// Package container builds and holds the live instances described by a
// set of config.Component specs, using a per-type Builder registry and
// a dag.Graph to sequence construction and hot-reload cascades.
package container

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentflow/core/config"
	"github.com/agentflow/core/dag"
)

// Builder constructs one component's instance, given its spec and its
// already-built dependency instances keyed by the names it declared.
// Deps are keyed by the dependency's component name, not its full Key,
// since a builder already knows the type it expects for each named
// dependency slot.
type Builder func(ctx context.Context, c *config.Component, deps map[string]any) (any, error)

// Cleanup is an optional hook a Builder's instance may additionally
// register, invoked when that instance is destroyed during a
// hot-reload cascade.
type Cleanup func(ctx context.Context) error

// Instance is one built component plus its build metadata.
type Instance struct {
	Value      any
	Config     *config.Component
	Deps       []config.Key
	CreatedAt  time.Time
	cleanup    Cleanup
}

// ChangeType describes why an instance was rebuilt or removed.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
	ChangeFailed  ChangeType = "failed"
)

// ChangeCallback is notified after a hot-reload cascade completes.
type ChangeCallback func(key config.Key, change ChangeType)

// Container holds built instances and coordinates hot-reload.
type Container struct {
	mu        sync.RWMutex
	builders  map[config.Type]Builder
	instances map[config.Key]*Instance
	graph     *dag.Graph

	callbacksMu sync.Mutex
	callbacks   []ChangeCallback

	// BuildConcurrency bounds how many instances within one topological
	// layer are built concurrently; 0 means unbounded.
	BuildConcurrency int
}

// New constructs an empty Container.
func New() *Container {
	return &Container{
		builders:  make(map[config.Type]Builder),
		instances: make(map[config.Key]*Instance),
	}
}

// RegisterBuilder associates a Builder with component type t. Calling
// it twice for the same type replaces the previous builder.
func (c *Container) RegisterBuilder(t config.Type, b Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builders[t] = b
}

// OnChange registers a callback invoked after every create/update/
// delete during a hot-reload cascade.
func (c *Container) OnChange(cb ChangeCallback) {
	c.callbacksMu.Lock()
	defer c.callbacksMu.Unlock()
	c.callbacks = append(c.callbacks, cb)
}

func (c *Container) notify(key config.Key, change ChangeType) {
	c.callbacksMu.Lock()
	cbs := append([]ChangeCallback(nil), c.callbacks...)
	c.callbacksMu.Unlock()
	for _, cb := range cbs {
		cb(key, change)
	}
}

// Get returns the built instance for key, if any.
func (c *Container) Get(key config.Key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instances[key]
	if !ok {
		return nil, false
	}
	return inst.Value, true
}

// BuildAll loads components into a fresh dag.Graph and builds every
// instance in topological order, one errgroup-bounded layer at a time.
// On any build failure the container is left exactly as it was before
// BuildAll was called -- nothing partially built is kept.
func (c *Container) BuildAll(ctx context.Context, components []*config.Component) error {
	g, err := dag.Build(components)
	if err != nil {
		return err
	}
	layers, err := g.Layers()
	if err != nil {
		return err
	}

	built := make(map[config.Key]*Instance, len(components))
	for _, layer := range layers {
		if err := c.buildLayer(ctx, g, layer, built); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.graph = g
	c.instances = built
	c.mu.Unlock()
	return nil
}

func (c *Container) buildLayer(ctx context.Context, g *dag.Graph, layer []config.Key, built map[config.Key]*Instance) error {
	eg, egctx := errgroup.WithContext(ctx)
	if c.BuildConcurrency > 0 {
		eg.SetLimit(c.BuildConcurrency)
	}
	var mu sync.Mutex

	for _, key := range layer {
		key := key
		eg.Go(func() error {
			comp, _ := g.Node(key)
			inst, err := c.buildOne(egctx, comp, g, built, &mu)
			if err != nil {
				return err
			}
			mu.Lock()
			built[key] = inst
			mu.Unlock()
			return nil
		})
	}
	return eg.Wait()
}

func (c *Container) buildOne(ctx context.Context, comp *config.Component, g *dag.Graph, built map[config.Key]*Instance, mu *sync.Mutex) (*Instance, error) {
	c.mu.RLock()
	builder, ok := c.builders[comp.Type]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("container: no builder registered for type %s", comp.Type)
	}

	deps := g.EdgesOf(comp.Key())
	depValues := make(map[string]any, len(deps))
	mu.Lock()
	for _, d := range deps {
		if inst, ok := built[d]; ok {
			depValues[d.Name] = inst.Value
		}
	}
	mu.Unlock()

	value, err := builder(ctx, comp, depValues)
	if err != nil {
		return nil, fmt.Errorf("container: build %s/%s: %w", comp.Type, comp.Name, err)
	}
	inst := &Instance{Value: value, Config: comp, Deps: deps, CreatedAt: time.Now()}
	if cleaner, ok := value.(interface{ Cleanup(context.Context) error }); ok {
		inst.cleanup = cleaner.Cleanup
	}
	return inst, nil
}

// SaveConfig inserts or replaces a component's spec and rebuilds it
// plus everything that transitively depends on it, destroying the
// affected set in reverse topological order first.
func (c *Container) SaveConfig(ctx context.Context, comp *config.Component) error {
	c.mu.RLock()
	all := c.allComponents()
	c.mu.RUnlock()

	change := ChangeCreated
	for _, existing := range all {
		if existing.Key() == comp.Key() {
			change = ChangeUpdated
			break
		}
	}
	all = upsert(all, comp)

	g, err := dag.Build(all)
	if err != nil {
		return err
	}
	if _, err := g.Layers(); err != nil {
		return err
	}

	affected := g.Affected(comp.Key())
	affected = append(affected, comp.Key())

	c.mu.Lock()
	prevGraph := c.graph
	prevInstances := make(map[config.Key]*Instance, len(c.instances))
	for k, v := range c.instances {
		prevInstances[k] = v
	}
	c.mu.Unlock()

	if err := c.destroy(ctx, g, affected); err != nil {
		return err
	}
	if err := c.rebuild(ctx, g, affected); err != nil {
		c.mu.Lock()
		c.graph = prevGraph
		c.instances = prevInstances
		c.mu.Unlock()
		slog.Error("container: hot-reload rebuild failed, restored prior instances", "type", comp.Key().Type, "name", comp.Key().Name, "error", err)
		c.notify(comp.Key(), ChangeFailed)
		return err
	}

	c.mu.Lock()
	c.graph = g
	c.mu.Unlock()

	c.notify(comp.Key(), change)
	return nil
}

// DeleteConfig removes a component's spec, destroys the affected set
// (itself included) in reverse topological order, and does not rebuild
// anything -- the affected set is left uninstantiated.
func (c *Container) DeleteConfig(ctx context.Context, key config.Key) error {
	c.mu.RLock()
	all := c.allComponents()
	g := c.graph
	c.mu.RUnlock()
	if g == nil {
		return fmt.Errorf("container: no components built yet")
	}

	affected := g.Affected(key)
	affected = append(affected, key)

	if err := c.destroy(ctx, g, affected); err != nil {
		return err
	}

	remaining := make([]*config.Component, 0, len(all))
	for _, c2 := range all {
		if c2.Key() != key {
			remaining = append(remaining, c2)
		}
	}
	newGraph, err := dag.Build(remaining)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.graph = newGraph
	delete(c.instances, key)
	for _, a := range affected {
		delete(c.instances, a)
	}
	c.mu.Unlock()

	c.notify(key, ChangeDeleted)
	return nil
}

func (c *Container) destroy(ctx context.Context, g *dag.Graph, affected []config.Key) error {
	order := g.ReverseTopoOrder(affected)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range order {
		inst, ok := c.instances[key]
		if !ok {
			continue
		}
		if inst.cleanup != nil {
			if err := inst.cleanup(ctx); err != nil {
				slog.Error("container: cleanup hook failed", "type", key.Type, "name", key.Name, "error", err)
			}
		}
		delete(c.instances, key)
	}
	return nil
}

func (c *Container) rebuild(ctx context.Context, g *dag.Graph, affected []config.Key) error {
	order := g.ForwardTopoOrder(affected)
	c.mu.Lock()
	built := make(map[config.Key]*Instance, len(c.instances))
	for k, v := range c.instances {
		built[k] = v
	}
	c.mu.Unlock()

	var mu sync.Mutex
	for _, key := range order {
		comp, ok := g.Node(key)
		if !ok {
			continue
		}
		inst, err := c.buildOne(ctx, comp, g, built, &mu)
		if err != nil {
			return err
		}
		built[key] = inst
	}

	c.mu.Lock()
	for _, key := range order {
		c.instances[key] = built[key]
	}
	c.mu.Unlock()
	return nil
}

func (c *Container) allComponents() []*config.Component {
	if c.graph == nil {
		return nil
	}
	out := make([]*config.Component, 0, len(c.instances))
	for _, inst := range c.instances {
		out = append(out, inst.Config)
	}
	return out
}

func upsert(all []*config.Component, comp *config.Component) []*config.Component {
	for i, c := range all {
		if c.Key() == comp.Key() {
			out := append([]*config.Component(nil), all...)
			out[i] = comp
			return out
		}
	}
	return append(append([]*config.Component(nil), all...), comp)
}
