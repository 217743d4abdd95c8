// Package dag builds a dependency graph over loaded config components
// and exposes the two graph queries the hot-reload coordinator needs:
// a topological build order (layered, so independent components can be
// built concurrently) and the set of components transitively affected
// by a change to one node.
package dag

import (
	"fmt"

	"github.com/agentflow/core/config"
	"github.com/agentflow/core/errs"
)

// Graph is the dependency graph over a set of components: edges point
// from a component to the components it depends on.
type Graph struct {
	nodes map[config.Key]*config.Component
	edges map[config.Key][]config.Key // key -> its dependencies
	rev   map[config.Key][]config.Key // key -> components depending on it
}

// Build constructs a Graph from components, resolving each one's
// dependency set via config.Dependencies.
func Build(components []*config.Component) (*Graph, error) {
	all := make(map[config.Key]*config.Component, len(components))
	for _, c := range components {
		all[c.Key()] = c
	}

	g := &Graph{
		nodes: all,
		edges: make(map[config.Key][]config.Key, len(components)),
		rev:   make(map[config.Key][]config.Key, len(components)),
	}
	for _, c := range components {
		deps, err := config.Dependencies(c, all)
		if err != nil {
			return nil, fmt.Errorf("dag: %w", err)
		}
		key := c.Key()
		g.edges[key] = deps
		for _, d := range deps {
			g.rev[d] = append(g.rev[d], key)
		}
	}
	return g, nil
}

// Layers returns a topological build order, grouped into layers where
// every node in a layer has no edge to any other node in that same
// layer -- so a builder may construct an entire layer concurrently.
// Returns errs.ErrCycle naming the unresolved node set if the graph is
// not a DAG.
func (g *Graph) Layers() ([][]config.Key, error) {
	for key, deps := range g.edges {
		for _, d := range deps {
			if _, ok := g.nodes[d]; !ok {
				return nil, fmt.Errorf("dag: %w: %s/%s references undefined %s/%s",
					errs.ErrUnresolvedDependency, key.Type, key.Name, d.Type, d.Name)
			}
		}
	}

	var layers [][]config.Key
	resolved := make(map[config.Key]bool, len(g.nodes))

	for len(resolved) < len(g.nodes) {
		var layer []config.Key
		for key := range g.nodes {
			if resolved[key] {
				continue
			}
			ready := true
			for _, d := range g.edges[key] {
				if !resolved[d] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, key)
			}
		}
		if len(layer) == 0 {
			return nil, fmt.Errorf("dag: %w: %s", errs.ErrCycle, cycleNodes(g, resolved))
		}
		for _, key := range layer {
			resolved[key] = true
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

func cycleNodes(g *Graph, resolved map[config.Key]bool) string {
	var names []string
	for key := range g.nodes {
		if !resolved[key] {
			names = append(names, fmt.Sprintf("%s/%s", key.Type, key.Name))
		}
	}
	return fmt.Sprintf("%v", names)
}

// Affected returns the set of keys transitively depending on changed
// (changed itself excluded), computed by BFS over reverse edges -- the
// set that must be destroyed and, on create/update, rebuilt when
// changed's config is saved or deleted.
func (g *Graph) Affected(changed config.Key) []config.Key {
	visited := make(map[config.Key]bool)
	queue := append([]config.Key(nil), g.rev[changed]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if visited[next] {
			continue
		}
		visited[next] = true
		queue = append(queue, g.rev[next]...)
	}
	out := make([]config.Key, 0, len(visited))
	for k := range visited {
		out = append(out, k)
	}
	return out
}

// ReverseTopoOrder orders keys (typically an affected set) so that
// dependents precede their dependencies -- the order to destroy
// instances in, callers before callees.
func (g *Graph) ReverseTopoOrder(keys []config.Key) []config.Key {
	set := make(map[config.Key]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	layers, _ := g.Layers()
	var forward []config.Key
	for _, layer := range layers {
		for _, k := range layer {
			if set[k] {
				forward = append(forward, k)
			}
		}
	}
	out := make([]config.Key, len(forward))
	for i, k := range forward {
		out[len(forward)-1-i] = k
	}
	return out
}

// ForwardTopoOrder orders keys in dependency-first order -- the order
// to rebuild instances in.
func (g *Graph) ForwardTopoOrder(keys []config.Key) []config.Key {
	set := make(map[config.Key]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	layers, _ := g.Layers()
	var out []config.Key
	for _, layer := range layers {
		for _, k := range layer {
			if set[k] {
				out = append(out, k)
			}
		}
	}
	return out
}

// Node returns the component stored for key, if any.
func (g *Graph) Node(key config.Key) (*config.Component, bool) {
	c, ok := g.nodes[key]
	return c, ok
}

// EdgesOf returns the dependency keys declared by key.
func (g *Graph) EdgesOf(key config.Key) []config.Key {
	return g.edges[key]
}
