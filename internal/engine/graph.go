package engine

import (
	"fmt"
	"sort"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
)

// DAG represents a directed acyclic graph of resources for dependency ordering.
type DAG struct {
	nodes    map[string]*dagNode
	order    []string // topological order (creation order)
	revOrder []string // reverse topological order (destruction order)
}

type dagNode struct {
	addr     string
	edges    []string // resources this node depends on
	revEdges []string // resources that depend on this node
}

// BuildDAG constructs a dependency graph from resources.
// It resolves both explicit DependsOn and implicit ptr:// references. A
// reference to an address that is not part of resources is a DependencyError.
func BuildDAG(resources []*ir.Resource) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode),
	}

	for _, res := range resources {
		addr := res.Addr()
		if _, dup := dag.nodes[addr]; dup {
			return nil, errdefs.Configuration(addr, "resource declared twice")
		}
		dag.nodes[addr] = &dagNode{addr: addr}
	}

	for _, res := range resources {
		addr := res.Addr()
		node := dag.nodes[addr]
		seen := make(map[string]bool)

		add := func(dep string) error {
			if dep == addr || seen[dep] {
				return nil
			}
			if _, ok := dag.nodes[dep]; !ok {
				return errdefs.Dependency(addr, dep, "referenced resource is not declared")
			}
			seen[dep] = true
			node.edges = append(node.edges, dep)
			return nil
		}

		for _, dep := range res.DependsOn {
			if err := add(dep); err != nil {
				return nil, err
			}
		}
		for _, ref := range extractPtrRefs(res.Properties) {
			depAddr, _, ok := ir.ParseRef(ref)
			if !ok {
				return nil, errdefs.Configuration(addr, "malformed reference %q", ref)
			}
			if err := add(depAddr); err != nil {
				return nil, err
			}
		}
		sort.Strings(node.edges)
	}

	return dag.finish()
}

// BuildDAGFromState constructs a dependency graph from state resources (for destroy).
func BuildDAGFromState(resources []*ir.ResourceState) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode),
	}

	for _, res := range resources {
		dag.nodes[res.Addr()] = &dagNode{addr: res.Addr()}
	}
	for _, res := range resources {
		node := dag.nodes[res.Addr()]
		for _, dep := range res.Dependencies {
			// Dependencies that already left the state impose no ordering.
			if _, ok := dag.nodes[dep]; ok {
				node.edges = append(node.edges, dep)
			}
		}
	}

	return dag.finish()
}

func (d *DAG) finish() (*DAG, error) {
	for addr, node := range d.nodes {
		for _, dep := range node.edges {
			d.nodes[dep].revEdges = append(d.nodes[dep].revEdges, addr)
		}
	}
	for _, node := range d.nodes {
		sort.Strings(node.revEdges)
	}

	order, err := d.topoSort()
	if err != nil {
		return nil, err
	}
	d.order = order

	d.revOrder = make([]string, len(order))
	for i, addr := range order {
		d.revOrder[len(order)-1-i] = addr
	}
	return d, nil
}

// CreationOrder returns resources in dependency-respecting creation order.
func (d *DAG) CreationOrder() []string {
	return d.order
}

// DestructionOrder returns resources in reverse dependency order (safe for deletion).
func (d *DAG) DestructionOrder() []string {
	return d.revOrder
}

// Dependencies returns the list of dependencies for a given address.
func (d *DAG) Dependencies(addr string) []string {
	if node, ok := d.nodes[addr]; ok {
		return node.edges
	}
	return nil
}

// topoSort performs Kahn's algorithm. Ties are broken by address so the
// order is stable across runs.
func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	var queue []string
	for addr, node := range d.nodes {
		inDegree[addr] = len(node.edges)
		if inDegree[addr] == 0 {
			queue = append(queue, addr)
		}
	}
	sort.Strings(queue)

	var sorted []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		var ready []string
		for _, dependent := range d.nodes[node].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(sorted) != len(d.nodes) {
		return nil, fmt.Errorf("dependency cycle detected in resource graph")
	}

	return sorted, nil
}

// extractPtrRefs extracts all ptr:// references from a property value.
func extractPtrRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if ir.IsRef(val) {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, v := range val {
			refs = append(refs, extractPtrRefs(v)...)
		}
	case []any:
		for _, v := range val {
			refs = append(refs, extractPtrRefs(v)...)
		}
	case []string:
		for _, v := range val {
			refs = append(refs, extractPtrRefs(v)...)
		}
	case []map[string]any:
		for _, v := range val {
			refs = append(refs, extractPtrRefs(v)...)
		}
	}
	return refs
}
