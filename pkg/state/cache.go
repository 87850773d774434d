package state

import (
	"sort"
	"sync"

	"github.com/krowlandson/AzureStateManager/pkg/resourceid"
)

// Cache is the thread-safe mapping from canonical resource identifier to its
// fully-built StateNode. Nodes are installed with insert-if-absent semantics
// so concurrent builders of the same identifier converge on a single winner.
type Cache struct {
	nodes sync.Map // canonical id -> *StateNode
}

// NewCache returns an empty state cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the cached node for an identifier, if present.
func (c *Cache) Get(id string) (*StateNode, bool) {
	v, ok := c.nodes.Load(resourceid.Canonical(id))
	if !ok {
		return nil, false
	}
	return v.(*StateNode), true
}

// TryInsert installs a node unless one is already present for the
// identifier. It returns the winning node and whether the insert took.
func (c *Cache) TryInsert(id string, node *StateNode) (*StateNode, bool) {
	v, loaded := c.nodes.LoadOrStore(resourceid.Canonical(id), node)
	return v.(*StateNode), !loaded
}

// Replace publishes an upgraded node over an existing entry. Upgrades only
// add aspects, so concurrent replacers converge on a superset either way.
func (c *Cache) Replace(id string, node *StateNode) {
	c.nodes.Store(resourceid.Canonical(id), node)
}

// Nodes returns every cached node sorted by identifier.
func (c *Cache) Nodes() []*StateNode {
	var nodes []*StateNode
	c.nodes.Range(func(_, v any) bool {
		nodes = append(nodes, v.(*StateNode))
		return true
	})
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Len reports the number of cached nodes.
func (c *Cache) Len() int {
	n := 0
	c.nodes.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Reset discards every cached node.
func (c *Cache) Reset() {
	c.nodes.Range(func(k, _ any) bool {
		c.nodes.Delete(k)
		return true
	})
}

// ParentHintMap records child-to-parent edges harvested opportunistically
// while listing management group descendants. It short-circuits the expensive
// scope-wide listing otherwise needed to locate a subscription's parent.
type ParentHintMap struct {
	hints sync.Map // canonical child id -> parent id
}

// NewParentHintMap returns an empty hint map.
func NewParentHintMap() *ParentHintMap {
	return &ParentHintMap{}
}

// Put records a child-to-parent edge.
func (m *ParentHintMap) Put(childID, parentID string) {
	if childID == "" || parentID == "" {
		return
	}
	m.hints.Store(resourceid.Canonical(childID), parentID)
}

// Get returns the recorded parent for a child identifier.
func (m *ParentHintMap) Get(childID string) (string, bool) {
	v, ok := m.hints.Load(resourceid.Canonical(childID))
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Reset discards all recorded edges.
func (m *ParentHintMap) Reset() {
	m.hints.Range(func(k, _ any) bool {
		m.hints.Delete(k)
		return true
	})
}
