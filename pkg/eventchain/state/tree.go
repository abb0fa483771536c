package state

import (
	"encoding/json"
	"fmt"

	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
)

type treeNode struct {
	parent   ID
	children []ID
	position []float64
	velocity []float64
	stamp    simtime.Time
	charges  map[string]float64
}

// TreeStore is the arena-backed reference implementation of Store. Nodes are
// addressed by index with explicit parent/child index fields; roots are
// composite objects (or free point masses), their children are point masses.
// The topology is built once at setup and never changes during a run.
//
// TreeStore is not safe for concurrent use; it is exclusively owned by the
// mediator of one run.
type TreeStore struct {
	nodes []treeNode
	roots []ID
}

// NewTree returns an empty store.
func NewTree() *TreeStore { return &TreeStore{} }

// AddRoot appends a root node and returns its identifier.
func (t *TreeStore) AddRoot(position []float64, charges map[string]float64) ID {
	id := ID(len(t.nodes))
	t.nodes = append(t.nodes, treeNode{
		parent:   -1,
		position: copyFloats(position),
		charges:  charges,
	})
	t.roots = append(t.roots, id)
	return id
}

// AddChild appends a point mass under parent and returns its identifier. It
// panics on an unknown parent: topology construction is programmer
// controlled.
func (t *TreeStore) AddChild(parent ID, position []float64, charges map[string]float64) ID {
	if parent < 0 || int(parent) >= len(t.nodes) {
		panic(fmt.Sprintf("state: parent identifier %d out of range", parent))
	}
	id := ID(len(t.nodes))
	t.nodes = append(t.nodes, treeNode{
		parent:   parent,
		position: copyFloats(position),
		charges:  charges,
	})
	t.nodes[parent].children = append(t.nodes[parent].children, id)
	return id
}

// Roots returns the root identifiers in insertion order.
func (t *TreeStore) Roots() []ID { return append([]ID(nil), t.roots...) }

// Children returns the child identifiers of id in insertion order.
func (t *TreeStore) Children(id ID) []ID {
	return append([]ID(nil), t.nodes[id].children...)
}

// Parent returns the parent of id, or false for roots.
func (t *TreeStore) Parent(id ID) (ID, bool) {
	p := t.nodes[id].parent
	return p, p >= 0
}

// Len returns the number of nodes in the arena.
func (t *TreeStore) Len() int { return len(t.nodes) }

// Level returns the tree level of id, where roots are level 1.
func (t *TreeStore) Level(id ID) int {
	level := 1
	for t.nodes[id].parent >= 0 {
		id = t.nodes[id].parent
		level++
	}
	return level
}

// IDsAtLevel returns every identifier at the given level in deterministic
// (depth-first, insertion) order.
func (t *TreeStore) IDsAtLevel(level int) []ID {
	var out []ID
	var walk func(id ID, l int)
	walk = func(id ID, l int) {
		if l == level {
			out = append(out, id)
			return
		}
		for _, c := range t.nodes[id].children {
			walk(c, l+1)
		}
	}
	for _, r := range t.roots {
		walk(r, 1)
	}
	return out
}

// Unit returns a deep-copied view of the unit data of id.
func (t *TreeStore) Unit(id ID) Unit {
	n := &t.nodes[id]
	return Unit{
		ID:        id,
		Position:  copyFloats(n.position),
		Velocity:  copyFloats(n.velocity),
		TimeStamp: n.stamp,
		Charges:   n.charges,
	}
}

func (t *TreeStore) unitView(id ID) Unit {
	n := &t.nodes[id]
	return Unit{
		ID:        id,
		Position:  n.position,
		Velocity:  n.velocity,
		TimeStamp: n.stamp,
		Charges:   n.charges,
	}
}

// Extract returns the deep-copied branch for id: the chain from its root
// down to id, plus all of id's descendants.
func (t *TreeStore) Extract(id ID) *Branch {
	if id < 0 || int(id) >= len(t.nodes) {
		panic(fmt.Sprintf("state: identifier %d out of range", id))
	}

	// Ancestor chain, root first.
	var path []ID
	for at := id; at >= 0; at = t.nodes[at].parent {
		path = append([]ID{at}, path...)
	}

	root := &Branch{Unit: t.Unit(path[0])}
	tip := root
	for _, at := range path[1:] {
		next := &Branch{Unit: t.Unit(at)}
		tip.Children = append(tip.Children, next)
		tip = next
	}
	for _, c := range t.nodes[id].children {
		tip.Children = append(tip.Children, t.subtree(c, true))
	}
	return root
}

func (t *TreeStore) subtree(id ID, deep bool) *Branch {
	var b *Branch
	if deep {
		b = &Branch{Unit: t.Unit(id)}
	} else {
		b = &Branch{Unit: t.unitView(id)}
	}
	for _, c := range t.nodes[id].children {
		b.Children = append(b.Children, t.subtree(c, deep))
	}
	return b
}

// Active returns deep-copied branches of every independently lifted unit: a
// lifted node none of whose ancestors is lifted. Descending stops at the
// first lifted node, so a lifted composite yields one branch even when its
// point masses are lifted too.
func (t *TreeStore) Active() []*Branch {
	var out []*Branch
	var walk func(id ID)
	walk = func(id ID) {
		if t.nodes[id].velocity != nil {
			out = append(out, t.Extract(id))
			return
		}
		for _, c := range t.nodes[id].children {
			walk(c)
		}
	}
	for _, r := range t.roots {
		walk(r)
	}
	return out
}

// Commit writes the units of the given branches back into the store. The
// incoming values are copied so later handler mutations cannot reach store
// memory.
func (t *TreeStore) Commit(out []*Branch) error {
	for _, b := range out {
		if err := t.commitBranch(b); err != nil {
			return err
		}
	}
	return nil
}

func (t *TreeStore) commitBranch(b *Branch) error {
	id := b.Unit.ID
	if id < 0 || int(id) >= len(t.nodes) {
		return fmt.Errorf("state: commit of unknown identifier %d", id)
	}
	n := &t.nodes[id]
	copy(n.position, b.Unit.Position)
	if b.Unit.Velocity == nil {
		n.velocity = nil
	} else if len(n.velocity) == len(b.Unit.Velocity) {
		copy(n.velocity, b.Unit.Velocity)
	} else {
		n.velocity = copyFloats(b.Unit.Velocity)
	}
	n.stamp = b.Unit.TimeStamp
	for _, c := range b.Children {
		if err := t.commitBranch(c); err != nil {
			return err
		}
	}
	return nil
}

// Full returns the whole forest without copying; see Store.Full.
func (t *TreeStore) Full() []*Branch {
	out := make([]*Branch, 0, len(t.roots))
	for _, r := range t.roots {
		out = append(out, t.subtree(r, false))
	}
	return out
}

// SnapshotUnits serializes the mutable unit data of every node for resumable
// runs. Topology is not included: a resumed run rebuilds the same arena from
// its configuration before restoring.
func (t *TreeStore) SnapshotUnits() ([]byte, error) {
	units := make([]Unit, len(t.nodes))
	for i := range t.nodes {
		units[i] = t.unitView(ID(i))
	}
	return json.Marshal(units)
}

// RestoreUnits re-applies unit data captured by SnapshotUnits.
func (t *TreeStore) RestoreUnits(data []byte) error {
	var units []Unit
	if err := json.Unmarshal(data, &units); err != nil {
		return fmt.Errorf("state: restoring units: %w", err)
	}
	if len(units) != len(t.nodes) {
		return fmt.Errorf("state: snapshot holds %d units, arena holds %d nodes", len(units), len(t.nodes))
	}
	for i, u := range units {
		n := &t.nodes[i]
		n.position = copyFloats(u.Position)
		n.velocity = copyFloats(u.Velocity)
		n.stamp = u.TimeStamp
	}
	return nil
}
