package tree

import (
	"sort"

	"github.com/zulandar/storytree/internal/models"
	"github.com/zulandar/storytree/internal/workflow"
)

// Node is an arena entry: the stored row plus ancestry derived from the
// closure table.
type Node struct {
	models.StoryNode

	// ParentID comes from the depth-1 closure row; empty for roots and orphans.
	ParentID    string
	Depth       int
	Descendants int

	children  []int
	ancestors []string
}

// State returns the node's workflow fields.
func (n *Node) State() workflow.State {
	return workflow.State{Stage: n.Stage, Status: n.Status, Terminus: n.Terminus}
}

// Effective returns the derived display status.
func (n *Node) Effective() string {
	return workflow.EffectiveStatus(n.Stage, n.Status, n.Terminus)
}

// Tree is an immutable snapshot of the story tree.
type Tree struct {
	nodes []Node
	index map[string]int
	roots []int
}

// Build indexes nodes and derives parent, children, ancestors, depth and
// descendant counts from paths. Closure rows that reference unknown nodes are
// ignored here; Validate reports them.
func Build(nodes []models.StoryNode, paths []models.StoryPath) *Tree {
	t := &Tree{
		nodes: make([]Node, len(nodes)),
		index: make(map[string]int, len(nodes)),
	}
	for i, sn := range nodes {
		t.nodes[i] = Node{StoryNode: sn}
		t.index[sn.ID] = i
	}

	for _, p := range paths {
		if p.AncestorID == p.DescendantID {
			continue
		}
		ai, aok := t.index[p.AncestorID]
		di, dok := t.index[p.DescendantID]
		if !aok || !dok {
			continue
		}
		d := &t.nodes[di]
		d.ancestors = append(d.ancestors, p.AncestorID)
		if p.Depth > d.Depth {
			d.Depth = p.Depth
		}
		t.nodes[ai].Descendants++
		// With duplicate depth-1 rows the lowest id wins so the result is stable.
		if p.Depth == 1 && (d.ParentID == "" || CompareIDs(p.AncestorID, d.ParentID) < 0) {
			d.ParentID = p.AncestorID
		}
	}

	for i := range t.nodes {
		n := &t.nodes[i]
		SortIDs(n.ancestors)
		if n.ParentID == "" {
			t.roots = append(t.roots, i)
			continue
		}
		pi := t.index[n.ParentID]
		t.nodes[pi].children = append(t.nodes[pi].children, i)
	}
	t.sortIdx(t.roots)
	for i := range t.nodes {
		t.sortIdx(t.nodes[i].children)
	}
	return t
}

func (t *Tree) sortIdx(idx []int) {
	sort.SliceStable(idx, func(i, j int) bool {
		return CompareIDs(t.nodes[idx[i]].ID, t.nodes[idx[j]].ID) < 0
	})
}

func (t *Tree) list(idx []int) []*Node {
	out := make([]*Node, len(idx))
	for i, x := range idx {
		out[i] = &t.nodes[x]
	}
	return out
}

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Get returns the node with id.
func (t *Tree) Get(id string) (*Node, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return &t.nodes[i], true
}

// Children returns id's direct children in lineage order.
func (t *Tree) Children(id string) []*Node {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	return t.list(t.nodes[i].children)
}

// Parent returns id's parent, if it has one in the snapshot.
func (t *Tree) Parent(id string) (*Node, bool) {
	n, ok := t.Get(id)
	if !ok || n.ParentID == "" {
		return nil, false
	}
	return t.Get(n.ParentID)
}

// Ancestors returns every ancestor id of id, excluding id itself, in lineage order.
func (t *Tree) Ancestors(id string) []string {
	n, ok := t.Get(id)
	if !ok {
		return nil
	}
	return append([]string(nil), n.ancestors...)
}

// DescendantCount returns the number of descendants of id, excluding itself.
func (t *Tree) DescendantCount(id string) int {
	n, ok := t.Get(id)
	if !ok {
		return 0
	}
	return n.Descendants
}

// Depth returns how many levels id sits below the root, or -1 when id is
// not in the snapshot.
func (t *Tree) Depth(id string) int {
	n, ok := t.Get(id)
	if !ok {
		return -1
	}
	return n.Depth
}

// Roots returns the nodes without a parent in lineage order. In a healthy
// tree that is the root followed by any orphans.
func (t *Tree) Roots() []*Node { return t.list(t.roots) }

// Nodes returns all nodes in lineage order of their ids.
func (t *Tree) Nodes() []*Node {
	idx := make([]int, len(t.nodes))
	for i := range idx {
		idx[i] = i
	}
	t.sortIdx(idx)
	return t.list(idx)
}

// Walk visits nodes depth-first in display order, starting from the roots.
// Returning false from fn skips that node's subtree.
func (t *Tree) Walk(fn func(n *Node, level int) bool) {
	seen := make([]bool, len(t.nodes))
	var visit func(i, level int)
	visit = func(i, level int) {
		if seen[i] {
			return
		}
		seen[i] = true
		if !fn(&t.nodes[i], level) {
			return
		}
		for _, c := range t.nodes[i].children {
			visit(c, level+1)
		}
	}
	for _, r := range t.roots {
		visit(r, 0)
	}
}
