package tree

import (
	"reflect"
	"testing"

	"github.com/zulandar/storytree/internal/models"
)

func strPtr(s string) *string { return &s }

// fixture is a node list plus closure rows generated from parent links.
type fixture struct {
	nodes []models.StoryNode
	paths []models.StoryPath
}

// newFixture builds a consistent tree from (id, parent) pairs listed parents first.
func newFixture(pairs ...[2]string) *fixture {
	f := &fixture{}
	parent := map[string]string{}
	for _, p := range pairs {
		id, par := p[0], p[1]
		stage := "concept"
		if id == RootID {
			stage = "epic"
		}
		f.nodes = append(f.nodes, models.StoryNode{ID: id, Feature: "feature " + id, Stage: stage, Status: "ready"})
		f.paths = append(f.paths, models.StoryPath{AncestorID: id, DescendantID: id})
		parent[id] = par
		depth := 1
		for a := par; a != ""; a = parent[a] {
			f.paths = append(f.paths, models.StoryPath{AncestorID: a, DescendantID: id, Depth: depth})
			depth++
		}
	}
	return f
}

func (f *fixture) node(id string) *models.StoryNode {
	for i := range f.nodes {
		if f.nodes[i].ID == id {
			return &f.nodes[i]
		}
	}
	return nil
}

// dropPaths removes closure rows where descendant == id and ancestor != id.
func (f *fixture) dropPaths(id string) {
	var kept []models.StoryPath
	for _, p := range f.paths {
		if p.DescendantID == id && p.AncestorID != id {
			continue
		}
		kept = append(kept, p)
	}
	f.paths = kept
}

func sample() *fixture {
	return newFixture(
		[2]string{"root", ""},
		[2]string{"1", "root"},
		[2]string{"2", "root"},
		[2]string{"10", "root"},
		[2]string{"10.1", "10"},
		[2]string{"10.2", "10"},
		[2]string{"10.1.1", "10.1"},
	)
}

func TestSortIDs(t *testing.T) {
	ids := []string{"2", "10", "1", "10.1"}
	SortIDs(ids)
	if want := []string{"1", "2", "10", "10.1"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("SortIDs = %v, want %v", ids, want)
	}
}

func TestSortIDs_RootAndNonNumeric(t *testing.T) {
	ids := []string{"beta", "3.2", "root", "alpha", "3", "3.10", "3.9"}
	SortIDs(ids)
	want := []string{"root", "3", "3.2", "3.9", "3.10", "alpha", "beta"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("SortIDs = %v, want %v", ids, want)
	}
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"root", "1", -1},
		{"1", "root", 1},
		{"1", "1", 0},
		{"9", "10", -1},
		{"10", "10.1", -1},
		{"10.1", "2", 1},
		{"x", "1", 1},
	}
	for _, tt := range tests {
		if got := CompareIDs(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareIDs(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSegmentCount(t *testing.T) {
	for id, want := range map[string]int{"root": 0, "3": 1, "3.1": 2, "8.4.2": 3} {
		if got := SegmentCount(id); got != want {
			t.Errorf("SegmentCount(%q) = %d, want %d", id, got, want)
		}
	}
}

func TestNextChildID(t *testing.T) {
	tests := []struct {
		parent   string
		siblings []string
		want     string
	}{
		{"root", nil, "1"},
		{"root", []string{"1", "2", "7"}, "8"},
		{"3", nil, "3.1"},
		{"3", []string{"3.1", "3.4", "3.x"}, "3.5"},
	}
	for _, tt := range tests {
		if got := NextChildID(tt.parent, tt.siblings); got != tt.want {
			t.Errorf("NextChildID(%q, %v) = %q, want %q", tt.parent, tt.siblings, got, tt.want)
		}
	}
}

func TestBuild_Structure(t *testing.T) {
	f := sample()
	tr := Build(f.nodes, f.paths)

	if tr.Len() != 7 {
		t.Fatalf("Len = %d, want 7", tr.Len())
	}
	var kids []string
	for _, c := range tr.Children("root") {
		kids = append(kids, c.ID)
	}
	if want := []string{"1", "2", "10"}; !reflect.DeepEqual(kids, want) {
		t.Errorf("Children(root) = %v, want %v", kids, want)
	}
	p, ok := tr.Parent("10.1.1")
	if !ok || p.ID != "10.1" {
		t.Errorf("Parent(10.1.1) = %v, %v", p, ok)
	}
	if got, want := tr.Ancestors("10.1.1"), []string{"root", "10", "10.1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Ancestors = %v, want %v", got, want)
	}
	if got := tr.DescendantCount("10"); got != 3 {
		t.Errorf("DescendantCount(10) = %d, want 3", got)
	}
	if got := tr.DescendantCount("root"); got != 6 {
		t.Errorf("DescendantCount(root) = %d, want 6", got)
	}
	if got := tr.Depth("10.1.1"); got != 3 {
		t.Errorf("Depth(10.1.1) = %d, want 3", got)
	}
	if got := tr.Depth("missing"); got != -1 {
		t.Errorf("Depth(missing) = %d, want -1", got)
	}
	if roots := tr.Roots(); len(roots) != 1 || roots[0].ID != "root" {
		t.Errorf("Roots = %v", roots)
	}
}

// The chain of depth-1 rows from a node up to the root is as long as its id
// has segments.
func TestBuild_ParentChainMatchesSegments(t *testing.T) {
	tr := Build(sample().nodes, sample().paths)
	for _, n := range tr.Nodes() {
		steps := 0
		for cur := n.ID; ; steps++ {
			p, ok := tr.Parent(cur)
			if !ok {
				break
			}
			cur = p.ID
		}
		if steps != SegmentCount(n.ID) {
			t.Errorf("%s: chain length %d, want %d", n.ID, steps, SegmentCount(n.ID))
		}
	}
}

func TestBuild_OrphanBecomesRoot(t *testing.T) {
	f := sample()
	f.dropPaths("10.1")
	tr := Build(f.nodes, f.paths)
	var roots []string
	for _, r := range tr.Roots() {
		roots = append(roots, r.ID)
	}
	if want := []string{"root", "10.1"}; !reflect.DeepEqual(roots, want) {
		t.Errorf("Roots = %v, want %v", roots, want)
	}
}

func TestWalk_Order(t *testing.T) {
	tr := Build(sample().nodes, sample().paths)
	var got []string
	tr.Walk(func(n *Node, level int) bool {
		got = append(got, n.ID)
		return true
	})
	want := []string{"root", "1", "2", "10", "10.1", "10.1.1", "10.2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Walk = %v, want %v", got, want)
	}
}

func TestNode_Effective(t *testing.T) {
	n := &Node{StoryNode: models.StoryNode{Stage: "testing", Status: "blocked"}}
	if n.Effective() != "blocked" {
		t.Errorf("Effective = %q", n.Effective())
	}
	n.Terminus = strPtr("shipped")
	if n.Effective() != "shipped" {
		t.Errorf("Effective = %q", n.Effective())
	}
}
