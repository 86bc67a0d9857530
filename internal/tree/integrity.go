package tree

import (
	"strings"

	"github.com/zulandar/storytree/internal/models"
	"github.com/zulandar/storytree/internal/workflow"
)

// FindOrphans returns the non-root nodes that no other node reaches through
// the closure table, in lineage order.
func FindOrphans(nodes []models.StoryNode, paths []models.StoryPath) []string {
	reached := make(map[string]bool, len(nodes))
	for _, p := range paths {
		if p.AncestorID != p.DescendantID {
			reached[p.DescendantID] = true
		}
	}
	var out []string
	for _, n := range nodes {
		if n.ID != RootID && !reached[n.ID] {
			out = append(out, n.ID)
		}
	}
	SortIDs(out)
	return out
}

// Issue is one integrity finding.
type Issue struct {
	ID             string `json:"id"`
	Feature        string `json:"title,omitempty"`
	Reason         string `json:"reason,omitempty"`
	ExpectedParent string `json:"expected_parent,omitempty"`
	ActualParent   string `json:"actual_parent,omitempty"`
}

// Report groups integrity findings by category. Validate never fixes
// anything it reports.
type Report struct {
	Orphans         []Issue `json:"orphans"`
	MissingParent   []Issue `json:"missing_parent"`
	MissingNodes    []Issue `json:"missing_nodes"`
	MissingSelf     []Issue `json:"missing_self"`
	MultipleParents []Issue `json:"multiple_parents"`
	ParentMismatch  []Issue `json:"parent_mismatch"`
	Cycles          []Issue `json:"cycles"`
	OverCapacity    []Issue `json:"over_capacity"`
}

// Category is a named slice of a Report.
type Category struct {
	Name   string
	Issues []Issue
}

// Categories returns the report sections in a fixed order.
func (r Report) Categories() []Category {
	return []Category{
		{"orphans", r.Orphans},
		{"missing_parent", r.MissingParent},
		{"missing_nodes", r.MissingNodes},
		{"missing_self", r.MissingSelf},
		{"multiple_parents", r.MultipleParents},
		{"parent_mismatch", r.ParentMismatch},
		{"cycles", r.Cycles},
		{"over_capacity", r.OverCapacity},
	}
}

// Total returns the number of issues across all categories.
func (r Report) Total() int {
	total := 0
	for _, c := range r.Categories() {
		total += len(c.Issues)
	}
	return total
}

// Healthy reports whether no issues were found.
func (r Report) Healthy() bool { return r.Total() == 0 }

// ImpliedParent derives the parent id suggested by a dotted numeric id:
// "3" -> "root", "3.1.2" -> "3.1". It returns false for the root and for
// ids that do not follow the dotted convention.
func ImpliedParent(id string) (string, bool) {
	if keyOf(id).class != 1 {
		return "", false
	}
	i := strings.LastIndex(id, ".")
	if i < 0 {
		return RootID, true
	}
	return id[:i], true
}

// Validate scans nodes and paths for structural problems.
func Validate(nodes []models.StoryNode, paths []models.StoryPath) Report {
	r := Report{}
	byID := make(map[string]*models.StoryNode, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	hasSelf := make(map[string]bool)
	parents := make(map[string][]string)
	children := make(map[string]int)
	missing := make(map[string]bool)
	for _, p := range paths {
		for _, id := range []string{p.AncestorID, p.DescendantID} {
			if byID[id] == nil && !missing[id] {
				missing[id] = true
				r.MissingNodes = append(r.MissingNodes, Issue{ID: id, Reason: "closure row references a node that does not exist"})
			}
		}
		switch {
		case p.AncestorID == p.DescendantID:
			hasSelf[p.DescendantID] = true
		case p.Depth == 1:
			parents[p.DescendantID] = append(parents[p.DescendantID], p.AncestorID)
			children[p.AncestorID]++
		}
	}
	sortIssues(r.MissingNodes)

	orphaned := make(map[string]bool)
	for _, id := range FindOrphans(nodes, paths) {
		orphaned[id] = true
		r.Orphans = append(r.Orphans, Issue{ID: id, Feature: byID[id].Feature, Reason: "no ancestor path"})
	}

	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	SortIDs(ids)

	parentOf := make(map[string]string, len(nodes))
	for _, id := range ids {
		n := byID[id]
		if !hasSelf[id] {
			r.MissingSelf = append(r.MissingSelf, Issue{ID: id, Feature: n.Feature, Reason: "no depth-0 self path"})
		}
		ps := parents[id]
		SortIDs(ps)
		if len(ps) > 1 {
			r.MultipleParents = append(r.MultipleParents, Issue{
				ID: id, Feature: n.Feature, Reason: "parents " + strings.Join(ps, ", "),
			})
		}
		if len(ps) == 0 && id != RootID && !orphaned[id] {
			r.MissingParent = append(r.MissingParent, Issue{
				ID: id, Feature: n.Feature, Reason: "ancestor paths without a depth-1 parent row",
			})
		}
		if len(ps) > 0 {
			parentOf[id] = ps[0]
			if want, ok := ImpliedParent(id); ok && want != ps[0] {
				r.ParentMismatch = append(r.ParentMismatch, Issue{
					ID: id, Feature: n.Feature, ExpectedParent: want, ActualParent: ps[0],
				})
			}
		}
		if n.Capacity != nil && children[id] > *n.Capacity {
			r.OverCapacity = append(r.OverCapacity, Issue{
				ID: id, Feature: n.Feature, Reason: "children exceed capacity",
			})
		}
	}

	r.Cycles = findCycles(ids, parentOf)
	return r
}

// findCycles follows parent links from every node and reports each cycle
// once, keyed by its lowest id.
func findCycles(ids []string, parentOf map[string]string) []Issue {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(ids))
	var out []Issue
	for _, start := range ids {
		var path []string
		cur := start
		for cur != "" && state[cur] == unvisited {
			state[cur] = onPath
			path = append(path, cur)
			cur = parentOf[cur]
		}
		if cur != "" && state[cur] == onPath {
			var cycle []string
			for i := len(path) - 1; i >= 0; i-- {
				cycle = append(cycle, path[i])
				if path[i] == cur {
					break
				}
			}
			SortIDs(cycle)
			out = append(out, Issue{ID: cycle[0], Reason: "parent cycle through " + strings.Join(cycle, ", ")})
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return out
}

func sortIssues(issues []Issue) {
	ids := make([]string, len(issues))
	byID := make(map[string]Issue, len(issues))
	for i, is := range issues {
		ids[i] = is.ID
		byID[is.ID] = is
	}
	SortIDs(ids)
	for i, id := range ids {
		issues[i] = byID[id]
	}
}

// Stats summarizes the tree for the health report.
type Stats struct {
	TotalNodes   int            `json:"total_nodes"`
	MaxDepth     int            `json:"max_depth"`
	RootChildren int            `json:"root_children"`
	NeedsReview  int            `json:"needs_review"`
	ByStage      map[string]int `json:"by_stage"`
	ByStatus     map[string]int `json:"by_status"`
	ByTerminus   map[string]int `json:"by_terminus"`
}

// ComputeStats counts nodes excluding the root. ByStage covers only nodes
// still flowing through the pipeline: ready and without a terminus.
func ComputeStats(nodes []models.StoryNode, paths []models.StoryPath) Stats {
	s := Stats{
		ByStage:    make(map[string]int),
		ByStatus:   make(map[string]int),
		ByTerminus: make(map[string]int),
	}
	for _, p := range paths {
		if p.AncestorID != RootID || p.DescendantID == RootID {
			continue
		}
		if p.Depth > s.MaxDepth {
			s.MaxDepth = p.Depth
		}
		if p.Depth == 1 {
			s.RootChildren++
		}
	}
	for _, n := range nodes {
		if n.HumanReview {
			s.NeedsReview++
		}
		if n.ID == RootID {
			continue
		}
		s.TotalNodes++
		hasTerminus := n.Terminus != nil && *n.Terminus != ""
		ready := n.Status == "" || n.Status == workflow.StatusReady
		switch {
		case hasTerminus:
			s.ByTerminus[*n.Terminus]++
		case !ready:
			s.ByStatus[n.Status]++
		default:
			s.ByStage[n.Stage]++
		}
		if hasTerminus && !ready {
			s.ByStatus[n.Status]++
		}
	}
	return s
}
