package tree

import "github.com/zulandar/storytree/internal/workflow"

// ColumnShipped is the extra board column holding shipped stories.
const ColumnShipped = workflow.TerminusShipped

// BoardStages are the workflow stages shown as board columns. Epic is an
// organizational marker and never appears on a board.
var BoardStages = []string{
	workflow.StageConcept, workflow.StagePlanning, workflow.StageImplementing,
	workflow.StageTesting, workflow.StageReleasing,
}

// KanbanColumns are BoardStages plus the shipped column.
var KanbanColumns = append(append([]string(nil), BoardStages...), ColumnShipped)

// HeatmapStatuses are the heatmap rows in display order.
var HeatmapStatuses = []string{
	workflow.StatusReady, workflow.StatusEscalated, workflow.StatusBlocked, workflow.StatusQueued,
	workflow.StatusBroken, workflow.StatusPaused, workflow.StatusPolish, workflow.StatusConflicted,
	workflow.StatusWishlisted,
}

// SwimlaneStatuses are the swimlane rows in display order.
var SwimlaneStatuses = []string{
	workflow.StatusReady, workflow.StatusBlocked, workflow.StatusBroken, workflow.StatusEscalated,
	workflow.StatusPaused, workflow.StatusPolish, workflow.StatusQueued, workflow.StatusWishlisted,
	workflow.StatusConflicted,
}

// boardColumn places a node on a stage board. Root, epic and exited nodes
// are left off, except shipped nodes which get their own column.
func boardColumn(n *Node) (string, bool) {
	if n.ID == RootID {
		return "", false
	}
	if n.Terminus != nil && *n.Terminus != "" {
		if *n.Terminus == workflow.TerminusShipped {
			return ColumnShipped, true
		}
		return "", false
	}
	for _, s := range BoardStages {
		if n.Stage == s {
			return s, true
		}
	}
	return "", false
}

func statusOf(n *Node) string {
	if n.Status == "" {
		return workflow.StatusReady
	}
	return n.Status
}

// Column is one kanban column.
type Column struct {
	Name  string  `json:"name"`
	Cards []*Node `json:"cards"`
}

// Kanban groups nodes into stage columns, cards ordered by id.
func Kanban(t *Tree) []Column {
	cols := make([]Column, len(KanbanColumns))
	pos := make(map[string]int, len(KanbanColumns))
	for i, name := range KanbanColumns {
		cols[i] = Column{Name: name, Cards: []*Node{}}
		pos[name] = i
	}
	for _, n := range t.Nodes() {
		if c, ok := boardColumn(n); ok {
			cols[pos[c]].Cards = append(cols[pos[c]].Cards, n)
		}
	}
	return cols
}

// Lane is one swimlane row: the nodes with Status, bucketed by column.
type Lane struct {
	Status string             `json:"status"`
	Cells  map[string][]*Node `json:"cells"`
}

// Swimlanes builds a status-by-stage grid over KanbanColumns. Only
// statuses with at least one node get a lane.
func Swimlanes(t *Tree) []Lane {
	cells := make(map[string]map[string][]*Node)
	var extra []string
	for _, n := range t.Nodes() {
		col, ok := boardColumn(n)
		if !ok {
			continue
		}
		st := statusOf(n)
		if cells[st] == nil {
			cells[st] = make(map[string][]*Node)
			if !contains(SwimlaneStatuses, st) {
				extra = append(extra, st)
			}
		}
		cells[st][col] = append(cells[st][col], n)
	}
	var lanes []Lane
	for _, st := range append(append([]string(nil), SwimlaneStatuses...), extra...) {
		if cells[st] != nil {
			lanes = append(lanes, Lane{Status: st, Cells: cells[st]})
		}
	}
	return lanes
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Heat levels for heatmap cells.
const (
	HeatNone = iota
	HeatLow
	HeatMedium
	HeatHigh
	HeatHot
)

// HeatLevel buckets a cell count: 0, 1-2, 3-5, 6-10, 11+.
func HeatLevel(count int) int {
	switch {
	case count <= 0:
		return HeatNone
	case count <= 2:
		return HeatLow
	case count <= 5:
		return HeatMedium
	case count <= 10:
		return HeatHigh
	default:
		return HeatHot
	}
}

// HeatmapData counts active nodes per (status, stage).
type HeatmapData struct {
	Stages   []string                  `json:"stages"`
	Statuses []string                  `json:"statuses"`
	Counts   map[string]map[string]int `json:"counts"`
	RowTotal map[string]int            `json:"row_totals"`
	ColTotal map[string]int            `json:"column_totals"`
	Total    int                       `json:"total"`
}

// Count returns the count for one cell.
func (h HeatmapData) Count(status, stage string) int { return h.Counts[status][stage] }

// Heatmap counts nodes that are still in the pipeline. Exited nodes, the
// root and statuses outside HeatmapStatuses are not counted.
func Heatmap(t *Tree) HeatmapData {
	h := HeatmapData{
		Stages:   BoardStages,
		Statuses: HeatmapStatuses,
		Counts:   make(map[string]map[string]int, len(HeatmapStatuses)),
		RowTotal: make(map[string]int, len(HeatmapStatuses)),
		ColTotal: make(map[string]int, len(BoardStages)),
	}
	for _, st := range HeatmapStatuses {
		h.Counts[st] = make(map[string]int, len(BoardStages))
	}
	for i := range t.nodes {
		n := &t.nodes[i]
		col, ok := boardColumn(n)
		if !ok || col == ColumnShipped {
			continue
		}
		st := statusOf(n)
		if h.Counts[st] == nil {
			continue
		}
		h.Counts[st][col]++
		h.RowTotal[st]++
		h.ColTotal[col]++
		h.Total++
	}
	return h
}
