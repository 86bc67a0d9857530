package dashboard

import (
	"github.com/zulandar/storytree/internal/models"
	"github.com/zulandar/storytree/internal/tree"
	"github.com/zulandar/storytree/internal/workflow"
)

// NodeView is the JSON shape of a story.
type NodeView struct {
	ID          string  `json:"id"`
	Feature     string  `json:"title"`
	Stage       string  `json:"stage"`
	Status      string  `json:"status"`
	Terminus    *string `json:"terminus"`
	Effective   string  `json:"effective_status"`
	HumanReview bool    `json:"human_review"`
	ParentID    string  `json:"parent_id,omitempty"`
	Depth       int     `json:"depth"`
	Descendants int     `json:"descendants"`
}

func viewOf(n *tree.Node) NodeView {
	return NodeView{
		ID:          n.ID,
		Feature:     n.Feature,
		Stage:       n.Stage,
		Status:      n.Status,
		Terminus:    n.Terminus,
		Effective:   n.Effective(),
		HumanReview: n.HumanReview,
		ParentID:    n.ParentID,
		Depth:       n.Depth,
		Descendants: n.Descendants,
	}
}

func viewOfModel(n models.StoryNode) NodeView {
	return NodeView{
		ID:          n.ID,
		Feature:     n.Feature,
		Stage:       n.Stage,
		Status:      n.Status,
		Terminus:    n.Terminus,
		Effective:   workflow.EffectiveStatus(n.Stage, n.Status, n.Terminus),
		HumanReview: n.HumanReview,
	}
}

func viewsOf(nodes []*tree.Node) []NodeView {
	out := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, viewOf(n))
	}
	return out
}

// RowView is one line of the filtered tree.
type RowView struct {
	NodeView
	Level int  `json:"level"`
	Faded bool `json:"faded"`
}

// NodeDetail is the response of GET /api/nodes/:id.
type NodeDetail struct {
	NodeView
	Description     string     `json:"description"`
	Story           string     `json:"story"`
	SuccessCriteria string     `json:"success_criteria"`
	Notes           string     `json:"notes"`
	Capacity        *int       `json:"capacity"`
	Ancestors       []string   `json:"ancestors"`
	Children        []NodeView `json:"children"`
	Posture         string     `json:"posture"`
	Menu            []string   `json:"menu"`
}

func detailOf(t *tree.Tree, n *tree.Node, p workflow.Posture) NodeDetail {
	anc := t.Ancestors(n.ID)
	if anc == nil {
		anc = []string{}
	}
	menu := workflow.Menu(n.State(), p)
	if menu == nil {
		menu = []string{}
	}
	return NodeDetail{
		NodeView:        viewOf(n),
		Description:     n.Description,
		Story:           n.Story,
		SuccessCriteria: n.SuccessCriteria,
		Notes:           n.Notes,
		Capacity:        n.Capacity,
		Ancestors:       anc,
		Children:        viewsOf(t.Children(n.ID)),
		Posture:         p.String(),
		Menu:            menu,
	}
}

// ColumnView is one kanban column.
type ColumnView struct {
	Name  string     `json:"name"`
	Cards []NodeView `json:"cards"`
}

func kanbanView(t *tree.Tree) []ColumnView {
	cols := tree.Kanban(t)
	out := make([]ColumnView, len(cols))
	for i, c := range cols {
		out[i] = ColumnView{Name: c.Name, Cards: viewsOf(c.Cards)}
	}
	return out
}

// LaneView is one swimlane.
type LaneView struct {
	Status string                `json:"status"`
	Cells  map[string][]NodeView `json:"cells"`
}

func swimlaneView(t *tree.Tree) []LaneView {
	lanes := tree.Swimlanes(t)
	out := make([]LaneView, len(lanes))
	for i, l := range lanes {
		cells := make(map[string][]NodeView, len(l.Cells))
		for col, nodes := range l.Cells {
			cells[col] = viewsOf(nodes)
		}
		out[i] = LaneView{Status: l.Status, Cells: cells}
	}
	return out
}
