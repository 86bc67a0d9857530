package dashboard

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/storytree/internal/notify"
	"github.com/zulandar/storytree/internal/story"
	"github.com/zulandar/storytree/internal/tree"
	"github.com/zulandar/storytree/internal/workflow"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, s *server) {
	api := router.Group("/api")
	api.GET("/tree", s.handleTree)
	api.GET("/nodes/:id", s.handleNode)
	api.POST("/nodes/:id/transition", s.handleTransition)
	api.GET("/views/kanban", s.handleKanban)
	api.GET("/views/swimlanes", s.handleSwimlanes)
	api.GET("/views/heatmap", s.handleHeatmap)
	api.GET("/health", s.handleHealth)
	api.GET("/orphans", s.handleOrphans)
	api.GET("/events", s.handleSSE)
}

// writeError maps store errors onto HTTP statuses.
func (s *server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, story.ErrNotFound):
		status = http.StatusNotFound
	case story.IsValidation(err):
		status = http.StatusBadRequest
	default:
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *server) load(c *gin.Context) (*tree.Tree, bool) {
	t, err := story.Load(s.db)
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return t, true
}

func (s *server) handleTree(c *gin.Context) {
	respond, _ := strconv.ParseBool(c.Query("respond"))
	cfg, err := tree.ParseViewConfig(respond, c.GetQuery)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, ok := s.load(c)
	if !ok {
		return
	}
	rows := tree.Rows(t, tree.Filter(t, cfg))
	out := make([]RowView, len(rows))
	for i, r := range rows {
		out[i] = RowView{NodeView: viewOf(r.Node), Level: r.Level, Faded: r.Faded}
	}
	c.JSON(http.StatusOK, gin.H{"filters": cfg.Keys(), "rows": out})
}

func (s *server) handleNode(c *gin.Context) {
	t, ok := s.load(c)
	if !ok {
		return
	}
	id := c.Param("id")
	n, found := t.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "story: not found: " + id})
		return
	}
	c.JSON(http.StatusOK, detailOf(t, n, workflow.ParsePosture(c.Query("posture"))))
}

type transitionRequest struct {
	Target string `json:"target" binding:"required"`
	Note   string `json:"note"`
}

func (s *server) handleTransition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	change, err := story.Transition(s.db, id, req.Target, req.Note)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.log.Info("story transitioned", "story_id", id, "target", req.Target,
		"from", change.From.Effective(), "to", change.To.Effective())

	feature := ""
	if n, err := story.Get(s.db, id); err == nil {
		feature = n.Feature
	}
	if err := s.notifier.Notify(c.Request.Context(), notify.TransitionEvent(change, feature)); err != nil {
		s.log.Warn("transition notification failed", "story_id", id, "error", err)
	}

	body := gin.H{
		"id":               change.ID,
		"target":           change.Target,
		"category":         change.Category.String(),
		"stage":            change.To.Stage,
		"status":           change.To.Status,
		"terminus":         change.To.Terminus,
		"effective_status": change.To.Effective(),
		"entry":            change.Entry,
	}
	s.hub.publish("transition", body)
	c.JSON(http.StatusOK, body)
}

func (s *server) handleKanban(c *gin.Context) {
	if t, ok := s.load(c); ok {
		c.JSON(http.StatusOK, gin.H{"columns": kanbanView(t)})
	}
}

func (s *server) handleSwimlanes(c *gin.Context) {
	if t, ok := s.load(c); ok {
		c.JSON(http.StatusOK, gin.H{"columns": tree.KanbanColumns, "lanes": swimlaneView(t)})
	}
}

func (s *server) handleHeatmap(c *gin.Context) {
	if t, ok := s.load(c); ok {
		c.JSON(http.StatusOK, tree.Heatmap(t))
	}
}

func (s *server) handleHealth(c *gin.Context) {
	r, err := story.Health(s.db)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *server) handleOrphans(c *gin.Context) {
	orphans, err := story.FindOrphans(s.db)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]NodeView, len(orphans))
	for i, n := range orphans {
		out[i] = viewOfModel(n)
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "orphans": out})
}
