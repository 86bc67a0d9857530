package notify

import (
	"fmt"
	"strings"

	"github.com/zulandar/storytree/internal/story"
	"github.com/zulandar/storytree/internal/workflow"
)

// TransitionEvent describes a story moving to a new effective status.
func TransitionEvent(c *story.Change, feature string) Event {
	sev := SeverityInfo
	switch {
	case c.To.Terminus != nil && *c.To.Terminus == workflow.TerminusShipped:
		sev = SeveritySuccess
	case c.Category == workflow.CategoryTerminus:
		sev = SeverityWarning
	case c.To.Status == workflow.StatusBroken || c.To.Status == workflow.StatusBlocked:
		sev = SeverityError
	case c.To.Status == workflow.StatusEscalated:
		sev = SeverityWarning
	}
	return Event{
		Title:    fmt.Sprintf("Story %s is now %s", c.ID, c.To.Effective()),
		Body:     feature,
		Severity: sev,
		Fields: []Field{
			{Name: "From", Value: c.From.Effective(), Short: true},
			{Name: "To", Value: c.To.Effective(), Short: true},
			{Name: "Stage", Value: c.To.Stage, Short: true},
		},
	}
}

// HealthEvent summarises a tree health report.
func HealthEvent(r *story.HealthReport) Event {
	if r.Healthy() {
		return Event{
			Title:    "Story tree healthy",
			Body:     fmt.Sprintf("%d stories, max depth %d", r.Stats.TotalNodes, r.Stats.MaxDepth),
			Severity: SeveritySuccess,
		}
	}
	var fields []Field
	var ids []string
	for _, c := range r.Issues.Categories() {
		if len(c.Issues) == 0 {
			continue
		}
		fields = append(fields, Field{Name: c.Name, Value: fmt.Sprint(len(c.Issues)), Short: true})
		for _, is := range c.Issues {
			ids = append(ids, is.ID)
		}
	}
	if len(ids) > 10 {
		ids = append(ids[:10], "...")
	}
	return Event{
		Title:    fmt.Sprintf("Story tree has %d integrity issue(s)", r.TotalIssues),
		Body:     "Affected: " + strings.Join(ids, ", "),
		Severity: SeverityError,
		Fields:   fields,
	}
}
