package main

import (
	"strings"
	"testing"
)

// seedStories creates root -> 1 -> 1.1, 1.2 and root -> 2.
func seedStories(t *testing.T) string {
	t.Helper()
	cfgPath, _ := seedWithDB(t)
	return cfgPath
}

func TestStoryCreate_AutoIDs(t *testing.T) {
	cfgPath, _ := initStore(t)
	out := mustRun(t, "story", "create", "--title", "First", "-c", cfgPath)
	if !strings.Contains(out, "Created story 1 (concept)") {
		t.Errorf("create output: %s", out)
	}
	out = mustRun(t, "story", "create", "--title", "Nested", "--parent", "1", "--stage", "planning", "-c", cfgPath)
	if !strings.Contains(out, "Created story 1.1 (planning)") {
		t.Errorf("create output: %s", out)
	}
}

func TestStoryCreate_Errors(t *testing.T) {
	cfgPath, _ := initStore(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing title", []string{"story", "create", "-c", cfgPath}},
		{"unknown parent", []string{"story", "create", "--title", "x", "--parent", "9", "-c", cfgPath}},
		{"bad stage", []string{"story", "create", "--title", "x", "--stage", "shipped", "-c", cfgPath}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out, err := run(t, tt.args...); err == nil {
				t.Errorf("expected error, got: %s", out)
			}
		})
	}
}

func TestStoryCreate_Capacity(t *testing.T) {
	cfgPath, _ := initStore(t)
	mustRun(t, "story", "create", "--title", "Small", "--capacity", "1", "-c", cfgPath)
	mustRun(t, "story", "create", "--title", "Only child", "--parent", "1", "-c", cfgPath)
	_, err := run(t, "story", "create", "--title", "One too many", "--parent", "1", "-c", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "capacity") {
		t.Errorf("err = %v, want capacity error", err)
	}
}

func TestStoryShow(t *testing.T) {
	cfgPath := seedStories(t)
	out := mustRun(t, "story", "show", "1.1", "-c", cfgPath)
	for _, want := range []string{"ID:          1.1", "Title:       Closure rows", "Status:      implementing",
		"Ancestors:   root > 1", "Success Criteria:", "- [ ] inserts paths"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, "story", "show", "1", "-c", cfgPath)
	if !strings.Contains(out, "Children:    2") || !strings.Contains(out, "Descendants: 2") {
		t.Errorf("show counts wrong:\n%s", out)
	}

	if _, err := run(t, "story", "show", "7", "-c", cfgPath); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestStoryList(t *testing.T) {
	cfgPath := seedStories(t)
	out := mustRun(t, "story", "list", "-c", cfgPath)
	if !strings.Contains(out, "5 stories") {
		t.Errorf("list should include the root and four stories:\n%s", out)
	}
	if strings.Index(out, "Tree store") > strings.Index(out, "Closure rows") {
		t.Errorf("list not in lineage order:\n%s", out)
	}

	out = mustRun(t, "story", "list", "--stage", "implementing", "-c", cfgPath)
	if !strings.Contains(out, "Closure rows") || strings.Contains(out, "Workflow") {
		t.Errorf("stage filter wrong:\n%s", out)
	}

	out = mustRun(t, "story", "list", "--status", "blocked", "-c", cfgPath)
	if !strings.Contains(out, "No stories found.") {
		t.Errorf("status filter wrong:\n%s", out)
	}
}

func TestStoryChildrenAndAncestors(t *testing.T) {
	cfgPath := seedStories(t)
	out := mustRun(t, "story", "children", "1", "-c", cfgPath)
	if !strings.Contains(out, "1.1") || !strings.Contains(out, "1.2") || strings.Contains(out, "Workflow") {
		t.Errorf("children output:\n%s", out)
	}
	out = mustRun(t, "story", "children", "2", "-c", cfgPath)
	if !strings.Contains(out, "2 has no children.") {
		t.Errorf("leaf children output:\n%s", out)
	}
	out = mustRun(t, "story", "ancestors", "1.2", "-c", cfgPath)
	if out != "root\n1\n" {
		t.Errorf("ancestors = %q, want root then 1", out)
	}
}

func TestStoryTransition(t *testing.T) {
	cfgPath := seedStories(t)

	out := mustRun(t, "story", "transition", "1.1", "blocked", "-m", "waiting on schema", "-c", cfgPath)
	if !strings.Contains(out, "1.1: implementing -> blocked (status)") {
		t.Errorf("transition output: %s", out)
	}
	if !strings.Contains(out, "Status changed to 'blocked': waiting on schema") {
		t.Errorf("transition entry missing: %s", out)
	}

	out = mustRun(t, "story", "transition", "1.1", "shipped", "-c", cfgPath)
	if !strings.Contains(out, "blocked -> shipped (terminus)") {
		t.Errorf("terminus output: %s", out)
	}
	out = mustRun(t, "story", "show", "1.1", "-c", cfgPath)
	if !strings.Contains(out, "Stage:       implementing") || !strings.Contains(out, "Hold:        ready") {
		t.Errorf("terminus should keep stage and clear hold:\n%s", out)
	}

	out = mustRun(t, "story", "transition", "1.1", "testing", "-c", cfgPath)
	if !strings.Contains(out, "shipped -> testing (stage)") {
		t.Errorf("stage output: %s", out)
	}
}

func TestStoryTransition_Rejected(t *testing.T) {
	cfgPath := seedStories(t)
	tests := []struct {
		name, id, target, want string
	}{
		{"polish needs note", "1", "polish", "note is required"},
		{"unknown target", "1", "done", "unknown target"},
		{"unknown story", "9", "planning", "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "story", "transition", tt.id, tt.target, "-c", cfgPath)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestStoryMenu(t *testing.T) {
	cfgPath := seedStories(t)
	out := mustRun(t, "story", "menu", "1", "-c", cfgPath)
	if !strings.Contains(out, "1 is concept (filter posture)") || !strings.Contains(out, "wishlisted") {
		t.Errorf("filter menu output:\n%s", out)
	}

	out = mustRun(t, "story", "menu", "1.1", "-c", cfgPath)
	if !strings.Contains(out, "No suggested transitions.") {
		t.Errorf("implementing filter menu output:\n%s", out)
	}

	out = mustRun(t, "story", "menu", "1.1", "--posture", "respond", "-c", cfgPath)
	if !strings.Contains(out, "1.1 is implementing (respond posture)") {
		t.Errorf("respond menu output:\n%s", out)
	}
	for _, want := range []string{"testing", "paused", "broken", "blocked"} {
		if !strings.Contains(out, want) {
			t.Errorf("respond menu missing %q:\n%s", want, out)
		}
	}
}
