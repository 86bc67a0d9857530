package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestVerify_Advance(t *testing.T) {
	cfgPath, _ := seedWithDB(t)
	mustRun(t, "story", "transition", "1.1", "blocked", "-c", cfgPath)

	out := mustRun(t, "verify", "1.1", "testing", "all checks pass", "-c", cfgPath)
	if !strings.Contains(out, "1.1: implementing -> testing") || !strings.Contains(out, "Notes recorded.") {
		t.Errorf("verify output: %s", out)
	}
	out = mustRun(t, "story", "show", "1.1", "-c", cfgPath)
	if !strings.Contains(out, "Status:      testing") || !strings.Contains(out, "[Verification ") {
		t.Errorf("story after verify:\n%s", out)
	}
}

func TestVerify_HoldJSON(t *testing.T) {
	cfgPath, _ := seedWithDB(t)
	out := mustRun(t, "verify", "1.1", "testing", "--hold", "--json", "-c", cfgPath)
	var r struct {
		ID       string `json:"story_id"`
		OldStage string `json:"old_stage"`
		NewStage string `json:"new_stage"`
		HoldSet  bool   `json:"hold_set"`
	}
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if !r.HoldSet || r.NewStage != "implementing" {
		t.Errorf("result = %+v, want hold at implementing", r)
	}
	out = mustRun(t, "story", "list", "--review", "-c", cfgPath)
	if !strings.Contains(out, "1.1") || !strings.Contains(out, "escalated") {
		t.Errorf("held story not listed for review:\n%s", out)
	}
}

func TestVerify_InvalidStage(t *testing.T) {
	cfgPath, _ := seedWithDB(t)
	if _, err := run(t, "verify", "1.1", "shipped", "-c", cfgPath); err == nil {
		t.Error("expected invalid stage error")
	}
	if _, err := run(t, "verify", "1.1", "-c", cfgPath); err == nil {
		t.Error("expected argument count error")
	}
}

func TestCriteria(t *testing.T) {
	cfgPath, _ := initStore(t)
	mustRun(t, "story", "create", "--title", "Checklist",
		"--criteria", "- [ ] one\n- [ ] two\n- [ ] three", "-c", cfgPath)

	out := mustRun(t, "criteria", "summary", "1", "-c", cfgPath)
	if !strings.Contains(out, "Criteria: 0/3 checked") || !strings.Contains(out, "3 remaining.") {
		t.Errorf("summary before mark:\n%s", out)
	}

	out = mustRun(t, "criteria", "mark", "1", "1,3", "-c", cfgPath)
	if !strings.Contains(out, "marked [1 3] of 3 criteria") {
		t.Errorf("mark output: %s", out)
	}

	out = mustRun(t, "criteria", "summary", "1", "--json", "-c", cfgPath)
	var s struct {
		Checked  int  `json:"criteria_checked"`
		Complete bool `json:"verification_complete"`
	}
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Checked != 2 || s.Complete {
		t.Errorf("summary = %+v", s)
	}

	mustRun(t, "criteria", "mark", "1", "2", "-c", cfgPath)
	out = mustRun(t, "criteria", "summary", "1", "-c", cfgPath)
	if !strings.Contains(out, "Verification complete.") {
		t.Errorf("summary after marking all:\n%s", out)
	}

	if _, err := run(t, "criteria", "mark", "1", "x", "-c", cfgPath); err == nil {
		t.Error("expected error for non-numeric index")
	}
}
