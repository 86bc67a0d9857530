package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/storytree/internal/subtree"
)

const oneSubtree = `sync:
  remote: storytree
  subtrees:
    - prefix: x/skills
      branch: dist-skills
`

func syncRunner() *fakeRunner {
	return &fakeRunner{
		replies: map[string]string{
			"remote":              "origin\nstorytree",
			"rev-parse --git-dir": "/nonexistent/.git",
		},
		errs: map[string]error{},
	}
}

func TestSyncStatus(t *testing.T) {
	cfgPath, _ := writeConfig(t, oneSubtree)
	f := syncRunner()
	f.replies["rev-list --count storytree/dist-skills..HEAD -- x/skills"] = "2"
	f.replies["rev-list --count HEAD..storytree/dist-skills -- x/skills"] = "1"
	useRunner(t, f)

	out := mustRun(t, "sync", "status", "-c", cfgPath)
	if !strings.Contains(out, "x/skills") || !strings.Contains(out, "dist-skills") {
		t.Errorf("status output:\n%s", out)
	}
	fields := strings.Fields(strings.Split(out, "\n")[1])
	if len(fields) < 4 || fields[2] != "2" || fields[3] != "1" {
		t.Errorf("ahead/behind row = %v", fields)
	}
}

func TestSyncPush(t *testing.T) {
	cfgPath, _ := writeConfig(t, oneSubtree)
	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, "x", "skills"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(repo)

	f := syncRunner()
	f.replies["log --oneline storytree/dist-skills..HEAD -- x/skills"] = "abc123 update skill"
	useRunner(t, f)

	out := mustRun(t, "sync", "push", "-c", cfgPath)
	if !strings.Contains(out, "pushed") || !strings.Contains(out, "1/1 subtrees ok") {
		t.Errorf("push output:\n%s", out)
	}
	found := false
	for _, c := range f.calls {
		if c == "subtree push --prefix=x/skills storytree dist-skills --rejoin" {
			found = true
		}
	}
	if !found {
		t.Errorf("subtree push not run; calls = %v", f.calls)
	}
}

func TestSyncPush_DryRunDoesNotPush(t *testing.T) {
	cfgPath, _ := writeConfig(t, oneSubtree)
	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, "x", "skills"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(repo)

	f := syncRunner()
	f.replies["log --oneline storytree/dist-skills..HEAD -- x/skills"] = "abc123 update skill"
	useRunner(t, f)

	out := mustRun(t, "sync", "push", "--dry-run", "-c", cfgPath)
	if !strings.Contains(out, "would-sync") {
		t.Errorf("dry-run output:\n%s", out)
	}
	for _, c := range f.calls {
		if strings.HasPrefix(c, "subtree push") {
			t.Errorf("dry run executed %q", c)
		}
	}
}

func TestSyncPush_RemoteMissing(t *testing.T) {
	cfgPath, _ := writeConfig(t, oneSubtree)
	f := syncRunner()
	f.replies["remote"] = "origin"
	useRunner(t, f)

	_, err := run(t, "sync", "push", "-c", cfgPath)
	if !errors.Is(err, subtree.ErrRemoteMissing) {
		t.Errorf("err = %v, want ErrRemoteMissing", err)
	}
}

func TestSyncPull_BadStrategy(t *testing.T) {
	cfgPath, _ := writeConfig(t, oneSubtree)
	useRunner(t, syncRunner())
	if _, err := run(t, "sync", "pull", "--strategy", "theirs", "-c", cfgPath); err == nil {
		t.Error("expected unknown strategy error")
	}
}

func TestSyncPull_UpToDate(t *testing.T) {
	cfgPath, _ := writeConfig(t, oneSubtree)
	f := syncRunner()
	useRunner(t, f)

	out := mustRun(t, "sync", "pull", "-c", cfgPath)
	if !strings.Contains(out, "up-to-date") {
		t.Errorf("pull output:\n%s", out)
	}
	for _, c := range f.calls {
		if strings.HasPrefix(c, "subtree pull") {
			t.Errorf("up-to-date pull executed %q", c)
		}
	}
}
