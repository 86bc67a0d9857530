// Package subtree keeps the git subtrees of a consuming repository in step
// with their branches on the distribution remote.
package subtree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zulandar/storytree/internal/config"
	"github.com/zulandar/storytree/internal/logging"
)

var (
	ErrRemoteMissing = errors.New("subtree: remote not configured")
	ErrInProgress    = errors.New("subtree: git operation in progress")
	ErrUnknown       = errors.New("subtree: no such subtree")
	ErrFailed        = errors.New("subtree: sync failed")
)

// Subtree maps a directory prefix to its branch on the remote.
type Subtree struct {
	Prefix string
	Branch string
}

// Strategy decides how merge conflicts from a subtree pull are settled.
type Strategy string

const (
	StrategyAbort  Strategy = "abort"
	StrategyLocal  Strategy = "local"
	StrategyRemote Strategy = "remote"
)

// ParseStrategy accepts abort, local or remote; empty means abort.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyAbort:
		return StrategyAbort, nil
	case StrategyLocal, StrategyRemote:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("subtree: unknown strategy %q (want abort, local or remote)", s)
}

// Outcome classifies the result of pushing or pulling one subtree.
type Outcome string

const (
	OutcomePushed    Outcome = "pushed"
	OutcomePulled    Outcome = "pulled"
	OutcomeUpToDate  Outcome = "up-to-date"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeWould     Outcome = "would-sync"
	OutcomeRecovered Outcome = "recovered"
	OutcomeResolved  Outcome = "resolved"
	OutcomeRejected  Outcome = "rejected"
	OutcomeConflict  Outcome = "conflict"
	OutcomeFailed    Outcome = "failed"
)

// Result reports what happened to one subtree.
type Result struct {
	Subtree   Subtree
	Outcome   Outcome
	Message   string
	Conflicts []string
}

// OK reports whether the subtree ended in a good state.
func (r Result) OK() bool {
	switch r.Outcome {
	case OutcomeRejected, OutcomeConflict, OutcomeFailed:
		return false
	}
	return true
}

// Syncer runs subtree operations in one repository.
type Syncer struct {
	runner   Runner
	dir      string
	remote   string
	workers  int
	subtrees []Subtree
	log      *slog.Logger
}

// New builds a Syncer for the repository at dir.
func New(cfg config.SyncConfig, dir string, runner Runner, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Syncer{
		runner:  runner,
		dir:     dir,
		remote:  cfg.Remote,
		workers: cfg.Workers,
		log:     logger.With("component", "subtree", "remote", cfg.Remote),
	}
	if s.workers < 1 {
		s.workers = 1
	}
	for _, st := range cfg.Subtrees {
		s.subtrees = append(s.subtrees, Subtree{Prefix: st.Prefix, Branch: st.Branch})
	}
	return s
}

// Subtrees returns the configured subtrees.
func (s *Syncer) Subtrees() []Subtree {
	return append([]Subtree(nil), s.subtrees...)
}

// Select returns the subtrees whose prefix equals or contains name, or all
// of them when name is empty.
func (s *Syncer) Select(name string) ([]Subtree, error) {
	if name == "" {
		return s.Subtrees(), nil
	}
	var out []Subtree
	for _, st := range s.subtrees {
		if st.Prefix == name || strings.Contains(st.Prefix, name) {
			out = append(out, st)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return out, nil
}

func (s *Syncer) git(ctx context.Context, args ...string) (string, error) {
	return s.runner.Run(ctx, s.dir, args...)
}

func (s *Syncer) remoteRef(st Subtree) string { return s.remote + "/" + st.Branch }

func (s *Syncer) exists(st Subtree) bool {
	_, err := os.Stat(filepath.Join(s.dir, filepath.FromSlash(st.Prefix)))
	return err == nil
}

// CheckRemote fails with ErrRemoteMissing unless the remote is configured.
func (s *Syncer) CheckRemote(ctx context.Context) error {
	out, err := s.git(ctx, "remote")
	if err != nil {
		return fmt.Errorf("subtree: list remotes: %w", err)
	}
	for _, name := range strings.Fields(out) {
		if name == s.remote {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRemoteMissing, s.remote)
}

// OperationInProgress names a rebase, cherry-pick or merge that is underway,
// or returns "" when the repository is idle.
func (s *Syncer) OperationInProgress(ctx context.Context) (string, error) {
	gitDir, err := s.git(ctx, "rev-parse", "--git-dir")
	if err != nil {
		return "", fmt.Errorf("subtree: not a git repository: %w", err)
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(s.dir, gitDir)
	}
	checks := []struct{ path, op string }{
		{"rebase-merge", "rebase"},
		{"rebase-apply", "rebase"},
		{"CHERRY_PICK_HEAD", "cherry-pick"},
		{"MERGE_HEAD", "merge"},
	}
	for _, c := range checks {
		if _, err := os.Stat(filepath.Join(gitDir, c.path)); err == nil {
			return c.op, nil
		}
	}
	return "", nil
}

func (s *Syncer) preflight(ctx context.Context) error {
	op, err := s.OperationInProgress(ctx)
	if err != nil {
		return err
	}
	if op != "" {
		return fmt.Errorf("%w: %s (complete it or run git %s --abort)", ErrInProgress, op, op)
	}
	return s.CheckRemote(ctx)
}

func countLines(out string) int {
	n := 0
	for _, l := range strings.Split(out, "\n") {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}

// HasLocalChanges reports whether commits touching the prefix are missing
// from the remote branch. A missing remote branch counts as changed.
func (s *Syncer) HasLocalChanges(ctx context.Context, st Subtree) (bool, string) {
	_, _ = s.git(ctx, "fetch", s.remote, st.Branch)
	out, err := s.git(ctx, "log", "--oneline", s.remoteRef(st)+"..HEAD", "--", st.Prefix)
	if err != nil {
		return true, "remote branch not found"
	}
	if n := countLines(out); n > 0 {
		return true, fmt.Sprintf("%d commit(s)", n)
	}
	return false, "up to date"
}

// HasRemoteChanges reports whether the remote branch holds commits touching
// the prefix that HEAD lacks. A missing remote branch counts as unchanged.
func (s *Syncer) HasRemoteChanges(ctx context.Context, st Subtree) (bool, string) {
	_, _ = s.git(ctx, "fetch", s.remote, st.Branch)
	out, err := s.git(ctx, "log", "--oneline", "HEAD.."+s.remoteRef(st), "--", st.Prefix)
	if err != nil {
		return false, "remote branch not found"
	}
	if n := countLines(out); n > 0 {
		return true, fmt.Sprintf("%d commit(s)", n)
	}
	return false, "up to date"
}

// HasUncommittedChanges reports whether the working tree is dirty, limited
// to prefix when one is given.
func (s *Syncer) HasUncommittedChanges(ctx context.Context, prefix string) (bool, error) {
	args := []string{"status", "--porcelain"}
	if prefix != "" {
		args = append(args, "--", prefix)
	}
	out, err := s.git(ctx, args...)
	if err != nil {
		return false, fmt.Errorf("subtree: status: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// Stash stashes uncommitted changes under message and reports whether
// anything was stashed.
func (s *Syncer) Stash(ctx context.Context, message string) (bool, error) {
	out, err := s.git(ctx, "stash", "push", "-m", message)
	if err != nil {
		return false, fmt.Errorf("subtree: stash: %w", err)
	}
	return !strings.Contains(out, "No local changes"), nil
}

// PopStash restores the most recent stash.
func (s *Syncer) PopStash(ctx context.Context) error {
	if _, err := s.git(ctx, "stash", "pop"); err != nil {
		return fmt.Errorf("subtree: stash pop: %w", err)
	}
	return nil
}

// ConflictedFiles lists paths with unresolved merge conflicts.
func (s *Syncer) ConflictedFiles(ctx context.Context) []string {
	out, err := s.git(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil || out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func (s *Syncer) mergeInProgress(ctx context.Context) bool {
	_, err := s.git(ctx, "rev-parse", "--verify", "MERGE_HEAD")
	return err == nil
}

func (s *Syncer) abortMerge(ctx context.Context) {
	if s.mergeInProgress(ctx) {
		_, _ = s.git(ctx, "merge", "--abort")
	}
}

// ResolveConflicts settles an in-progress merge. Abort always leaves the
// merge undone and reports failure; local and remote check out every
// conflicted file from one side and commit the merge.
func (s *Syncer) ResolveConflicts(ctx context.Context, strategy Strategy) (string, error) {
	if strategy == StrategyAbort || strategy == "" {
		s.abortMerge(ctx)
		return "aborted", fmt.Errorf("%w: merge aborted", ErrFailed)
	}

	conflicts := s.ConflictedFiles(ctx)
	if len(conflicts) == 0 {
		return "no conflicts", nil
	}
	side := "--ours"
	if strategy == StrategyRemote {
		side = "--theirs"
	}
	for _, f := range conflicts {
		if _, err := s.git(ctx, "checkout", side, "--", f); err != nil {
			s.abortMerge(ctx)
			return "checkout failed: " + f, fmt.Errorf("%w: checkout %s: %v", ErrFailed, f, err)
		}
		if _, err := s.git(ctx, "add", f); err != nil {
			s.abortMerge(ctx)
			return "add failed: " + f, fmt.Errorf("%w: add %s: %v", ErrFailed, f, err)
		}
	}
	if _, err := s.git(ctx, "commit", "--no-edit"); err != nil {
		return "commit failed", fmt.Errorf("%w: commit merge: %v", ErrFailed, err)
	}
	return "resolved (" + string(strategy) + ")", nil
}

// SubtreeStatus is the ahead/behind count of one subtree against its
// remote branch.
type SubtreeStatus struct {
	Subtree Subtree `json:"subtree"`
	Present bool    `json:"present"`
	Ahead   int     `json:"ahead"`
	Behind  int     `json:"behind"`
	Error   string  `json:"error,omitempty"`
}

// Status fetches each subtree's branch and counts prefix commits on either
// side.
func (s *Syncer) Status(ctx context.Context) []SubtreeStatus {
	out := make([]SubtreeStatus, 0, len(s.subtrees))
	for _, st := range s.subtrees {
		ss := SubtreeStatus{Subtree: st, Present: s.exists(st)}
		if _, err := s.git(ctx, "fetch", s.remote, st.Branch); err != nil {
			ss.Error = "remote branch not found"
			out = append(out, ss)
			continue
		}
		var err error
		if ss.Ahead, err = s.count(ctx, s.remoteRef(st)+"..HEAD", st.Prefix); err == nil {
			ss.Behind, err = s.count(ctx, "HEAD.."+s.remoteRef(st), st.Prefix)
		}
		if err != nil {
			ss.Error = err.Error()
		}
		out = append(out, ss)
	}
	return out
}

func (s *Syncer) count(ctx context.Context, rng, prefix string) (int, error) {
	out, err := s.git(ctx, "rev-list", "--count", rng, "--", prefix)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("subtree: parse rev-list count %q: %w", out, err)
	}
	return n, nil
}
