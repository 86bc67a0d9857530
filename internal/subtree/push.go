package subtree

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// PushOpts controls Push and PushAll.
type PushOpts struct {
	Only     string   // prefix filter, see Select
	Force    bool     // push without change detection
	DryRun   bool     // report what would be pushed
	Retry    bool     // pull and retry after a rejected push
	Strategy Strategy // conflict handling during a retry pull
	Stash    bool     // stash uncommitted work around the batch
	Parallel bool     // push up to workers subtrees at once
}

// PullOpts controls Pull and PullAll.
type PullOpts struct {
	Only     string
	Force    bool
	DryRun   bool
	Strategy Strategy
	Stash    bool
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > n {
		return string(r[:n])
	}
	return string(r)
}

// Push splits the prefix and pushes it to its branch with --rejoin. A
// rejected push is retried once after pulling the diverged commits when
// opts.Retry is set.
func (s *Syncer) Push(ctx context.Context, st Subtree, opts PushOpts) Result {
	res := Result{Subtree: st}
	if !s.exists(st) {
		res.Outcome, res.Message = OutcomeSkipped, "not found"
		return res
	}
	if opts.DryRun {
		if changed, reason := s.HasLocalChanges(ctx, st); changed {
			res.Outcome, res.Message = OutcomeWould, "would push ("+reason+")"
		} else {
			res.Outcome, res.Message = OutcomeUpToDate, reason
		}
		return res
	}

	args := []string{"subtree", "push", "--prefix=" + st.Prefix, s.remote, st.Branch, "--rejoin"}
	out, err := s.git(ctx, args...)
	if err == nil {
		if strings.Contains(strings.ToLower(out), "up-to-date") {
			res.Outcome, res.Message = OutcomeUpToDate, "up to date"
		} else {
			res.Outcome, res.Message = OutcomePushed, "pushed"
		}
		return res
	}

	if !strings.Contains(strings.ToLower(output(err)), "rejected") {
		res.Outcome, res.Message = OutcomeFailed, truncate(err.Error(), 120)
		return res
	}
	if !opts.Retry {
		res.Outcome, res.Message = OutcomeRejected, "rejected (diverged); retry to recover"
		return res
	}

	s.log.Info("push rejected, pulling diverged changes", "prefix", st.Prefix, "branch", st.Branch)
	if msg, ok := s.recoverRejected(ctx, st, opts.Strategy); !ok {
		res.Outcome, res.Message = OutcomeRejected, "rejected ("+msg+")"
		return res
	}
	if _, err := s.git(ctx, args...); err != nil {
		res.Outcome, res.Message = OutcomeFailed, "push failed after recovery: "+truncate(err.Error(), 80)
		return res
	}
	res.Outcome, res.Message = OutcomeRecovered, "recovered and pushed"
	return res
}

// recoverRejected pulls the remote branch into the prefix so a rejected push can be
// retried.
func (s *Syncer) recoverRejected(ctx context.Context, st Subtree, strategy Strategy) (string, bool) {
	dirty, err := s.HasUncommittedChanges(ctx, st.Prefix)
	if err != nil {
		return err.Error(), false
	}
	if dirty {
		return "uncommitted changes in prefix", false
	}
	_, err = s.git(ctx, "subtree", "pull", "--prefix="+st.Prefix, s.remote, st.Branch, "--squash")
	if err == nil {
		return "pulled diverged changes", true
	}
	if len(s.ConflictedFiles(ctx)) == 0 {
		return "pull failed: " + truncate(err.Error(), 80), false
	}
	msg, rerr := s.ResolveConflicts(ctx, strategy)
	if rerr != nil {
		return "pull conflicts: " + msg, false
	}
	return msg, true
}

// Pull merges the remote branch into the prefix with --squash, settling
// conflicts with strategy.
func (s *Syncer) Pull(ctx context.Context, st Subtree, opts PullOpts) Result {
	res := Result{Subtree: st}
	if !s.exists(st) {
		res.Outcome, res.Message = OutcomeSkipped, "not found"
		return res
	}
	if opts.DryRun {
		if changed, reason := s.HasRemoteChanges(ctx, st); changed {
			res.Outcome, res.Message = OutcomeWould, "would pull ("+reason+")"
		} else {
			res.Outcome, res.Message = OutcomeUpToDate, reason
		}
		return res
	}

	out, err := s.git(ctx, "subtree", "pull", "--prefix="+st.Prefix, s.remote, st.Branch, "--squash")
	if err == nil {
		lower := strings.ToLower(out)
		if strings.Contains(lower, "up to date") || strings.Contains(lower, "up-to-date") {
			res.Outcome, res.Message = OutcomeUpToDate, "up to date"
		} else {
			res.Outcome, res.Message = OutcomePulled, "pulled"
		}
		return res
	}

	conflicts := s.ConflictedFiles(ctx)
	if len(conflicts) == 0 {
		res.Outcome, res.Message = OutcomeFailed, truncate(err.Error(), 120)
		return res
	}
	msg, rerr := s.ResolveConflicts(ctx, opts.Strategy)
	if rerr != nil {
		res.Outcome, res.Message, res.Conflicts = OutcomeConflict, msg, conflicts
		return res
	}
	res.Outcome, res.Message = OutcomeResolved, msg
	return res
}

// withStash runs fn with uncommitted work stashed when enabled, restoring
// it afterwards.
func (s *Syncer) withStash(ctx context.Context, enabled bool, label string, fn func()) error {
	stashed := false
	if enabled {
		dirty, err := s.HasUncommittedChanges(ctx, "")
		if err != nil {
			return err
		}
		if dirty {
			if stashed, err = s.Stash(ctx, label+" auto-stash"); err != nil {
				return err
			}
		}
	}
	fn()
	if stashed {
		if err := s.PopStash(ctx); err != nil {
			return fmt.Errorf("%w; your changes are still in the stash, run git stash pop", err)
		}
	}
	return nil
}

func failures(results []Result) error {
	n := 0
	for _, r := range results {
		if !r.OK() {
			n++
		}
	}
	if n > 0 {
		return fmt.Errorf("%w: %d subtree(s)", ErrFailed, n)
	}
	return nil
}

// PushAll pushes every selected subtree that has local changes. Up-to-date
// subtrees are reported without pushing. A non-nil error is returned when
// preflight fails or any subtree did not end in a good state.
func (s *Syncer) PushAll(ctx context.Context, opts PushOpts) ([]Result, error) {
	if err := s.preflight(ctx); err != nil {
		return nil, err
	}
	selected, err := s.Select(opts.Only)
	if err != nil {
		return nil, err
	}

	var pending []Subtree
	var results []Result
	for _, st := range selected {
		if opts.Force {
			pending = append(pending, st)
			continue
		}
		if changed, reason := s.HasLocalChanges(ctx, st); changed {
			s.log.Debug("subtree has local changes", "prefix", st.Prefix, "reason", reason)
			pending = append(pending, st)
		} else {
			results = append(results, Result{Subtree: st, Outcome: OutcomeUpToDate, Message: reason})
		}
	}
	if len(pending) == 0 {
		return results, nil
	}

	pushed := make([]Result, len(pending))
	err = s.withStash(ctx, opts.Stash && !opts.DryRun, "push", func() {
		if !opts.Parallel {
			for i, st := range pending {
				pushed[i] = s.Push(ctx, st, opts)
				s.logResult("push", pushed[i])
			}
			return
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for i, st := range pending {
			g.Go(func() error {
				pushed[i] = s.Push(gctx, st, opts)
				s.logResult("push", pushed[i])
				return nil
			})
		}
		_ = g.Wait()
	})
	results = append(results, pushed...)
	if err != nil {
		return results, err
	}
	return results, failures(results)
}

// PullAll pulls every selected subtree whose remote branch moved.
func (s *Syncer) PullAll(ctx context.Context, opts PullOpts) ([]Result, error) {
	if err := s.preflight(ctx); err != nil {
		return nil, err
	}
	selected, err := s.Select(opts.Only)
	if err != nil {
		return nil, err
	}

	var pending []Subtree
	var results []Result
	for _, st := range selected {
		if opts.Force {
			pending = append(pending, st)
			continue
		}
		if changed, reason := s.HasRemoteChanges(ctx, st); changed {
			pending = append(pending, st)
		} else {
			results = append(results, Result{Subtree: st, Outcome: OutcomeUpToDate, Message: reason})
		}
	}
	if len(pending) == 0 {
		return results, nil
	}

	err = s.withStash(ctx, opts.Stash && !opts.DryRun, "pull", func() {
		for _, st := range pending {
			r := s.Pull(ctx, st, opts)
			s.logResult("pull", r)
			results = append(results, r)
			// A conflicted merge leaves the index dirty for the next subtree.
			if r.Outcome == OutcomeConflict {
				return
			}
		}
	})
	if err != nil {
		return results, err
	}
	return results, failures(results)
}

func (s *Syncer) logResult(op string, r Result) {
	attrs := []any{"op", op, "prefix", r.Subtree.Prefix, "branch", r.Subtree.Branch, "outcome", string(r.Outcome)}
	if r.OK() {
		s.log.Info("subtree synced", attrs...)
		return
	}
	s.log.Warn("subtree sync failed", append(attrs, "message", r.Message)...)
}
