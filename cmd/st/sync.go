package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/storytree/internal/subtree"
)

const gitTimeout = 5 * time.Minute

// newRunner builds the git runner used by sync commands; tests replace it.
var newRunner = func() subtree.Runner { return subtree.NewExecRunner(gitTimeout) }

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Git subtree synchronization with the distribution remote",
	}

	cmd.AddCommand(newSyncStatusCmd())
	cmd.AddCommand(newSyncPushCmd())
	cmd.AddCommand(newSyncPullCmd())
	return cmd
}

func syncerFromConfig(cmd *cobra.Command, configPath string) (*subtree.Syncer, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	return subtree.New(cfg.Sync, repoRoot(), newRunner(), logger), nil
}

func newSyncStatusCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show commits ahead of and behind each subtree branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := syncerFromConfig(cmd, configPath)
			if err != nil {
				return err
			}
			statuses := s.Status(commandContext(cmd))
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, statuses)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PREFIX\tBRANCH\tAHEAD\tBEHIND\tNOTE")
			for _, st := range statuses {
				note := st.Error
				if !st.Present {
					note = "prefix missing locally"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", st.Subtree.Prefix, st.Subtree.Branch, st.Ahead, st.Behind, orDash(note))
			}
			return w.Flush()
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newSyncPushCmd() *cobra.Command {
	var (
		configPath string
		opts       subtree.PushOpts
		strategy   string
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push changed subtrees to their distribution branches",
		Long: `Pushes every subtree with local changes. A rejected push is retried
after pulling the remote commits (--retry); conflicts during that pull are
settled by --strategy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := subtree.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			opts.Strategy = st
			s, err := syncerFromConfig(cmd, configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
			defer stop()
			results, err := s.PushAll(ctx, opts)
			writeResults(cmd.OutOrStdout(), results)
			return err
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.Only, "only", "", "sync only subtrees whose prefix contains this")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "push without change detection")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show what would be pushed")
	cmd.Flags().BoolVar(&opts.Retry, "retry", true, "pull and retry once after a rejected push")
	cmd.Flags().BoolVar(&opts.Stash, "stash", false, "stash uncommitted changes around the push")
	cmd.Flags().BoolVar(&opts.Parallel, "parallel", false, "push subtrees concurrently (sync.workers at a time)")
	cmd.Flags().StringVar(&strategy, "strategy", "abort", "conflict strategy: abort, local or remote")
	return cmd
}

func newSyncPullCmd() *cobra.Command {
	var (
		configPath string
		opts       subtree.PullOpts
		strategy   string
	)

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pull distribution branch changes into the subtrees",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := subtree.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			opts.Strategy = st
			s, err := syncerFromConfig(cmd, configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
			defer stop()
			results, err := s.PullAll(ctx, opts)
			writeResults(cmd.OutOrStdout(), results)
			return err
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.Only, "only", "", "sync only subtrees whose prefix contains this")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "pull without change detection")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show what would be pulled")
	cmd.Flags().BoolVar(&opts.Stash, "stash", false, "stash uncommitted changes around the pull")
	cmd.Flags().StringVar(&strategy, "strategy", "abort", "conflict strategy: abort, local or remote")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeResults(out io.Writer, results []subtree.Result) {
	if len(results) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PREFIX\tBRANCH\tOUTCOME\tMESSAGE")
	ok := 0
	for _, r := range results {
		if r.OK() {
			ok++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Subtree.Prefix, r.Subtree.Branch, r.Outcome, orDash(truncate(r.Message, 60)))
		for _, f := range r.Conflicts {
			fmt.Fprintf(w, "\t\t\tconflict: %s\n", f)
		}
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d/%d subtrees ok\n", ok, len(results))
}
