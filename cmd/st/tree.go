package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/storytree/internal/story"
	"github.com/zulandar/storytree/internal/tree"
	"github.com/zulandar/storytree/internal/workflow"
)

func newTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Tree display and integrity commands",
	}

	cmd.AddCommand(newTreeShowCmd())
	cmd.AddCommand(newTreeOrphansCmd())
	cmd.AddCommand(newTreeHealthCmd())
	cmd.AddCommand(newTreeValidateCmd())
	cmd.AddCommand(newTreeRepairCmd())
	cmd.AddCommand(newTreeRepairsCmd())
	return cmd
}

func newTreeShowCmd() *cobra.Command {
	var (
		configPath string
		respond    bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the story tree",
		Long: `Prints the tree in lineage order. --stage, --status and --terminus take
comma separated keys and narrow their category; a story is shown when its
stage matches and its status or terminus matches. Ancestors of shown stories
are printed in parentheses for context.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := tree.ParseViewConfig(respond, func(name string) (string, bool) {
				if !cmd.Flags().Changed(name) {
					return "", false
				}
				v, _ := cmd.Flags().GetString(name)
				return v, true
			})
			if err != nil {
				return err
			}
			return runTreeShow(cmd, configPath, cfg)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().String("stage", "", "stages to show")
	cmd.Flags().String("status", "", "statuses to show (ready or holds)")
	cmd.Flags().String("terminus", "", "termini to show (active for none)")
	cmd.Flags().BoolVar(&respond, "respond", false, "show escalated and shipped stories only")
	return cmd
}

func runTreeShow(cmd *cobra.Command, configPath string, cfg tree.ViewConfig) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	t, err := story.Load(gormDB)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	rows := tree.Rows(t, tree.Filter(t, cfg))
	if len(rows) == 0 {
		fmt.Fprintln(out, "No stories match the filter.")
		return nil
	}
	for _, r := range rows {
		line := fmt.Sprintf("%s [%s] %s", r.Node.ID, r.Node.Effective(), r.Node.Feature)
		if r.Faded {
			line = "(" + line + ")"
		}
		fmt.Fprintf(out, "%s%s\n", strings.Repeat("  ", r.Level), line)
	}
	return nil
}

// orphanView is the JSON shape of an orphaned story.
type orphanView struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Stage          string  `json:"stage"`
	Status         string  `json:"status"`
	Terminus       *string `json:"terminus"`
	ExpectedParent string  `json:"expected_parent,omitempty"`
}

func newTreeOrphansCmd() *cobra.Command {
	var (
		configPath string
		idsOnly    bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List stories detached from the root",
		Long:  "Lists stories with no ancestor path. Exits 1 when any are found.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTreeOrphans(cmd, configPath, idsOnly, asJSON)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&idsOnly, "ids-only", false, "print only story IDs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func runTreeOrphans(cmd *cobra.Command, configPath string, idsOnly, asJSON bool) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	orphans, err := story.FindOrphans(gormDB)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	views := make([]orphanView, len(orphans))
	for i, n := range orphans {
		parent, _ := tree.ImpliedParent(n.ID)
		views[i] = orphanView{
			ID:             n.ID,
			Title:          n.Feature,
			Stage:          n.Stage,
			Status:         n.Status,
			Terminus:       n.Terminus,
			ExpectedParent: parent,
		}
	}

	switch {
	case asJSON && idsOnly:
		ids := make([]string, len(views))
		for i, v := range views {
			ids[i] = v.ID
		}
		if err := printJSON(out, ids); err != nil {
			return err
		}
	case asJSON:
		if err := printJSON(out, map[string]any{"count": len(views), "orphans": views}); err != nil {
			return err
		}
	case idsOnly:
		for _, v := range views {
			fmt.Fprintln(out, v.ID)
		}
	case len(views) == 0:
		fmt.Fprintln(out, "No orphaned stories.")
	default:
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tEXPECTED PARENT\tTITLE")
		for _, v := range views {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.ID,
				workflow.EffectiveStatus(v.Stage, v.Status, v.Terminus),
				orDash(v.ExpectedParent), truncate(v.Title, 60))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d orphaned stories\n", len(views))
	}

	if len(views) > 0 {
		return fmt.Errorf("%d orphaned stories: %w", len(views), errIssuesFound)
	}
	return nil
}

func newTreeHealthCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report tree statistics and integrity issues",
		Long:  "Prints tree statistics and every integrity issue. Exits 1 when issues are found.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTreeHealth(cmd, configPath, asJSON)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func runTreeHealth(cmd *cobra.Command, configPath string, asJSON bool) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	r, err := story.Health(gormDB)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		if err := printJSON(out, r); err != nil {
			return err
		}
	} else {
		s := r.Stats
		fmt.Fprintf(out, "Tree health: %s\n", r.Status)
		fmt.Fprintf(out, "Stories:       %d\n", s.TotalNodes)
		fmt.Fprintf(out, "Root children: %d\n", s.RootChildren)
		fmt.Fprintf(out, "Max depth:     %d\n", s.MaxDepth)
		fmt.Fprintf(out, "Needs review:  %d\n", s.NeedsReview)
		writeCounts(out, "By stage", s.ByStage)
		writeCounts(out, "By status", s.ByStatus)
		writeCounts(out, "By terminus", s.ByTerminus)
		writeReport(out, r.Issues)
	}

	if !r.Healthy() {
		return fmt.Errorf("%d integrity issues: %w", r.TotalIssues, errIssuesFound)
	}
	return nil
}

func writeCounts(out io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(out, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-14s %d\n", k, counts[k])
	}
}

func writeReport(out io.Writer, r tree.Report) {
	if r.Healthy() {
		fmt.Fprintln(out, "No integrity issues.")
		return
	}
	fmt.Fprintf(out, "\n%d integrity issues\n", r.Total())
	for _, c := range r.Categories() {
		if len(c.Issues) == 0 {
			continue
		}
		fmt.Fprintf(out, "%s (%d):\n", c.Name, len(c.Issues))
		for _, is := range c.Issues {
			line := "  " + is.ID
			if is.Reason != "" {
				line += ": " + is.Reason
			}
			if is.ExpectedParent != "" || is.ActualParent != "" {
				line += fmt.Sprintf(" (expected parent %s, actual %s)", orDash(is.ExpectedParent), orDash(is.ActualParent))
			}
			fmt.Fprintln(out, line)
		}
	}
}

func newTreeValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check closure-table integrity without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			r, err := story.ValidateTree(gormDB)
			if err != nil {
				return err
			}
			writeReport(cmd.OutOrStdout(), r)
			if !r.Healthy() {
				return fmt.Errorf("%d integrity issues: %w", r.Total(), errIssuesFound)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newTreeRepairCmd() *cobra.Command {
	var (
		configPath string
		parent     string
		reason     string
	)

	cmd := &cobra.Command{
		Use:   "repair <id>",
		Short: "Reattach an orphaned story",
		Long: `Writes the missing closure rows that attach an orphan (and its subtree)
below --parent. Without --parent the parent implied by the dotted ID is used.
Every repair is recorded with its reason.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTreeRepair(cmd, configPath, args[0], parent, reason)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&parent, "parent", "", "parent to attach under")
	cmd.Flags().StringVar(&reason, "reason", "", "why the repair is needed (required)")
	cmd.MarkFlagRequired("reason")
	return cmd
}

func runTreeRepair(cmd *cobra.Command, configPath, id, parent, reason string) error {
	if parent == "" {
		p, ok := tree.ImpliedParent(id)
		if !ok {
			return fmt.Errorf("cannot derive a parent for %q: pass --parent", id)
		}
		parent = p
	}
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	n, err := story.RepairOrphan(gormDB, id, parent, reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Attached %s under %s (%d paths written)\n", id, parent, n)
	return nil
}

func newTreeRepairsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "repairs [id]",
		Short: "Show the repair log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			logs, err := story.RepairHistory(gormDB, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(logs) == 0 {
				fmt.Fprintln(out, "No repairs recorded.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tSTORY\tACTION\tDETAIL\tREASON")
			for _, l := range logs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.CreatedAt.Format("2006-01-02 15:04"),
					l.StoryID, l.Action, truncate(l.Detail, 40), truncate(l.Reason, 40))
			}
			return w.Flush()
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
