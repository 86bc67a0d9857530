package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/storytree/internal/models"
	"github.com/zulandar/storytree/internal/story"
	"github.com/zulandar/storytree/internal/workflow"
)

func newStoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "story",
		Short: "Story management commands",
	}

	cmd.AddCommand(newStoryShowCmd())
	cmd.AddCommand(newStoryListCmd())
	cmd.AddCommand(newStoryChildrenCmd())
	cmd.AddCommand(newStoryAncestorsCmd())
	cmd.AddCommand(newStoryCreateCmd())
	cmd.AddCommand(newStoryTransitionCmd())
	cmd.AddCommand(newStoryMenuCmd())
	return cmd
}

func stateOf(n *models.StoryNode) workflow.State {
	return workflow.State{Stage: n.Stage, Status: n.Status, Terminus: n.Terminus}
}

func newStoryShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show story details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoryShow(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runStoryShow(cmd *cobra.Command, configPath, id string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	n, err := story.Get(gormDB, id)
	if err != nil {
		return err
	}
	ancestors, err := story.Ancestors(gormDB, id)
	if err != nil {
		return err
	}
	children, err := story.Children(gormDB, id)
	if err != nil {
		return err
	}
	descendants, err := story.DescendantCount(gormDB, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", n.ID)
	fmt.Fprintf(out, "Title:       %s\n", n.Feature)
	fmt.Fprintf(out, "Status:      %s\n", workflow.EffectiveStatus(n.Stage, n.Status, n.Terminus))
	fmt.Fprintf(out, "Stage:       %s\n", n.Stage)
	fmt.Fprintf(out, "Hold:        %s\n", n.Status)
	fmt.Fprintf(out, "Terminus:    %s\n", ptrOrDash(n.Terminus))
	fmt.Fprintf(out, "Review:      %v\n", n.HumanReview)
	if n.Capacity != nil {
		fmt.Fprintf(out, "Capacity:    %d (%d children)\n", *n.Capacity, len(children))
	}
	if len(ancestors) > 0 {
		fmt.Fprintf(out, "Ancestors:   %s\n", strings.Join(ancestors, " > "))
	}
	fmt.Fprintf(out, "Children:    %d\n", len(children))
	fmt.Fprintf(out, "Descendants: %d\n", descendants)
	if n.ProjectPath != "" {
		fmt.Fprintf(out, "Project:     %s\n", n.ProjectPath)
	}
	fmt.Fprintf(out, "Updated:     %s\n", n.UpdatedAt.Format("2006-01-02 15:04"))

	for _, sec := range []struct{ name, body string }{
		{"Description", n.Description},
		{"Story", n.Story},
		{"Success Criteria", n.SuccessCriteria},
		{"Notes", n.Notes},
	} {
		if sec.body != "" {
			fmt.Fprintf(out, "\n%s:\n%s\n", sec.name, sec.body)
		}
	}
	return nil
}

func newStoryListCmd() *cobra.Command {
	var (
		configPath string
		stage      string
		status     string
		terminus   string
		review     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stories",
		Long:  "Lists stories with optional filters. --terminus active selects stories still in the pipeline.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := story.ListFilters{Stage: stage, Status: status, Terminus: terminus}
			if cmd.Flags().Changed("review") {
				f.HumanReview = &review
			}
			return runStoryList(cmd, configPath, f)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&stage, "stage", "", "filter by stage")
	cmd.Flags().StringVar(&status, "status", "", "filter by hold status")
	cmd.Flags().StringVar(&terminus, "terminus", "", "filter by terminus (or active)")
	cmd.Flags().BoolVar(&review, "review", false, "filter by human review flag")
	return cmd
}

func runStoryList(cmd *cobra.Command, configPath string, filters story.ListFilters) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	nodes, err := story.List(gormDB, filters)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(nodes) == 0 {
		fmt.Fprintln(out, "No stories found.")
		return nil
	}
	if err := writeNodeTable(out, nodes); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d stories\n", len(nodes))
	return nil
}

func writeNodeTable(out io.Writer, nodes []models.StoryNode) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTAGE\tREVIEW\tTITLE")
	for _, n := range nodes {
		review := ""
		if n.HumanReview {
			review = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			n.ID,
			workflow.EffectiveStatus(n.Stage, n.Status, n.Terminus),
			n.Stage,
			orDash(review),
			truncate(n.Feature, 60),
		)
	}
	return w.Flush()
}

func newStoryChildrenCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "children <id>",
		Short: "List the direct children of a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			nodes, err := story.Children(gormDB, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(nodes) == 0 {
				fmt.Fprintf(out, "%s has no children.\n", args[0])
				return nil
			}
			return writeNodeTable(out, nodes)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newStoryAncestorsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "ancestors <id>",
		Short: "List the ancestors of a story, root first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			ids, err := story.Ancestors(gormDB, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newStoryCreateCmd() *cobra.Command {
	var (
		configPath string
		opts       story.CreateOpts
		capacity   int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new story",
		Long:  "Creates a story under --parent (default root). Without --id the next free child segment is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("capacity") {
				opts.Capacity = &capacity
			}
			return runStoryCreate(cmd, configPath, opts)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.Feature, "title", "", "story title (required)")
	cmd.Flags().StringVar(&opts.ParentID, "parent", "", "parent story ID (default root)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "explicit story ID")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Story, "story", "", "user story text")
	cmd.Flags().StringVar(&opts.SuccessCriteria, "criteria", "", "success criteria as - [ ] checkboxes")
	cmd.Flags().StringVar(&opts.Stage, "stage", "", "initial stage (default concept)")
	cmd.Flags().StringVar(&opts.ProjectPath, "project", "", "project path")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "maximum number of children")
	cmd.MarkFlagRequired("title")
	return cmd
}

func runStoryCreate(cmd *cobra.Command, configPath string, opts story.CreateOpts) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	n, err := story.Create(gormDB, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created story %s (%s)\n", n.ID, n.Stage)
	return nil
}

func newStoryTransitionCmd() *cobra.Command {
	var (
		configPath string
		note       string
	)

	cmd := &cobra.Command{
		Use:   "transition <id> <target>",
		Short: "Move a story to a stage, hold or terminus",
		Long: `Moves a story to target. A stage clears any hold and terminus, a hold
keeps the stage, and a terminus keeps the stage and clears the hold.
Every transition appends a timestamped entry to the story notes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoryTransition(cmd, configPath, args[0], args[1], note)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&note, "note", "m", "", "note recorded with the transition")
	return cmd
}

func runStoryTransition(cmd *cobra.Command, configPath, id, target, note string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	c, err := story.Transition(gormDB, id, target, note)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s -> %s (%s)\n", c.ID, c.From.Effective(), c.To.Effective(), c.Category)
	fmt.Fprintln(out, c.Entry)
	return nil
}

func newStoryMenuCmd() *cobra.Command {
	var (
		configPath string
		posture    string
	)

	cmd := &cobra.Command{
		Use:   "menu <id>",
		Short: "Show the suggested next states for a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			n, err := story.Get(gormDB, args[0])
			if err != nil {
				return err
			}
			p := workflow.ParsePosture(posture)
			out := cmd.OutOrStdout()
			s := stateOf(n)
			fmt.Fprintf(out, "%s is %s (%s posture)\n", n.ID, s.Effective(), p)
			menu := workflow.Menu(s, p)
			if len(menu) == 0 {
				fmt.Fprintln(out, "No suggested transitions.")
				return nil
			}
			for _, target := range menu {
				cat, _ := workflow.Classify(target)
				note := ""
				if workflow.NoteRequired(target) {
					note = " (note required)"
				}
				fmt.Fprintf(out, "  %-12s %s%s\n", target, cat, note)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&posture, "posture", "filter", "menu posture: filter or respond")
	return cmd
}
