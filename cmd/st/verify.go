package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/storytree/internal/story"
)

func newVerifyCmd() *cobra.Command {
	var (
		configPath string
		hold       bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "verify <id> <stage> [notes]",
		Short: "Record a verification outcome for a story",
		Long: `Advances a story to stage with status ready and review cleared.
With --hold the stage is kept and the story is escalated for human review.
Notes are appended with a [Verification] timestamp.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes := ""
			if len(args) == 3 {
				notes = args[2]
			}
			return runVerify(cmd, configPath, args[0], args[1], notes, hold, asJSON)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&hold, "hold", false, "escalate for human review instead of advancing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func runVerify(cmd *cobra.Command, configPath, id, stage, notes string, hold, asJSON bool) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	r, err := story.Verify(gormDB, id, stage, notes, hold)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, r)
	}
	if r.HoldSet {
		fmt.Fprintf(out, "%s held at %s for human review\n", r.ID, r.OldStage)
	} else {
		fmt.Fprintf(out, "%s: %s -> %s\n", r.ID, r.OldStage, r.NewStage)
	}
	if r.NotesAdded {
		fmt.Fprintln(out, "Notes recorded.")
	}
	return nil
}

func newCriteriaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "criteria",
		Short: "Success criteria checkbox commands",
	}

	cmd.AddCommand(newCriteriaMarkCmd())
	cmd.AddCommand(newCriteriaSummaryCmd())
	return cmd
}

func newCriteriaMarkCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "mark <id> <indices>",
		Short: "Tick success criteria checkboxes",
		Long:  "Ticks the 1-based checkbox indices, given comma separated (e.g. 1,3).",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			indices, err := story.ParseIndices(args[1])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			r, err := story.MarkCriteria(gormDB, args[0], indices)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, r)
			}
			fmt.Fprintf(out, "%s: marked %v of %d criteria\n", r.ID, r.Marked, r.Total)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newCriteriaSummaryCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "summary <id>",
		Short: "Show verification progress for a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			s, err := story.Summary(gormDB, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, s)
			}
			fmt.Fprintf(out, "%s: %s\n", s.ID, s.Feature)
			fmt.Fprintf(out, "Criteria: %d/%d checked\n", s.Checked, s.Total)
			if s.Complete {
				fmt.Fprintln(out, "Verification complete.")
			} else {
				fmt.Fprintf(out, "%d remaining.\n", s.Unchecked)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
