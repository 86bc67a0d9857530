package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/storytree/internal/story"
	"github.com/zulandar/storytree/internal/tree"
)

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Board views of the story tree",
	}

	cmd.AddCommand(newViewKanbanCmd())
	cmd.AddCommand(newViewSwimlanesCmd())
	cmd.AddCommand(newViewHeatmapCmd())
	return cmd
}

// loadTreeCmd wraps a view that renders the loaded tree.
func loadTreeCmd(use, short string, render func(cmd *cobra.Command, t *tree.Tree, asJSON bool) error) *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			t, err := story.Load(gormDB)
			if err != nil {
				return err
			}
			return render(cmd, t, asJSON)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func cardIDs(nodes []*tree.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func newViewKanbanCmd() *cobra.Command {
	return loadTreeCmd("kanban", "Show stories as stage columns", func(cmd *cobra.Command, t *tree.Tree, asJSON bool) error {
		out := cmd.OutOrStdout()
		cols := tree.Kanban(t)
		if asJSON {
			m := make(map[string][]string, len(cols))
			for _, c := range cols {
				m[c.Name] = cardIDs(c.Cards)
			}
			return printJSON(out, m)
		}
		for _, c := range cols {
			fmt.Fprintf(out, "%s (%d)\n", strings.ToUpper(c.Name), len(c.Cards))
			for _, n := range c.Cards {
				fmt.Fprintf(out, "  %-10s %-12s %s\n", n.ID, n.Effective(), truncate(n.Feature, 50))
			}
		}
		return nil
	})
}

func newViewSwimlanesCmd() *cobra.Command {
	return loadTreeCmd("swimlanes", "Show a status by stage grid of story IDs", func(cmd *cobra.Command, t *tree.Tree, asJSON bool) error {
		out := cmd.OutOrStdout()
		lanes := tree.Swimlanes(t)
		if asJSON {
			m := make(map[string]map[string][]string, len(lanes))
			for _, l := range lanes {
				row := make(map[string][]string, len(l.Cells))
				for col, nodes := range l.Cells {
					row[col] = cardIDs(nodes)
				}
				m[l.Status] = row
			}
			return printJSON(out, m)
		}
		if len(lanes) == 0 {
			fmt.Fprintln(out, "No stories on the board.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "STATUS\t%s\n", strings.ToUpper(strings.Join(tree.KanbanColumns, "\t")))
		for _, l := range lanes {
			cells := make([]string, len(tree.KanbanColumns))
			for i, col := range tree.KanbanColumns {
				cells[i] = orDash(strings.Join(cardIDs(l.Cells[col]), ","))
			}
			fmt.Fprintf(w, "%s\t%s\n", l.Status, strings.Join(cells, "\t"))
		}
		return w.Flush()
	})
}

var heatGlyphs = []string{".", "░", "▒", "▓", "█"}

func newViewHeatmapCmd() *cobra.Command {
	return loadTreeCmd("heatmap", "Show story counts per status and stage", func(cmd *cobra.Command, t *tree.Tree, asJSON bool) error {
		out := cmd.OutOrStdout()
		h := tree.Heatmap(t)
		if asJSON {
			return printJSON(out, h)
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintf(w, "STATUS\t%s\tTOTAL\t\n", strings.ToUpper(strings.Join(h.Stages, "\t")))
		for _, st := range h.Statuses {
			fmt.Fprintf(w, "%s\t", st)
			for _, sg := range h.Stages {
				c := h.Count(st, sg)
				fmt.Fprintf(w, "%d%s\t", c, heatGlyphs[tree.HeatLevel(c)])
			}
			fmt.Fprintf(w, "%d\t\n", h.RowTotal[st])
		}
		fmt.Fprint(w, "TOTAL\t")
		for _, sg := range h.Stages {
			fmt.Fprintf(w, "%d\t", h.ColTotal[sg])
		}
		fmt.Fprintf(w, "%d\t\n", h.Total)
		return w.Flush()
	})
}
