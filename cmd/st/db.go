package main

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/storytree/internal/config"
	"github.com/zulandar/storytree/internal/db"
	"github.com/zulandar/storytree/internal/models"
	"golang.org/x/term"
	"gorm.io/gorm"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBInfoCmd())
	cmd.AddCommand(newDBVerifyRootCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the story database",
		Long:  "Creates the schema, seeds the root node and records the schema version. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

// openForInit connects to the configured database, creating the MySQL
// schema first when needed.
func openForInit(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Database.Driver == "mysql" {
		adminDB, err := db.ConnectAdmin(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := db.CreateDatabase(adminDB, cfg.Database.Name); err != nil {
			return nil, err
		}
	}
	return db.Open(cfg, repoRoot())
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gormDB, err := openForInit(cfg)
	if err != nil {
		return err
	}
	if err := db.Init(gormDB, time.Now()); err != nil {
		return err
	}

	fmt.Fprintf(out, "Database: %s\n", describeDB(cfg))
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	fmt.Fprintln(out, "Root node present")
	fmt.Fprintf(out, "Schema version %s\n", db.SchemaVersion)
	return nil
}

func describeDB(cfg *config.Config) string {
	if cfg.Database.Driver == "mysql" {
		return fmt.Sprintf("mysql %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	}
	return "sqlite " + cfg.SQLitePath(repoRoot())
}

func newDBInfoCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show schema metadata and row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInfo(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBInfo(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	meta, err := db.Metadata(gormDB)
	if err != nil {
		return err
	}
	var nodes, paths int64
	if err := gormDB.Model(&models.StoryNode{}).Count(&nodes).Error; err != nil {
		return fmt.Errorf("count stories: %w", err)
	}
	if err := gormDB.Model(&models.StoryPath{}).Count(&paths).Error; err != nil {
		return fmt.Errorf("count paths: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database: %s\n", describeDB(cfg))
	fmt.Fprintf(out, "Stories:  %d\n", nodes)
	fmt.Fprintf(out, "Paths:    %d\n", paths)
	if len(meta) == 0 {
		fmt.Fprintln(out, "No metadata recorded (run st db init)")
		return nil
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\n", k, meta[k])
	}
	return w.Flush()
}

func newDBVerifyRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "verify-root",
		Short: "Check the root node and its closure rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBVerifyRoot(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBVerifyRoot(cmd *cobra.Command, configPath string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	r, err := db.VerifyRoot(gormDB)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !r.Found {
		fmt.Fprintln(out, "Root node: MISSING")
		return errors.New("root node not found (run st db init)")
	}
	fmt.Fprintf(out, "Root node: %s (%s, stage %s)\n", r.Node.ID, r.Node.Feature, r.Node.Stage)

	self := false
	byDepth := make(map[int]int)
	for _, p := range r.Paths {
		if p.DescendantID == r.Node.ID && p.Depth == 0 {
			self = true
		}
		byDepth[p.Depth]++
	}
	if self {
		fmt.Fprintln(out, "Self path: present")
	} else {
		fmt.Fprintln(out, "Self path: MISSING")
	}
	fmt.Fprintf(out, "Descendant paths: %d\n", len(r.Paths))
	depths := make([]int, 0, len(byDepth))
	for d := range byDepth {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	for _, d := range depths {
		fmt.Fprintf(out, "  depth %d: %d\n", d, byDepth[d])
	}
	if !self {
		return errors.New("root self path missing")
	}
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the story database",
		Long:  "Deletes every story and re-creates an empty tree holding only the root node.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	target := describeDB(cfg)

	if !skipConfirm {
		if f, ok := cmd.InOrStdin().(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
			return errors.New("stdin is not a terminal: pass --yes to reset")
		}
		if !confirmReset(cmd, target) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	switch cfg.Database.Driver {
	case "mysql":
		adminDB, err := db.ConnectAdmin(cfg.Database)
		if err != nil {
			return err
		}
		if err := db.DropDatabase(adminDB, cfg.Database.Name); err != nil {
			return err
		}
	default:
		path := cfg.SQLitePath(repoRoot())
		for _, p := range []string{path, path + "-wal", path + "-shm"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove %s: %w", p, err)
			}
		}
	}
	fmt.Fprintf(out, "Dropped %s\n", target)

	gormDB, err := openForInit(cfg)
	if err != nil {
		return err
	}
	if err := db.Init(gormDB, time.Now()); err != nil {
		return err
	}
	fmt.Fprintln(out, "Database re-initialized with an empty tree.")
	return nil
}

func confirmReset(cmd *cobra.Command, target string) bool {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "WARNING: This will permanently delete every story in %s.\n", target)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
