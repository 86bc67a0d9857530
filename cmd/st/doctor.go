package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/storytree/internal/config"
	"github.com/zulandar/storytree/internal/db"
	"github.com/zulandar/storytree/internal/story"
	"github.com/zulandar/storytree/internal/subtree"
	"gorm.io/gorm"
)

func newDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, database and repository",
		Long:  "Runs diagnostic checks: config, database connection, schema version, root node, tree integrity, git repository and sync remote.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

type checkResult struct {
	name   string
	status string // "PASS", "FAIL", "WARN"
	detail string
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "StoryTree Doctor")
	fmt.Fprintln(out, "================")

	var results []checkResult

	cfg, cfgResult := checkConfig(configPath)
	results = append(results, cfgResult)

	if cfg != nil {
		gormDB, dbResult := checkDatabase(cfg)
		results = append(results, dbResult)
		if gormDB != nil {
			results = append(results, checkSchema(gormDB), checkRoot(gormDB), checkIntegrity(gormDB))
		} else {
			results = append(results,
				checkResult{"Schema", "FAIL", "skipped (no database)"},
				checkResult{"Root node", "FAIL", "skipped (no database)"},
				checkResult{"Tree integrity", "FAIL", "skipped (no database)"},
			)
		}
		results = append(results, checkNotify(cfg))
	} else {
		results = append(results, checkResult{"Database", "FAIL", "skipped (no config)"})
	}

	runner := newRunner()
	ctx := commandContext(cmd)
	gitResult := checkGitRepo(ctx, runner)
	results = append(results, gitResult)
	if cfg != nil && gitResult.status == "PASS" {
		results = append(results, checkSyncRemote(ctx, subtree.New(cfg.Sync, repoRoot(), runner, nil), cfg.Sync.Remote))
	}

	passed, failed, warned := 0, 0, 0
	for _, r := range results {
		printCheckResult(out, r)
		switch r.status {
		case "PASS":
			passed++
		case "FAIL":
			failed++
		case "WARN":
			warned++
		}
	}

	fmt.Fprintf(out, "\n%d passed, %d failed, %d warning\n", passed, failed, warned)

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func printCheckResult(out io.Writer, r checkResult) {
	fmt.Fprintf(out, "[%s] %s: %s\n", r.status, r.name, r.detail)
}

func checkConfig(path string) (*config.Config, checkResult) {
	cfg, err := config.Load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return config.Default(), checkResult{"Config file", "WARN", path + " not found, using defaults"}
	case err != nil:
		return nil, checkResult{"Config file", "FAIL", fmt.Sprintf("%s: %v", path, err)}
	}
	return cfg, checkResult{"Config file", "PASS", path}
}

func checkDatabase(cfg *config.Config) (*gorm.DB, checkResult) {
	target := describeDB(cfg)
	if cfg.Database.Driver != "mysql" {
		if _, err := os.Stat(cfg.SQLitePath(repoRoot())); err != nil {
			return nil, checkResult{"Database", "FAIL", target + " does not exist (run st db init)"}
		}
	}
	gormDB, err := db.Open(cfg, repoRoot())
	if err != nil {
		return nil, checkResult{"Database", "FAIL", err.Error()}
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, checkResult{"Database", "FAIL", fmt.Sprintf("get sql.DB: %v", err)}
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, checkResult{"Database", "FAIL", fmt.Sprintf("%s ping failed: %v", target, err)}
	}
	return gormDB, checkResult{"Database", "PASS", target}
}

func checkSchema(gormDB *gorm.DB) checkResult {
	meta, err := db.Metadata(gormDB)
	if err != nil {
		return checkResult{"Schema", "FAIL", err.Error()}
	}
	v := meta[db.KeySchemaVersion]
	switch v {
	case "":
		return checkResult{"Schema", "FAIL", "no schema version recorded (run st db init)"}
	case db.SchemaVersion:
		return checkResult{"Schema", "PASS", "version " + v}
	}
	return checkResult{"Schema", "WARN", fmt.Sprintf("version %s, expected %s (run st db init)", v, db.SchemaVersion)}
}

func checkRoot(gormDB *gorm.DB) checkResult {
	r, err := db.VerifyRoot(gormDB)
	if err != nil {
		return checkResult{"Root node", "FAIL", err.Error()}
	}
	if !r.Found {
		return checkResult{"Root node", "FAIL", "missing (run st db init)"}
	}
	return checkResult{"Root node", "PASS", fmt.Sprintf("%d descendant paths", len(r.Paths))}
}

func checkIntegrity(gormDB *gorm.DB) checkResult {
	r, err := story.Health(gormDB)
	if err != nil {
		return checkResult{"Tree integrity", "FAIL", err.Error()}
	}
	if r.Healthy() {
		return checkResult{"Tree integrity", "PASS", fmt.Sprintf("%d stories, no issues", r.Stats.TotalNodes)}
	}
	var parts []string
	for _, c := range r.Issues.Categories() {
		if len(c.Issues) > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", c.Name, len(c.Issues)))
		}
	}
	return checkResult{"Tree integrity", "WARN", fmt.Sprintf("%d issues (%s), see st tree health", r.TotalIssues, strings.Join(parts, ", "))}
}

func checkNotify(cfg *config.Config) checkResult {
	var targets []string
	if cfg.Notify.Slack.Enabled() {
		targets = append(targets, "slack")
	}
	if cfg.Notify.Discord.Enabled() {
		targets = append(targets, "discord")
	}
	if len(targets) == 0 {
		return checkResult{"Notifications", "WARN", "no chat targets configured"}
	}
	return checkResult{"Notifications", "PASS", strings.Join(targets, ", ")}
}

func checkGitRepo(ctx context.Context, runner subtree.Runner) checkResult {
	if _, err := runner.Run(ctx, repoRoot(), "rev-parse", "--is-inside-work-tree"); err != nil {
		return checkResult{"Git repo", "FAIL", "not inside a git repository"}
	}
	return checkResult{"Git repo", "PASS", "valid"}
}

func checkSyncRemote(ctx context.Context, s *subtree.Syncer, remote string) checkResult {
	if err := s.CheckRemote(ctx); err != nil {
		return checkResult{"Sync remote", "WARN", fmt.Sprintf("%q not configured (git remote add %s <url>)", remote, remote)}
	}
	if op, err := s.OperationInProgress(ctx); err == nil && op != "" {
		return checkResult{"Sync remote", "WARN", fmt.Sprintf("%q configured, but a %s is in progress", remote, op)}
	}
	return checkResult{"Sync remote", "PASS", fmt.Sprintf("%q configured", remote)}
}
