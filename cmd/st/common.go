package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/storytree/internal/config"
	"github.com/zulandar/storytree/internal/db"
	"github.com/zulandar/storytree/internal/logging"
	"gorm.io/gorm"
)

// errIssuesFound makes integrity commands exit non-zero after printing
// their report.
var errIssuesFound = errors.New("issues found")

func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", config.DefaultPath, "path to StoryTree config file")
}

// repoRoot is the directory data paths and git commands resolve against.
func repoRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Open(cfg, repoRoot())
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: w})
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func ptrOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
