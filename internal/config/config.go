// Package config provides YAML-based configuration loading for StoryTree.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when --config is not given.
const DefaultPath = "storytree.yaml"

// DataDirEnv overrides the data directory when set.
const DataDirEnv = "STORYTREE_DATA_DIR"

// DBFileName is the SQLite database file inside the data directory.
const DBFileName = "story-tree.db"

// Config is the top-level StoryTree configuration, loaded from storytree.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Sync      SyncConfig      `yaml:"sync"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig selects the storage backend. Driver "sqlite" uses Path (or
// the resolved data directory); "mysql" connects to a Dolt or MySQL server.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	User   string `yaml:"user"`
	Name   string `yaml:"name"`
}

// SyncConfig describes the git subtrees mirrored to the distribution remote.
type SyncConfig struct {
	Remote   string          `yaml:"remote"`
	Workers  int             `yaml:"workers"`
	Subtrees []SubtreeConfig `yaml:"subtrees"`
}

// SubtreeConfig maps a local prefix to a branch on the remote.
type SubtreeConfig struct {
	Prefix string `yaml:"prefix"`
	Branch string `yaml:"branch"`
}

// DashboardConfig holds HTTP API and health-scan settings.
type DashboardConfig struct {
	Port           int    `yaml:"port"`
	HealthSchedule string `yaml:"health_schedule"`
}

// NotifyConfig holds chat notification targets. Empty tokens disable a target.
type NotifyConfig struct {
	Slack   ChatConfig `yaml:"slack"`
	Discord ChatConfig `yaml:"discord"`
}

// ChatConfig is a bot token and the channel to post to.
type ChatConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether both token and channel are set.
func (c ChatConfig) Enabled() bool { return c.BotToken != "" && c.Channel != "" }

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultSubtrees are the distribution subtrees synced when none are configured.
func DefaultSubtrees() []SubtreeConfig {
	return []SubtreeConfig{
		{Prefix: ".claude/skills/storytree", Branch: "dist-skills"},
		{Prefix: ".claude/commands/storytree", Branch: "dist-commands"},
		{Prefix: ".claude/scripts/storytree", Branch: "dist-scripts"},
		{Prefix: ".github/actions/storytree", Branch: "dist-actions"},
		{Prefix: ".storytree/gui", Branch: "dist-gui"},
	}
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "storytree"
		}
	}
	if c.Sync.Remote == "" {
		c.Sync.Remote = "storytree"
	}
	if c.Sync.Workers == 0 {
		c.Sync.Workers = 5
	}
	if len(c.Sync.Subtrees) == 0 {
		c.Sync.Subtrees = DefaultSubtrees()
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Dashboard.HealthSchedule == "" {
		c.Dashboard.HealthSchedule = "0 * * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}
}

// validate checks that all fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.Sync.Workers < 1 {
		errs = append(errs, "sync.workers must be at least 1")
	}
	seen := make(map[string]bool)
	for i, s := range c.Sync.Subtrees {
		if s.Prefix == "" {
			errs = append(errs, fmt.Sprintf("sync.subtrees[%d].prefix is required", i))
		}
		if s.Branch == "" {
			errs = append(errs, fmt.Sprintf("sync.subtrees[%d].branch is required", i))
		}
		if seen[s.Prefix] && s.Prefix != "" {
			errs = append(errs, fmt.Sprintf("sync.subtrees[%d].prefix %q is duplicated", i, s.Prefix))
		}
		seen[s.Prefix] = true
	}
	if _, err := cron.ParseStandard(c.Dashboard.HealthSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("dashboard.health_schedule: %v", err))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be auto, text or json", c.Log.Format))
	}
	if chat := c.Notify.Slack; (chat.BotToken == "") != (chat.Channel == "") {
		errs = append(errs, "notify.slack needs both bot_token and channel")
	}
	if chat := c.Notify.Discord; (chat.BotToken == "") != (chat.Channel == "") {
		errs = append(errs, "notify.discord needs both bot_token and channel")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DataDir resolves the StoryTree data directory: the STORYTREE_DATA_DIR
// environment variable, else <repoRoot>/.storytree/data when it exists, else
// the legacy .claude/data relative to the working directory.
func DataDir(repoRoot string) string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}
	standard := filepath.Join(repoRoot, ".storytree", "data")
	if info, err := os.Stat(standard); err == nil && info.IsDir() {
		return standard
	}
	return filepath.Join(".claude", "data")
}

// SQLitePath returns database.path when set, else story-tree.db in DataDir.
func (c *Config) SQLitePath(repoRoot string) string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(DataDir(repoRoot), DBFileName)
}
