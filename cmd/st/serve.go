package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/storytree/internal/dashboard"
	"github.com/zulandar/storytree/internal/notify"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		noHealth   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the story tree HTTP API",
		Long: `Serves the tree, board views and transitions as JSON with a live event
stream, and runs the scheduled health scan. Transitions and health problems
are posted to the configured Slack and Discord channels.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, noHealth)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	cmd.Flags().BoolVar(&noHealth, "no-health", false, "disable the scheduled health scan")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, noHealth bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	n, err := notify.FromConfig(cfg.Notify, logger)
	if err != nil {
		return err
	}

	if port == 0 {
		port = cfg.Dashboard.Port
	}
	schedule := cfg.Dashboard.HealthSchedule
	if noHealth {
		schedule = ""
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return dashboard.Start(ctx, dashboard.StartOpts{
		DB:             gormDB,
		Port:           port,
		Out:            cmd.OutOrStdout(),
		Logger:         logger,
		Notifier:       n,
		HealthSchedule: schedule,
	})
}
