/*
Copyright © 2025 The Bitte Authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/bitte-ops/bitte/pkg/config"
	"github.com/bitte-ops/bitte/pkg/errors"
	"github.com/bitte-ops/bitte/pkg/logging"
)

const (
	name           = "bitte"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

// Execute runs the root command with the process arguments and exits
// non-zero on failure. It is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cli.Command {
	return &cli.Command{
		Name:                  name,
		Usage:                 "Inspect Bitte clusters",
		Version:               fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars(logging.EnvLogLevel),
			},
			&cli.StringFlag{
				Name:    "cluster",
				Usage:   "Cluster name",
				Sources: cli.EnvVars(config.EnvCluster),
			},
			&cli.StringFlag{
				Name:    "domain",
				Usage:   "Cluster domain",
				Sources: cli.EnvVars(config.EnvDomain),
			},
			&cli.StringFlag{
				Name:    "provider",
				Usage:   "Cloud provider (AWS)",
				Sources: cli.EnvVars(config.EnvProvider),
			},
			&cli.StringFlag{
				Name:    "cache",
				Usage:   "Snapshot cache file",
				Value:   config.DefaultCachePath,
				Sources: cli.EnvVars(config.EnvCachePath),
			},
			&cli.StringFlag{
				Name:    "state-backend",
				Usage:   "Declared state backend (tfc, vault)",
				Value:   string(config.BackendTerraformCloud),
				Sources: cli.EnvVars(config.EnvStateBackend),
			},
			&cli.StringFlag{
				Name:  "metrics-textfile",
				Usage: "Write Prometheus metrics to this file on exit (node exporter textfile format)",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.SetDefaultStructuredLoggerWithLevel(name, version, cmd.String("log-level"))
			slog.Debug("starting", slog.String("version", version), slog.String("commit", commit))
			return ctx, nil
		},
		After: func(_ context.Context, cmd *cli.Command) error {
			path := cmd.String("metrics-textfile")
			if path == "" {
				return nil
			}
			if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, "failed to write metrics", err)
			}
			return nil
		},
		Commands: []*cli.Command{
			infoCmd(),
			findCmd(),
			allocsCmd(),
			instancesCmd(),
		},
	}
}

// loadConfig reads the environment and applies the global flags on top.
func loadConfig(cmd *cli.Command) *config.Config {
	cfg := config.Load()
	overlay := func(dst *string, flag string) {
		if v := cmd.String(flag); v != "" {
			*dst = v
		}
	}
	overlay(&cfg.Cluster, "cluster")
	overlay(&cfg.Domain, "domain")
	overlay(&cfg.Provider, "provider")
	overlay(&cfg.CachePath, "cache")
	if v := cmd.String("state-backend"); v != "" {
		cfg.StateBackend = config.StateBackend(strings.ToLower(v))
	}
	return cfg
}
