/*
Copyright © 2025 The Bitte Authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/bitte-ops/bitte/pkg/cluster"
)

func newBuilder(cmd *cli.Command) *cluster.Builder {
	cfg := loadConfig(cmd)
	return &cluster.Builder{
		Config:  cfg,
		Cache:   cluster.NewCache(cfg.CachePath),
		Version: version,
	}
}

func loadCluster(ctx context.Context, cmd *cli.Command, refresh bool) (*cluster.Cluster, error) {
	b := newBuilder(cmd)
	if refresh {
		return b.Build(ctx)
	}
	return b.LoadOrBuild(ctx)
}

func infoCmd() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the nodes of the cluster",
		Description: `Show every running instance of the cluster together with its Nomad client
and the number of allocations placed on it.

The snapshot is served from the cache while it is fresh (five minutes).
Use --refresh to rebuild it from the sources.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Rebuild the snapshot even when the cache is fresh",
			},
			timeoutFlag,
			outputFlag,
			formatFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()

			c, err := loadCluster(ctx, cmd, cmd.Bool("refresh"))
			if err != nil {
				return fmt.Errorf("failed to load cluster: %w", err)
			}
			return write(ctx, cmd, format, c)
		},
	}
}

func findCmd() *cli.Command {
	return &cli.Command{
		Name:      "find",
		Usage:     "Resolve needles to nodes",
		ArgsUsage: "NEEDLE...",
		Description: `A needle is matched exactly against the instance id, the name, the Nomad
client id and the private and public address of every node.

Without --one every node matching any needle is printed.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "one",
				Usage: "Print only the first node matching the first needle; fail when none does",
			},
			timeoutFlag,
			outputFlag,
			formatFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			needles, err := requireArgs(cmd, 1, "needle")
			if err != nil {
				return err
			}
			format, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()

			c, err := loadCluster(ctx, cmd, false)
			if err != nil {
				return fmt.Errorf("failed to load cluster: %w", err)
			}

			if cmd.Bool("one") {
				n, err := c.FindNeedle(needles[0])
				if err != nil {
					return err
				}
				return write(ctx, cmd, format, cluster.Nodes{*n})
			}

			nodes, err := c.FindNeedles(needles)
			if err != nil {
				return err
			}
			return write(ctx, cmd, format, nodes)
		},
	}
}

func allocsCmd() *cli.Command {
	return &cli.Command{
		Name:      "allocs",
		Usage:     "List the Nomad allocations placed on a node",
		ArgsUsage: "NEEDLE",
		Flags: []cli.Flag{
			timeoutFlag,
			outputFlag,
			formatFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := requireArgs(cmd, 1, "needle")
			if err != nil {
				return err
			}
			format, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()

			c, err := loadCluster(ctx, cmd, false)
			if err != nil {
				return fmt.Errorf("failed to load cluster: %w", err)
			}

			allocs, err := c.Allocations(args[0])
			if err != nil {
				return err
			}
			return write(ctx, cmd, format, allocs)
		},
	}
}
