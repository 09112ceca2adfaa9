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
	"github.com/bitte-ops/bitte/pkg/instance"
	"github.com/bitte-ops/bitte/pkg/inventory"
)

func instancesCmd() *cli.Command {
	return &cli.Command{
		Name:      "instances",
		Usage:     "Resolve needles against declared instances and autoscaling groups",
		ArgsUsage: "NEEDLE...",
		Description: `Declared instances match on their name or addresses. Autoscaling group
members match when the needle appears anywhere in the concatenated instance
id, DNS names and addresses; only members with a public address are printed.

Substring matching can match unrelated instances (10.0.0.1 matches
10.0.0.12). --match fields requires the needle to equal the instance id or
an address, or to be the leading labels of a DNS name.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "match",
				Value: string(instance.MatchSubstring),
				Usage: fmt.Sprintf("Group member matching (%s, %s)", instance.MatchSubstring, instance.MatchFields),
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
			mode, err := instance.ParseMatchMode(cmd.String("match"))
			if err != nil {
				return err
			}
			format, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}

			cfg := loadConfig(cmd)
			if err := cfg.RequireDeclaredState(); err != nil {
				return err
			}
			state, err := cluster.NewDefaultFactory(cfg).CreateDeclaredState()
			if err != nil {
				return fmt.Errorf("failed to create declared state client: %w", err)
			}

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()

			r := &instance.Resolver{
				State:     state,
				Inventory: inventory.NewAWS(),
				Mode:      mode,
			}
			found, err := r.Find(ctx, needles)
			if err != nil {
				return err
			}
			return write(ctx, cmd, format, found)
		},
	}
}
