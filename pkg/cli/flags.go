/*
Copyright © 2025 The Bitte Authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/bitte-ops/bitte/pkg/defaults"
	"github.com/bitte-ops/bitte/pkg/errors"
	"github.com/bitte-ops/bitte/pkg/serializer"
)

var (
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output file path (default: stdout)",
	}

	formatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"t"},
		Value:   string(serializer.FormatTable),
		Usage:   fmt.Sprintf("Output format (supported values: %s)", strings.Join(serializer.SupportedFormats(), ", ")),
	}

	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Value: defaults.ResolveTimeout,
		Usage: "Upper bound for the whole command, including a snapshot rebuild",
	}
)

func parseOutputFormat(cmd *cli.Command) (serializer.Format, error) {
	f := serializer.Format(cmd.String("format"))
	if f.IsUnknown() {
		return "", errors.New(errors.ErrCodeInvalidRequest, fmt.Sprintf("unknown output format: %q", f))
	}
	return f, nil
}

// requireArgs returns the positional arguments, failing when fewer than min are given.
func requireArgs(cmd *cli.Command, min int, what string) ([]string, error) {
	args := cmd.Args().Slice()
	if len(args) < min {
		return nil, errors.New(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("%s: expected at least %d %s", cmd.Name, min, what))
	}
	return args, nil
}

// write serializes data to the --output destination in the --format format.
func write(ctx context.Context, cmd *cli.Command, format serializer.Format, data any) error {
	w := serializer.NewFileWriterOrStdout(format, cmd.String("output"))
	defer func() {
		if err := w.Close(); err != nil {
			slog.Warn("failed to close output", slog.String("error", err.Error()))
		}
	}()

	if err := w.Serialize(ctx, data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
