// Package commands implements the kognic-auth CLI.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/kognic/kognic-auth-go/internal/observability"
	"github.com/kognic/kognic-auth-go/internal/version"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:    "kognic-auth",
		Usage:   "Kognic API authentication helper",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelWarn.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(observability.LogFormatText),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			var level slog.Level
			if err := level.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
				return ctx, fmt.Errorf("invalid log level: %w", err)
			}
			return ctx, observability.Instrument(level, observability.LogFormat(cmd.String("log-format")))
		},
		Commands: []*cli.Command{
			getAccessTokenCommand(),
			callCommand(),
			credentialsCommand(),
		},
	}

	return cmd.Run(ctx, args)
}
