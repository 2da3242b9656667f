package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kognic/kognic-auth-go/credentials"
	"github.com/kognic/kognic-auth-go/envconfig"
	"github.com/kognic/kognic-auth-go/session"
)

func callCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "Make an authenticated HTTP request to a Kognic API",
		ArgsUsage: "URL",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "request",
				Aliases: []string{"X"},
				Usage:   "HTTP method",
				Value:   http.MethodGet,
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "request body (JSON string)",
			},
			&cli.StringSliceFlag{
				Name:    "header",
				Aliases: []string{"H"},
				Usage:   "header in 'Key: Value' format (repeatable)",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "force a specific environment (skip URL-based matching)",
			},
			&cli.StringFlag{
				Name:  "env-config-file-path",
				Usage: "environment config file path",
				Value: envconfig.DefaultPath(),
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "output format (json|jsonl|csv|tsv|table)",
				Value: formatJSON,
			},
		},
		Action: callAction,
	}
}

func callAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one URL argument")
	}
	rawURL := cmd.Args().First()

	format := cmd.String("format")
	if !validFormat(format) {
		return fmt.Errorf("unsupported output format: %s", format)
	}

	cfg, err := envconfig.Load(cmd.String("env-config-file-path"))
	if err != nil {
		return err
	}
	env, err := cfg.Resolve(cmd.String("env"), rawURL)
	if err != nil {
		return err
	}

	header, err := parseHeaders(cmd.StringSlice("header"))
	if err != nil {
		return err
	}

	var body []byte
	if data := cmd.String("data"); data != "" {
		if !json.Valid([]byte(data)) {
			return fmt.Errorf("invalid JSON data")
		}
		body = []byte(data)
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/json")
		}
	}

	var locator credentials.Locator
	if env.Credentials != "" {
		locator = credentials.ParseLocator(env.Credentials)
	}

	sess := session.New(
		session.WithAuthServer(env.AuthServer),
		session.WithCredentials(locator),
	)

	resp, err := sess.Do(ctx, strings.ToUpper(cmd.String("request")), rawURL, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return printResponse(os.Stdout, resp, format)
}

// parseHeaders parses repeated 'Key: Value' arguments into an http.Header.
func parseHeaders(raw []string) (http.Header, error) {
	header := http.Header{}
	for _, h := range raw {
		key, value, found := strings.Cut(h, ": ")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid header format %q, expected 'Key: Value'", h)
		}
		header.Set(key, value)
	}
	return header, nil
}
