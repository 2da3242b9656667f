package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kognic/kognic-auth-go/credentials"
)

func credentialsCommand() *cli.Command {
	return &cli.Command{
		Name:  "credentials",
		Usage: "Manage stored credentials in the system keyring",
		Commands: []*cli.Command{
			{
				Name:      "put",
				Usage:     "Store credentials from a JSON file into the system keyring",
				ArgsUsage: "FILE",
				Flags:     []cli.Flag{profileFlag()},
				Action:    credentialsPutAction,
			},
			{
				Name:   "get",
				Usage:  "Read stored credentials from the system keyring",
				Flags:  []cli.Flag{profileFlag()},
				Action: credentialsGetAction,
			},
			{
				Name:   "clear",
				Usage:  "Remove stored credentials from the system keyring",
				Flags:  []cli.Flag{profileFlag()},
				Action: credentialsClearAction,
			},
		},
	}
}

func profileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Value: credentials.DefaultProfile,
		Usage: "keyring profile name; use the environment name from environments.json " +
			"to link credentials to that environment (e.g. --env staging → keyring://staging)",
	}
}

func credentialsPutAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one FILE argument")
	}
	profile := cmd.String("env")

	creds, err := credentials.ParseFile(cmd.Args().First())
	if err != nil {
		return err
	}
	if err := credentials.NewStore().Set(ctx, profile, creds); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Credentials for client_id=%q stored in keyring (profile=%q)\n", creds.ClientID, profile)
	return nil
}

func credentialsGetAction(ctx context.Context, cmd *cli.Command) error {
	profile := cmd.String("env")

	creds, err := credentials.NewStore().Get(ctx, profile)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return fmt.Errorf("no credentials found in keyring (profile=%q)", profile)
		}
		return err
	}

	// Explicitly requested dump; this is the one place the secret is printed.
	out, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

func credentialsClearAction(ctx context.Context, cmd *cli.Command) error {
	profile := cmd.String("env")

	if err := credentials.NewStore().Delete(ctx, profile); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Credentials cleared from keyring (profile=%q)\n", profile)
	return nil
}
