package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	kognicauth "github.com/kognic/kognic-auth-go"
	"github.com/kognic/kognic-auth-go/credentials"
	"github.com/kognic/kognic-auth-go/envconfig"
	"github.com/kognic/kognic-auth-go/session"
	"github.com/kognic/kognic-auth-go/tokencache"
	"github.com/kognic/kognic-auth-go/tokenstore"
)

func getAccessTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "get-access-token",
		Usage: "Generate an access token for Kognic API authentication",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Usage: "authentication server URL (default: " + kognicauth.DefaultAuthServer + ")",
			},
			&cli.StringFlag{
				Name:  "credentials",
				Usage: "path to a JSON credentials file or keyring://<profile>",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "use a specific environment from the config file",
			},
			&cli.StringFlag{
				Name:  "env-config-file-path",
				Usage: "environment config file path",
				Value: envconfig.DefaultPath(),
			},
			&cli.StringFlag{
				Name:  "token-cache",
				Usage: "token cache backend (auto|keyring|file|none)",
				Value: string(tokenstore.ModeAuto),
			},
		},
		Action: getAccessTokenAction,
	}
}

func getAccessTokenAction(ctx context.Context, cmd *cli.Command) error {
	server := cmd.String("server")
	credentialsArg := cmd.String("credentials")

	if name := cmd.String("env"); name != "" {
		cfg, err := envconfig.Load(cmd.String("env-config-file-path"))
		if err != nil {
			return err
		}
		env, err := cfg.Resolve(name, "")
		if err != nil {
			return err
		}
		// Explicit flags override the environment field by field.
		if server == "" {
			server = env.AuthServer
		}
		if credentialsArg == "" {
			credentialsArg = env.Credentials
		}
	}
	if server == "" {
		server = kognicauth.DefaultAuthServer
	}

	var locator credentials.Locator
	if credentialsArg != "" {
		locator = credentials.ParseLocator(credentialsArg)
	}

	store, err := tokenstore.New(tokenstore.Mode(cmd.String("token-cache")))
	if err != nil {
		return err
	}

	resolver := credentials.NewResolver()

	opts := []session.Option{
		session.WithAuthServer(server),
		session.WithCredentials(locator),
		session.WithResolver(resolver),
	}

	if store != nil {
		// Pre-resolve only to build the cache key; resolution failures are
		// ignored here and reported properly by the session below.
		if creds, err := resolver.Resolve(ctx, locator); err == nil {
			key := tokencache.Key{AuthServer: server, ClientID: creds.ClientID}
			if tok := store.Load(ctx, key); tok != nil {
				fmt.Fprintln(os.Stdout, tok.AccessToken)
				return nil
			}
			opts = append(opts, session.WithOnTokenUpdated(func(tok *oauth2.Token) {
				store.Save(ctx, key, tok)
			}))
		}
	}

	token, err := session.New(opts...).AccessToken(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, token)
	return nil
}
