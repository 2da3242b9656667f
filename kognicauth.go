// Package kognicauth provides authenticated HTTP access to Kognic APIs using
// the OAuth2 Client Credentials grant.
//
// The building blocks live in subpackages:
//   - credentials: credential resolution (explicit values, files, environment
//     variables, the OS credential store) and the keyring-backed profile store
//   - tokensource: the token endpoint exchange
//   - tokencache: the in-memory token cache with single-flight refresh
//   - tokenstore: cross-process token persistence for the CLI
//   - session: the request-decorating session tying it all together
//   - envconfig: named environment registry matched by request hostname
//
// Most users only need session:
//
//	sess := session.New(session.WithCredentials(credentials.FilePath("~/.config/kognic/credentials.json")))
//	resp, err := sess.Get(ctx, "https://api.app.kognic.com/v1/resources")
package kognicauth

const (
	// DefaultAuthServer is the production Kognic authentication server.
	DefaultAuthServer = "https://auth.app.kognic.com"

	// DefaultPlatformHost is the hostname of the production Kognic platform,
	// used by the built-in fallback environment.
	DefaultPlatformHost = "app.kognic.com"
)
