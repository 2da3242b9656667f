package credentials

import (
	"context"
	"errors"
	"log/slog"
	"os"
)

// Resolver produces a credential pair from the first source that yields a
// complete one. Read-only after construction and safe for concurrent use.
type Resolver struct {
	store  *Store
	getenv func(string) string
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithStore sets the credential store consulted for keyring lookups.
func WithStore(s *Store) ResolverOption {
	return func(r *Resolver) { r.store = s }
}

// WithGetenv overrides environment variable lookup.
func WithGetenv(fn func(string) string) ResolverOption {
	return func(r *Resolver) { r.getenv = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a Resolver backed by the process environment and the
// OS credential store.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  NewStore(),
		getenv: os.Getenv,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the first complete credential pair in precedence order.
//
// When explicit is non-nil only that source is tried; its failure is fatal
// and never falls through to the environment or the keyring. A nil explicit
// locator walks the chain: KOGNIC_CREDENTIALS file, KOGNIC_CLIENT_ID +
// KOGNIC_CLIENT_SECRET, then the "default" keyring profile. ErrNoCredentials
// is returned when the whole chain comes up empty.
func (r *Resolver) Resolve(ctx context.Context, explicit Locator) (Credentials, error) {
	if explicit != nil {
		return explicit.resolve(ctx, r)
	}

	if path := r.getenv(EnvCredentialsFile); path != "" {
		c, err := ParseFile(path)
		if err != nil {
			// A broken file named by the environment is a configuration
			// error, not a miss.
			return Credentials{}, err
		}
		r.logger.Debug("resolved credentials", "credentials", c, "via", EnvCredentialsFile)
		return c, nil
	}

	if id, secret := r.getenv(EnvClientID), r.getenv(EnvClientSecret); id != "" && secret != "" {
		c := Credentials{ClientID: id, ClientSecret: secret, Source: SourceEnvVar}
		r.logger.Debug("resolved credentials", "credentials", c)
		return c, nil
	}

	c, err := r.store.Get(ctx, DefaultProfile)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Credentials{}, err
		}
		if !errors.Is(err, ErrNotFound) {
			// An unusable keyring backend behaves like a miss here; the
			// default profile is the last resort, not a requirement.
			r.logger.Debug("keyring lookup failed", "error", err)
		}
		return Credentials{}, ErrNoCredentials
	}
	r.logger.Debug("resolved credentials", "credentials", c)
	return c, nil
}
